package library

import (
	"path/filepath"
	"strings"
	"testing"
)

func tempCatalog(t *testing.T) *Catalog {
	t.Helper()
	dir := t.TempDir()
	c, err := NewCatalog(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRebuildAndSearch(t *testing.T) {
	c := tempCatalog(t)
	if err := c.Rebuild(sampleLibrary()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	n, err := c.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 5 {
		t.Fatalf("want 5 indexed books, got %d", n)
	}

	res, err := c.Search("DUNE")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 1 {
		t.Fatalf("want 1 result, got %d", len(res))
	}
	got := res[0]
	if got.Name != "Dune" || got.Location != "/books/dune.epub" || got.ShelfPath != "Fiction/Sci-Fi" {
		t.Fatalf("unexpected entry %+v", got)
	}
}

func TestSearchMatchesShelfPathInTreeOrder(t *testing.T) {
	c := tempCatalog(t)
	if err := c.Rebuild(sampleLibrary()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	res, err := c.Search("sci-fi")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	var names []string
	for _, e := range res {
		names = append(names, e.Name)
	}
	// A shelf's own books come before those of its sub-shelves.
	if got := strings.Join(names, ","); got != "Dune,Foundation" {
		t.Fatalf("want Dune,Foundation, got %s", got)
	}
	if res[0].Position >= res[1].Position {
		t.Fatalf("positions out of order: %d, %d", res[0].Position, res[1].Position)
	}
}

func TestSearchFoldsUnicodeCase(t *testing.T) {
	c := tempCatalog(t)
	lib := &Library{Owner: "ivan"}
	lib.AddShelf("Фантастика").AddBook("Солярис", "")
	if err := c.Rebuild(lib); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	res, err := c.Search("СОЛЯ")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 1 || res[0].ShelfPath != "Фантастика" {
		t.Fatalf("unexpected results %+v", res)
	}
}

func TestSearchEscapesWildcards(t *testing.T) {
	c := tempCatalog(t)
	lib := &Library{}
	s := lib.AddShelf("Misc")
	s.AddBook("100% Cotton", "")
	s.AddBook("snake_case", "")
	s.AddBook("plain", "")
	if err := c.Rebuild(lib); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	for q, want := range map[string]int{"%": 1, "_": 1, "0% c": 1, `\`: 0} {
		res, err := c.Search(q)
		if err != nil {
			t.Fatalf("search %q: %v", q, err)
		}
		if len(res) != want {
			t.Errorf("search %q: want %d results, got %d", q, want, len(res))
		}
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	c := tempCatalog(t)
	if err := c.Rebuild(sampleLibrary()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	res, err := c.Search("   ")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res == nil || len(res) != 0 {
		t.Fatalf("want empty non-nil result, got %#v", res)
	}
}

func TestIsStale(t *testing.T) {
	c := tempCatalog(t)
	lib := sampleLibrary()

	stale, err := c.IsStale(lib)
	if err != nil {
		t.Fatalf("is stale: %v", err)
	}
	if !stale {
		t.Fatal("fresh catalog must be stale")
	}

	if err := c.Rebuild(lib); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if stale, _ = c.IsStale(lib); stale {
		t.Fatal("catalog must be fresh after rebuild")
	}

	lib.Shelves[1].AddBook("Thesaurus", "")
	if stale, _ = c.IsStale(lib); !stale {
		t.Fatal("catalog must be stale after a change")
	}
}

func TestRebuildReplacesRows(t *testing.T) {
	c := tempCatalog(t)
	lib := sampleLibrary()
	if err := c.Rebuild(lib); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	lib.DeleteShelf(lib.Shelves[0].ID)
	if err := c.Rebuild(lib); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	n, _ := c.Count()
	if n != 1 {
		t.Fatalf("want 1 indexed book, got %d", n)
	}
	if res, _ := c.Search("dune"); len(res) != 0 {
		t.Fatalf("deleted book still indexed: %+v", res)
	}
}

func TestReopenCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "catalog.db")
	lib := sampleLibrary()

	c, err := NewCatalog(path)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if err := c.Rebuild(lib); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	c.Close()

	c, err = NewCatalog(path)
	if err != nil {
		t.Fatalf("reopen catalog: %v", err)
	}
	defer c.Close()

	stale, err := c.IsStale(lib)
	if err != nil {
		t.Fatalf("is stale: %v", err)
	}
	if stale {
		t.Fatal("reopened catalog lost its digest")
	}
}

func TestDigestIgnoresIDs(t *testing.T) {
	a, err := Digest(sampleLibrary())
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	b, _ := Digest(sampleLibrary())
	if a != b {
		t.Fatal("same content must give the same digest")
	}
	if len(a) != 64 {
		t.Fatalf("want 64 hex chars, got %d", len(a))
	}
}
