package library

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadLibrary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.xml")
	writeFile(t, path, `<library owner="alice"><shelf name="Fiction"><book name="Dune" location="/books/dune.epub"/><shelf name="Sci-Fi"><book name="Foundation" location=""/></shelf></shelf></library>`)

	lib, err := LoadLibrary(path)
	require.NoError(t, err)

	assert.Equal(t, "alice", lib.Owner)
	assert.Equal(t, path, lib.Path())
	assert.Equal(t, []node{
		{
			Name:    "Fiction",
			Shelves: []node{{Name: "Sci-Fi", Books: [][2]string{{"Foundation", ""}}}},
			Books:   [][2]string{{"Dune", "/books/dune.epub"}},
		},
	}, snapshot(lib.Shelves))
}

func TestLoadMissingAttributes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.xml")
	writeFile(t, path, `<?xml version="1.0"?>
<library>
	<shelf>
		<book/>
		<book name="">ignored text</book>
	</shelf>
</library>`)

	lib, err := LoadLibrary(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultOwner, lib.Owner)
	assert.Equal(t, []node{
		{Name: DefaultShelfName, Books: [][2]string{{DefaultBookName, ""}, {"", ""}}},
	}, snapshot(lib.Shelves))
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.xml")
	lib := sampleLibrary()
	lib.Shelves[1].AddBook(`Tom & Jerry <"annotated">`, "/books/t&j.cbz")

	require.NoError(t, lib.SaveAs(path))
	loaded, err := LoadLibrary(path)
	require.NoError(t, err)

	assert.Equal(t, lib.Owner, loaded.Owner)
	assert.Equal(t, snapshot(lib.Shelves), snapshot(loaded.Shelves))

	// Saving what was loaded reproduces the same document.
	first, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, loaded.Save())
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEncodeWritesSubShelvesFirst(t *testing.T) {
	lib := &Library{Owner: "bob"}
	s := lib.AddShelf("Mixed")
	s.AddBook("Book", "")
	s.AddShelf("Inner")

	out := string(encode(t, lib))

	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out, `<library owner="bob">`)
	inner := strings.Index(out, `<shelf name="Inner">`)
	book := strings.Index(out, `<book name="Book" location="">`)
	require.NotEqual(t, -1, inner)
	require.NotEqual(t, -1, book)
	assert.Less(t, inner, book)
}

func TestLoadBootstrapsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "library.xml")

	lib, err := LoadLibrary(path)
	require.NoError(t, err)

	assert.Equal(t, path, lib.Path())
	assert.Equal(t, DefaultOwner, lib.Owner)
	assert.Equal(t, []node{
		{Name: BootstrapShelfName, Books: [][2]string{{BootstrapBookName, ""}}},
	}, snapshot(lib.Shelves))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<library owner="unknown">`)
	assert.Contains(t, string(data), `<shelf name="default">`)
	assert.Contains(t, string(data), `<book name="New Book" location="">`)
}

func TestLoadBootstrapsBlankFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.xml")
	writeFile(t, path, "  \n\t\n")

	lib, err := LoadLibrary(path)
	require.NoError(t, err)
	require.Len(t, lib.Shelves, 1)
	assert.Equal(t, BootstrapShelfName, lib.Shelves[0].Name)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	regular := filepath.Join(dir, "regular")
	writeFile(t, regular, "not a directory")

	tests := []struct {
		name    string
		content string
		path    string
		kind    ErrorKind
		target  error
	}{
		{name: "directory", path: dir, kind: KindOpen, target: ErrOpen},
		{name: "parent is a file", path: filepath.Join(regular, "library.xml"), kind: KindOpen, target: ErrOpen},
		{name: "truncated", content: `<library owner="a"><shelf name="x">`, kind: KindParsing, target: ErrParsing},
		{name: "garbage", content: `<<<>>>`, kind: KindParsing, target: ErrParsing},
		{name: "other root", content: `<catalog owner="a"/>`, kind: KindParsing, target: ErrParsing},
		{name: "declaration only", content: `<?xml version="1.0"?>`, kind: KindParsing, target: ErrParsing},
		{name: "unknown charset", content: `<?xml version="1.0" encoding="x-no-such-charset"?><library/>`, kind: KindParsing, target: ErrParsing},
		{name: "trailing garbage", content: `<library owner="a"><shelf name="x"/></library><<<garbage`, kind: KindParsing, target: ErrParsing},
		{name: "second root", content: `<library owner="a"/><library owner="b"/>`, kind: KindParsing, target: ErrParsing},
		{name: "trailing text", content: `<library owner="a"/> and more`, kind: KindParsing, target: ErrParsing},
		{name: "too deep", content: `<library>` + strings.Repeat("<shelf>", 10050) + strings.Repeat("</shelf>", 10050) + `</library>`, kind: KindParsing, target: ErrParsing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path
			if path == "" {
				path = filepath.Join(t.TempDir(), "library.xml")
				writeFile(t, path, tt.content)
			}

			lib, err := LoadLibrary(path)
			require.Error(t, err)
			assert.Nil(t, lib)

			var fe *FileError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.kind, fe.Kind)
			assert.Equal(t, path, fe.Path)
			assert.Contains(t, err.Error(), path)
			assert.ErrorIs(t, err, tt.target)
			assert.ErrorIs(t, err, ErrFile)
			assert.NotErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestLoadLegacyEncoding(t *testing.T) {
	doc := `<?xml version="1.0" encoding="windows-1251"?><library owner="Иван"><shelf name="Фантастика"><book name="Солярис" location=""/></shelf></library>`
	encoded, err := charmap.Windows1251.NewEncoder().String(doc)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "library.xml")
	writeFile(t, path, encoded)

	lib, err := LoadLibrary(path)
	require.NoError(t, err)
	assert.Equal(t, "Иван", lib.Owner)
	assert.Equal(t, []node{
		{Name: "Фантастика", Books: [][2]string{{"Солярис", ""}}},
	}, snapshot(lib.Shelves))
}

func TestLoadAllowsCommentsAfterRoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.xml")
	writeFile(t, path, "<library owner=\"a\"/>\n<!-- saved by hand -->\n<?editor done?>\n\n")

	lib, err := LoadLibrary(path)
	require.NoError(t, err)
	assert.Equal(t, "a", lib.Owner)
}

func TestDecodeLibraryReadFailure(t *testing.T) {
	diskErr := errors.New("disk gone")
	r := io.MultiReader(strings.NewReader(`<library owner="a"><shelf name="x">`), iotest.ErrReader(diskErr))

	lib, err := DecodeLibrary(r)
	require.Error(t, err)
	assert.Nil(t, lib)

	var fe *FileError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindRead, fe.Kind)
	assert.ErrorIs(t, err, ErrRead)
	assert.ErrorIs(t, err, diskErr)
	assert.NotErrorIs(t, err, ErrParsing)
}

func TestDecodeLibraryHasNoPath(t *testing.T) {
	lib, err := DecodeLibrary(bytes.NewReader(encode(t, sampleLibrary())))
	require.NoError(t, err)
	assert.Empty(t, lib.Path())
	assert.Equal(t, snapshot(sampleLibrary().Shelves), snapshot(lib.Shelves))
}

func TestSaveWithoutPathIsNoop(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, NewDefaultLibrary().Save())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveWritesSourceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.xml")
	lib, err := LoadLibrary(path)
	require.NoError(t, err)

	lib.Owner = "carol"
	lib.Shelves[0].AddShelf("Poetry")
	require.NoError(t, lib.Save())

	reloaded, err := LoadLibrary(path)
	require.NoError(t, err)
	assert.Equal(t, "carol", reloaded.Owner)
	assert.Equal(t, snapshot(lib.Shelves), snapshot(reloaded.Shelves))

	// No temporary files are left next to the library.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "library.xml", entries[0].Name())
}

func TestSaveAsReportsFailure(t *testing.T) {
	regular := filepath.Join(t.TempDir(), "regular")
	writeFile(t, regular, "x")

	err := sampleLibrary().SaveAs(filepath.Join(regular, "library.xml"))
	require.Error(t, err)

	var fe *FileError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindFile, fe.Kind)
	assert.ErrorIs(t, err, ErrFile)
	assert.NotErrorIs(t, err, ErrParsing)
}

func TestFileErrorMessage(t *testing.T) {
	err := newFileError(KindRead, "/tmp/lib.xml", "", errors.New("boom"))
	assert.Equal(t, "read error </tmp/lib.xml>: boom", err.Error())

	err = newFileError(KindParsing, "/tmp/lib.xml", "no valid library in library file", nil)
	assert.Equal(t, "no valid library in library file </tmp/lib.xml>", err.Error())
}
