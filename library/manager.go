package library

import (
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrShelfNotFound = errors.New("shelf not found")
	ErrBookNotFound  = errors.New("book not found")
)

// Options configures OpenLibraryManager.
type Options struct {
	LibraryPath string
	// CatalogPath enables the search index when set.
	CatalogPath string
	// Owner is written into a library that gets bootstrapped by this open.
	Owner string
}

// LibraryManager is a thin façade over a Library and its Catalog, keeping
// front-end code simple. Shelves are addressed by slash-separated name paths
// and mutations go through the ID based tree operations.
type LibraryManager struct {
	lib     *Library
	catalog *Catalog
	dirty   bool
	log     *logrus.Entry
}

// OpenLibraryManager loads (or bootstraps) the library and opens the catalog.
// A stale catalog is rebuilt right away.
func OpenLibraryManager(opts Options) (*LibraryManager, error) {
	lib, bootstrapped, err := loadLibrary(opts.LibraryPath)
	if err != nil {
		return nil, err
	}

	lm := &LibraryManager{
		lib: lib,
		log: log.WithField("library", opts.LibraryPath),
	}

	if bootstrapped && opts.Owner != "" {
		lib.Owner = opts.Owner
		if err := lib.Save(); err != nil {
			return nil, err
		}
	}

	if opts.CatalogPath != "" {
		c, err := NewCatalog(opts.CatalogPath)
		if err != nil {
			return nil, errors.Wrap(err, "open catalog")
		}
		lm.catalog = c
		if err := lm.syncCatalog(); err != nil {
			c.Close()
			return nil, err
		}
	}
	return lm, nil
}

// Close closes the catalog. Unsaved changes are not written.
func (lm *LibraryManager) Close() error {
	if lm.catalog == nil {
		return nil
	}
	return lm.catalog.Close()
}

// Library gives read access to the tree, e.g. for rendering.
func (lm *LibraryManager) Library() *Library { return lm.lib }

// Dirty reports whether there are changes that were not saved yet.
func (lm *LibraryManager) Dirty() bool { return lm.dirty }

// ------------------ Paths ------------------

// SplitShelfPath breaks "Fiction/Sci-Fi" into its names. Empty segments are
// dropped.
func SplitShelfPath(path string) []string {
	var names []string
	for _, part := range strings.Split(path, PathSeparator) {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}

// ResolveShelf finds a shelf by its name path. At every level the first shelf
// with a matching name wins.
func (lm *LibraryManager) ResolveShelf(path string) (*Shelf, error) {
	names := SplitShelfPath(path)
	if len(names) == 0 {
		return nil, errors.Wrap(ErrShelfNotFound, "empty shelf path")
	}

	shelves := lm.lib.Shelves
	var cur *Shelf
	for _, name := range names {
		cur = nil
		for _, s := range shelves {
			if s.Name == name {
				cur = s
				break
			}
		}
		if cur == nil {
			return nil, errors.Wrapf(ErrShelfNotFound, "%q", path)
		}
		shelves = cur.Shelves
	}
	return cur, nil
}

// ------------------ Mutations ------------------

// AddShelfUnder creates a shelf below the shelf with the given ID, or at the
// top level when parent is uuid.Nil.
func (lm *LibraryManager) AddShelfUnder(parent uuid.UUID, name string) (*Shelf, error) {
	if parent == uuid.Nil {
		lm.dirty = true
		return lm.lib.AddShelf(name), nil
	}
	s := lm.lib.FindShelf(parent)
	if s == nil {
		return nil, errors.Wrapf(ErrShelfNotFound, "id %s", parent)
	}
	lm.dirty = true
	return s.AddShelf(name), nil
}

// AddBookTo appends a book to the shelf with the given ID.
func (lm *LibraryManager) AddBookTo(shelf uuid.UUID, name, location string) (*Book, error) {
	s := lm.lib.FindShelf(shelf)
	if s == nil {
		return nil, errors.Wrapf(ErrShelfNotFound, "id %s", shelf)
	}
	lm.dirty = true
	return s.AddBook(name, location), nil
}

// DeleteShelf removes the shelf with the given ID and its sub-tree.
func (lm *LibraryManager) DeleteShelf(id uuid.UUID) bool {
	if !lm.lib.DeleteShelf(id) {
		return false
	}
	lm.dirty = true
	return true
}

// DeleteBook removes the book with the given ID.
func (lm *LibraryManager) DeleteBook(id uuid.UUID) bool {
	if !lm.lib.DeleteBook(id) {
		return false
	}
	lm.dirty = true
	return true
}

// AddShelf creates a shelf below parentPath, or at the top level when
// parentPath is empty.
func (lm *LibraryManager) AddShelf(parentPath, name string) (*Shelf, error) {
	if len(SplitShelfPath(parentPath)) == 0 {
		return lm.AddShelfUnder(uuid.Nil, name)
	}
	parent, err := lm.ResolveShelf(parentPath)
	if err != nil {
		return nil, err
	}
	return lm.AddShelfUnder(parent.ID, name)
}

func (lm *LibraryManager) AddBook(shelfPath, name, location string) (*Book, error) {
	shelf, err := lm.ResolveShelf(shelfPath)
	if err != nil {
		return nil, err
	}
	return lm.AddBookTo(shelf.ID, name, location)
}

// RemoveShelf deletes the shelf at path with everything on it.
func (lm *LibraryManager) RemoveShelf(path string) error {
	shelf, err := lm.ResolveShelf(path)
	if err != nil {
		return err
	}
	if !lm.DeleteShelf(shelf.ID) {
		return errors.Wrapf(ErrShelfNotFound, "%q", path)
	}
	return nil
}

// RemoveBook deletes the first book called name directly on the shelf at
// shelfPath.
func (lm *LibraryManager) RemoveBook(shelfPath, name string) error {
	shelf, err := lm.ResolveShelf(shelfPath)
	if err != nil {
		return err
	}
	for _, b := range shelf.Books {
		if b.Name == name && lm.DeleteBook(b.ID) {
			return nil
		}
	}
	return errors.Wrapf(ErrBookNotFound, "%q on shelf %q", name, shelfPath)
}

func (lm *LibraryManager) RenameShelf(path, name string) error {
	shelf, err := lm.ResolveShelf(path)
	if err != nil {
		return err
	}
	return lm.RenameShelfByID(shelf.ID, name)
}

// RenameShelfByID renames the shelf with the given ID. An empty name resets
// it to DefaultShelfName.
func (lm *LibraryManager) RenameShelfByID(id uuid.UUID, name string) error {
	shelf := lm.lib.FindShelf(id)
	if shelf == nil {
		return errors.Wrapf(ErrShelfNotFound, "id %s", id)
	}
	if name == "" {
		name = DefaultShelfName
	}
	shelf.Name = name
	lm.dirty = true
	return nil
}

func (lm *LibraryManager) SetOwner(owner string) {
	if owner == "" {
		owner = DefaultOwner
	}
	lm.lib.Owner = owner
	lm.dirty = true
}

// ------------------ Persistence ------------------

// Save writes the library back to its file and refreshes the catalog.
func (lm *LibraryManager) Save() error {
	if err := lm.lib.Save(); err != nil {
		return err
	}
	lm.dirty = false
	return lm.syncCatalog()
}

// SaveAs writes a copy of the library to path. The manager keeps working on
// the original file.
func (lm *LibraryManager) SaveAs(path string) error {
	return lm.lib.SaveAs(path)
}

// Reindex rebuilds the catalog unconditionally.
func (lm *LibraryManager) Reindex() error {
	if lm.catalog == nil {
		return errors.New("catalog is disabled")
	}
	if err := lm.catalog.Rebuild(lm.lib); err != nil {
		return errors.Wrap(err, "rebuild catalog")
	}
	return nil
}

func (lm *LibraryManager) syncCatalog() error {
	if lm.catalog == nil {
		return nil
	}
	stale, err := lm.catalog.IsStale(lm.lib)
	if err != nil {
		return errors.Wrap(err, "check catalog")
	}
	if !stale {
		return nil
	}
	lm.log.Debug("catalog is stale, rebuilding")
	return lm.Reindex()
}

// ------------------ Search ------------------

// Search looks books up by name, location or shelf path. Without a catalog the
// tree is scanned directly with the same matching rules.
func (lm *LibraryManager) Search(q string) ([]*CatalogEntry, error) {
	if lm.catalog != nil {
		if err := lm.syncCatalog(); err != nil {
			return nil, err
		}
		return lm.catalog.Search(q)
	}

	results := []*CatalogEntry{}
	needle := strings.ToLower(strings.TrimSpace(q))
	if needle == "" {
		return results, nil
	}
	var pos int64
	_ = lm.lib.Walk(func(path []*Shelf) error {
		shelfPath := ShelfPath(path)
		for _, b := range path[len(path)-1].Books {
			pos++
			if strings.Contains(searchKey(b.Name, b.Location, shelfPath), needle) {
				results = append(results, &CatalogEntry{Position: pos, Name: b.Name, Location: b.Location, ShelfPath: shelfPath})
			}
		}
		return nil
	})
	return results, nil
}
