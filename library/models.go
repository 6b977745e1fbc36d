package library

import "github.com/google/uuid"

const (
	DefaultBookName  = "<untitled>"
	DefaultShelfName = "<unnamed>"
	DefaultOwner     = "unknown"

	// Contents of a freshly bootstrapped library.
	BootstrapShelfName = "default"
	BootstrapBookName  = "New Book"
)

// Book is a leaf entry in the library. Location points at the book content
// (a file path or URI) and is never opened by this package.
type Book struct {
	ID       uuid.UUID `json:"-"`
	Name     string    `json:"name"`
	Location string    `json:"location"`
}

// Shelf holds books and nested shelves. Sub-shelves are owned exclusively by
// their parent, so the tree can never contain a cycle.
type Shelf struct {
	ID      uuid.UUID `json:"-"`
	Name    string    `json:"name"`
	Shelves []*Shelf  `json:"shelves"`
	Books   []*Book   `json:"books"`
}

// Library is the root of the tree: an owner label and an ordered list of
// top-level shelves.
type Library struct {
	Owner   string   `json:"owner"`
	Shelves []*Shelf `json:"shelves"`

	path string
}

// NewBook creates a book with a fresh ID. An empty name falls back to
// DefaultBookName.
func NewBook(name, location string) *Book {
	if name == "" {
		name = DefaultBookName
	}
	return &Book{ID: uuid.New(), Name: name, Location: location}
}

// NewShelf creates an empty shelf with a fresh ID. An empty name falls back to
// DefaultShelfName.
func NewShelf(name string) *Shelf {
	if name == "" {
		name = DefaultShelfName
	}
	return &Shelf{ID: uuid.New(), Name: name}
}

// NewDefaultLibrary returns the bootstrap library: no source path, owner
// "unknown" and one "default" shelf with a single "New Book".
func NewDefaultLibrary() *Library {
	lib := &Library{Owner: DefaultOwner}
	lib.AddShelf(BootstrapShelfName).AddBook(BootstrapBookName, "")
	return lib
}

// Path returns the file the library was loaded from, or "" if it never had one.
func (l *Library) Path() string { return l.path }

// ------------------ Appending ------------------

// AddShelf appends a new top-level shelf and returns it.
func (l *Library) AddShelf(name string) *Shelf {
	s := NewShelf(name)
	l.Shelves = append(l.Shelves, s)
	return s
}

// AddShelf appends a new sub-shelf and returns it.
func (s *Shelf) AddShelf(name string) *Shelf {
	sub := NewShelf(name)
	s.Shelves = append(s.Shelves, sub)
	return sub
}

// AddBook appends a new book and returns it.
func (s *Shelf) AddBook(name, location string) *Book {
	b := NewBook(name, location)
	s.Books = append(s.Books, b)
	return b
}

// ------------------ Deletion ------------------

// DeleteShelf removes the shelf with the given ID, together with its whole
// sub-tree, from anywhere below s. Direct children are checked before
// descending. It reports whether a shelf was removed.
func (s *Shelf) DeleteShelf(id uuid.UUID) bool {
	if id == uuid.Nil {
		return false
	}
	for i, sub := range s.Shelves {
		if sub.ID == id {
			s.Shelves = removeAt(s.Shelves, i)
			return true
		}
	}
	for _, sub := range s.Shelves {
		if sub.DeleteShelf(id) {
			return true
		}
	}
	return false
}

// DeleteBook removes the book with the given ID from s or any shelf below it.
func (s *Shelf) DeleteBook(id uuid.UUID) bool {
	if id == uuid.Nil {
		return false
	}
	for i, b := range s.Books {
		if b.ID == id {
			s.Books = removeAt(s.Books, i)
			return true
		}
	}
	for _, sub := range s.Shelves {
		if sub.DeleteBook(id) {
			return true
		}
	}
	return false
}

// DeleteShelf removes the shelf with the given ID from anywhere in the
// library, top-level shelves included. The tree is left untouched when no
// shelf matches.
func (l *Library) DeleteShelf(id uuid.UUID) bool {
	if id == uuid.Nil {
		return false
	}
	for i, s := range l.Shelves {
		if s.ID == id {
			l.Shelves = removeAt(l.Shelves, i)
			return true
		}
	}
	for _, s := range l.Shelves {
		if s.DeleteShelf(id) {
			return true
		}
	}
	return false
}

// DeleteBook removes the book with the given ID from whichever shelf owns it.
func (l *Library) DeleteBook(id uuid.UUID) bool {
	if id == uuid.Nil {
		return false
	}
	for _, s := range l.Shelves {
		if s.DeleteBook(id) {
			return true
		}
	}
	return false
}

// removeAt deletes element i in place and clears the vacated tail slot so the
// removed node is not kept alive by the backing array.
func removeAt[T any](items []*T, i int) []*T {
	copy(items[i:], items[i+1:])
	items[len(items)-1] = nil
	return items[:len(items)-1]
}

// ------------------ Lookup ------------------

// FindShelf returns the shelf with the given ID, or nil. Like the delete
// operations it never matches uuid.Nil, the ID of nodes built as plain struct
// literals.
func (l *Library) FindShelf(id uuid.UUID) *Shelf {
	if id == uuid.Nil {
		return nil
	}
	var found *Shelf
	_ = l.Walk(func(path []*Shelf) error {
		if s := path[len(path)-1]; s.ID == id {
			found = s
			return errStopWalk
		}
		return nil
	})
	return found
}

// FindBook returns the book with the given ID and the shelf that owns it.
func (l *Library) FindBook(id uuid.UUID) (*Book, *Shelf) {
	if id == uuid.Nil {
		return nil, nil
	}
	var (
		book  *Book
		owner *Shelf
	)
	_ = l.Walk(func(path []*Shelf) error {
		s := path[len(path)-1]
		for _, b := range s.Books {
			if b.ID == id {
				book, owner = b, s
				return errStopWalk
			}
		}
		return nil
	})
	return book, owner
}

// Stats is a summary of the library size.
type Stats struct {
	Shelves int
	Books   int
	Depth   int
}

// Stats counts shelves and books at every depth.
func (l *Library) Stats() Stats {
	var st Stats
	_ = l.Walk(func(path []*Shelf) error {
		st.Shelves++
		st.Books += len(path[len(path)-1].Books)
		if len(path) > st.Depth {
			st.Depth = len(path)
		}
		return nil
	})
	return st
}
