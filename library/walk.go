package library

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// WalkFunc is called for every shelf in the library. path holds the chain of
// shelves from the top level down to the visited shelf, which is the last
// element. The slice is reused between calls and must be copied to be kept.
type WalkFunc func(path []*Shelf) error

var errStopWalk = errors.New("stop walk")

// Walk visits every shelf depth first, parents before their sub-shelves, in
// insertion order. An error returned by fn stops the walk and is returned.
func (l *Library) Walk(fn WalkFunc) error {
	path := make([]*Shelf, 0, 8)
	for _, s := range l.Shelves {
		if err := walkShelf(s, path, fn); err != nil {
			if errors.Is(err, errStopWalk) {
				return nil
			}
			return err
		}
	}
	return nil
}

func walkShelf(s *Shelf, path []*Shelf, fn WalkFunc) error {
	path = append(path, s)
	if err := fn(path); err != nil {
		return err
	}
	for _, sub := range s.Shelves {
		if err := walkShelf(sub, path, fn); err != nil {
			return err
		}
	}
	return nil
}

// PathSeparator separates shelf names in a shelf path such as "Fiction/Sci-Fi".
const PathSeparator = "/"

// ShelfPath joins the names along path with PathSeparator.
func ShelfPath(path []*Shelf) string {
	names := make([]string, len(path))
	for i, s := range path {
		names[i] = s.Name
	}
	return strings.Join(names, PathSeparator)
}

// PathOf returns the chain of shelves from the top level down to the shelf
// with the given ID, or nil if there is no such shelf.
func (l *Library) PathOf(id uuid.UUID) []*Shelf {
	if id == uuid.Nil {
		return nil
	}
	var found []*Shelf
	_ = l.Walk(func(path []*Shelf) error {
		if path[len(path)-1].ID == id {
			found = append([]*Shelf(nil), path...)
			return errStopWalk
		}
		return nil
	})
	return found
}
