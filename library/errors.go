package library

import "fmt"

// ErrorKind tells apart the ways loading or saving a library file can fail.
type ErrorKind int

const (
	// KindFile is the generic file failure. Bootstrap and write errors use it.
	KindFile ErrorKind = iota
	// KindNotFound means there was no file. LoadLibrary turns it into a bootstrap.
	KindNotFound
	KindOpen
	KindRead
	KindParsing
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindOpen:
		return "open error"
	case KindRead:
		return "read error"
	case KindParsing:
		return "parsing error"
	default:
		return "file error"
	}
}

// FileError is returned by every library file operation.
type FileError struct {
	Kind ErrorKind
	Path string
	Msg  string
	Err  error
}

func (e *FileError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s <%s>: %v", msg, e.Path, e.Err)
	}
	return fmt.Sprintf("%s <%s>", msg, e.Path)
}

func (e *FileError) Unwrap() error { return e.Err }

// Is matches the sentinel of the same kind. ErrFile matches every kind since
// all of them are file errors.
func (e *FileError) Is(target error) bool {
	t, ok := target.(*FileError)
	if !ok || t.Path != "" || t.Msg != "" || t.Err != nil {
		return false
	}
	return t.Kind == KindFile || t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrFile     = &FileError{Kind: KindFile}
	ErrNotFound = &FileError{Kind: KindNotFound}
	ErrOpen     = &FileError{Kind: KindOpen}
	ErrRead     = &FileError{Kind: KindRead}
	ErrParsing  = &FileError{Kind: KindParsing}
)

func newFileError(kind ErrorKind, path, msg string, err error) *FileError {
	return &FileError{Kind: kind, Path: path, Msg: msg, Err: err}
}
