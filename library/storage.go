package library

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"honmonogatari/internal/logger"
)

var log = logrus.WithField("component", "library")

// ---------------------------------------------------------------------------
// XML document shape
// ---------------------------------------------------------------------------

// Attributes are pointers so that a missing attribute can be told apart from
// an empty one when decoding.
type xmlLibrary struct {
	XMLName xml.Name   `xml:"library"`
	Owner   *string    `xml:"owner,attr"`
	Shelves []xmlShelf `xml:"shelf"`
}

type xmlShelf struct {
	XMLName xml.Name   `xml:"shelf"`
	Name    *string    `xml:"name,attr"`
	Shelves []xmlShelf `xml:"shelf"`
	Books   []xmlBook  `xml:"book"`
}

type xmlBook struct {
	XMLName  xml.Name `xml:"book"`
	Name     *string  `xml:"name,attr"`
	Location *string  `xml:"location,attr"`
}

func attr(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

func parseShelf(x *xmlShelf) *Shelf {
	s := &Shelf{ID: uuid.New(), Name: attr(x.Name, DefaultShelfName)}
	for i := range x.Shelves {
		s.Shelves = append(s.Shelves, parseShelf(&x.Shelves[i]))
	}
	for i := range x.Books {
		s.Books = append(s.Books, parseBook(&x.Books[i]))
	}
	return s
}

func parseBook(x *xmlBook) *Book {
	return &Book{
		ID:       uuid.New(),
		Name:     attr(x.Name, DefaultBookName),
		Location: attr(x.Location, ""),
	}
}

func (s *Shelf) toXML() xmlShelf {
	name := s.Name
	x := xmlShelf{Name: &name}
	for _, sub := range s.Shelves {
		x.Shelves = append(x.Shelves, sub.toXML())
	}
	for _, b := range s.Books {
		name, location := b.Name, b.Location
		x.Books = append(x.Books, xmlBook{Name: &name, Location: &location})
	}
	return x
}

func (l *Library) toXML() xmlLibrary {
	owner := l.Owner
	x := xmlLibrary{Owner: &owner}
	for _, s := range l.Shelves {
		x.Shelves = append(x.Shelves, s.toXML())
	}
	return x
}

// ---------------------------------------------------------------------------
// Codec
// ---------------------------------------------------------------------------

// Encode writes the library as an XML document: a declaration followed by the
// <library> root. Each shelf lists its sub-shelves before its books.
func (l *Library) Encode(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "\t")
	if err := enc.Encode(l.toXML()); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// DecodeLibrary parses a library document from r. Failures are *FileError
// values with an empty Path: KindRead when r itself fails, KindParsing for
// everything the decoder rejects. The returned library has no source path.
func DecodeLibrary(r io.Reader) (*Library, error) {
	src := &failReader{r: r}
	var charsetErr error
	d := xml.NewDecoder(src)
	d.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		rd, err := charsetReader(charset, input)
		charsetErr = err
		return rd, err
	}

	classify := func(err error) *FileError {
		switch {
		case src.err != nil:
			return newFileError(KindRead, "", "error while reading library file", src.err)
		case charsetErr != nil:
			return newFileError(KindParsing, "", "unsupported library file encoding", charsetErr)
		default:
			return newFileError(KindParsing, "", "malformed library file", err)
		}
	}

	// The first element decides whether this is a library document at all.
	var start xml.StartElement
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return nil, newFileError(KindParsing, "", "no valid library in library file", nil)
		}
		if err != nil {
			return nil, classify(err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			start = se
			break
		}
	}
	if start.Name.Local != "library" {
		return nil, newFileError(KindParsing, "", "no valid library in library file",
			fmt.Errorf("root element is <%s>", start.Name.Local))
	}

	var doc xmlLibrary
	if err := d.DecodeElement(&doc, &start); err != nil {
		return nil, classify(err)
	}

	// Only whitespace, comments and processing instructions may follow the root.
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, classify(err)
		}
		switch t := tok.(type) {
		case xml.Comment, xml.ProcInst:
		case xml.CharData:
			if len(bytes.TrimSpace(t)) != 0 {
				return nil, newFileError(KindParsing, "", "malformed library file",
					errors.New("text after the library element"))
			}
		default:
			return nil, newFileError(KindParsing, "", "malformed library file",
				errors.New("content after the library element"))
		}
	}

	lib := &Library{Owner: attr(doc.Owner, DefaultOwner)}
	for i := range doc.Shelves {
		lib.Shelves = append(lib.Shelves, parseShelf(&doc.Shelves[i]))
	}
	return lib, nil
}

// failReader remembers the first error of the underlying reader other than
// io.EOF, so decoder failures can be told apart from I/O failures.
type failReader struct {
	r   io.Reader
	err error
}

func (f *failReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && f.err == nil {
		f.err = err
	}
	return n, err
}

// charsetReader decodes legacy encodings such as windows-1251 or shift_jis
// named in the XML declaration.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unknown charset %q: %w", charset, err)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

// ---------------------------------------------------------------------------
// Files
// ---------------------------------------------------------------------------

// readLibrary loads the library at path without any bootstrap. A missing or
// blank file is reported as KindNotFound.
func readLibrary(path string) (*Library, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, newFileError(KindNotFound, path, "library file does not exist", err)
		}
		return nil, newFileError(KindOpen, path, "could not open library file", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, newFileError(KindOpen, path, "could not open library file", err)
	}
	if info.IsDir() {
		return nil, newFileError(KindOpen, path, "could not open library file", errors.New("is a directory"))
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, newFileError(KindRead, path, "error while reading library file", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, newFileError(KindNotFound, path, "library file is empty", nil)
	}

	lib, err := DecodeLibrary(bytes.NewReader(data))
	if err != nil {
		var fe *FileError
		if errors.As(err, &fe) {
			fe.Path = path
		}
		return nil, err
	}
	lib.path = path
	return lib, nil
}

// LoadLibrary reads the library stored at path. When there is no file yet (or
// it is empty) a default library is written to path first and then read back.
func LoadLibrary(path string) (*Library, error) {
	lib, _, err := loadLibrary(path)
	return lib, err
}

// loadLibrary is LoadLibrary that also reports whether the file was
// bootstrapped.
func loadLibrary(path string) (*Library, bool, error) {
	defer logger.Track(log.WithField("path", path), "load library")()

	lib, err := readLibrary(path)
	if err == nil {
		return lib, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	log.WithField("path", path).Info("no library file, creating a new one")
	if err := NewDefaultLibrary().SaveAs(path); err != nil {
		return nil, false, newFileError(KindFile, path, "error while creating the new library file", err)
	}
	lib, err = readLibrary(path)
	if err != nil {
		return nil, false, newFileError(KindFile, path, "error while loading the new library file", err)
	}
	return lib, true, nil
}

// Save writes the library back to the file it was loaded from. A library that
// never had a file is not written anywhere and Save returns nil.
func (l *Library) Save() error {
	if l.path == "" {
		log.Debug("library has no source path, save skipped")
		return nil
	}
	return l.SaveAs(l.path)
}

// SaveAs writes the library to path, replacing any existing file. The document
// goes to a temporary file in the same directory first and is renamed into
// place, so a failed write leaves the previous file intact.
func (l *Library) SaveAs(path string) (err error) {
	defer logger.Track(log.WithField("path", path), "save library")()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return newFileError(KindFile, path, "could not create library directory", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return newFileError(KindFile, path, "could not write library file", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = l.Encode(bw); err != nil {
		return newFileError(KindFile, path, "could not write library file", err)
	}
	if err = bw.Flush(); err != nil {
		return newFileError(KindFile, path, "could not write library file", err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return newFileError(KindFile, path, "could not write library file", err)
	}
	if err = tmp.Close(); err != nil {
		return newFileError(KindFile, path, "could not write library file", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return newFileError(KindFile, path, "could not write library file", err)
	}
	return nil
}
