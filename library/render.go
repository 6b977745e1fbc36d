package library

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

const indentUnit = "  "

// RenderTree prints the library as an indented outline: sub-shelves first,
// then books, the same order the file uses. Lines wider than width display
// columns are cut with "..."; width <= 0 disables cutting.
func RenderTree(w io.Writer, lib *Library, width int) error {
	bw := bufio.NewWriter(w)
	st := lib.Stats()
	writeLine(bw, width, fmt.Sprintf("Library of %s (%d shelves, %d books)", lib.Owner, st.Shelves, st.Books))
	for _, s := range lib.Shelves {
		renderShelf(bw, s, 0, width)
	}
	return bw.Flush()
}

func renderShelf(w *bufio.Writer, s *Shelf, depth, width int) {
	indent := strings.Repeat(indentUnit, depth)
	writeLine(w, width, indent+"▸ "+s.Name)
	for _, sub := range s.Shelves {
		renderShelf(w, sub, depth+1, width)
	}
	for _, b := range s.Books {
		writeLine(w, width, indent+indentUnit+PrettyBook(b))
	}
}

// PrettyBook formats a book for lists.
func PrettyBook(b *Book) string {
	if b.Location == "" {
		return "• " + b.Name
	}
	return fmt.Sprintf("• %s  (%s)", b.Name, b.Location)
}

// PrettyEntry formats a search hit.
func PrettyEntry(e *CatalogEntry) string {
	if e.Location == "" {
		return fmt.Sprintf("%-4d %s  [%s]", e.Position, e.Name, e.ShelfPath)
	}
	return fmt.Sprintf("%-4d %s  [%s]  %s", e.Position, e.Name, e.ShelfPath, e.Location)
}

func writeLine(w *bufio.Writer, width int, line string) {
	w.WriteString(TruncateString(line, width))
	w.WriteByte('\n')
}

// TruncateString shortens s to at most maxWidth display columns. Wide (CJK)
// runes count as two columns.
func TruncateString(s string, maxWidth int) string {
	if maxWidth <= 0 || runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}
