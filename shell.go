package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/peterh/liner"
	"github.com/sirupsen/logrus"

	"honmonogatari/library"
)

var shellCommands = []string{
	"show", "select", "add shelf", "add book", "delete shelf", "delete book",
	"rename", "owner", "search", "save", "help", "exit",
}

// shell is the interactive editor. The selected shelf is kept by ID, so it
// survives any edit that does not delete it.
type shell struct {
	out      io.Writer
	mgr      *library.LibraryManager
	prompt   func(string) (string, error)
	selected uuid.UUID
}

func runShell(out io.Writer, mgr *library.LibraryManager, historyPath string) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(input string) []string {
		var c []string
		for _, cmd := range shellCommands {
			if strings.HasPrefix(cmd, strings.ToLower(input)) {
				c = append(c, cmd)
			}
		}
		return c
	})
	if f, err := os.Open(historyPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	sh := &shell{out: out, mgr: mgr, prompt: line.Prompt}

	fmt.Fprintln(out, "Welcome to honmonogatari!")
	sh.printHelp()

	for {
		input, err := line.Prompt(sh.promptText())
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		quit, err := sh.exec(input)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
		if quit {
			break
		}
	}

	if historyPath != "" {
		saveHistory(line, historyPath)
	}
	if mgr.Dirty() {
		fmt.Fprintln(out, "Saving changes...")
		return mgr.Save()
	}
	return nil
}

func saveHistory(line *liner.State, path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logrus.WithError(err).Warn("could not create history dir")
		return
	}
	f, err := os.Create(path)
	if err != nil {
		logrus.WithError(err).Warn("could not write shell history")
		return
	}
	defer f.Close()
	line.WriteHistory(f)
}

func (sh *shell) promptText() string {
	if path := sh.mgr.Library().PathOf(sh.selected); path != nil {
		return library.ShelfPath(path) + "> "
	}
	return "> "
}

// exec runs one command line and reports whether the shell should quit.
func (sh *shell) exec(input string) (bool, error) {
	cmd, arg, _ := strings.Cut(input, " ")
	if strings.EqualFold(cmd, "select") {
		return false, sh.handleSelect(strings.TrimSpace(arg))
	}

	switch strings.ToLower(input) {
	case "show":
		return false, library.RenderTree(sh.out, sh.mgr.Library(), termWidth())
	case "add shelf":
		return false, sh.handleAddShelf()
	case "add book":
		return false, sh.handleAddBook()
	case "delete shelf":
		return false, sh.handleDeleteShelf()
	case "delete book":
		return false, sh.handleDeleteBook()
	case "rename":
		return false, sh.handleRename()
	case "owner":
		return false, sh.handleOwner()
	case "search":
		q, err := sh.ask("Query: ")
		if err != nil {
			return false, err
		}
		return false, printSearch(sh.out, sh.mgr, q)
	case "save":
		if err := sh.mgr.Save(); err != nil {
			return false, err
		}
		fmt.Fprintln(sh.out, "Library saved.")
		return false, nil
	case "help":
		sh.printHelp()
		return false, nil
	case "exit", "quit":
		return true, nil
	default:
		fmt.Fprintln(sh.out, "Unknown command. Type 'help' for the list of commands.")
		return false, nil
	}
}

func (sh *shell) printHelp() {
	fmt.Fprintln(sh.out, "Commands:")
	fmt.Fprintln(sh.out, "  show                      print the shelf tree")
	fmt.Fprintln(sh.out, "  select [PATH]             select a shelf, e.g. 'select Fiction/Sci-Fi'; no path clears it")
	fmt.Fprintln(sh.out, "  add shelf | add book      add to the selected shelf (shelves go top level without one)")
	fmt.Fprintln(sh.out, "  delete shelf | delete book")
	fmt.Fprintln(sh.out, "  rename | owner | search | save | exit")
}

func (sh *shell) ask(label string) (string, error) {
	s, err := sh.prompt(label)
	return strings.TrimSpace(s), err
}

func (sh *shell) selectedShelf() (*library.Shelf, error) {
	if s := sh.mgr.Library().FindShelf(sh.selected); s != nil {
		return s, nil
	}
	sh.selected = uuid.Nil
	return nil, errors.New("no shelf selected, use 'select PATH' first")
}

func (sh *shell) handleSelect(path string) error {
	if path == "" {
		sh.selected = uuid.Nil
		return nil
	}
	s, err := sh.mgr.ResolveShelf(path)
	if err != nil {
		return err
	}
	sh.selected = s.ID
	return nil
}

func (sh *shell) handleAddShelf() error {
	name, err := sh.ask("Shelf name: ")
	if err != nil {
		return err
	}
	parent := uuid.Nil
	if sh.mgr.Library().FindShelf(sh.selected) != nil {
		parent = sh.selected
	}
	s, err := sh.mgr.AddShelfUnder(parent, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Added shelf %q.\n", s.Name)
	return nil
}

func (sh *shell) handleAddBook() error {
	shelf, err := sh.selectedShelf()
	if err != nil {
		return err
	}
	name, err := sh.ask("Book name: ")
	if err != nil {
		return err
	}
	location, err := sh.ask("Location: ")
	if err != nil {
		return err
	}
	b, err := sh.mgr.AddBookTo(shelf.ID, name, location)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Added book %q to %q.\n", b.Name, shelf.Name)
	return nil
}

func (sh *shell) handleDeleteShelf() error {
	shelf, err := sh.selectedShelf()
	if err != nil {
		return err
	}
	if !sh.mgr.DeleteShelf(shelf.ID) {
		return library.ErrShelfNotFound
	}
	sh.selected = uuid.Nil
	fmt.Fprintf(sh.out, "Deleted shelf %q.\n", shelf.Name)
	return nil
}

func (sh *shell) handleDeleteBook() error {
	shelf, err := sh.selectedShelf()
	if err != nil {
		return err
	}
	name, err := sh.ask("Book name: ")
	if err != nil {
		return err
	}
	for _, b := range shelf.Books {
		if b.Name == name {
			sh.mgr.DeleteBook(b.ID)
			fmt.Fprintf(sh.out, "Deleted book %q.\n", name)
			return nil
		}
	}
	return fmt.Errorf("%w: %q on %q", library.ErrBookNotFound, name, shelf.Name)
}

func (sh *shell) handleRename() error {
	shelf, err := sh.selectedShelf()
	if err != nil {
		return err
	}
	name, err := sh.ask("New name: ")
	if err != nil {
		return err
	}
	return sh.mgr.RenameShelfByID(shelf.ID, name)
}

func (sh *shell) handleOwner() error {
	owner, err := sh.ask(fmt.Sprintf("Owner [%s]: ", sh.mgr.Library().Owner))
	if err != nil {
		return err
	}
	if owner != "" {
		sh.mgr.SetOwner(owner)
	}
	return nil
}
