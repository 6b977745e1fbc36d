package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"honmonogatari/internal/config"
	"honmonogatari/internal/logger"
	"honmonogatari/library"
)

// app carries state shared by all commands.
type app struct {
	configPath  string
	libraryPath string
	logLevel    string
	noCatalog   bool

	cfg      *config.Config
	mgr      *library.LibraryManager
	logClose io.Closer
	out      io.Writer
}

func main() {
	a := &app{out: os.Stdout}
	if err := a.run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes one command line. The library and the log file are released
// afterwards whether the command failed or not.
func (a *app) run(args []string) error {
	root := a.rootCmd()
	root.SetArgs(args)
	err := root.Execute()
	if cerr := a.close(); err == nil {
		err = cerr
	}
	return err
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "honmono",
		Short:         "Manage a personal book library kept in an XML file",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if builtin(cmd) {
				return nil
			}
			return a.open()
		},
	}
	root.SetOut(a.out)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default $"+config.EnvConfigPath+" or <config dir>/config.yaml)")
	pf.StringVar(&a.libraryPath, "library", "", "library file, overrides library.path from the config")
	pf.StringVar(&a.logLevel, "log-level", "", "log level, overrides log.level from the config")
	pf.BoolVar(&a.noCatalog, "no-catalog", false, "do not use the search catalog")

	root.AddCommand(
		a.showCmd(),
		a.addShelfCmd(),
		a.addBookCmd(),
		a.rmShelfCmd(),
		a.rmBookCmd(),
		a.renameShelfCmd(),
		a.ownerCmd(),
		a.searchCmd(),
		a.reindexCmd(),
		a.exportCmd(),
		a.shellCmd(),
	)
	return root
}

func (a *app) open() error {
	loc := config.DefaultLocations()
	cfg, err := config.Load(config.Path(a.configPath, loc), loc, a.configPath != "")
	if err != nil {
		return err
	}
	if a.libraryPath != "" {
		cfg.Library.Path = a.libraryPath
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.noCatalog {
		cfg.Catalog.Enabled = false
	}
	a.cfg = cfg

	if a.logClose, err = logger.Setup(cfg.Log.Level, cfg.Log.Path); err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}

	opts := library.Options{LibraryPath: cfg.Library.Path, Owner: cfg.Library.Owner}
	if cfg.Catalog.Enabled {
		opts.CatalogPath = cfg.Catalog.Path
	}
	a.mgr, err = library.OpenLibraryManager(opts)
	if err != nil {
		return err
	}
	logrus.WithField("path", cfg.Library.Path).Debug("library opened")
	return nil
}

func (a *app) close() error {
	var err error
	if a.mgr != nil {
		err = a.mgr.Close()
		a.mgr = nil
	}
	if a.logClose != nil {
		a.logClose.Close()
		a.logClose = nil
	}
	return err
}

// builtin reports whether cmd is one of cobra's own commands (help, shell
// completion), which never touch the library.
func builtin(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return true
		}
	}
	return false
}

// mutate runs fn and saves the library when it succeeds.
func (a *app) mutate(fn func(mgr *library.LibraryManager) error) error {
	if err := fn(a.mgr); err != nil {
		return err
	}
	return a.mgr.Save()
}

// termWidth returns the width of the terminal on stdout, or 0 when stdout is
// not a terminal.
func termWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	w, _, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return w
}

// ------------------ Commands ------------------

func (a *app) showCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the shelf tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON {
				return printJSON(a.out, a.mgr.Library())
			}
			return library.RenderTree(a.out, a.mgr.Library(), termWidth())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the tree as JSON")
	return cmd
}

func (a *app) addShelfCmd() *cobra.Command {
	var parent string
	cmd := &cobra.Command{
		Use:   "add-shelf NAME",
		Short: "Add a shelf at the top level or below --parent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(func(mgr *library.LibraryManager) error {
				s, err := mgr.AddShelf(parent, args[0])
				if err == nil {
					fmt.Fprintf(a.out, "Added shelf %q\n", s.Name)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "path of the parent shelf, e.g. Fiction/Sci-Fi")
	return cmd
}

func (a *app) addBookCmd() *cobra.Command {
	var shelf, location string
	cmd := &cobra.Command{
		Use:   "add-book NAME",
		Short: "Add a book to a shelf",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(func(mgr *library.LibraryManager) error {
				b, err := mgr.AddBook(shelf, args[0], location)
				if err == nil {
					fmt.Fprintf(a.out, "Added book %q to %s\n", b.Name, shelf)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&shelf, "shelf", "", "path of the shelf")
	cmd.Flags().StringVar(&location, "location", "", "file path or URI of the book")
	_ = cmd.MarkFlagRequired("shelf")
	return cmd
}

func (a *app) rmShelfCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm-shelf PATH",
		Short: "Delete a shelf with all its books and sub-shelves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(func(mgr *library.LibraryManager) error {
				return mgr.RemoveShelf(args[0])
			})
		},
	}
}

func (a *app) rmBookCmd() *cobra.Command {
	var shelf string
	cmd := &cobra.Command{
		Use:   "rm-book NAME",
		Short: "Delete a book from a shelf",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(func(mgr *library.LibraryManager) error {
				return mgr.RemoveBook(shelf, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&shelf, "shelf", "", "path of the shelf holding the book")
	_ = cmd.MarkFlagRequired("shelf")
	return cmd
}

func (a *app) renameShelfCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename-shelf PATH NEW_NAME",
		Short: "Rename a shelf",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(func(mgr *library.LibraryManager) error {
				return mgr.RenameShelf(args[0], args[1])
			})
		},
	}
}

func (a *app) ownerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "owner [NAME]",
		Short: "Print or change the library owner",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Fprintln(a.out, a.mgr.Library().Owner)
				return nil
			}
			return a.mutate(func(mgr *library.LibraryManager) error {
				mgr.SetOwner(args[0])
				return nil
			})
		},
	}
}

func (a *app) searchCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "search QUERY...",
		Short: "Find books by name, location or shelf",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := strings.Join(args, " ")
			if !asJSON {
				return printSearch(a.out, a.mgr, q)
			}
			results, err := a.mgr.Search(q)
			if err != nil {
				return err
			}
			return printJSON(a.out, results)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the results as JSON")
	return cmd
}

func (a *app) reindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search catalog from the library file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.mgr.Reindex(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Catalog rebuilt.")
			return nil
		},
	}
}

func (a *app) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export FILE",
		Short: "Write a copy of the library to FILE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mgr.SaveAs(args[0])
		},
	}
}

func (a *app) shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Edit the library interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(a.out, a.mgr, a.cfg.Shell.History)
		},
	}
}

func printSearch(w io.Writer, mgr *library.LibraryManager, q string) error {
	results, err := mgr.Search(q)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}
	width := termWidth()
	for _, e := range results {
		fmt.Fprintln(w, library.TruncateString(library.PrettyEntry(e), width))
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	data, err := jsoniter.ConfigFastest.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
