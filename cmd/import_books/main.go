package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"honmonogatari/internal/config"
	"honmonogatari/internal/logger"
	"honmonogatari/library"
)

// bookExtensions are the file types picked up by the importer.
var bookExtensions = map[string]bool{
	".epub": true,
	".pdf":  true,
	".fb2":  true,
	".mobi": true,
	".azw3": true,
	".djvu": true,
	".cbz":  true,
	".txt":  true,
}

func main() {
	var (
		libraryPath string
		root        string
		shelf       string
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:          "import_books",
		Short:        "Mirror a directory tree of book files into library shelves",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := logger.Setup(logLevel, ""); err != nil {
				return err
			}
			if libraryPath == "" {
				libraryPath = config.DefaultLocations().DataLocation("library.xml")
			}
			if shelf == "" {
				shelf = filepath.Base(filepath.Clean(root))
			}
			return run(libraryPath, root, shelf)
		},
	}
	cmd.Flags().StringVar(&libraryPath, "library", "", "library file (default <config dir>/library.xml)")
	cmd.Flags().StringVar(&root, "root", "", "directory to import")
	cmd.Flags().StringVar(&shelf, "shelf", "", "top-level shelf to import into (default: name of --root)")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level")
	_ = cmd.MarkFlagRequired("root")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(libraryPath, root, shelf string) error {
	files, err := collectBooks(root)
	if err != nil {
		return fmt.Errorf("scan %s: %w", root, err)
	}
	fmt.Printf("Found %d book files in %s\n", len(files), root)

	mgr, err := library.OpenLibraryManager(library.Options{LibraryPath: libraryPath})
	if err != nil {
		return err
	}
	defer mgr.Close()

	bar := progressbar.Default(int64(len(files)), "importing")
	res, err := importBooks(mgr, root, shelf, files, func() { bar.Add(1) })
	bar.Finish()
	if err != nil {
		return err
	}

	if res.Imported > 0 {
		if err := mgr.Save(); err != nil {
			return err
		}
	}

	fmt.Printf("\nImport complete!\n")
	fmt.Printf("Successfully imported: %d books\n", res.Imported)
	fmt.Printf("Already present: %d\n", res.Skipped)
	fmt.Printf("Errors: %d\n", res.Errors)

	if res.Imported > 0 {
		fmt.Println("\nImported books:")
		fmt.Printf("%-50s %-30s\n", "Name", "Shelf")
		fmt.Println(strings.Repeat("-", 81))
		for _, b := range res.Books {
			fmt.Printf("%-50s %-30s\n", library.TruncateString(b.Name, 50), library.TruncateString(b.Shelf, 30))
		}
	}
	return nil
}

// collectBooks lists the book files below root in lexical order.
func collectBooks(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if !d.IsDir() && bookExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

type importedBook struct {
	Name  string
	Shelf string
}

type importResult struct {
	Imported int
	Skipped  int
	Errors   int
	Books    []importedBook
}

// importBooks adds every file to the shelf matching its directory below root.
// Missing shelves are created. A file whose location is already on the target
// shelf is skipped, so running the importer twice is harmless.
func importBooks(mgr *library.LibraryManager, root, shelf string, files []string, progress func()) (importResult, error) {
	var res importResult

	top := strings.Join(library.SplitShelfPath(shelf), library.PathSeparator)
	if _, err := ensureShelf(mgr, top); err != nil {
		return res, err
	}

	for _, file := range files {
		progress()

		rel, err := filepath.Rel(root, filepath.Dir(file))
		if err != nil {
			logrus.WithError(err).WithField("file", file).Warn("skipping file outside import root")
			res.Errors++
			continue
		}
		shelfPath := top
		if rel != "." {
			shelfPath = top + library.PathSeparator + filepath.ToSlash(rel)
		}
		target, err := ensureShelf(mgr, shelfPath)
		if err != nil {
			res.Errors++
			continue
		}

		location, err := filepath.Abs(file)
		if err != nil {
			res.Errors++
			continue
		}
		if hasLocation(target, location) {
			res.Skipped++
			continue
		}

		name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		if _, err := mgr.AddBookTo(target.ID, name, location); err != nil {
			logrus.WithError(err).WithField("file", file).Warn("could not add book")
			res.Errors++
			continue
		}
		res.Imported++
		res.Books = append(res.Books, importedBook{Name: name, Shelf: shelfPath})
	}
	return res, nil
}

// ensureShelf resolves path, creating each missing shelf along the way.
func ensureShelf(mgr *library.LibraryManager, path string) (*library.Shelf, error) {
	names := library.SplitShelfPath(path)
	if len(names) == 0 {
		return nil, fmt.Errorf("empty shelf path")
	}
	parent := ""
	var shelf *library.Shelf
	for _, name := range names {
		cur := name
		if parent != "" {
			cur = parent + library.PathSeparator + name
		}
		s, err := mgr.ResolveShelf(cur)
		if err != nil {
			if s, err = mgr.AddShelf(parent, name); err != nil {
				return nil, err
			}
		}
		shelf, parent = s, cur
	}
	return shelf, nil
}

func hasLocation(s *library.Shelf, location string) bool {
	for _, b := range s.Books {
		if b.Location == location {
			return true
		}
	}
	return false
}
