package library

import (
	"database/sql"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// CatalogEntry is one indexed book with the shelf path it sits on.
type CatalogEntry struct {
	Position  int64  `json:"position"`
	Name      string `json:"name"`
	Location  string `json:"location"`
	ShelfPath string `json:"shelf_path"`
}

// Catalog is a SQLite search index mirroring a Library. The XML file stays the
// source of truth; the catalog can be thrown away and rebuilt at any time.
type Catalog struct {
	db *sql.DB

	addBookStmt *sql.Stmt
}

// NewCatalog opens (or creates) the SQLite index at dbPath, applies schema
// migrations, and prepares common statements.
func NewCatalog(dbPath string) (*Catalog, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create catalog dir")
		}
	}

	dsn := "file:" + dbPath + "?_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	c := &Catalog{db: db}
	if err := c.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Close releases prepared statements and closes the DB.
func (c *Catalog) Close() error {
	if c.addBookStmt != nil {
		c.addBookStmt.Close()
	}
	return c.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return errors.Wrap(err, "enable WAL")
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return errors.Wrap(err, "create meta table")
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS books (
            position INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            location TEXT NOT NULL,
            shelf_path TEXT NOT NULL,
            search_key TEXT NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_books_shelf ON books(shelf_path);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return errors.Wrap(err, "apply migration")
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
        ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return errors.Wrap(err, "store schema version")
	}

	return tx.Commit()
}

func (c *Catalog) prepareStatements() error {
	var err error
	if c.addBookStmt, err = c.db.Prepare(`INSERT INTO books(position,name,location,shelf_path,search_key) VALUES(?,?,?,?,?)`); err != nil {
		return errors.Wrap(err, "prepare insert")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Indexing
// ---------------------------------------------------------------------------

// Digest returns the blake2b-256 hash of the library's XML encoding. Two
// libraries with the same digest serialize identically.
func Digest(lib *Library) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if err := lib.Encode(h); err != nil {
		return "", errors.Wrap(err, "encode library")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Rebuild replaces the whole index with the books of lib, in tree order, in a
// single transaction.
func (c *Catalog) Rebuild(lib *Library) error {
	digest, err := Digest(lib)
	if err != nil {
		return err
	}

	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM books`); err != nil {
		return errors.Wrap(err, "clear catalog")
	}

	insert := tx.Stmt(c.addBookStmt)
	defer insert.Close()

	var pos int64
	err = lib.Walk(func(path []*Shelf) error {
		shelfPath := ShelfPath(path)
		for _, b := range path[len(path)-1].Books {
			pos++
			if _, err := insert.Exec(pos, b.Name, b.Location, shelfPath, searchKey(b.Name, b.Location, shelfPath)); err != nil {
				return errors.Wrapf(err, "index book %q", b.Name)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for key, value := range map[string]string{"library_digest": digest, "owner": lib.Owner} {
		if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES(?,?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, key, value); err != nil {
			return errors.Wrapf(err, "store %s", key)
		}
	}

	return tx.Commit()
}

// IsStale reports whether the index was built from a different library state
// than lib, or was never built at all.
func (c *Catalog) IsStale(lib *Library) (bool, error) {
	digest, err := Digest(lib)
	if err != nil {
		return false, err
	}
	var stored string
	err = c.db.QueryRow(`SELECT value FROM meta WHERE key='library_digest'`).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "read digest")
	}
	return stored != digest, nil
}

// Count returns the number of indexed books.
func (c *Catalog) Count() (int, error) {
	var n int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM books`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Search does a case-insensitive substring match on book name, location and
// shelf path. Results come back in tree order.
func (c *Catalog) Search(q string) ([]*CatalogEntry, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []*CatalogEntry{}, nil
	}
	pattern := "%" + escapeLike(strings.ToLower(q)) + "%"
	rows, err := c.db.Query(`
        SELECT position, name, location, shelf_path
        FROM books
        WHERE search_key LIKE ? ESCAPE '\'
        ORDER BY position;`, pattern)
	if err != nil {
		return nil, errors.Wrap(err, "search catalog")
	}
	defer rows.Close()

	results := []*CatalogEntry{}
	for rows.Next() {
		var e CatalogEntry
		if err := rows.Scan(&e.Position, &e.Name, &e.Location, &e.ShelfPath); err != nil {
			return nil, err
		}
		results = append(results, &e)
	}
	return results, rows.Err()
}

// searchKey folds the searchable fields into one lower-cased column. SQLite's
// lower() only handles ASCII, so folding happens here.
func searchKey(fields ...string) string {
	return strings.ToLower(strings.Join(fields, "\n"))
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
