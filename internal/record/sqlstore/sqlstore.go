// Package sqlstore keeps metadata records in a SQLite database. It is the
// relational metadata store the indexer reads catalogs from, and the store
// records are loaded into with "constellation index add".
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/constellation-sdi/constellation/internal/record"
)

const schemaVersion = 1

// Store is a SQLite-backed record.Source.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var (
	_ record.Source = (*Store)(nil)
	_ record.Getter = (*Store)(nil)
)

// validateIntegrity checks an existing database before it is opened for
// writing. A missing file is valid.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// Open opens or creates the store at path. An empty path creates an
// in-memory store. Unlike an index, a corrupted metadata database is never
// cleared: it is the source of truth, so Open fails instead.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		if err := validateIntegrity(path); err != nil {
			slog.Error("record_store_corrupted",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil, fmt.Errorf("record store %s is not usable: %w", path, err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: writers never contend and an in-memory database
	// is not split across connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// DSN parameters may be ignored by modernc.org/sqlite
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS catalogs (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	-- One row per record ("form"); the class is its top value's class.
	CREATE TABLE IF NOT EXISTS forms (
		catalog  TEXT NOT NULL REFERENCES catalogs(code) ON DELETE CASCADE,
		id       TEXT NOT NULL,
		title    TEXT NOT NULL DEFAULT '',
		profile  TEXT NOT NULL DEFAULT '',
		standard TEXT NOT NULL,
		class    TEXT NOT NULL,
		PRIMARY KEY (catalog, id)
	);

	CREATE TABLE IF NOT EXISTS form_values (
		catalog  TEXT NOT NULL,
		form_id  TEXT NOT NULL,
		seq      INTEGER NOT NULL,
		value_id TEXT NOT NULL,
		type     TEXT NOT NULL DEFAULT '',
		text     TEXT NOT NULL DEFAULT '',
		ref      TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (catalog, form_id, seq),
		FOREIGN KEY (catalog, form_id) REFERENCES forms(catalog, id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS codelists (
		name   TEXT PRIMARY KEY,
		locale INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS codelist_elements (
		list TEXT NOT NULL REFERENCES codelists(name) ON DELETE CASCADE,
		code INTEGER NOT NULL,
		name TEXT NOT NULL,
		PRIMARY KEY (list, code)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, schemaVersion)
	return err
}

// Path returns the database file, empty for an in-memory store.
func (s *Store) Path() string {
	return s.path
}

// PutCatalog creates or renames a catalog.
func (s *Store) PutCatalog(ctx context.Context, c record.Catalog) error {
	if c.Code == "" {
		return fmt.Errorf("catalog code is empty")
	}
	if c.Name == "" {
		c.Name = c.Code
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("record store is closed")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO catalogs(code, name) VALUES (?, ?)
		 ON CONFLICT(code) DO UPDATE SET name = excluded.name`, c.Code, c.Name)
	if err != nil {
		return fmt.Errorf("failed to store catalog %s: %w", c.Code, err)
	}
	return nil
}

// Put stores records, replacing any record with the same catalog and id.
// Missing catalogs are created. All records are written in one transaction.
func (s *Store) Put(ctx context.Context, records ...*record.Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("record store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	catalogStmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO catalogs(code, name) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare catalog statement: %w", err)
	}
	defer catalogStmt.Close()

	deleteStmt, err := tx.PrepareContext(ctx,
		`DELETE FROM forms WHERE catalog = ? AND id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer deleteStmt.Close()

	formStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO forms(catalog, id, title, profile, standard, class) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare form statement: %w", err)
	}
	defer formStmt.Close()

	valueStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO form_values(catalog, form_id, seq, value_id, type, text, ref) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare value statement: %w", err)
	}
	defer valueStmt.Close()

	for _, rec := range records {
		if rec.ID == "" || rec.Catalog == "" {
			return fmt.Errorf("record needs an id and a catalog (id=%q catalog=%q)", rec.ID, rec.Catalog)
		}
		if _, err := catalogStmt.ExecContext(ctx, rec.Catalog, rec.Catalog); err != nil {
			return fmt.Errorf("failed to create catalog %s: %w", rec.Catalog, err)
		}
		if _, err := deleteStmt.ExecContext(ctx, rec.Catalog, rec.ID); err != nil {
			return fmt.Errorf("failed to replace record %s: %w", rec.Key(), err)
		}
		if _, err := formStmt.ExecContext(ctx, rec.Catalog, rec.ID, rec.Title, rec.Profile,
			rec.Class.Standard, rec.Class.Name); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", rec.Key(), err)
		}
		for i, v := range rec.Values() {
			if _, err := valueStmt.ExecContext(ctx, rec.Catalog, rec.ID, i, v.ID, v.Type, v.Text, v.Ref); err != nil {
				return fmt.Errorf("failed to insert value %s of %s: %w", v.ID, rec.Key(), err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (s *Store) Delete(ctx context.Context, catalog, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("record store is closed")
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM forms WHERE catalog = ? AND id = ?`, catalog, id); err != nil {
		return fmt.Errorf("failed to delete record %s:%s: %w", id, catalog, err)
	}
	return nil
}

// PutCodeList stores a codelist class, replacing its elements.
func (s *Store) PutCodeList(ctx context.Context, cl *record.CodeList) error {
	if cl == nil || cl.Name == "" {
		return fmt.Errorf("codelist has no name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("record store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM codelists WHERE name = ?`, cl.Name); err != nil {
		return fmt.Errorf("failed to replace codelist %s: %w", cl.Name, err)
	}
	locale := 0
	if cl.Locale {
		locale = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO codelists(name, locale) VALUES (?, ?)`, cl.Name, locale); err != nil {
		return fmt.Errorf("failed to insert codelist %s: %w", cl.Name, err)
	}
	for _, e := range cl.Elements {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO codelist_elements(list, code, name) VALUES (?, ?, ?)`, cl.Name, e.Code, e.Name); err != nil {
			return fmt.Errorf("failed to insert element %d of %s: %w", e.Code, cl.Name, err)
		}
	}
	return tx.Commit()
}

// Catalogs implements record.Source.
func (s *Store) Catalogs(ctx context.Context) ([]record.Catalog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("record store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT code, name FROM catalogs ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalogs: %w", err)
	}
	defer rows.Close()

	var out []record.Catalog
	for rows.Next() {
		var c record.Catalog
		if err := rows.Scan(&c.Code, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan catalog: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Records implements record.Source. A record whose stored values no longer
// parse is skipped with a warning.
func (s *Store) Records(ctx context.Context, catalog string) ([]*record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("record store is closed")
	}

	docs, order, err := s.loadForms(ctx, `WHERE catalog = ?`, catalog)
	if err != nil {
		return nil, err
	}
	if err := s.loadValues(ctx, docs, `WHERE catalog = ?`, catalog); err != nil {
		return nil, err
	}

	out := make([]*record.Record, 0, len(order))
	for _, id := range order {
		rec, err := docs[id].Record()
		if err != nil {
			slog.Warn("record_decode_failed",
				slog.String("record_id", id),
				slog.String("catalog", catalog),
				slog.String("error", err.Error()))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Record implements record.Getter.
func (s *Store) Record(ctx context.Context, catalog, id string) (*record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("record store is closed")
	}

	docs, _, err := s.loadForms(ctx, `WHERE catalog = ? AND id = ?`, catalog, id)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, record.ErrNotFound
	}
	if err := s.loadValues(ctx, docs, `WHERE catalog = ? AND form_id = ?`, catalog, id); err != nil {
		return nil, err
	}
	return docs[id].Record()
}

func (s *Store) loadForms(ctx context.Context, where string, args ...any) (map[string]*record.Document, []string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, catalog, title, profile, standard, class FROM forms `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	docs := make(map[string]*record.Document)
	var order []string
	for rows.Next() {
		d := &record.Document{}
		if err := rows.Scan(&d.ID, &d.Catalog, &d.Title, &d.Profile, &d.Class.Standard, &d.Class.Name); err != nil {
			return nil, nil, fmt.Errorf("failed to scan record: %w", err)
		}
		docs[d.ID] = d
		order = append(order, d.ID)
	}
	return docs, order, rows.Err()
}

func (s *Store) loadValues(ctx context.Context, docs map[string]*record.Document, where string, args ...any) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT form_id, value_id, type, text, ref FROM form_values `+where+` ORDER BY form_id, seq`, args...)
	if err != nil {
		return fmt.Errorf("failed to query values: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var formID string
		var v record.Value
		if err := rows.Scan(&formID, &v.ID, &v.Type, &v.Text, &v.Ref); err != nil {
			return fmt.Errorf("failed to scan value: %w", err)
		}
		if d, ok := docs[formID]; ok {
			d.Values = append(d.Values, v)
		}
	}
	return rows.Err()
}

// CodeLists implements record.Source.
func (s *Store) CodeLists(ctx context.Context) (record.CodeLists, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("record store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.name, c.locale, e.code, e.name
		   FROM codelists c LEFT JOIN codelist_elements e ON e.list = c.name
		  ORDER BY c.name, e.code`)
	if err != nil {
		return nil, fmt.Errorf("failed to query codelists: %w", err)
	}
	defer rows.Close()

	out := make(record.CodeLists)
	for rows.Next() {
		var (
			name   string
			locale int
			code   sql.NullInt64
			elem   sql.NullString
		)
		if err := rows.Scan(&name, &locale, &code, &elem); err != nil {
			return nil, fmt.Errorf("failed to scan codelist: %w", err)
		}
		cl, ok := out[name]
		if !ok {
			cl = &record.CodeList{Name: name, Locale: locale != 0}
			out[name] = cl
		}
		if code.Valid {
			cl.Elements = append(cl.Elements, record.CodeListElement{Code: int(code.Int64), Name: elem.String})
		}
	}
	return out, rows.Err()
}

// Close implements record.Source.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.path != "" {
		// Fold the WAL back so the file is self-contained
		if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil && !errors.Is(err, sql.ErrConnDone) {
			slog.Debug("record_store_checkpoint_failed",
				slog.String("path", s.path),
				slog.String("error", err.Error()))
		}
	}
	return s.db.Close()
}
