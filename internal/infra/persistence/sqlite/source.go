// Package sqlite loads timetable version documents from a SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"timetabler/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.DocumentSource = (*Source)(nil)

const defaultTable = "versions"

var tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Source reads the JSON data column of a versions table. Rows are keyed by
// version id and optionally scoped by project_id.
type Source struct {
	db    *sql.DB
	path  string
	table string
}

// NewSource opens (and if needed creates) the database at path and ensures the
// versions table exists.
func NewSource(ctx context.Context, path, table string) (*Source, error) {
	if path == "" {
		path = "timetabler.db"
	}
	if table == "" {
		table = defaultTable
	}
	if !tablePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+table+` (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL DEFAULT '',
		data TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create %s table: %w", table, err)
	}
	return &Source{db: db, path: path, table: table}, nil
}

// Load returns the document of ref.VersionID. When ref.ProjectID is set the row
// must also belong to that project.
func (s *Source) Load(ctx context.Context, ref domain.VersionRef) (domain.Document, error) {
	query := `SELECT data FROM ` + s.table + ` WHERE id = ?`
	args := []any{ref.VersionID}
	if ref.ProjectID != "" {
		query += ` AND project_id = ?`
		args = append(args, ref.ProjectID)
	}
	var raw []byte
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Document{}, fmt.Errorf("%s: %w", ref, domain.ErrVersionNotFound)
		}
		return domain.Document{}, fmt.Errorf("select version %s: %w", ref.VersionID, err)
	}
	doc, err := domain.ParseDocument(raw)
	if err != nil {
		return domain.Document{}, fmt.Errorf("decode version %s: %w", ref.VersionID, err)
	}
	return doc, nil
}

// Save upserts the document of ref.
func (s *Source) Save(ctx context.Context, ref domain.VersionRef, doc domain.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode version %s: %w", ref.VersionID, err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO `+s.table+`(id, project_id, data) VALUES(?,?,?)
		ON CONFLICT(id) DO UPDATE SET project_id=excluded.project_id, data=excluded.data, updated_at=CURRENT_TIMESTAMP`,
		ref.VersionID, ref.ProjectID, string(data)); err != nil {
		return fmt.Errorf("upsert version %s: %w", ref.VersionID, err)
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Source) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Source) Path() string { return s.path }

func (s *Source) Close() error { return s.db.Close() }
