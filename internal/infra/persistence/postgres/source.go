// Package postgres loads timetable version documents from the product's
// Postgres versions table (JSONB data column).
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"timetabler/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ domain.DocumentSource = (*Source)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/timetabler?sslmode=disable"
	defaultTable  = "versions"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex

	tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

type Source struct {
	db    *sql.DB
	table string
}

// NewSource connects using dsn (falls back to defaultDSN) and ensures the
// versions table exists.
func NewSource(ctx context.Context, dsn, table string) (*Source, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	if table == "" {
		table = defaultTable
	}
	if !tablePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	ddl := `CREATE TABLE IF NOT EXISTS ` + table + ` (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL DEFAULT '',
		data JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure %s table: %w", table, err)
	}
	return &Source{db: db, table: table}, nil
}

// Load returns the document of ref.VersionID, scoped by project when
// ref.ProjectID is set.
func (s *Source) Load(ctx context.Context, ref domain.VersionRef) (domain.Document, error) {
	query := `SELECT data FROM ` + s.table + ` WHERE id = $1`
	args := []any{ref.VersionID}
	if ref.ProjectID != "" {
		query += ` AND project_id = $2`
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
	if _, err := s.db.ExecContext(ctx, `INSERT INTO `+s.table+` (id, project_id, data) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET project_id = excluded.project_id, data = excluded.data, updated_at = now()`,
		ref.VersionID, ref.ProjectID, data); err != nil {
		return fmt.Errorf("upsert version %s: %w", ref.VersionID, err)
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Source) DB() *sql.DB { return s.db }

func (s *Source) Close() error { return s.db.Close() }

// OverrideSQLOpen swaps the sql.Open implementation (primarily for tests) and returns a restore func.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
