// Package source resolves version documents from files, blob stores and SQL
// databases.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"timetabler/internal/blob"
	"timetabler/internal/config"
	"timetabler/internal/infra/persistence/postgres"
	"timetabler/internal/infra/persistence/sqlite"
	"timetabler/pkg/domain"
)

// Source is a closable document source.
type Source interface {
	domain.DocumentSource
	Close() error
}

// Open selects a source by cfg.Driver. The blob driver reads from store,
// which must be non-nil for it.
func Open(ctx context.Context, cfg config.SourceConfig, store blob.Store) (Source, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFile(cfg.Dir), nil
	case "blob":
		if store == nil {
			return nil, errors.New("blob source requires a blob store")
		}
		return NewBlob(store, cfg.Prefix), nil
	case "sqlite":
		src, err := sqlite.NewSource(ctx, cfg.SQLitePath, cfg.Table)
		if err != nil {
			return nil, err
		}
		return src, nil
	case "postgres":
		src, err := postgres.NewSource(ctx, cfg.PostgresDSN, cfg.Table)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unknown source driver %s", cfg.Driver)
	}
}

// File reads <dir>/<org>/<project>/<version>.json. Empty org or project
// segments are skipped.
type File struct {
	dir string
}

func NewFile(dir string) *File {
	if dir == "" {
		dir = "."
	}
	return &File{dir: dir}
}

func (f *File) Path(ref domain.VersionRef) (string, error) {
	parts := []string{f.dir}
	for _, id := range []string{ref.OrgID, ref.ProjectID} {
		if id == "" {
			continue
		}
		if err := checkSegment(id); err != nil {
			return "", err
		}
		parts = append(parts, id)
	}
	if err := checkSegment(ref.VersionID); err != nil {
		return "", err
	}
	parts = append(parts, ref.VersionID+".json")
	return filepath.Join(parts...), nil
}

func (f *File) Load(_ context.Context, ref domain.VersionRef) (domain.Document, error) {
	path, err := f.Path(ref)
	if err != nil {
		return domain.Document{}, err
	}
	raw, err := os.ReadFile(path) // #nosec G304 -- segments are validated by Path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Document{}, fmt.Errorf("%s: %w", ref, domain.ErrVersionNotFound)
		}
		return domain.Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	return domain.ParseDocument(raw)
}

func (f *File) Close() error { return nil }

// Blob reads <prefix><org>/<project>/<version>.json from a blob store.
type Blob struct {
	store  blob.Store
	prefix string
}

func NewBlob(store blob.Store, prefix string) *Blob {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Blob{store: store, prefix: prefix}
}

func (b *Blob) Key(ref domain.VersionRef) string {
	return fmt.Sprintf("%s%s/%s/%s.json", b.prefix, ref.OrgID, ref.ProjectID, ref.VersionID)
}

func (b *Blob) Load(ctx context.Context, ref domain.VersionRef) (domain.Document, error) {
	if ref.VersionID == "" {
		return domain.Document{}, errors.New("version id is required")
	}
	_, rc, err := b.store.Get(ctx, b.Key(ref))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return domain.Document{}, fmt.Errorf("%s: %w", ref, domain.ErrVersionNotFound)
		}
		return domain.Document{}, err
	}
	defer func() { _ = rc.Close() }()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return domain.Document{}, fmt.Errorf("read %s: %w", b.Key(ref), err)
	}
	return domain.ParseDocument(raw)
}

// Save writes doc for ref. Existing objects are replaced.
func (b *Blob) Save(ctx context.Context, ref domain.VersionRef, doc domain.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode version %s: %w", ref.VersionID, err)
	}
	key := b.Key(ref)
	if _, err := b.store.Delete(ctx, key); err != nil {
		return err
	}
	_, err = b.store.Put(ctx, key, bytes.NewReader(raw), blob.PutOptions{ContentType: "application/json"})
	return err
}

func (b *Blob) Close() error { return nil }

// ReadContextFile reads a validation context from path. The file may hold a
// full context (with versionData) or a bare document.
func ReadContextFile(path string) (domain.ValidationContext, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return domain.ValidationContext{}, fmt.Errorf("read %s: %w", path, err)
	}
	return ParseContext(raw)
}

// ParseContext decodes either a ValidationContext or a bare Document.
func ParseContext(raw []byte) (domain.ValidationContext, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return domain.ValidationContext{}, fmt.Errorf("decode input: %w", err)
	}
	if _, ok := probe["versionData"]; !ok {
		doc, err := domain.ParseDocument(raw)
		if err != nil {
			return domain.ValidationContext{}, err
		}
		return domain.ValidationContext{VersionData: doc}, nil
	}
	var vc domain.ValidationContext
	if err := json.Unmarshal(raw, &vc); err != nil {
		return domain.ValidationContext{}, fmt.Errorf("decode validation context: %w", err)
	}
	vc.VersionData.Normalize()
	return vc, nil
}

// LoadContext builds a validation context for ref from src.
func LoadContext(ctx context.Context, src domain.DocumentSource, ref domain.VersionRef) (domain.ValidationContext, error) {
	doc, err := src.Load(ctx, ref)
	if err != nil {
		return domain.ValidationContext{}, err
	}
	return domain.ValidationContext{
		VersionData: doc,
		OrgID:       ref.OrgID,
		ProjectID:   ref.ProjectID,
		VersionID:   ref.VersionID,
	}, nil
}

func checkSegment(id string) error {
	if id == "" {
		return errors.New("version id is required")
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid identifier %q", id)
	}
	return nil
}
