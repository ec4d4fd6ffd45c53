package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"timetabler/internal/blob"
	"timetabler/internal/config"
	"timetabler/pkg/domain"
)

const docJSON = `{"data":{"subjects":[{"id":"ma","name":"Maths"}],"teachers":[]},"model":{"blocks":[]}}`

func TestFileSource(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "o", "p"), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "o", "p", "v1.json"), []byte(docJSON), 0o600); err != nil {
		t.Fatal(err)
	}
	src := NewFile(dir)
	doc, err := src.Load(ctx, domain.VersionRef{OrgID: "o", ProjectID: "p", VersionID: "v1"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(doc.Data.Subjects) != 1 || doc.Data.FormGroups == nil {
		t.Fatalf("expected a normalized document, got %+v", doc.Data)
	}
	if _, err := src.Load(ctx, domain.VersionRef{OrgID: "o", ProjectID: "p", VersionID: "v2"}); !errors.Is(err, domain.ErrVersionNotFound) {
		t.Fatalf("expected ErrVersionNotFound, got %v", err)
	}
	for _, ref := range []domain.VersionRef{
		{OrgID: "..", ProjectID: "p", VersionID: "v1"},
		{OrgID: "o", ProjectID: "p", VersionID: "../v1"},
		{OrgID: "o", ProjectID: "p"},
	} {
		if _, err := src.Load(ctx, ref); err == nil || errors.Is(err, domain.ErrVersionNotFound) {
			t.Fatalf("expected %+v to be rejected, got %v", ref, err)
		}
	}
	path, _ := NewFile("").Path(domain.VersionRef{VersionID: "v"})
	if path != "v.json" {
		t.Fatalf("unexpected path %s", path)
	}
}

func TestBlobSource(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	src := NewBlob(store, "versions")
	ref := domain.VersionRef{OrgID: "o", ProjectID: "p", VersionID: "v1"}
	if got := src.Key(ref); got != "versions/o/p/v1.json" {
		t.Fatalf("unexpected key %s", got)
	}
	if _, err := src.Load(ctx, ref); !errors.Is(err, domain.ErrVersionNotFound) {
		t.Fatalf("expected ErrVersionNotFound, got %v", err)
	}
	doc, _ := domain.ParseDocument([]byte(docJSON))
	if err := src.Save(ctx, ref, doc); err != nil {
		t.Fatalf("save: %v", err)
	}
	doc.Data.Subjects = append(doc.Data.Subjects, domain.Subject{ID: "sc", Name: "Science"})
	if err := src.Save(ctx, ref, doc); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := src.Load(ctx, ref)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Data.Subjects) != 2 {
		t.Fatalf("expected overwritten document, got %+v", got.Data.Subjects)
	}
	if _, err := src.Load(ctx, domain.VersionRef{OrgID: "o"}); err == nil {
		t.Fatalf("expected missing version id error")
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		cfg  config.SourceConfig
		want string
	}{
		{"file", config.SourceConfig{Driver: "file", Dir: t.TempDir()}, "*source.File"},
		{"blob", config.SourceConfig{Driver: "blob", Prefix: "v"}, "*source.Blob"},
		{"sqlite", config.SourceConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "tt.db"), Table: "versions"}, "*sqlite.Source"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src, err := Open(ctx, tc.cfg, blob.NewMemory())
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer func() { _ = src.Close() }()
			if got := typeName(src); got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
	if _, err := Open(ctx, config.SourceConfig{Driver: "blob"}, nil); err == nil {
		t.Fatalf("expected error without a blob store")
	}
	if _, err := Open(ctx, config.SourceConfig{Driver: "ftp"}, nil); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestParseContext(t *testing.T) {
	vc, err := ParseContext([]byte(docJSON))
	if err != nil {
		t.Fatalf("bare document: %v", err)
	}
	if len(vc.VersionData.Data.Subjects) != 1 || vc.OrgID != "" {
		t.Fatalf("unexpected context %+v", vc)
	}
	vc, err = ParseContext([]byte(`{"orgId":"o","projectId":"p","versionId":"v","versionData":` + docJSON + `}`))
	if err != nil {
		t.Fatalf("full context: %v", err)
	}
	if vc.Ref().String() != "o/p/v" || vc.VersionData.Data.Bands == nil {
		t.Fatalf("unexpected context %+v", vc)
	}
	if _, err := ParseContext([]byte(`[1,2]`)); err == nil {
		t.Fatalf("expected decode error")
	}
	path := filepath.Join(t.TempDir(), "ctx.json")
	if err := os.WriteFile(path, []byte(docJSON), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadContextFile(path); err != nil {
		t.Fatalf("read file: %v", err)
	}
	if _, err := ReadContextFile(path + ".missing"); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestLoadContext(t *testing.T) {
	ctx := context.Background()
	src := NewBlob(blob.NewMemory(), "")
	ref := domain.VersionRef{OrgID: "o", ProjectID: "p", VersionID: "v"}
	if err := src.Save(ctx, ref, domain.Document{}); err != nil {
		t.Fatal(err)
	}
	vc, err := LoadContext(ctx, src, ref)
	if err != nil {
		t.Fatalf("load context: %v", err)
	}
	if vc.Ref() != ref {
		t.Fatalf("unexpected ref %+v", vc.Ref())
	}
	if _, err := LoadContext(ctx, src, domain.VersionRef{VersionID: "x"}); !errors.Is(err, domain.ErrVersionNotFound) {
		t.Fatalf("expected ErrVersionNotFound, got %v", err)
	}
}

func typeName(v any) string { return fmt.Sprintf("%T", v) }
