package fs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"timetabler/internal/blob/core"
)

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if store.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected driver %s", store.Driver())
	}

	info, err := store.Put(ctx, "org/proj/v1.json", strings.NewReader("hello"), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"k": "v"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 5 || info.ETag == "" || info.Metadata["k"] != "v" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "org/proj/v1.json", strings.NewReader("again"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	head, err := store.Head(ctx, "org/proj/v1.json")
	if err != nil || head.ContentType != "application/json" || head.ETag != info.ETag {
		t.Fatalf("head: %+v err=%v", head, err)
	}

	got, rc, err := store.Get(ctx, "org/proj/v1.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "hello" || got.Size != 5 {
		t.Fatalf("unexpected content %q", b)
	}

	existed, err := store.Delete(ctx, "org/proj/v1.json")
	if err != nil || !existed {
		t.Fatalf("delete: %v %v", existed, err)
	}
	if existed, _ := store.Delete(ctx, "org/proj/v1.json"); existed {
		t.Fatalf("second delete should report missing")
	}
	if _, _, err := store.Get(ctx, "org/proj/v1.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Head(ctx, "org/proj/v1.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from head, got %v", err)
	}
}

func TestStoreList(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, k := range []string{"a/2", "a/1", "b/1"} {
		if _, err := store.Put(ctx, k, strings.NewReader(k), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	infos, err := store.List(ctx, "a/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "a/1" || infos[1].Key != "a/2" {
		t.Fatalf("unexpected listing %+v", infos)
	}
	all, _ := store.List(ctx, "")
	if len(all) != 3 {
		t.Fatalf("expected 3 blobs, got %d", len(all))
	}
}

func TestInvalidKeys(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, key := range []string{"", "  ", "/abs", "../escape", "a/../../b", "x.meta"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); err == nil {
			t.Fatalf("expected %q to be rejected", key)
		}
	}
	if _, err := store.Put(ctx, "dots..ok", strings.NewReader("x"), core.PutOptions{}); err != nil {
		t.Fatalf("double dots inside a name should be allowed: %v", err)
	}
}

func TestNewDefaultsAndErrors(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(filepath.Join(blocker, "sub")); err == nil {
		t.Fatalf("expected error creating root under a file")
	}

	wd, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(wd) })
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	store, err := New("")
	if err != nil {
		t.Fatalf("default root: %v", err)
	}
	if store.root != "./blobdata" {
		t.Fatalf("unexpected default root %s", store.root)
	}
}

func TestCorruptSidecar(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, _ := New(root)
	if _, err := store.Put(ctx, "k", strings.NewReader("x"), core.PutOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "k"+metaSuffix), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Head(ctx, "k"); err == nil || errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if _, err := store.List(ctx, ""); err == nil {
		t.Fatalf("expected list to surface decode error")
	}
}
