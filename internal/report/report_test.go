package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"timetabler/internal/blob"
	"timetabler/pkg/domain"
)

func sampleResult(ts time.Time) domain.ValidationResult {
	return domain.ValidationResult{
		Issues: []domain.Issue{{
			ID:          "teaching_hours-1",
			Type:        domain.IssueError,
			Severity:    domain.SeverityCritical,
			Title:       "Not enough teaching hours",
			Description: "Staff cannot cover demand",
			Action:      &domain.IssueAction{Label: "Teachers", Path: "/org/o/project/p/version/v/teachers"},
			Metadata: domain.IssueMetadata{
				AffectedTeachers: []string{"t1"},
				Data:             map[string]any{"shortfall": 2},
			},
			CheckID:   "teaching_hours",
			Timestamp: ts,
		}},
		ChecksRun:     []string{"teaching_hours"},
		ChecksSkipped: []string{"form_group_coverage"},
		Timestamp:     ts,
	}
}

func TestSerializerRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	for _, codec := range []Codec{JSON(), MessagePack()} {
		for _, comp := range []Compression{CompressionNone, CompressionZstd} {
			t.Run(codec.Name()+"/"+string(comp), func(t *testing.T) {
				s, err := NewSerializer(codec, comp)
				if err != nil {
					t.Fatalf("serializer: %v", err)
				}
				data, err := s.Serialize(sampleResult(ts))
				if err != nil {
					t.Fatalf("serialize: %v", err)
				}
				var got domain.ValidationResult
				if err := s.Deserialize(data, &got); err != nil {
					t.Fatalf("deserialize: %v", err)
				}
				if len(got.Issues) != 1 || got.Issues[0].CheckID != "teaching_hours" || got.Issues[0].Severity != domain.SeverityCritical {
					t.Fatalf("unexpected issues %+v", got.Issues)
				}
				if got.Issues[0].Action == nil || got.Issues[0].Action.Path != "/org/o/project/p/version/v/teachers" {
					t.Fatalf("action lost: %+v", got.Issues[0].Action)
				}
				if !got.Timestamp.Equal(ts) {
					t.Fatalf("timestamp = %v, want %v", got.Timestamp, ts)
				}
				if len(got.ChecksSkipped) != 1 || got.ChecksSkipped[0] != "form_group_coverage" {
					t.Fatalf("skipped = %v", got.ChecksSkipped)
				}
			})
		}
	}
}

func TestSerializerSettings(t *testing.T) {
	if _, err := NewSerializer(nil, "lz4"); err == nil {
		t.Fatalf("expected unknown compression error")
	}
	s, err := NewSerializer(nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if s.Extension() != "json" || s.ContentType() != "application/json" {
		t.Fatalf("unexpected defaults %s %s", s.Extension(), s.ContentType())
	}
	s, _ = NewSerializer(MessagePack(), CompressionZstd)
	if s.Extension() != "msgpack.zst" || s.ContentType() != "application/zstd" {
		t.Fatalf("unexpected settings %s %s", s.Extension(), s.ContentType())
	}
	s, _ = NewSerializer(MessagePack(), CompressionNone)
	if s.ContentType() != "application/x-msgpack" {
		t.Fatalf("unexpected content type %s", s.ContentType())
	}
	if _, err := CodecByName("xml"); err == nil {
		t.Fatalf("expected unknown codec error")
	}
	if c, _ := CodecByName(""); c.Name() != "json" {
		t.Fatalf("empty codec name should select json")
	}
	if err := s.Deserialize([]byte{0xc1}, &domain.ValidationResult{}); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestArchiveSaveLoad(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	s, _ := NewSerializer(MessagePack(), CompressionZstd)
	archive := NewArchive(store, s, "reports")
	ref := domain.VersionRef{OrgID: "o", ProjectID: "p", VersionID: "v"}

	first := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	info, err := archive.Save(ctx, ref, sampleResult(first))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(info.Key, "reports/o/p/v/") || !strings.HasSuffix(info.Key, ".msgpack.zst") {
		t.Fatalf("unexpected key %s", info.Key)
	}
	if info.Metadata["issues"] != "1" || info.ContentType != "application/zstd" {
		t.Fatalf("unexpected info %+v", info)
	}
	later := sampleResult(second)
	later.Issues = nil
	if _, err := archive.Save(ctx, ref, later); err != nil {
		t.Fatalf("save second: %v", err)
	}
	if _, err := archive.Save(ctx, ref, later); !errors.Is(err, blob.ErrExists) {
		t.Fatalf("expected ErrExists on duplicate timestamp, got %v", err)
	}

	infos, err := archive.List(ctx, ref)
	if err != nil || len(infos) != 2 {
		t.Fatalf("list: %v %+v", err, infos)
	}
	loaded, err := archive.Load(ctx, infos[0].Key)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Issues) != 1 || !loaded.Timestamp.Equal(first) {
		t.Fatalf("unexpected first report %+v", loaded)
	}
	latest, err := archive.Latest(ctx, ref)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(latest.Issues) != 0 || !latest.Timestamp.Equal(second) {
		t.Fatalf("unexpected latest report %+v", latest)
	}
}

func TestArchiveMissing(t *testing.T) {
	ctx := context.Background()
	archive := NewArchive(blob.NewMemory(), mustSerializer(t), "")
	ref := domain.VersionRef{OrgID: "o", ProjectID: "p", VersionID: "none"}
	if _, err := archive.Latest(ctx, ref); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := archive.Load(ctx, "o/p/none/x.json"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got := archive.VersionPrefix(domain.VersionRef{OrgID: "a/b"}); got != "a_b/_/_/" {
		t.Fatalf("unexpected prefix %s", got)
	}
}

func mustSerializer(t *testing.T) *Serializer {
	t.Helper()
	s, err := NewSerializer(JSON(), CompressionNone)
	if err != nil {
		t.Fatal(err)
	}
	return s
}
