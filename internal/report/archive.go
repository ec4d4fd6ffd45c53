package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"timetabler/internal/blob"
	"timetabler/pkg/domain"
)

// Archive stores validation results under
// <prefix><org>/<project>/<version>/<timestamp>.<ext>.
type Archive struct {
	store      blob.Store
	serializer *Serializer
	prefix     string
}

// NewArchive returns an archive writing to store. A non-empty prefix gets a
// trailing slash.
func NewArchive(store blob.Store, serializer *Serializer, prefix string) *Archive {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Archive{store: store, serializer: serializer, prefix: prefix}
}

// VersionPrefix is the key prefix of every report of a version.
func (a *Archive) VersionPrefix(ref domain.VersionRef) string {
	return fmt.Sprintf("%s%s/%s/%s/", a.prefix, keyPart(ref.OrgID), keyPart(ref.ProjectID), keyPart(ref.VersionID))
}

// Key returns the key a result produced at ts is saved under.
func (a *Archive) Key(ref domain.VersionRef, ts time.Time) string {
	return a.VersionPrefix(ref) + ts.UTC().Format("20060102T150405.000000000Z") + "." + a.serializer.Extension()
}

// Save serializes result and writes it, returning the blob info.
func (a *Archive) Save(ctx context.Context, ref domain.VersionRef, result domain.ValidationResult) (blob.Info, error) {
	data, err := a.serializer.Serialize(result)
	if err != nil {
		return blob.Info{}, err
	}
	ts := result.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	info, err := a.store.Put(ctx, a.Key(ref, ts), bytes.NewReader(data), blob.PutOptions{
		ContentType: a.serializer.ContentType(),
		Metadata: map[string]string{
			"org":     ref.OrgID,
			"project": ref.ProjectID,
			"version": ref.VersionID,
			"issues":  fmt.Sprint(len(result.Issues)),
		},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("archive report: %w", err)
	}
	return info, nil
}

// Load reads a report saved with the same serializer settings.
func (a *Archive) Load(ctx context.Context, key string) (domain.ValidationResult, error) {
	_, rc, err := a.store.Get(ctx, key)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("read report %s: %w", key, err)
	}
	var result domain.ValidationResult
	if err := a.serializer.Deserialize(data, &result); err != nil {
		return domain.ValidationResult{}, fmt.Errorf("decode report %s: %w", key, err)
	}
	return result, nil
}

// List returns the reports of a version, oldest first.
func (a *Archive) List(ctx context.Context, ref domain.VersionRef) ([]blob.Info, error) {
	return a.store.List(ctx, a.VersionPrefix(ref))
}

// Latest loads the most recent report of a version.
func (a *Archive) Latest(ctx context.Context, ref domain.VersionRef) (domain.ValidationResult, error) {
	infos, err := a.List(ctx, ref)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	if len(infos) == 0 {
		return domain.ValidationResult{}, fmt.Errorf("no reports for %s: %w", ref, blob.ErrNotFound)
	}
	return a.Load(ctx, infos[len(infos)-1].Key)
}

// keyPart keeps empty or slash-bearing identifiers from changing key depth.
func keyPart(s string) string {
	if s == "" {
		return "_"
	}
	return strings.ReplaceAll(s, "/", "_")
}
