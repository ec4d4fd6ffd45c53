package blob

import (
	"context"
	"testing"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name   string
		opts   Options
		driver Driver
	}{
		{"default is fs", Options{FSRoot: t.TempDir()}, DriverFilesystem},
		{"memory", Options{Driver: DriverMemory}, DriverMemory},
		{"s3", Options{Driver: DriverS3, S3: S3Config{Bucket: "b", Region: "eu-west-2", AccessKeyID: "k", SecretAccessKey: "s"}}, DriverS3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, err := Open(ctx, tc.opts)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if store.Driver() != tc.driver {
				t.Fatalf("driver = %s, want %s", store.Driver(), tc.driver)
			}
		})
	}
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, Options{Driver: "ftp"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(ctx, Options{Driver: DriverS3}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}
