// Package config loads timetabler settings from YAML, .env files and
// TIMETABLER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"timetabler/internal/blob"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TIMETABLER_"

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Engine    EngineConfig    `yaml:"engine"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Source    SourceConfig    `yaml:"source"`
	Blob      BlobConfig      `yaml:"blob"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Server    ServerConfig    `yaml:"server"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

type EngineConfig struct {
	Parallel bool `yaml:"parallel"`
	// Parallelism caps concurrent checks; 0 means GOMAXPROCS.
	Parallelism int `yaml:"parallelism" validate:"min=0"`
}

type OptimizerConfig struct {
	// Seed fixes the optimizer's random source; 0 seeds from the clock.
	Seed uint64 `yaml:"seed"`
}

// SourceConfig selects where version documents are loaded from.
type SourceConfig struct {
	Driver      string `yaml:"driver" validate:"oneof=file blob sqlite postgres"`
	Dir         string `yaml:"dir" validate:"required_if=Driver file"`
	Prefix      string `yaml:"prefix"`
	SQLitePath  string `yaml:"sqlite_path" validate:"required_if=Driver sqlite"`
	PostgresDSN string `yaml:"postgres_dsn" validate:"required_if=Driver postgres"`
	Table       string `yaml:"table" validate:"required,identifier"`
}

type BlobConfig struct {
	Driver string   `yaml:"driver" validate:"oneof=fs memory s3"`
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint" validate:"omitempty,url"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

type ArchiveConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Codec       string `yaml:"codec" validate:"oneof=json msgpack"`
	Compression string `yaml:"compression" validate:"oneof=none zstd"`
	Prefix      string `yaml:"prefix"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		Log:    LogConfig{Level: "info", Format: "text"},
		Source: SourceConfig{Driver: "file", Dir: "./versions", Table: "versions"},
		Blob:   BlobConfig{Driver: "fs", FSRoot: "./blobdata"},
		Archive: ArchiveConfig{
			Codec:       "json",
			Compression: "none",
			Prefix:      "reports/",
		},
		Metrics: MetricsConfig{Enabled: true},
		Server:  ServerConfig{Addr: ":8080"},
	}
}

// Load builds the configuration. Values from the YAML file at path (if any)
// overlay the defaults, then .env files are loaded into the process
// environment and TIMETABLER_* variables override the result. Without
// explicit envFiles a .env in the working directory is used when present.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

func (c *Config) envBindings() map[string]any {
	return map[string]any{
		"LOG_LEVEL":             &c.Log.Level,
		"LOG_FORMAT":            &c.Log.Format,
		"ENGINE_PARALLEL":       &c.Engine.Parallel,
		"ENGINE_PARALLELISM":    &c.Engine.Parallelism,
		"OPTIMIZER_SEED":        &c.Optimizer.Seed,
		"SOURCE_DRIVER":         &c.Source.Driver,
		"SOURCE_DIR":            &c.Source.Dir,
		"SOURCE_PREFIX":         &c.Source.Prefix,
		"SOURCE_SQLITE_PATH":    &c.Source.SQLitePath,
		"SOURCE_POSTGRES_DSN":   &c.Source.PostgresDSN,
		"SOURCE_TABLE":          &c.Source.Table,
		"BLOB_DRIVER":           &c.Blob.Driver,
		"BLOB_FS_ROOT":          &c.Blob.FSRoot,
		"BLOB_S3_BUCKET":        &c.Blob.S3.Bucket,
		"BLOB_S3_REGION":        &c.Blob.S3.Region,
		"BLOB_S3_ENDPOINT":      &c.Blob.S3.Endpoint,
		"BLOB_S3_PATH_STYLE":    &c.Blob.S3.PathStyle,
		"BLOB_S3_ACCESS_KEY_ID": &c.Blob.S3.AccessKeyID,
		"BLOB_S3_SECRET_KEY":    &c.Blob.S3.SecretAccessKey,
		"BLOB_S3_SESSION_TOKEN": &c.Blob.S3.SessionToken,
		"ARCHIVE_ENABLED":       &c.Archive.Enabled,
		"ARCHIVE_CODEC":         &c.Archive.Codec,
		"ARCHIVE_COMPRESSION":   &c.Archive.Compression,
		"ARCHIVE_PREFIX":        &c.Archive.Prefix,
		"METRICS_ENABLED":       &c.Metrics.Enabled,
		"SERVER_ADDR":           &c.Server.Addr,
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	for name, target := range c.envBindings() {
		raw, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		raw = strings.TrimSpace(raw)
		switch p := target.(type) {
		case *string:
			*p = raw
		case *bool:
			v, err := strconv.ParseBool(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				continue
			}
			*p = v
		case *int:
			v, err := strconv.Atoi(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				continue
			}
			*p = v
		case *uint64:
			v, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				continue
			}
			*p = v
		}
	}
	return errors.Join(errs...)
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// identifierTag names the validation that guards SQL identifiers.
var identifierTag = "identifier"

func newValidator() (*validator.Validate, error) {
	v := validator.New()
	err := v.RegisterValidation(identifierTag, func(fl validator.FieldLevel) bool {
		return identifierPattern.MatchString(fl.Field().String())
	})
	if err != nil {
		return nil, fmt.Errorf("register %q validation: %w", identifierTag, err)
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	v, err := newValidator()
	if err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	var errs []error
	if err := v.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("validate config: %w", err)
		}
		for _, fe := range fieldErrs {
			field := strings.TrimPrefix(fe.Namespace(), "Config.")
			if fe.Param() != "" {
				errs = append(errs, fmt.Errorf("%s: failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value()))
			} else {
				errs = append(errs, fmt.Errorf("%s: failed %s (got %v)", field, fe.Tag(), fe.Value()))
			}
		}
	}
	if c.Blob.Driver == "s3" && c.Blob.S3.Bucket == "" {
		errs = append(errs, errors.New("blob.s3.bucket: required for the s3 driver"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// BlobOptions converts the blob section for blob.Open.
func (c *Config) BlobOptions() blob.Options {
	return blob.Options{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Region:          c.Blob.S3.Region,
			Bucket:          c.Blob.S3.Bucket,
			Endpoint:        c.Blob.S3.Endpoint,
			AccessKeyID:     c.Blob.S3.AccessKeyID,
			SecretAccessKey: c.Blob.S3.SecretAccessKey,
			SessionToken:    c.Blob.S3.SessionToken,
			PathStyle:       c.Blob.S3.PathStyle,
		},
	}
}
