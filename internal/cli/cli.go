// Package cli implements the timetabler command line.
//
//	timetabler checks   [--category c] [--output text|json]
//	timetabler validate [--file f | --org o --project p --version v] [--parallel] [--output text|json] [--archive] [--trace] [--fail-on-error]
//	timetabler optimize (--input f | --file f --block id) [--seed n] [--apply]
//	timetabler serve    [--addr a]
//
// Every command reads --config (YAML), optional --env-file entries and
// TIMETABLER_* variables.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"
	"timetabler/internal/blob"
	"timetabler/internal/checks"
	"timetabler/internal/config"
	"timetabler/internal/core"
	"timetabler/internal/metrics"
	"timetabler/internal/optimizer"
	"timetabler/internal/report"
	"timetabler/internal/server"
	"timetabler/internal/source"
	"timetabler/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags "-X timetabler/internal/cli.Version=...".
var Version = "dev"

// ErrIssuesFound is returned by validate --fail-on-error when the report
// holds error issues.
var ErrIssuesFound = errors.New("validation reported errors")

// ErrArchiveNeedsVersion is returned when --archive is asked for a document
// that names no version to file the report under.
var ErrArchiveNeedsVersion = errors.New("--archive needs a version id")

type app struct {
	configFile string
	envFiles   []string
	cfg        *config.Config
	logger     *slog.Logger
}

func BuildCLI() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "timetabler",
		Short:         "Timetable feasibility checks and block ordering",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.ErrOrStderr())
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "config file path (YAML)")
	rootCmd.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", nil, "dotenv files to load before reading TIMETABLER_* variables")

	rootCmd.AddCommand(a.buildChecksCommand())
	rootCmd.AddCommand(a.buildValidateCommand())
	rootCmd.AddCommand(a.buildOptimizeCommand())
	rootCmd.AddCommand(a.buildServeCommand())
	return rootCmd
}

func (a *app) load(logOut io.Writer) error {
	cfg, err := config.Load(a.configFile, a.envFiles...)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg
	a.logger = newLogger(cfg.Log, logOut)
	return nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (a *app) buildChecksCommand() *cobra.Command {
	var category, output string
	cmd := &cobra.Command{
		Use:   "checks",
		Short: "List the registered feasibility checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			defs := checks.Active()
			if category != "" {
				defs = checks.ByCategory(checks.Category(category))
			}
			out := cmd.OutOrStdout()
			if output == "json" {
				type entry struct {
					ID            string   `json:"id"`
					Name          string   `json:"name"`
					Category      string   `json:"category"`
					Description   string   `json:"description"`
					Prerequisites []string `json:"prerequisites"`
				}
				list := make([]entry, 0, len(defs))
				for _, d := range defs {
					list = append(list, entry{d.ID, d.Name, string(d.Category), d.Description, d.Prerequisites.Names()})
				}
				return writeJSON(out, list)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tCATEGORY\tREQUIRES")
			for _, d := range defs {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ID, d.Category, strings.Join(d.Prerequisites.Names(), ","))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only list checks of this category")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

type validateFlags struct {
	file        string
	ref         domain.VersionRef
	parallel    bool
	output      string
	archive     bool
	trace       bool
	failOnError bool
}

func (a *app) buildValidateCommand() *cobra.Command {
	f := &validateFlags{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the feasibility checks against a version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runValidate(cmd, f)
		},
	}
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "validation context or version document JSON file")
	cmd.Flags().StringVar(&f.ref.OrgID, "org", "", "organisation id (with --project and --version)")
	cmd.Flags().StringVar(&f.ref.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&f.ref.VersionID, "version", "", "version id, loaded from the configured source unless --file is given")
	cmd.Flags().BoolVar(&f.parallel, "parallel", false, "run checks concurrently (defaults to engine.parallel)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "text", "output format: text or json")
	cmd.Flags().BoolVar(&f.archive, "archive", false, "store the report in the blob archive")
	cmd.Flags().BoolVar(&f.trace, "trace", false, "write JSON trace spans to stderr")
	cmd.Flags().BoolVar(&f.failOnError, "fail-on-error", false, "exit non-zero when error issues are reported")
	return cmd
}

func (a *app) runValidate(cmd *cobra.Command, f *validateFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	vc, err := a.validationContext(ctx, f)
	if err != nil {
		return err
	}
	if f.archive && vc.VersionID == "" {
		return ErrArchiveNeedsVersion
	}

	opts := []core.Option{
		core.WithLogger(a.logger),
		core.WithParallelism(a.cfg.Engine.Parallelism),
	}
	if f.trace {
		opts = append(opts, core.WithTracer(core.NewJSONTracer(cmd.ErrOrStderr())))
	}
	engine := core.NewDefaultEngine(opts...)
	var res domain.ValidationResult
	if f.parallel || a.cfg.Engine.Parallel {
		res = engine.RunParallel(ctx, vc)
	} else {
		res = engine.Run(ctx, vc)
	}

	switch {
	case vc.VersionID == "":
		if a.cfg.Archive.Enabled {
			a.logger.Warn("report not archived", "reason", "no version id")
		}
	case f.archive || a.cfg.Archive.Enabled:
		store, err := blob.Open(ctx, a.cfg.BlobOptions())
		if err != nil {
			return err
		}
		archive, err := a.newArchive(store)
		if err != nil {
			return err
		}
		info, err := archive.Save(ctx, vc.Ref(), res)
		if err != nil {
			return err
		}
		a.logger.Info("report archived", "key", info.Key, "size", info.Size)
	}

	out := cmd.OutOrStdout()
	if f.output == "json" {
		if err := writeJSON(out, res); err != nil {
			return err
		}
	} else {
		writeReport(out, res)
	}
	if f.failOnError && res.HasErrors() {
		return ErrIssuesFound
	}
	return nil
}

func (a *app) validationContext(ctx context.Context, f *validateFlags) (domain.ValidationContext, error) {
	if f.file != "" {
		vc, err := source.ReadContextFile(f.file)
		if err != nil {
			return domain.ValidationContext{}, err
		}
		// flags name the version when the file is a bare document
		if vc.VersionID == "" {
			vc.OrgID, vc.ProjectID, vc.VersionID = f.ref.OrgID, f.ref.ProjectID, f.ref.VersionID
		}
		return vc, nil
	}
	if f.ref.VersionID == "" {
		return domain.ValidationContext{}, errors.New("either --file or --version is required")
	}
	var store blob.Store
	if a.cfg.Source.Driver == "blob" {
		var err error
		if store, err = blob.Open(ctx, a.cfg.BlobOptions()); err != nil {
			return domain.ValidationContext{}, err
		}
	}
	src, err := source.Open(ctx, a.cfg.Source, store)
	if err != nil {
		return domain.ValidationContext{}, err
	}
	defer func() { _ = src.Close() }()
	return source.LoadContext(ctx, src, f.ref)
}

func (a *app) newArchive(store blob.Store) (*report.Archive, error) {
	codec, err := report.CodecByName(a.cfg.Archive.Codec)
	if err != nil {
		return nil, err
	}
	serializer, err := report.NewSerializer(codec, report.Compression(a.cfg.Archive.Compression))
	if err != nil {
		return nil, err
	}
	return report.NewArchive(store, serializer, a.cfg.Archive.Prefix), nil
}

func writeReport(w io.Writer, res domain.ValidationResult) {
	for _, issue := range res.Issues {
		_, _ = fmt.Fprintf(w, "[%s] %s (%s)\n", issue.Severity, issue.Title, issue.CheckID)
		if issue.Description != "" {
			_, _ = fmt.Fprintf(w, "  %s\n", issue.Description)
		}
		for _, line := range strings.Split(issue.Details, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				_, _ = fmt.Fprintf(w, "    %s\n", line)
			}
		}
		if issue.Recommendation != "" {
			_, _ = fmt.Fprintf(w, "  -> %s\n", issue.Recommendation)
		}
	}
	_, _ = fmt.Fprintf(w, "%d issue(s); checks run %d, skipped %d, failed %d\n",
		len(res.Issues), len(res.ChecksRun), len(res.ChecksSkipped), len(res.ChecksFailed))
}

type optimizeInput struct {
	Lessons     []optimizer.LessonInput     `json:"lessons"`
	MetaLessons []optimizer.MetaLessonInput `json:"meta_lessons"`
	Seed        *uint64                     `json:"seed,omitempty"`
}

func (a *app) buildOptimizeCommand() *cobra.Command {
	var input, file, blockID string
	var seed uint64
	var apply bool
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Assign a block's lessons to meta periods",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var in optimizeInput
			var block domain.Block
			switch {
			case input != "":
				raw, err := os.ReadFile(input) // #nosec G304 -- operator supplied path
				if err != nil {
					return fmt.Errorf("read %s: %w", input, err)
				}
				if err := json.Unmarshal(raw, &in); err != nil {
					return fmt.Errorf("decode %s: %w", input, err)
				}
			case file != "" && blockID != "":
				vc, err := source.ReadContextFile(file)
				if err != nil {
					return err
				}
				b, ok := domain.NewReader(vc.VersionData).Block(blockID)
				if !ok {
					return fmt.Errorf("block %s not found in %s", blockID, file)
				}
				block = b
				in.Lessons, in.MetaLessons = optimizer.InputsFromBlock(b)
			default:
				return errors.New("either --input or --file with --block is required")
			}
			if apply && block.ID == "" {
				return errors.New("--apply needs --file and --block")
			}

			opts := []optimizer.Option{optimizer.WithLogger(a.logger)}
			switch {
			case cmd.Flags().Changed("seed"):
				opts = append(opts, optimizer.WithSeed(seed))
			case in.Seed != nil:
				opts = append(opts, optimizer.WithSeed(*in.Seed))
			case a.cfg.Optimizer.Seed != 0:
				opts = append(opts, optimizer.WithSeed(a.cfg.Optimizer.Seed))
			}
			res := optimizer.Optimize(in.Lessons, in.MetaLessons, opts...)
			a.logger.Info("optimization finished",
				"placed", len(res.Placements), "conflicts", res.Conflicts(), "unassigned", len(res.Unassigned))

			if apply {
				return writeJSON(cmd.OutOrStdout(), optimizer.ApplyAssignments(block, res.Assignments))
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "JSON file with lessons and meta_lessons")
	cmd.Flags().StringVarP(&file, "file", "f", "", "validation context or version document JSON file")
	cmd.Flags().StringVar(&blockID, "block", "", "block id within --file")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed for reproducible placements")
	cmd.Flags().BoolVar(&apply, "apply", false, "print the block with meta_period_id written instead of the result")
	cmd.MarkFlagsMutuallyExclusive("input", "file")
	return cmd
}

func (a *app) buildServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, cleanup, err := a.buildServer(ctx, prometheus.NewRegistry(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer cleanup()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Listen(addr) }()
			a.logger.Info("server listening", "addr", addr)

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			a.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	return cmd
}

// buildServer wires the engine, metrics, document source and archive from
// the loaded config.
func (a *app) buildServer(ctx context.Context, reg *prometheus.Registry, accessLog io.Writer) (*server.Server, func(), error) {
	var recorders []core.MetricsRecorder
	var collector *metrics.Collector
	var gatherer prometheus.Gatherer
	if a.cfg.Metrics.Enabled {
		collector = metrics.NewCollector(reg)
		gatherer = reg
		recorders = append(recorders, collector)
	}
	recorders = append(recorders, core.NewExpvarMetricsRecorder(""))
	engine := core.NewDefaultEngine(
		core.WithLogger(a.logger),
		core.WithMetricsRecorder(core.MultiRecorder(recorders...)),
		core.WithParallelism(a.cfg.Engine.Parallelism),
	)

	var store blob.Store
	if a.cfg.Source.Driver == "blob" || a.cfg.Archive.Enabled {
		var err error
		if store, err = blob.Open(ctx, a.cfg.BlobOptions()); err != nil {
			return nil, nil, err
		}
	}
	src, err := source.Open(ctx, a.cfg.Source, store)
	if err != nil {
		return nil, nil, err
	}
	var archive *report.Archive
	if a.cfg.Archive.Enabled {
		if archive, err = a.newArchive(store); err != nil {
			_ = src.Close()
			return nil, nil, err
		}
	}
	srv := server.New(server.Options{
		Engine:    engine,
		Parallel:  a.cfg.Engine.Parallel,
		Logger:    a.logger,
		AccessLog: accessLog,
		Gatherer:  gatherer,
		Collector: collector,
		Source:    src,
		Archive:   archive,
		Vars:      expvar.Handler(),
	})
	return srv, func() { _ = src.Close() }, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
