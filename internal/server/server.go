// Package server exposes validation and optimisation over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"timetabler/internal/blob"
	"timetabler/internal/checks"
	"timetabler/internal/core"
	"timetabler/internal/metrics"
	"timetabler/internal/optimizer"
	"timetabler/internal/report"
	"timetabler/internal/source"
	"timetabler/pkg/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
)

// Options wires the server's collaborators. Only Engine is required.
type Options struct {
	Engine   *core.Engine
	Parallel bool
	Logger   *slog.Logger
	// AccessLog receives one line per request; nil disables access logging.
	AccessLog io.Writer
	// Gatherer backs GET /metrics; nil leaves the route unregistered.
	Gatherer prometheus.Gatherer
	// Collector records optimizer outcomes when set.
	Collector *metrics.Collector
	Source    domain.DocumentSource
	Archive   *report.Archive
	// Vars serves GET /debug/vars when set, normally expvar.Handler().
	Vars http.Handler
}

type Server struct {
	app  *fiber.App
	opts Options
	log  *slog.Logger
}

type checkInfo struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	Prerequisites []string `json:"prerequisites"`
}

type optimizeRequest struct {
	Lessons     []optimizer.LessonInput     `json:"lessons"`
	MetaLessons []optimizer.MetaLessonInput `json:"meta_lessons"`
	Seed        *uint64                     `json:"seed,omitempty"`
}

type optimizeResponse struct {
	optimizer.Result
	Conflicts int `json:"conflicts"`
}

func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Server{opts: opts, log: log}
	app := fiber.New(fiber.Config{
		AppName:               "timetabler",
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})
	app.Use(recover.New())
	if opts.AccessLog != nil {
		app.Use(logger.New(logger.Config{Output: opts.AccessLog}))
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if opts.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(opts.Gatherer)))
	}
	if opts.Vars != nil {
		app.Get("/debug/vars", adaptor.HTTPHandler(opts.Vars))
	}

	api := app.Group("/v1")
	api.Get("/checks", s.listChecks)
	api.Post("/validate", s.validate)
	api.Post("/optimize", s.optimize)
	api.Get("/versions/:org/:project/:version/validate", s.validateStored)
	api.Get("/versions/:org/:project/:version/reports/latest", s.latestReport)

	s.app = app
	return s
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

func (s *Server) Shutdown(ctx context.Context) error { return s.app.ShutdownWithContext(ctx) }

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.log.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) listChecks(c *fiber.Ctx) error {
	defs := s.opts.Engine.Checks()
	if cat := c.Query("category"); cat != "" {
		var filtered []checks.Definition
		for _, d := range defs {
			if string(d.Category) == cat {
				filtered = append(filtered, d)
			}
		}
		defs = filtered
	}
	out := make([]checkInfo, 0, len(defs))
	for _, d := range defs {
		out = append(out, checkInfo{
			ID:            d.ID,
			Name:          d.Name,
			Description:   d.Description,
			Category:      string(d.Category),
			Prerequisites: d.Prerequisites.Names(),
		})
	}
	return c.JSON(out)
}

func (s *Server) validate(c *fiber.Ctx) error {
	vc, err := source.ParseContext(c.Body())
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(s.run(c, vc))
}

func (s *Server) validateStored(c *fiber.Ctx) error {
	if s.opts.Source == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "no document source configured")
	}
	ref := domain.VersionRef{OrgID: c.Params("org"), ProjectID: c.Params("project"), VersionID: c.Params("version")}
	vc, err := source.LoadContext(c.UserContext(), s.opts.Source, ref)
	if err != nil {
		if errors.Is(err, domain.ErrVersionNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return err
	}
	return c.JSON(s.run(c, vc))
}

func (s *Server) latestReport(c *fiber.Ctx) error {
	if s.opts.Archive == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "report archive disabled")
	}
	ref := domain.VersionRef{OrgID: c.Params("org"), ProjectID: c.Params("project"), VersionID: c.Params("version")}
	res, err := s.opts.Archive.Latest(c.UserContext(), ref)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return err
	}
	return c.JSON(res)
}

func (s *Server) run(c *fiber.Ctx, vc domain.ValidationContext) domain.ValidationResult {
	ctx := c.UserContext()
	parallel := s.opts.Parallel
	if q := c.Query("parallel"); q != "" {
		parallel = c.QueryBool("parallel")
	}
	var res domain.ValidationResult
	if parallel {
		res = s.opts.Engine.RunParallel(ctx, vc)
	} else {
		res = s.opts.Engine.Run(ctx, vc)
	}
	if s.opts.Archive != nil && vc.VersionID != "" {
		if _, err := s.opts.Archive.Save(ctx, vc.Ref(), res); err != nil {
			s.log.Warn("archiving report failed", "version", vc.Ref().String(), "error", err)
		}
	}
	return res
}

func (s *Server) optimize(c *fiber.Ctx) error {
	var req optimizeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if len(req.MetaLessons) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "meta_lessons is required")
	}
	opts := []optimizer.Option{optimizer.WithLogger(s.log)}
	if req.Seed != nil {
		opts = append(opts, optimizer.WithSeed(*req.Seed))
	}
	res := optimizer.Optimize(req.Lessons, req.MetaLessons, opts...)
	if s.opts.Collector != nil {
		s.opts.Collector.RecordOptimization(res)
	}
	return c.JSON(optimizeResponse{Result: res, Conflicts: res.Conflicts()})
}
