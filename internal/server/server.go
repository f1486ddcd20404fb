// Package server exposes the monitoring engine, alerts and obligations over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/mr-karan/pactwatch/internal/alerts"
	"github.com/mr-karan/pactwatch/internal/config"
	"github.com/mr-karan/pactwatch/internal/core"
	"github.com/mr-karan/pactwatch/internal/gateway"
	"github.com/mr-karan/pactwatch/internal/monitor"
	"github.com/mr-karan/pactwatch/internal/sqlite"
	"github.com/mr-karan/pactwatch/pkg/models"
)

// ServerOptions holds the dependencies of the HTTP server.
type ServerOptions struct {
	Config  *config.Config
	SQLite  *sqlite.DB
	Engine  *monitor.Engine
	Alerts  *alerts.Manager
	Gateway *gateway.Registry
	Logger  *slog.Logger

	BuildInfo string
	Version   string
}

// Server wraps the fiber app and its dependencies.
type Server struct {
	app     *fiber.App
	config  *config.Config
	sqlite  *sqlite.DB
	engine  *monitor.Engine
	alerts  *alerts.Manager
	gateway *gateway.Registry
	log     *slog.Logger

	buildInfo string
	version   string
	now       func() time.Time
}

// New creates the server and registers its routes.
func New(opts ServerOptions) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Server{
		config:    cfg,
		sqlite:    opts.SQLite,
		engine:    opts.Engine,
		alerts:    opts.Alerts,
		gateway:   opts.Gateway,
		log:       opts.Logger.With("component", "server"),
		buildInfo: opts.BuildInfo,
		version:   opts.Version,
		now:       time.Now,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "pactwatch",
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})
	s.app.Use(recover.New())
	s.app.Use(s.requestMetrics)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/metrics", s.handleMetrics)

	api := s.app.Group("/api/v1")
	api.Get("/health", s.handleHealth)
	api.Get("/meta", s.handleGetMeta)

	mon := api.Group("/monitoring")
	mon.Post("/check-all", s.handleCheckAll)
	mon.Post("/deadline-check", s.handleDeadlineCheck)
	mon.Get("/status", s.handleMonitoringStatus)
	mon.Get("/compliance-summary", s.handleComplianceSummary)

	al := api.Group("/alerts")
	al.Get("/", s.handleListAlerts)
	al.Get("/:alertID", s.handleGetAlert)
	al.Post("/:alertID/acknowledge", s.handleAcknowledgeAlert)
	al.Post("/:alertID/resolve", s.handleResolveAlert)

	ob := api.Group("/obligations")
	ob.Get("/", s.handleListObligations)
	ob.Post("/", s.handleCreateObligation)
	ob.Get("/:obligationID", s.handleGetObligation)
	ob.Patch("/:obligationID", s.handleUpdateObligation)
	ob.Post("/:obligationID/archive", s.handleArchiveObligation)
	ob.Post("/:obligationID/check", s.handleCheckObligation)

	settings := api.Group("/admin/settings")
	settings.Get("/", s.handleListSettings)
	settings.Get("/:key", s.handleGetSetting)
	settings.Put("/:key", s.handleUpdateSetting)
	settings.Delete("/:key", s.handleDeleteSetting)
}

// Start listens on the configured address. It blocks until Shutdown.
func (s *Server) Start() error {
	addr := s.config.Server.ListenAddr()
	s.log.Info("http server listening", "address", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the fiber app for in-process testing.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) requestMetrics(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	route := c.Route().Path
	metrics.GetOrCreateHistogram(`pactwatch_http_request_duration_seconds{route="` + route + `"}`).UpdateDuration(start)
	return err
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		errType := models.GeneralErrorType
		if fe.Code == fiber.StatusNotFound {
			errType = models.NotFoundErrorType
		}
		return SendErrorWithType(c, fe.Code, fe.Message, errType)
	}
	s.log.Error("unhandled request error", "path", c.Path(), "error", err)
	return SendErrorWithType(c, fiber.StatusInternalServerError, "Internal server error", models.GeneralErrorType)
}

// SendSuccess writes the success envelope.
func SendSuccess(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(models.APIResponse{Status: "success", Data: data})
}

// SendError writes an error envelope with the general error type.
func SendError(c *fiber.Ctx, status int, message string) error {
	return SendErrorWithType(c, status, message, models.GeneralErrorType)
}

// SendErrorWithType writes an error envelope tagged with errType.
func SendErrorWithType(c *fiber.Ctx, status int, message string, errType models.ErrorType) error {
	return c.Status(status).JSON(models.APIResponse{Status: "error", Message: message, ErrorType: errType})
}

// sendDomainError maps sentinel errors to status codes. Anything unrecognised
// is logged and reported as a generic failure so backend detail never leaks.
func (s *Server) sendDomainError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, sqlite.ErrNotFound):
		return SendErrorWithType(c, fiber.StatusNotFound, "Resource not found", models.NotFoundErrorType)
	case errors.Is(err, core.ErrInvalidObligation):
		return SendErrorWithType(c, fiber.StatusBadRequest, err.Error(), models.ValidationErrorType)
	case errors.Is(err, models.ErrInvalidTransition):
		return SendErrorWithType(c, fiber.StatusConflict, "Alert is already resolved", models.ConflictErrorType)
	case errors.Is(err, monitor.ErrNotActive):
		return SendErrorWithType(c, fiber.StatusConflict, "Obligation is not active", models.ConflictErrorType)
	case errors.Is(err, sqlite.ErrDuplicate):
		return SendErrorWithType(c, fiber.StatusConflict, "Obligation reference already exists", models.ConflictErrorType)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return SendErrorWithType(c, fiber.StatusServiceUnavailable, "Request timed out", models.GeneralErrorType)
	default:
		s.log.Error(fallback, "path", c.Path(), "error", err)
		if errors.Is(err, sqlite.ErrStoreWrite) {
			return SendErrorWithType(c, fiber.StatusInternalServerError, fallback, models.DatabaseErrorType)
		}
		return SendErrorWithType(c, fiber.StatusInternalServerError, fallback, models.GeneralErrorType)
	}
}
