package server

import (
	"github.com/VictoriaMetrics/metrics"
	"github.com/gofiber/fiber/v2"

	"github.com/mr-karan/pactwatch/pkg/models"
)

// MetaResponse represents the server metadata response
type MetaResponse struct {
	Version           string `json:"version"`
	BuildInfo         string `json:"build_info,omitempty"`
	ReconcileSchedule string `json:"reconcile_schedule"`
	DeadlineSchedule  string `json:"deadline_schedule"`
	LeadWindows       []int  `json:"lead_windows"`
	JudgeEnabled      bool   `json:"judge_enabled"`
}

// handleGetMeta returns server metadata including version and configuration
// URL: GET /api/v1/meta
func (s *Server) handleGetMeta(c *fiber.Ctx) error {
	return SendSuccess(c, fiber.StatusOK, MetaResponse{
		Version:           s.version,
		BuildInfo:         s.buildInfo,
		ReconcileSchedule: s.config.Monitoring.ReconcileSchedule,
		DeadlineSchedule:  s.config.Monitoring.DeadlineSchedule,
		LeadWindows:       s.config.Monitoring.LeadWindows,
		JudgeEnabled:      s.config.AI.Enabled,
	})
}

// handleHealth reports whether the store answers.
// URL: GET /health
func (s *Server) handleHealth(c *fiber.Ctx) error {
	if err := s.sqlite.Ping(c.Context()); err != nil {
		s.log.Error("health check failed", "error", err)
		return SendErrorWithType(c, fiber.StatusServiceUnavailable, "Store unavailable", models.DatabaseErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, fiber.Map{"status": "ok", "version": s.version})
}

// handleMetrics writes Prometheus text exposition.
// URL: GET /metrics
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4")
	metrics.WritePrometheus(c, true)
	return nil
}
