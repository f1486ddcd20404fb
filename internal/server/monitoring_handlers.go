package server

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/mr-karan/pactwatch/internal/core"
	"github.com/mr-karan/pactwatch/internal/gateway"
)

// handleCheckAll runs a reconciliation pass over every active obligation.
// URL: POST /api/v1/monitoring/check-all
func (s *Server) handleCheckAll(c *fiber.Ctx) error {
	summary, err := s.engine.CheckAll(c.Context())
	if err != nil {
		return s.sendDomainError(c, err, "Failed to run reconciliation pass")
	}
	return SendSuccess(c, fiber.StatusOK, summary)
}

// handleDeadlineCheck runs the deadline pass now.
// URL: POST /api/v1/monitoring/deadline-check
func (s *Server) handleDeadlineCheck(c *fiber.Ctx) error {
	summary, err := s.engine.RunDeadlinePass(c.Context())
	if err != nil {
		return s.sendDomainError(c, err, "Failed to run deadline pass")
	}
	return SendSuccess(c, fiber.StatusOK, summary)
}

// handleMonitoringStatus reports the scheduler state with obligation and alert counts.
// URL: GET /api/v1/monitoring/status
func (s *Server) handleMonitoringStatus(c *fiber.Ctx) error {
	var health map[string]gateway.Health
	if s.gateway != nil {
		health = s.gateway.CachedHealth()
	}
	var engine core.EngineState
	if s.engine != nil {
		engine = s.engine
	}
	status, err := core.MonitoringStatus(c.Context(), s.sqlite, engine, health, s.now().UTC())
	if err != nil {
		return s.sendDomainError(c, err, "Failed to get monitoring status")
	}
	return SendSuccess(c, fiber.StatusOK, status)
}

// handleComplianceSummary aggregates compliance, optionally for one party.
// URL: GET /api/v1/monitoring/compliance-summary?party=
func (s *Server) handleComplianceSummary(c *fiber.Ctx) error {
	summary, err := core.ComplianceSummary(c.Context(), s.sqlite, strings.TrimSpace(c.Query("party")))
	if err != nil {
		return s.sendDomainError(c, err, "Failed to build compliance summary")
	}
	return SendSuccess(c, fiber.StatusOK, summary)
}
