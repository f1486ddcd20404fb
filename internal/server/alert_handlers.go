package server

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mr-karan/pactwatch/pkg/models"
)

func (s *Server) handleListAlerts(c *fiber.Ctx) error {
	f, err := parseAlertFilter(c)
	if err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, err.Error(), models.ValidationErrorType)
	}

	list, err := s.alerts.List(c.Context(), f)
	if err != nil {
		return s.sendDomainError(c, err, "Failed to list alerts")
	}
	return SendSuccess(c, fiber.StatusOK, list)
}

func (s *Server) handleGetAlert(c *fiber.Ctx) error {
	alertID := strings.TrimSpace(c.Params("alertID"))
	if alertID == "" {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Alert ID is required", models.ValidationErrorType)
	}

	alert, err := s.alerts.Get(c.Context(), alertID)
	if err != nil {
		return s.sendDomainError(c, err, "Failed to retrieve alert")
	}
	return SendSuccess(c, fiber.StatusOK, alert)
}

func (s *Server) handleAcknowledgeAlert(c *fiber.Ctx) error {
	alertID := strings.TrimSpace(c.Params("alertID"))
	var req models.AcknowledgeAlertRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid request body", models.ValidationErrorType)
	}
	if strings.TrimSpace(req.By) == "" {
		return SendErrorWithType(c, fiber.StatusBadRequest, "by is required", models.ValidationErrorType)
	}

	alert, err := s.alerts.Acknowledge(c.Context(), alertID, req.By)
	if err != nil {
		return s.sendDomainError(c, err, "Failed to acknowledge alert")
	}
	return SendSuccess(c, fiber.StatusOK, alert)
}

func (s *Server) handleResolveAlert(c *fiber.Ctx) error {
	alertID := strings.TrimSpace(c.Params("alertID"))
	var req models.ResolveAlertRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid request body", models.ValidationErrorType)
	}
	if strings.TrimSpace(req.By) == "" {
		return SendErrorWithType(c, fiber.StatusBadRequest, "by is required", models.ValidationErrorType)
	}

	alert, err := s.alerts.Resolve(c.Context(), alertID, req.By, req.Note)
	if err != nil {
		return s.sendDomainError(c, err, "Failed to resolve alert")
	}
	return SendSuccess(c, fiber.StatusOK, alert)
}

func parseAlertFilter(c *fiber.Ctx) (models.AlertFilter, error) {
	f := models.AlertFilter{
		Status:       models.AlertStatus(c.Query("status")),
		Severity:     models.Severity(c.Query("severity")),
		Type:         models.AlertType(c.Query("type")),
		ObligationID: c.Query("obligation_id"),
		ContractID:   c.Query("contract_id"),
		SortPriority: c.Query("sort") == "priority",
	}
	switch f.Status {
	case "", models.AlertStatusOpen, models.AlertStatusAcknowledged, models.AlertStatusResolved:
	default:
		return f, fmt.Errorf("invalid status %q", f.Status)
	}
	if f.Severity != "" && !f.Severity.Valid() {
		return f, fmt.Errorf("invalid severity %q", f.Severity)
	}
	if f.Type != "" && !f.Type.Valid() {
		return f, fmt.Errorf("invalid type %q", f.Type)
	}
	if sort := c.Query("sort"); sort != "" && sort != "priority" && sort != "recent" {
		return f, fmt.Errorf("invalid sort %q", sort)
	}

	var err error
	if f.From, err = queryTime(c, "from"); err != nil {
		return f, err
	}
	if f.To, err = queryTime(c, "to"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(c, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = queryInt(c, "offset"); err != nil {
		return f, err
	}
	return f, nil
}

func queryTime(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an RFC3339 timestamp", key)
	}
	t = t.UTC()
	return &t, nil
}

func queryInt(c *fiber.Ctx, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}
