package server

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/mr-karan/pactwatch/internal/core"
	"github.com/mr-karan/pactwatch/pkg/models"
)

// handleListObligations returns obligations with risk score and overdue flag.
// URL: GET /api/v1/obligations
func (s *Server) handleListObligations(c *fiber.Ctx) error {
	f := models.ObligationFilter{
		Status:           models.ObligationStatus(c.Query("status")),
		Type:             models.ObligationType(c.Query("type")),
		Party:            strings.TrimSpace(c.Query("party")),
		RiskLevel:        models.RiskLevel(c.Query("risk_level")),
		ComplianceStatus: models.ComplianceStatus(c.Query("compliance_status")),
		ContractID:       strings.TrimSpace(c.Query("contract_id")),
	}
	var err error
	if f.DueBefore, err = queryTime(c, "due_before"); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, err.Error(), models.ValidationErrorType)
	}
	if f.Limit, err = queryInt(c, "limit"); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, err.Error(), models.ValidationErrorType)
	}
	if f.Offset, err = queryInt(c, "offset"); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, err.Error(), models.ValidationErrorType)
	}

	views, err := core.ListObligations(c.Context(), s.sqlite, f, s.now().UTC())
	if err != nil {
		return s.sendDomainError(c, err, "Failed to list obligations")
	}
	return SendSuccess(c, fiber.StatusOK, views)
}

// handleGetObligation URL: GET /api/v1/obligations/:obligationID
func (s *Server) handleGetObligation(c *fiber.Ctx) error {
	o, err := core.GetObligation(c.Context(), s.sqlite, c.Params("obligationID"))
	if err != nil {
		return s.sendDomainError(c, err, "Failed to retrieve obligation")
	}
	return SendSuccess(c, fiber.StatusOK, models.NewObligationView(o, s.now().UTC()))
}

// handleCreateObligation ingests a structured obligation.
// URL: POST /api/v1/obligations
func (s *Server) handleCreateObligation(c *fiber.Ctx) error {
	var req models.CreateObligationRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid request body", models.ValidationErrorType)
	}

	o, err := core.CreateObligation(c.Context(), s.sqlite, s.log, &req)
	if err != nil {
		return s.sendDomainError(c, err, "Failed to create obligation")
	}
	return SendSuccess(c, fiber.StatusCreated, models.NewObligationView(o, s.now().UTC()))
}

// handleUpdateObligation edits descriptive fields.
// URL: PATCH /api/v1/obligations/:obligationID
func (s *Server) handleUpdateObligation(c *fiber.Ctx) error {
	var req models.UpdateObligationRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid request body", models.ValidationErrorType)
	}

	o, err := core.UpdateObligation(c.Context(), s.sqlite, s.log, c.Params("obligationID"), &req)
	if err != nil {
		return s.sendDomainError(c, err, "Failed to update obligation")
	}
	return SendSuccess(c, fiber.StatusOK, models.NewObligationView(o, s.now().UTC()))
}

// handleArchiveObligation URL: POST /api/v1/obligations/:obligationID/archive
func (s *Server) handleArchiveObligation(c *fiber.Ctx) error {
	o, err := core.ArchiveObligation(c.Context(), s.sqlite, s.log, c.Params("obligationID"))
	if err != nil {
		return s.sendDomainError(c, err, "Failed to archive obligation")
	}
	return SendSuccess(c, fiber.StatusOK, models.NewObligationView(o, s.now().UTC()))
}

// handleCheckObligation runs one on-demand check.
// URL: POST /api/v1/obligations/:obligationID/check
func (s *Server) handleCheckObligation(c *fiber.Ctx) error {
	res, err := s.engine.CheckObligation(c.Context(), c.Params("obligationID"))
	if err != nil {
		return s.sendDomainError(c, err, "Failed to check obligation")
	}
	return SendSuccess(c, fiber.StatusOK, res)
}
