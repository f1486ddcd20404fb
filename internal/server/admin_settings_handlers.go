package server

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/robfig/cron/v3"

	"github.com/mr-karan/pactwatch/internal/sqlite"
	"github.com/mr-karan/pactwatch/pkg/models"
)

// SystemSettingResponse represents a setting in API responses.
type SystemSettingResponse struct {
	Key         string `json:"key"`
	Value       string `json:"value,omitempty"`
	ValueType   string `json:"value_type"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	IsSensitive bool   `json:"is_sensitive"`
	MaskedValue string `json:"masked_value,omitempty"`
	UpdatedAt   string `json:"updated_at"`
}

// UpdateSettingRequest represents a request to update a setting.
type UpdateSettingRequest struct {
	Value       string `json:"value"`
	ValueType   string `json:"value_type"`
	Category    string `json:"category"`
	Description string `json:"description"`
	IsSensitive bool   `json:"is_sensitive"`
}

// SettingsByCategoryResponse groups settings by category.
type SettingsByCategoryResponse struct {
	Category string                  `json:"category"`
	Settings []SystemSettingResponse `json:"settings"`
}

var validCategories = map[string]bool{
	"monitoring":    true,
	"gateway":       true,
	"redis":         true,
	"ai":            true,
	"notifications": true,
}

// handleListSettings returns runtime settings grouped by category. Values are
// read at startup; changes apply on the next restart.
// GET /api/v1/admin/settings
func (s *Server) handleListSettings(c *fiber.Ctx) error {
	var (
		settings []sqlite.Setting
		err      error
	)
	if category := c.Query("category"); category != "" {
		settings, err = s.sqlite.ListSettingsByCategory(c.Context(), category)
	} else {
		settings, err = s.sqlite.ListSettings(c.Context())
	}
	if err != nil {
		return s.sendDomainError(c, err, "Failed to retrieve settings")
	}

	byCategory := make(map[string][]SystemSettingResponse)
	for _, st := range settings {
		byCategory[st.Category] = append(byCategory[st.Category], settingToResponse(st))
	}
	result := make([]SettingsByCategoryResponse, 0, len(byCategory))
	for category, items := range byCategory {
		result = append(result, SettingsByCategoryResponse{Category: category, Settings: items})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Category < result[j].Category })
	return SendSuccess(c, fiber.StatusOK, result)
}

// handleGetSetting GET /api/v1/admin/settings/:key
func (s *Server) handleGetSetting(c *fiber.Ctx) error {
	key := c.Params("key")
	value, err := s.sqlite.GetSetting(c.Context(), key)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return SendErrorWithType(c, fiber.StatusNotFound, "Setting not found", models.NotFoundErrorType)
		}
		return s.sendDomainError(c, err, "Failed to retrieve setting")
	}
	return SendSuccess(c, fiber.StatusOK, fiber.Map{"key": key, "value": value})
}

// handleUpdateSetting PUT /api/v1/admin/settings/:key
func (s *Server) handleUpdateSetting(c *fiber.Ctx) error {
	key := c.Params("key")
	var req UpdateSettingRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid request body", models.ValidationErrorType)
	}
	if err := validateSettingValue(req.Value, req.ValueType); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, fmt.Sprintf("invalid value: %v", err), models.ValidationErrorType)
	}
	if !validCategories[req.Category] {
		return SendErrorWithType(c, fiber.StatusBadRequest, "invalid category (must be: monitoring, gateway, redis, ai or notifications)", models.ValidationErrorType)
	}
	if validator, ok := specificSettingValidators[key]; ok {
		if err := validator(req.Value); err != nil {
			return SendErrorWithType(c, fiber.StatusBadRequest, fmt.Sprintf("validation failed: %v", err), models.ValidationErrorType)
		}
	}

	if err := s.sqlite.UpsertSetting(c.Context(), key, req.Value, req.ValueType, req.Category, req.Description, req.IsSensitive); err != nil {
		return s.sendDomainError(c, err, "Failed to update setting")
	}
	s.log.Info("setting updated", "key", key)
	return SendSuccess(c, fiber.StatusOK, fiber.Map{"message": "setting updated", "key": key})
}

// handleDeleteSetting DELETE /api/v1/admin/settings/:key
func (s *Server) handleDeleteSetting(c *fiber.Ctx) error {
	key := c.Params("key")
	if err := s.sqlite.DeleteSetting(c.Context(), key); err != nil {
		return s.sendDomainError(c, err, "Failed to delete setting")
	}
	s.log.Info("setting deleted", "key", key)
	return SendSuccess(c, fiber.StatusOK, fiber.Map{"message": "setting deleted"})
}

func settingToResponse(st sqlite.Setting) SystemSettingResponse {
	resp := SystemSettingResponse{
		Key:         st.Key,
		Value:       st.Value,
		ValueType:   st.ValueType,
		Category:    st.Category,
		Description: st.Description,
		IsSensitive: st.IsSensitive,
		UpdatedAt:   st.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if resp.IsSensitive && resp.Value != "" {
		resp.Value = ""
		resp.MaskedValue = "********"
	}
	return resp
}

func validateSettingValue(value, valueType string) error {
	switch valueType {
	case "boolean":
		_, err := strconv.ParseBool(value)
		return err
	case "number":
		_, err := strconv.ParseFloat(value, 64)
		return err
	case "duration":
		_, err := time.ParseDuration(value)
		return err
	case "string":
		return nil
	default:
		return fmt.Errorf("invalid value_type: %s (must be: string, number, boolean, or duration)", valueType)
	}
}

var specificSettingValidators = map[string]func(string) error{
	"monitoring.reconcile_schedule": validateSchedule,
	"monitoring.deadline_schedule":  validateOptionalSchedule,
	"monitoring.workers":            validatePositiveInt,
	"ai.base_url":                   validateOptionalURL,
	"ai.max_tokens":                 validatePositiveInt,
	"ai.temperature":                validateTemperature,
}

func validateSchedule(value string) error {
	if _, err := cron.ParseStandard(value); err != nil {
		return fmt.Errorf("invalid cron schedule: %w", err)
	}
	return nil
}

func validateOptionalSchedule(value string) error {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return validateSchedule(value)
}

func validateOptionalURL(value string) error {
	if value == "" {
		return nil
	}
	parsedURL, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid URL format")
	}
	if parsedURL.Scheme != "" && parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("URL must use http or https scheme")
	}
	return nil
}

func validatePositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be a valid integer")
	}
	if n <= 0 {
		return fmt.Errorf("must be greater than 0")
	}
	return nil
}

func validateTemperature(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if f < 0.0 || f > 1.0 {
		return fmt.Errorf("must be between 0.0 and 1.0")
	}
	return nil
}
