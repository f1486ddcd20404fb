package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mr-karan/pactwatch/internal/gateway"
	"github.com/mr-karan/pactwatch/internal/sqlite"
	"github.com/mr-karan/pactwatch/pkg/models"
)

var (
	// ErrInvalidObligation indicates the request payload failed validation.
	ErrInvalidObligation = errors.New("invalid obligation")
	// ErrObligationNotFound indicates an obligation could not be located.
	ErrObligationNotFound = fmt.Errorf("obligation %w", sqlite.ErrNotFound)
)

var validTypes = map[models.ObligationType]struct{}{
	models.ObligationTypePayment:          {},
	models.ObligationTypeSLA:              {},
	models.ObligationTypeReportSubmission: {},
	models.ObligationTypeCapThreshold:     {},
	models.ObligationTypeRenewal:          {},
	models.ObligationTypeOther:            {},
}

var validFrequencies = map[models.Frequency]struct{}{
	models.FrequencyOneTime:   {},
	models.FrequencyMonthly:   {},
	models.FrequencyQuarterly: {},
	models.FrequencyAnnual:    {},
}

var validStatuses = map[models.ObligationStatus]struct{}{
	models.ObligationStatusActive:    {},
	models.ObligationStatusCompleted: {},
	models.ObligationStatusBreached:  {},
	models.ObligationStatusPending:   {},
	models.ObligationStatusArchived:  {},
}

var validRiskLevels = map[models.RiskLevel]struct{}{
	models.RiskLevelLow:      {},
	models.RiskLevelMedium:   {},
	models.RiskLevelHigh:     {},
	models.RiskLevelCritical: {},
}

func knownMetric(name string) bool {
	for _, schema := range gateway.Schemas {
		for _, spec := range schema {
			if spec.Name == name {
				return true
			}
		}
	}
	return false
}

func validateMoney(field string, m *models.Money) error {
	if m.IsZero() {
		return nil
	}
	if m.Amount.IsNegative() {
		return fmt.Errorf("%s amount must not be negative", field)
	}
	if len(m.Currency) != 3 || strings.ToUpper(m.Currency) != m.Currency {
		return fmt.Errorf("%s currency must be an ISO-4217 code, got %q", field, m.Currency)
	}
	return nil
}

func validateObligation(o *models.Obligation) error {
	if strings.TrimSpace(o.ContractID) == "" {
		return fmt.Errorf("contract_id is required")
	}
	if strings.TrimSpace(o.Reference) == "" {
		return fmt.Errorf("reference is required")
	}
	if strings.TrimSpace(o.Party) == "" {
		return fmt.Errorf("party is required")
	}
	if _, ok := validTypes[o.Type]; !ok {
		return fmt.Errorf("invalid obligation_type %q", o.Type)
	}
	if _, ok := validFrequencies[o.Frequency]; !ok {
		return fmt.Errorf("invalid frequency %q", o.Frequency)
	}
	if _, ok := validStatuses[o.Status]; !ok {
		return fmt.Errorf("invalid status %q", o.Status)
	}
	if _, ok := validRiskLevels[o.RiskLevel]; !ok {
		return fmt.Errorf("invalid risk_level %q", o.RiskLevel)
	}
	if o.Metric != "" && !knownMetric(o.Metric) {
		return fmt.Errorf("unknown metric %q", o.Metric)
	}
	if err := validateMoney("penalty", o.Penalty); err != nil {
		return err
	}
	return validateMoney("rebate", o.Rebate)
}

func trimmedMoney(m *models.Money) *models.Money {
	if m.IsZero() {
		return nil
	}
	return &models.Money{Amount: m.Amount, Currency: strings.ToUpper(strings.TrimSpace(m.Currency))}
}

// CreateObligation ingests an already-structured obligation from the extraction
// pipeline. Compliance fields always start blank.
func CreateObligation(ctx context.Context, db *sqlite.DB, log *slog.Logger, req *models.CreateObligationRequest) (*models.Obligation, error) {
	if req == nil {
		return nil, ErrInvalidObligation
	}
	o := &models.Obligation{
		ID:               uuid.NewString(),
		ContractID:       strings.TrimSpace(req.ContractID),
		Reference:        strings.TrimSpace(req.Reference),
		Party:            strings.TrimSpace(req.Party),
		PartyRef:         strings.TrimSpace(req.PartyRef),
		Type:             req.Type,
		Description:      strings.TrimSpace(req.Description),
		Deadline:         utcPtr(req.Deadline),
		Frequency:        req.Frequency,
		Condition:        strings.TrimSpace(req.Condition),
		Metric:           strings.TrimSpace(req.Metric),
		Penalty:          trimmedMoney(req.Penalty),
		Rebate:           trimmedMoney(req.Rebate),
		Status:           req.Status,
		RiskLevel:        req.RiskLevel,
		ComplianceStatus: models.ComplianceStatusUnknown,
	}
	if o.Frequency == "" {
		o.Frequency = models.FrequencyOneTime
	}
	if o.Status == "" {
		o.Status = models.ObligationStatusActive
	}
	if o.RiskLevel == "" {
		o.RiskLevel = models.RiskLevelMedium
	}
	if err := validateObligation(o); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidObligation, err)
	}

	if err := db.CreateObligation(ctx, o); err != nil {
		if errors.Is(err, sqlite.ErrDuplicate) {
			return nil, fmt.Errorf("%w: reference %q already exists", sqlite.ErrDuplicate, o.Reference)
		}
		return nil, fmt.Errorf("failed to create obligation: %w", err)
	}
	log.Info("obligation ingested", "obligation_id", o.ID, "reference", o.Reference, "contract_id", o.ContractID)
	return o, nil
}

// UpdateObligation applies a manual review edit. Only descriptive fields move;
// the engine owns everything about compliance.
func UpdateObligation(ctx context.Context, db *sqlite.DB, log *slog.Logger, id string, req *models.UpdateObligationRequest) (*models.Obligation, error) {
	if req == nil {
		return nil, ErrInvalidObligation
	}
	o, err := GetObligation(ctx, db, id)
	if err != nil {
		return nil, err
	}

	if req.Party != nil {
		o.Party = strings.TrimSpace(*req.Party)
	}
	if req.PartyRef != nil {
		o.PartyRef = strings.TrimSpace(*req.PartyRef)
	}
	if req.Type != nil {
		o.Type = *req.Type
	}
	if req.Description != nil {
		o.Description = strings.TrimSpace(*req.Description)
	}
	if req.Deadline != nil {
		o.Deadline = utcPtr(req.Deadline)
	}
	if req.Frequency != nil {
		o.Frequency = *req.Frequency
	}
	if req.Condition != nil {
		o.Condition = strings.TrimSpace(*req.Condition)
	}
	if req.Metric != nil {
		o.Metric = strings.TrimSpace(*req.Metric)
	}
	if req.Penalty != nil {
		o.Penalty = trimmedMoney(req.Penalty)
	}
	if req.Rebate != nil {
		o.Rebate = trimmedMoney(req.Rebate)
	}
	if req.Status != nil {
		o.Status = *req.Status
	}
	if req.RiskLevel != nil {
		o.RiskLevel = *req.RiskLevel
	}
	if err := validateObligation(o); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidObligation, err)
	}

	if err := db.UpdateObligation(ctx, o); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil, ErrObligationNotFound
		}
		return nil, fmt.Errorf("failed to update obligation: %w", err)
	}
	log.Info("obligation updated", "obligation_id", o.ID)
	return o, nil
}

// ArchiveObligation retires an obligation. Obligations are never deleted.
func ArchiveObligation(ctx context.Context, db *sqlite.DB, log *slog.Logger, id string) (*models.Obligation, error) {
	status := models.ObligationStatusArchived
	o, err := UpdateObligation(ctx, db, log, id, &models.UpdateObligationRequest{Status: &status})
	if err != nil {
		return nil, err
	}
	log.Info("obligation archived", "obligation_id", id)
	return o, nil
}

// GetObligation returns one obligation.
func GetObligation(ctx context.Context, db *sqlite.DB, id string) (*models.Obligation, error) {
	o, err := db.GetObligation(ctx, id)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil, ErrObligationNotFound
		}
		return nil, fmt.Errorf("failed to get obligation: %w", err)
	}
	return o, nil
}

// ListObligations returns obligation views for the filter.
func ListObligations(ctx context.Context, db *sqlite.DB, f models.ObligationFilter, now time.Time) ([]models.ObligationView, error) {
	list, err := db.ListObligations(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list obligations: %w", err)
	}
	views := make([]models.ObligationView, 0, len(list))
	for _, o := range list {
		views = append(views, models.NewObligationView(o, now))
	}
	return views, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
