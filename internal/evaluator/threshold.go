package evaluator

import (
	"fmt"
	"math"
	"strconv"

	"github.com/mr-karan/pactwatch/pkg/models"
)

// Breached reports whether observed violates the threshold under c.
// A value exactly at an inclusive bound is compliant; strict bounds breach at equality.
func (c Comparator) Breached(observed, threshold float64) bool {
	switch c {
	case CmpLE:
		return observed > threshold
	case CmpLT:
		return observed >= threshold
	case CmpGE:
		return observed < threshold
	case CmpGT:
		return observed <= threshold
	case CmpEQ:
		return math.Abs(observed-threshold) > 1e-9
	default:
		return false
	}
}

// upper reports whether the threshold is a ceiling.
func (c Comparator) upper() bool { return c == CmpLE || c == CmpLT }

// OveragePct is how far observed sits past threshold, relative to threshold.
// Ceilings measure overage, floors measure shortfall. A zero threshold breached
// by any amount counts as 100%.
func OveragePct(c Comparator, observed, threshold float64) float64 {
	var diff float64
	switch {
	case c.upper():
		diff = observed - threshold
	case c == CmpEQ:
		diff = math.Abs(observed - threshold)
	default:
		diff = threshold - observed
	}
	if diff < 0 {
		diff = 0
	}
	if threshold == 0 {
		if diff == 0 {
			return 0
		}
		return 100
	}
	return diff / math.Abs(threshold) * 100
}

// SeverityForOverage bands an overage percentage: >=50 critical, >20 high, else medium.
func SeverityForOverage(pct float64) models.Severity {
	switch {
	case pct >= 50:
		return models.SeverityCritical
	case pct > 20:
		return models.SeverityHigh
	default:
		return models.SeverityMedium
	}
}

// ApplyRiskFloor raises sev to the minimum implied by the obligation's risk level.
func ApplyRiskFloor(sev models.Severity, risk models.RiskLevel) models.Severity {
	switch risk {
	case models.RiskLevelCritical:
		return models.MaxSeverity(sev, models.SeverityHigh)
	case models.RiskLevelHigh:
		return models.MaxSeverity(sev, models.SeverityMedium)
	default:
		return sev
	}
}

func formatValue(v float64, percent bool) string {
	var s string
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		s = strconv.FormatFloat(v, 'f', 0, 64)
	} else {
		s = strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
	}
	if percent {
		return s + "%"
	}
	return s
}

// delta renders the human comparison, e.g. "found 12%, cap is 10%".
func delta(c Comparator, observed, threshold float64, percent bool) string {
	o, t := formatValue(observed, percent), formatValue(threshold, percent)
	switch c {
	case CmpLE:
		return fmt.Sprintf("found %s, cap is %s", o, t)
	case CmpLT:
		return fmt.Sprintf("found %s, must be below %s", o, t)
	case CmpGE:
		return fmt.Sprintf("found %s, minimum is %s", o, t)
	case CmpGT:
		return fmt.Sprintf("found %s, must be above %s", o, t)
	default:
		return fmt.Sprintf("found %s, required %s", o, t)
	}
}
