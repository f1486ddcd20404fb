package monitor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mr-karan/pactwatch/internal/gateway"
	"github.com/mr-karan/pactwatch/pkg/models"
)

// Default fact windows per operation when the obligation does not recur.
const (
	discountWindowDays    = 30
	volumeWindowDays      = 90
	transactionWindowDays = 30
)

// Plan is where and over which window an obligation's fact comes from.
type Plan struct {
	Operation models.Operation
	Query     gateway.Query
	AlertType models.AlertType
}

// routeKeywords maps condition words onto the operation that can answer them.
// Checked in order; the first hit wins.
var routeKeywords = []struct {
	op    models.Operation
	words []string
}{
	{models.OperationDiscountData, []string{"discount", "markdown", "price reduction"}},
	{models.OperationCustomerVolume, []string{"rebate", "volume", "spend", "purchase", "revenue", "amount", "sales"}},
	{models.OperationTransactionActivity, []string{"refund", "return", "chargeback", "transaction", "order", "activity"}},
}

// operationFor picks the gateway operation for ob. The explicit metric wins,
// then condition keywords, then the obligation type. Caps with nothing to go
// on cannot be routed.
func operationFor(ob *models.Obligation) (models.Operation, bool) {
	if metric := strings.TrimSpace(ob.Metric); metric != "" {
		if op, ok := operationForMetric(metric, ob.Type); ok {
			return op, true
		}
	}

	text := strings.ToLower(ob.Condition + " " + ob.Description)
	for _, rk := range routeKeywords {
		for _, w := range rk.words {
			if strings.Contains(text, w) {
				return rk.op, true
			}
		}
	}

	switch ob.Type {
	case models.ObligationTypePayment, models.ObligationTypeSLA, models.ObligationTypeReportSubmission,
		models.ObligationTypeRenewal, models.ObligationTypeOther:
		return models.OperationTransactionActivity, true
	}
	return "", false
}

// operationForMetric returns the operation reporting metric. transaction_count
// is reported by two operations; payments prefer volume, the rest activity.
func operationForMetric(metric string, t models.ObligationType) (models.Operation, bool) {
	var found []models.Operation
	for _, op := range []models.Operation{models.OperationDiscountData, models.OperationCustomerVolume, models.OperationTransactionActivity} {
		for _, spec := range gateway.Schemas[op] {
			if spec.Name == metric {
				found = append(found, op)
			}
		}
	}
	switch len(found) {
	case 0:
		return "", false
	case 1:
		return found[0], true
	}
	for _, op := range found {
		if t == models.ObligationTypePayment && op == models.OperationCustomerVolume {
			return op, true
		}
		if t != models.ObligationTypePayment && op == models.OperationTransactionActivity {
			return op, true
		}
	}
	return found[0], true
}

// windowFor returns the day-aligned window ending at the start of tomorrow (UTC).
// Recurring obligations look back one frequency period.
func windowFor(ob *models.Obligation, op models.Operation, now time.Time) models.Window {
	end := now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	if ob.IsRecurring() {
		return models.Window{Start: ob.Frequency.Rewind(end), End: end}
	}
	days := transactionWindowDays
	switch op {
	case models.OperationDiscountData:
		days = discountWindowDays
	case models.OperationCustomerVolume:
		days = volumeWindowDays
	}
	return models.Window{Start: end.AddDate(0, 0, -days), End: end}
}

var partyIDPattern = regexp.MustCompile(`(?i)\b(cust(?:omer)?|client)[-_ #]?(\d+)\b`)

// ResolveParty maps an obligation to the customer identifier the live systems
// use: the explicit party_ref, a CUST-nnn id recovered from the party name, or
// the party name itself.
func ResolveParty(ob *models.Obligation) string {
	if ref := strings.TrimSpace(ob.PartyRef); ref != "" {
		return ref
	}
	if m := partyIDPattern.FindStringSubmatch(ob.Party); m != nil {
		if n, err := strconv.Atoi(m[2]); err == nil {
			return fmt.Sprintf("CUST-%03d", n)
		}
	}
	return strings.TrimSpace(ob.Party)
}

// breachAlertType is financial_trigger for money obligations and sla_breach otherwise.
func breachAlertType(ob *models.Obligation, op models.Operation) models.AlertType {
	if ob.Type == models.ObligationTypePayment || op == models.OperationCustomerVolume {
		return models.AlertTypeFinancialTrigger
	}
	return models.AlertTypeSLABreach
}

// planFor routes ob. ok is false when no operation fits.
func planFor(ob *models.Obligation, now time.Time) (Plan, bool) {
	op, ok := operationFor(ob)
	if !ok {
		return Plan{}, false
	}
	party := ResolveParty(ob)
	if party == "" {
		return Plan{}, false
	}
	return Plan{
		Operation: op,
		Query:     gateway.Query{Party: party, Window: windowFor(ob, op, now)},
		AlertType: breachAlertType(ob, op),
	}, true
}
