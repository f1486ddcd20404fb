package evaluator

import (
	"strings"

	"github.com/mr-karan/pactwatch/internal/gateway"
	"github.com/mr-karan/pactwatch/pkg/models"
)

// defaultMetric is what a threshold is compared against when neither the
// obligation nor the condition names a metric.
var defaultMetric = map[models.Operation]string{
	models.OperationDiscountData:        gateway.MetricMaxDiscountPct,
	models.OperationCustomerVolume:      gateway.MetricTotalAmount,
	models.OperationTransactionActivity: gateway.MetricTransactionCount,
}

// metricAliases maps condition words to candidate metrics, most specific first.
// The first candidate the routed operation actually reports is used.
var metricAliases = map[string][]string{
	"average":      {gateway.MetricAvgDiscountPct},
	"avg":          {gateway.MetricAvgDiscountPct},
	"mean":         {gateway.MetricAvgDiscountPct},
	"discounted":   {gateway.MetricDiscountedTransactions},
	"discount":     {gateway.MetricMaxDiscountPct},
	"discounts":    {gateway.MetricMaxDiscountPct},
	"refund":       {gateway.MetricRefundCount},
	"refunds":      {gateway.MetricRefundCount},
	"returns":      {gateway.MetricRefundCount},
	"chargebacks":  {gateway.MetricRefundCount},
	"amount":       {gateway.MetricTotalAmount},
	"spend":        {gateway.MetricTotalAmount},
	"spending":     {gateway.MetricTotalAmount},
	"revenue":      {gateway.MetricTotalAmount},
	"sales":        {gateway.MetricTotalAmount},
	"purchases":    {gateway.MetricTotalAmount},
	"value":        {gateway.MetricTotalAmount},
	"volume":       {gateway.MetricTotalAmount, gateway.MetricTransactionCount},
	"transaction":  {gateway.MetricTransactionCount, gateway.MetricDiscountedTransactions},
	"transactions": {gateway.MetricTransactionCount, gateway.MetricDiscountedTransactions},
	"orders":       {gateway.MetricTransactionCount, gateway.MetricDiscountedTransactions},
}

// resolveMetric picks the metric a threshold applies to: the obligation's
// explicit metric, then a metric named verbatim in the condition, then the
// first alias the operation reports, then the operation default.
func resolveMetric(ob *models.Obligation, op models.Operation, words []string) string {
	if m := strings.TrimSpace(ob.Metric); m != "" {
		return m
	}
	reported := make(map[string]bool)
	for _, spec := range gateway.Schemas[op] {
		if spec.Kind == gateway.KindNumber {
			reported[spec.Name] = true
		}
	}
	for _, w := range words {
		if reported[w] {
			return w
		}
	}
	for _, w := range words {
		for _, candidate := range metricAliases[w] {
			if reported[candidate] {
				return candidate
			}
		}
	}
	return defaultMetric[op]
}

func isPercentMetric(name string) bool {
	return strings.HasSuffix(name, "_percentage") || strings.HasSuffix(name, "_pct")
}
