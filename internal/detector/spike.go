package detector

import (
	"fmt"

	"github.com/miradorstack/mirador-triage/internal/models"
)

// ErrorSpikeRule flags services with repeated errors while the window as a
// whole is above the global error threshold.
type ErrorSpikeRule struct {
	globalThreshold  int
	serviceThreshold int
}

// NewErrorSpikeRule constructs an ErrorSpikeRule.
func NewErrorSpikeRule(globalThreshold, serviceThreshold int) *ErrorSpikeRule {
	return &ErrorSpikeRule{globalThreshold: globalThreshold, serviceThreshold: serviceThreshold}
}

// Name implements Rule.
func (r *ErrorSpikeRule) Name() string { return "error_spike" }

// Detect implements Rule.
func (r *ErrorSpikeRule) Detect(records []models.LogRecord) []models.AnomalyEvent {
	errs := errorRecords(records)
	if len(errs) < r.globalThreshold {
		return nil
	}

	order, groups := groupBy(errs, func(rec models.LogRecord) string { return rec.Service })
	events := make([]models.AnomalyEvent, 0, len(order))
	for _, service := range order {
		group := groups[service]
		if len(group) < r.serviceThreshold {
			continue
		}
		traceID := group[0].TraceID
		if traceID == "" {
			traceID = "spike-" + service
		}
		ev := models.NewAnomalyEvent(
			models.AnomalyErrorSpike,
			service,
			traceID,
			fmt.Sprintf("Error spike detected: %d errors in %s", len(group), service),
			group,
		)
		ev.Count = len(group)
		events = append(events, ev)
	}
	return events
}

func errorRecords(records []models.LogRecord) []models.LogRecord {
	out := make([]models.LogRecord, 0, len(records))
	for _, rec := range records {
		if rec.Level == models.LevelError {
			out = append(out, rec)
		}
	}
	return out
}

// groupBy buckets records by key, returning keys in first-seen order.
func groupBy(records []models.LogRecord, key func(models.LogRecord) string) ([]string, map[string][]models.LogRecord) {
	order := make([]string, 0)
	groups := make(map[string][]models.LogRecord)
	for _, rec := range records {
		k := key(rec)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], rec)
	}
	return order, groups
}
