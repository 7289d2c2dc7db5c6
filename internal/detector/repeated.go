package detector

import (
	"fmt"

	"github.com/miradorstack/mirador-triage/internal/models"
)

// RepeatedFailureRule groups ERROR records by a truncated message prefix and
// flags signatures that repeat.
type RepeatedFailureRule struct {
	threshold       int
	signatureLength int
}

// NewRepeatedFailureRule constructs a RepeatedFailureRule.
func NewRepeatedFailureRule(threshold, signatureLength int) *RepeatedFailureRule {
	return &RepeatedFailureRule{threshold: threshold, signatureLength: signatureLength}
}

// Name implements Rule.
func (r *RepeatedFailureRule) Name() string { return "repeated_failure" }

// Detect implements Rule.
func (r *RepeatedFailureRule) Detect(records []models.LogRecord) []models.AnomalyEvent {
	order, groups := groupBy(errorRecords(records), func(rec models.LogRecord) string {
		return Signature(rec.Message, r.signatureLength)
	})

	var events []models.AnomalyEvent
	for _, sig := range order {
		group := groups[sig]
		if len(group) < r.threshold {
			continue
		}
		first := group[0]
		traceID := first.TraceID
		if traceID == "" {
			traceID = "repeated"
		}
		ev := models.NewAnomalyEvent(
			models.AnomalyRepeatedFailure,
			first.Service,
			traceID,
			fmt.Sprintf("Repeated failure (%dx): %s...", len(group), sig),
			group,
		)
		ev.Count = len(group)
		events = append(events, ev)
	}
	return events
}

// Signature returns the first n characters of message.
func Signature(message string, n int) string {
	runes := []rune(message)
	if len(runes) <= n {
		return message
	}
	return string(runes[:n])
}
