package detector

import (
	"fmt"
	"strings"

	"github.com/miradorstack/mirador-triage/internal/models"
)

// KeywordRule flags any record whose message contains a critical keyword.
// Matching is a case-insensitive substring search regardless of level.
type KeywordRule struct {
	keywords []string
	lowered  []string
}

// NewKeywordRule constructs a KeywordRule; keyword order decides which match
// is reported when several apply to one record.
func NewKeywordRule(keywords []string) *KeywordRule {
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}
	return &KeywordRule{keywords: append([]string(nil), keywords...), lowered: lowered}
}

// Name implements Rule.
func (r *KeywordRule) Name() string { return "critical_keyword" }

// Detect implements Rule.
func (r *KeywordRule) Detect(records []models.LogRecord) []models.AnomalyEvent {
	var events []models.AnomalyEvent
	for _, rec := range records {
		keyword, ok := r.match(rec.Message)
		if !ok {
			continue
		}
		traceID := rec.TraceID
		if traceID == "" {
			traceID = "critical-" + keyword
		}
		ev := models.NewAnomalyEvent(
			models.AnomalyCriticalKeyword,
			rec.Service,
			traceID,
			fmt.Sprintf("Critical keyword '%s' detected in %s", keyword, rec.Service),
			[]models.LogRecord{rec},
		)
		ev.Keyword = keyword
		ev.Count = 1
		events = append(events, ev)
	}
	return events
}

func (r *KeywordRule) match(message string) (string, bool) {
	if message == "" {
		return "", false
	}
	msg := strings.ToLower(message)
	for i, kw := range r.lowered {
		if strings.Contains(msg, kw) {
			return r.keywords[i], true
		}
	}
	return "", false
}
