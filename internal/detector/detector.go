package detector

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/miradorstack/mirador-triage/internal/models"
	"github.com/miradorstack/mirador-triage/internal/utils"
)

const (
	// DefaultErrorRateThreshold is the minimum ERROR count across all services
	// before per-service spikes are reported.
	DefaultErrorRateThreshold = 3
	// DefaultRepeatFailureThreshold is the minimum count per service (spike) or
	// per message signature (repeated failure).
	DefaultRepeatFailureThreshold = 2
	// DefaultSignatureLength is the message prefix, in characters, used as the
	// repeated-failure signature.
	DefaultSignatureLength = 50
)

// DefaultKeywords are matched case-insensitively against every record message.
var DefaultKeywords = []string{"OOM", "FATAL", "crash", "killed", "OutOfMemory", "connection refused", "timeout"}

// Thresholds parameterise the heuristic detectors.
type Thresholds struct {
	ErrorRate       int
	RepeatFailure   int
	SignatureLength int
	Keywords        []string
}

// DefaultThresholds returns the stock detector configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ErrorRate:       DefaultErrorRateThreshold,
		RepeatFailure:   DefaultRepeatFailureThreshold,
		SignatureLength: DefaultSignatureLength,
		Keywords:        append([]string(nil), DefaultKeywords...),
	}
}

// Validate rejects thresholds that cannot describe a meaningful detector.
func (t Thresholds) Validate() error {
	if t.ErrorRate <= 0 {
		return utils.InvalidArgument("detector", fmt.Sprintf("error rate threshold must be positive, got %d", t.ErrorRate))
	}
	if t.RepeatFailure <= 0 {
		return utils.InvalidArgument("detector", fmt.Sprintf("repeat failure threshold must be positive, got %d", t.RepeatFailure))
	}
	if t.SignatureLength <= 0 {
		return utils.InvalidArgument("detector", fmt.Sprintf("signature length must be positive, got %d", t.SignatureLength))
	}
	for _, kw := range t.Keywords {
		if strings.TrimSpace(kw) == "" {
			return utils.InvalidArgument("detector", "keywords must not be blank")
		}
	}
	return nil
}

// Rule is a single heuristic over a window of records.
type Rule interface {
	Name() string
	Detect(records []models.LogRecord) []models.AnomalyEvent
}

// Detector runs the spike, keyword and repeated-failure rules in that order
// and deduplicates their union by trace id.
type Detector struct {
	rules  []Rule
	logger *slog.Logger
}

// New constructs a Detector. Invalid thresholds are a programmer error.
func New(thresholds Thresholds, logger *slog.Logger) (*Detector, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		rules: []Rule{
			NewErrorSpikeRule(thresholds.ErrorRate, thresholds.RepeatFailure),
			NewKeywordRule(thresholds.Keywords),
			NewRepeatedFailureRule(thresholds.RepeatFailure, thresholds.SignatureLength),
		},
		logger: logger,
	}, nil
}

// Rules returns the rule names in run order.
func (d *Detector) Rules() []string {
	names := make([]string, len(d.rules))
	for i, r := range d.rules {
		names[i] = r.Name()
	}
	return names
}

// Detect returns at most one AnomalyEvent per trace id, in first-seen order.
func (d *Detector) Detect(records []models.LogRecord) []models.AnomalyEvent {
	if len(records) == 0 {
		return nil
	}

	var union []models.AnomalyEvent
	for _, rule := range d.rules {
		found := rule.Detect(records)
		if len(found) > 0 {
			d.logger.Debug("detector rule fired", slog.String("rule", rule.Name()), slog.Int("events", len(found)))
		}
		union = append(union, found...)
	}

	return Dedup(union)
}

// Dedup keeps the first event seen for each trace id.
func Dedup(events []models.AnomalyEvent) []models.AnomalyEvent {
	seen := make(map[string]struct{}, len(events))
	unique := make([]models.AnomalyEvent, 0, len(events))
	for _, ev := range events {
		if _, ok := seen[ev.TraceID]; ok {
			continue
		}
		seen[ev.TraceID] = struct{}{}
		unique = append(unique, ev)
	}
	return unique
}
