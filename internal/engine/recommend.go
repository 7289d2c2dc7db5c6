package engine

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-triage/internal/models"
)

// RuleEngine supplies remediation steps for proposals synthesised locally
// when the generator is missing or returns unusable output.
type RuleEngine struct {
	rules  []Rule
	logger *slog.Logger
}

// Rule represents a single remediation rule.
type Rule struct {
	ID    string    `yaml:"id"`
	Match RuleMatch `yaml:"match"`
	Steps []string  `yaml:"steps"`
}

// RuleMatch defines optional attributes for rule matching. Empty attributes
// match everything.
type RuleMatch struct {
	Kind            string   `yaml:"kind"`
	Service         string   `yaml:"service"`
	MessageContains []string `yaml:"message_contains"`
}

// RuleConfigFile is the YAML root structure.
type RuleConfigFile struct {
	Rules []Rule `yaml:"rules"`
}

// NewRuleEngine loads rules from the provided path. If path is empty or the
// file does not exist, returns a nil engine that only yields default steps.
func NewRuleEngine(path string, logger *slog.Logger) (*RuleEngine, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cfg RuleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("loaded remediation rules", slog.Int("rules", len(cfg.Rules)), slog.String("path", path))
	return &RuleEngine{rules: cfg.Rules, logger: logger}, nil
}

// Steps returns the steps of every matching rule, de-duplicated, or the
// default steps for the anomaly kind when nothing matches.
func (e *RuleEngine) Steps(ic models.IncidentContext) []string {
	var kind models.AnomalyKind
	service := ""
	if ic.Anomaly != nil {
		kind = ic.Anomaly.Kind
		service = ic.Anomaly.Service
	}
	if service == "" && len(ic.Records) > 0 {
		service = ic.Records[0].Service
	}

	matched := make([]string, 0)
	if e != nil {
		for _, rule := range e.rules {
			if rule.Match.Kind != "" && !strings.EqualFold(rule.Match.Kind, string(kind)) {
				continue
			}
			if rule.Match.Service != "" && !strings.EqualFold(rule.Match.Service, service) {
				continue
			}
			if len(rule.Match.MessageContains) > 0 && !messagesContain(rule.Match.MessageContains, ic) {
				continue
			}
			matched = appendUnique(matched, rule.Steps...)
		}
	}
	if len(matched) == 0 {
		return DefaultSteps(kind)
	}
	return matched
}

// DefaultSteps are the fallback steps per anomaly kind.
func DefaultSteps(kind models.AnomalyKind) []string {
	switch kind {
	case models.AnomalyErrorSpike:
		return []string{"Check recent deployments of the affected service", "Review error logs around the spike", "Escalate to the owning team"}
	case models.AnomalyCriticalKeyword:
		return []string{"Inspect resource usage and crash reports", "Verify downstream connectivity", "Escalate to the owning team"}
	case models.AnomalyRepeatedFailure:
		return []string{"Identify the failing call path", "Check dependency health", "Open a ticket for the recurring failure"}
	default:
		return []string{"Review recent logs for the incident", "Escalate to on-call engineer"}
	}
}

func messagesContain(keywords []string, ic models.IncidentContext) bool {
	messages := make([]string, 0, len(ic.Records)+4)
	for _, rec := range ic.Records {
		messages = append(messages, rec.Message)
	}
	if ic.Anomaly != nil {
		messages = append(messages, ic.Anomaly.Summary)
		for _, rec := range ic.Anomaly.SampleRecords {
			messages = append(messages, rec.Message)
		}
	}
	for _, msg := range messages {
		lower := strings.ToLower(msg)
		for _, kw := range keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[rec] = struct{}{}
	}
	for _, item := range additions {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}
