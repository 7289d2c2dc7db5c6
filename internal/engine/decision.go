package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/miradorstack/mirador-triage/internal/models"
	"github.com/miradorstack/mirador-triage/internal/utils"
)

// ApprovalThreshold is the minimum confidence for unattended execution.
const ApprovalThreshold = 0.8

// PlanGenerator produces raw plan text for an incident context.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, ic models.IncidentContext) (string, error)
}

// DecisionEngine turns an incident context into a validated PlanProposal.
type DecisionEngine struct {
	generator PlanGenerator
	rules     *RuleEngine
	logger    *slog.Logger
}

// NewDecisionEngine constructs a decision engine. A nil generator means no
// generator is configured.
func NewDecisionEngine(logger *slog.Logger, generator PlanGenerator, rules *RuleEngine) *DecisionEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &DecisionEngine{generator: generator, rules: rules, logger: logger}
}

// Propose asks the generator for a plan and validates it. Malformed output
// becomes an ERROR_GENERATING_PLAN proposal; errors from the generator call
// itself are returned.
func (d *DecisionEngine) Propose(ctx context.Context, ic models.IncidentContext) (models.PlanProposal, error) {
	if d.generator == nil {
		return models.PlanProposal{
			Action:     models.ActionManualInvestigation,
			Confidence: 0.0,
			Reasoning:  "generator not configured",
			Steps:      d.rules.Steps(ic),
		}, nil
	}

	text, err := d.generator.GeneratePlan(ctx, ic)
	if err != nil {
		return models.PlanProposal{}, fmt.Errorf("generate plan: %w", err)
	}

	proposal, err := ParsePlan(text)
	if err != nil {
		d.logger.Warn("generator returned malformed plan", slog.String("key", ic.Key), slog.Any("error", err))
		return models.PlanProposal{
			Action:     models.ActionErrorGeneratingPlan,
			Confidence: 0.0,
			Reasoning:  err.Error(),
			Steps:      d.rules.Steps(ic),
		}, nil
	}
	return proposal, nil
}

type rawPlan struct {
	Action     string   `json:"action"`
	Confidence *float64 `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Steps      []string `json:"steps"`
}

// ParsePlan strips markdown code fences from text and validates it as a plan.
func ParsePlan(text string) (models.PlanProposal, error) {
	body := StripCodeFences(text)
	if body == "" {
		return models.PlanProposal{}, fmt.Errorf("empty plan")
	}

	var raw rawPlan
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return models.PlanProposal{}, fmt.Errorf("parse plan: %w", err)
	}

	action, err := models.ParseProposedAction(raw.Action)
	if err != nil {
		return models.PlanProposal{}, err
	}
	if raw.Confidence == nil {
		return models.PlanProposal{}, fmt.Errorf("plan missing confidence")
	}
	confidence := *raw.Confidence
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return models.PlanProposal{}, fmt.Errorf("confidence %v outside [0,1]", confidence)
	}

	steps := make([]string, 0, len(raw.Steps))
	for _, step := range raw.Steps {
		if s := strings.TrimSpace(step); s != "" {
			steps = append(steps, s)
		}
	}

	return models.PlanProposal{
		Action:     action,
		Confidence: confidence,
		Reasoning:  strings.TrimSpace(raw.Reasoning),
		Steps:      steps,
	}, nil
}

// StripCodeFences returns the body of the first ``` or ```json fenced
// block in text, or the trimmed text when it holds no fence.
func StripCodeFences(text string) string {
	body := strings.TrimSpace(text)
	if strings.HasPrefix(body, "{") {
		return body
	}
	start := strings.Index(body, "```")
	if start < 0 {
		return body
	}
	inner := body[start+3:]
	if idx := strings.Index(inner, "\n"); idx >= 0 {
		inner = inner[idx+1:]
	}
	if end := strings.Index(inner, "```"); end >= 0 {
		inner = inner[:end]
	}
	return strings.TrimSpace(inner)
}

// Gate decides whether a proposal may execute unattended. It is pure over
// the proposal's action and confidence; now stamps executed outcomes.
func Gate(p models.PlanProposal, now time.Time) (models.ExecutionOutcome, error) {
	var approval bool
	switch p.Action {
	case models.ActionRollback, models.ActionRestartService:
		approval = true
	case models.ActionScaleUp, models.ActionCreateTicket, models.ActionManualInvestigation, models.ActionErrorGeneratingPlan:
		approval = p.Confidence < ApprovalThreshold
	default:
		return models.ExecutionOutcome{}, utils.InvalidArgument("gate", fmt.Sprintf("unknown plan action %q", p.Action))
	}

	if approval {
		return models.ExecutionOutcome{
			Status:           models.ExecutionPendingApproval,
			Message:          fmt.Sprintf("Action '%s' requires human approval (confidence: %.2f)", p.Action, p.Confidence),
			ApprovalRequired: true,
		}, nil
	}
	ts := now.UTC()
	return models.ExecutionOutcome{
		Status:           models.ExecutionExecuted,
		Message:          fmt.Sprintf("Action '%s' executed successfully.", p.Action),
		ApprovalRequired: false,
		Timestamp:        &ts,
	}, nil
}
