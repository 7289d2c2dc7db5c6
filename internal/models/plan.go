package models

import (
	"fmt"
	"strings"
	"time"
)

// PlanAction is the closed set of remediation actions a plan may propose.
type PlanAction string

const (
	ActionRollback            PlanAction = "ROLLBACK"
	ActionScaleUp             PlanAction = "SCALE_UP"
	ActionRestartService      PlanAction = "RESTART_SERVICE"
	ActionCreateTicket        PlanAction = "CREATE_TICKET"
	ActionManualInvestigation PlanAction = "MANUAL_INVESTIGATION"
	ActionErrorGeneratingPlan PlanAction = "ERROR_GENERATING_PLAN"
)

// ParseProposedAction accepts the actions a generator is allowed to propose.
// ERROR_GENERATING_PLAN is reserved for locally synthesised proposals.
func ParseProposedAction(value string) (PlanAction, error) {
	switch action := PlanAction(strings.ToUpper(strings.TrimSpace(value))); action {
	case ActionRollback, ActionScaleUp, ActionRestartService, ActionCreateTicket, ActionManualInvestigation:
		return action, nil
	default:
		return "", fmt.Errorf("unknown plan action %q", value)
	}
}

// PlanProposal is the canonical, validated output of the plan generator.
type PlanProposal struct {
	Action     PlanAction `json:"action"`
	Confidence float64    `json:"confidence"`
	Reasoning  string     `json:"reasoning"`
	Steps      []string   `json:"steps"`
}

// ExecutionStatus is the gate verdict.
type ExecutionStatus string

const (
	ExecutionPendingApproval ExecutionStatus = "PENDING_APPROVAL"
	ExecutionExecuted        ExecutionStatus = "EXECUTED"
)

// ExecutionOutcome is derived deterministically from a PlanProposal.
type ExecutionOutcome struct {
	Status           ExecutionStatus `json:"status"`
	Message          string          `json:"message"`
	ApprovalRequired bool            `json:"approval_required"`
	Timestamp        *time.Time      `json:"timestamp,omitempty"`
}

// Analysis is the full decision record for one anomaly or ad-hoc key.
type Analysis struct {
	IncidentID        string               `json:"incident_id"`
	DetectedAnomalies []LogRecord          `json:"detected_anomalies"`
	HistoricalContext []HistoricalIncident `json:"historical_context"`
	Correlations      []CorrelationRow     `json:"correlations"`
	Plan              PlanProposal         `json:"plan"`
	Execution         ExecutionOutcome     `json:"execution"`
}
