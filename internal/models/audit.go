package models

import (
	"fmt"
	"strings"
	"time"
)

// AuditStatus tracks operator review of a recorded decision.
type AuditStatus string

const (
	AuditPending  AuditStatus = "pending"
	AuditApproved AuditStatus = "approved"
	AuditRejected AuditStatus = "rejected"
)

// ParseAuditStatus rejects anything outside pending/approved/rejected.
func ParseAuditStatus(value string) (AuditStatus, error) {
	switch status := AuditStatus(strings.ToLower(strings.TrimSpace(value))); status {
	case AuditPending, AuditApproved, AuditRejected:
		return status, nil
	default:
		return "", fmt.Errorf("invalid audit status %q", value)
	}
}

// AuditEntry is a persisted record of a decision and its review status.
type AuditEntry struct {
	ID          string         `json:"id,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	TraceID     string         `json:"trace_id"`
	ActionType  string         `json:"action_type"`
	Description string         `json:"description"`
	Confidence  float64        `json:"confidence"`
	Status      AuditStatus    `json:"status"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
