package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/miradorstack/mirador-triage/internal/models"
)

// DefaultDecisionSubject is where decision events are published.
const DefaultDecisionSubject = "triage.decisions"

// DecisionEvent announces a gated decision once it has been audited.
type DecisionEvent struct {
	ScanID           string                 `json:"scan_id,omitempty"`
	AuditID          string                 `json:"audit_id,omitempty"`
	TraceID          string                 `json:"trace_id"`
	Service          string                 `json:"service,omitempty"`
	Kind             models.AnomalyKind     `json:"kind,omitempty"`
	Action           models.PlanAction      `json:"action"`
	Confidence       float64                `json:"confidence"`
	Status           models.ExecutionStatus `json:"status"`
	ApprovalRequired bool                   `json:"approval_required"`
	Timestamp        int64                  `json:"timestamp"`
}

// NewDecisionEvent builds the event for an analysed anomaly.
func NewDecisionEvent(scanID, auditID string, anomaly *models.AnomalyEvent, analysis models.Analysis) DecisionEvent {
	event := DecisionEvent{
		ScanID:           scanID,
		AuditID:          auditID,
		TraceID:          analysis.IncidentID,
		Action:           analysis.Plan.Action,
		Confidence:       analysis.Plan.Confidence,
		Status:           analysis.Execution.Status,
		ApprovalRequired: analysis.Execution.ApprovalRequired,
		Timestamp:        time.Now().Unix(),
	}
	if anomaly != nil {
		event.Service = anomaly.Service
		event.Kind = anomaly.Kind
	}
	return event
}

type conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// Publisher sends decision events to NATS.
type Publisher struct {
	conn    conn
	subject string
	logger  *slog.Logger
}

// NewPublisher connects to natsURL. An empty subject uses DefaultDecisionSubject.
func NewPublisher(natsURL, subject string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(natsURL,
		nats.Name("mirador-triage"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	logger.Info("connected to NATS", slog.String("url", natsURL))
	return newPublisher(nc, subject, logger), nil
}

func newPublisher(c conn, subject string, logger *slog.Logger) *Publisher {
	if subject == "" {
		subject = DefaultDecisionSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: c, subject: subject, logger: logger}
}

// PublishDecision marshals and publishes event.
func (p *Publisher) PublishDecision(event DecisionEvent) error {
	if p == nil || p.conn == nil {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal decision event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}
	p.logger.Debug("published decision",
		slog.String("subject", p.subject),
		slog.String("trace_id", event.TraceID),
		slog.String("action", string(event.Action)),
	)
	return nil
}

// Close closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
	p.conn = nil
	p.logger.Info("disconnected from NATS")
}
