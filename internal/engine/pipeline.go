package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/miradorstack/mirador-triage/internal/models"
	"github.com/miradorstack/mirador-triage/internal/utils"
)

// Pipeline runs assembly, plan decision and gating for one incident.
type Pipeline struct {
	logger    *slog.Logger
	assembler *ContextAssembler
	decisions *DecisionEngine
	now       func() time.Time
}

// NewPipeline constructs a new analysis pipeline.
func NewPipeline(logger *slog.Logger, assembler *ContextAssembler, decisions *DecisionEngine) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if assembler == nil {
		assembler = NewContextAssembler(logger, nil, nil, DefaultAssemblerConfig())
	}
	if decisions == nil {
		decisions = NewDecisionEngine(logger, nil, nil)
	}
	return &Pipeline{
		logger:    logger,
		assembler: assembler,
		decisions: decisions,
		now:       time.Now,
	}
}

// Analyze produces the decision record for a detected anomaly.
func (p *Pipeline) Analyze(ctx context.Context, anomaly models.AnomalyEvent) (models.Analysis, error) {
	return p.run(ctx, anomaly.TraceID, &anomaly)
}

// AnalyzeKey produces a decision record for an ad-hoc trace id.
func (p *Pipeline) AnalyzeKey(ctx context.Context, key string) (models.Analysis, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return models.Analysis{}, utils.InvalidArgument("analyze", "incident id is required")
	}
	return p.run(ctx, key, nil)
}

func (p *Pipeline) run(ctx context.Context, key string, anomaly *models.AnomalyEvent) (models.Analysis, error) {
	ic, err := p.assembler.Assemble(ctx, key, anomaly)
	if err != nil {
		return models.Analysis{}, fmt.Errorf("assemble context: %w", err)
	}

	proposal, err := p.decisions.Propose(ctx, ic)
	if err != nil {
		return models.Analysis{}, err
	}

	outcome, err := Gate(proposal, p.now())
	if err != nil {
		return models.Analysis{}, err
	}

	p.logger.Info("incident analysed",
		slog.String("key", key),
		slog.String("action", string(proposal.Action)),
		slog.Float64("confidence", proposal.Confidence),
		slog.String("status", string(outcome.Status)),
		slog.Int("records", len(ic.Records)),
		slog.Int("history", len(ic.History)),
	)

	return models.Analysis{
		IncidentID:        key,
		DetectedAnomalies: ic.Records,
		HistoricalContext: ic.History,
		Correlations:      ic.Correlations,
		Plan:              proposal,
		Execution:         outcome,
	}, nil
}
