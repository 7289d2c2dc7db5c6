package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/miradorstack/mirador-triage/internal/models"
	"github.com/miradorstack/mirador-triage/internal/repo"
	"github.com/miradorstack/mirador-triage/internal/utils"
)

// RecordStore defines the record and aggregation reads used to assemble context.
type RecordStore interface {
	FetchRecords(ctx context.Context, q models.RecordQuery) ([]models.LogRecord, error)
	RunAggregation(ctx context.Context, q repo.AggregationQuery) ([]models.CorrelationRow, error)
}

// HistorySource ranks historical incidents against free text.
type HistorySource interface {
	SearchSimilar(ctx context.Context, text string, limit int) ([]models.HistoricalIncident, error)
}

// AssemblerConfig bounds what the assembler fetches per incident.
type AssemblerConfig struct {
	RecordLimit       int
	HistoryLimit      int
	CorrelationWindow time.Duration
}

// DefaultAssemblerConfig returns the standard limits.
func DefaultAssemblerConfig() AssemblerConfig {
	return AssemblerConfig{RecordLimit: 10, HistoryLimit: 3, CorrelationWindow: 24 * time.Hour}
}

// ContextAssembler gathers records, similar incidents and a service health
// summary for one anomaly or ad-hoc key. Store outages degrade the affected
// part to empty; only programmer errors are returned.
type ContextAssembler struct {
	store   RecordStore
	history HistorySource
	cfg     AssemblerConfig
	logger  *slog.Logger
}

// NewContextAssembler constructs an assembler. Zero limits take defaults.
func NewContextAssembler(logger *slog.Logger, store RecordStore, history HistorySource, cfg AssemblerConfig) *ContextAssembler {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultAssemblerConfig()
	if cfg.RecordLimit <= 0 {
		cfg.RecordLimit = def.RecordLimit
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.CorrelationWindow <= 0 {
		cfg.CorrelationWindow = def.CorrelationWindow
	}
	return &ContextAssembler{store: store, history: history, cfg: cfg, logger: logger}
}

// Assemble builds the incident context for key. anomaly may be nil.
func (a *ContextAssembler) Assemble(ctx context.Context, key string, anomaly *models.AnomalyEvent) (models.IncidentContext, error) {
	ic := models.IncidentContext{
		Key:          key,
		Anomaly:      anomaly,
		Records:      []models.LogRecord{},
		History:      []models.HistoricalIncident{},
		Correlations: []models.CorrelationRow{},
	}

	records, err := a.fetchRecords(ctx, key)
	if err != nil {
		return models.IncidentContext{}, err
	}
	ic.Records = records

	history, err := a.fetchHistory(ctx, similarityText(key, records, anomaly))
	if err != nil {
		return models.IncidentContext{}, err
	}
	ic.History = history

	correlations, err := a.fetchCorrelations(ctx)
	if err != nil {
		return models.IncidentContext{}, err
	}
	ic.Correlations = correlations

	return ic, nil
}

func (a *ContextAssembler) fetchRecords(ctx context.Context, key string) ([]models.LogRecord, error) {
	if a.store == nil {
		return []models.LogRecord{}, nil
	}

	queries := make([]models.RecordQuery, 0, 3)
	if strings.TrimSpace(key) != "" {
		queries = append(queries, models.RecordQuery{TraceID: key, Limit: a.cfg.RecordLimit})
	}
	queries = append(queries,
		models.RecordQuery{Level: models.LevelError, Limit: a.cfg.RecordLimit},
		models.RecordQuery{Limit: a.cfg.RecordLimit},
	)

	for _, q := range queries {
		records, err := a.store.FetchRecords(ctx, q)
		if err != nil {
			if utils.IsInvalidArgument(err) {
				return nil, err
			}
			a.logger.Warn("record lookup unavailable", slog.String("key", key), slog.Any("error", err))
			continue
		}
		if len(records) > 0 {
			return records, nil
		}
	}
	return []models.LogRecord{}, nil
}

func (a *ContextAssembler) fetchHistory(ctx context.Context, text string) ([]models.HistoricalIncident, error) {
	if a.history == nil {
		return []models.HistoricalIncident{}, nil
	}
	incidents, err := a.history.SearchSimilar(ctx, text, a.cfg.HistoryLimit)
	if err != nil {
		if utils.IsInvalidArgument(err) {
			return nil, err
		}
		a.logger.Warn("history lookup unavailable", slog.Any("error", err))
		return []models.HistoricalIncident{}, nil
	}
	if len(incidents) > a.cfg.HistoryLimit {
		incidents = incidents[:a.cfg.HistoryLimit]
	}
	return incidents, nil
}

func (a *ContextAssembler) fetchCorrelations(ctx context.Context) ([]models.CorrelationRow, error) {
	if a.store == nil {
		return []models.CorrelationRow{}, nil
	}
	rows, err := a.store.RunAggregation(ctx, repo.AggregationQuery{
		Tool:   "service_health",
		Params: map[string]string{"timeframe": utils.ESQLTimespan(a.cfg.CorrelationWindow)},
	})
	if err != nil {
		if utils.IsInvalidArgument(err) {
			return nil, err
		}
		a.logger.Warn("correlation lookup unavailable", slog.Any("error", err))
		return []models.CorrelationRow{}, nil
	}
	return rows, nil
}

func similarityText(key string, records []models.LogRecord, anomaly *models.AnomalyEvent) string {
	if len(records) > 0 && records[0].Message != "" {
		return records[0].Message
	}
	if anomaly != nil {
		if len(anomaly.SampleRecords) > 0 && anomaly.SampleRecords[0].Message != "" {
			return anomaly.SampleRecords[0].Message
		}
		if anomaly.Summary != "" {
			return anomaly.Summary
		}
	}
	return key
}
