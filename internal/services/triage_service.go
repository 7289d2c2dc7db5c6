package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/miradorstack/mirador-triage/internal/models"
	"github.com/miradorstack/mirador-triage/internal/repo"
	"github.com/miradorstack/mirador-triage/internal/scanner"
	"github.com/miradorstack/mirador-triage/internal/utils"
)

const (
	// DefaultAuditLimit bounds audit listings when no limit is given.
	DefaultAuditLimit = 50
	// MaxAuditLimit caps audit listings.
	MaxAuditLimit = 500
	// IncidentListLimit is the number of recent records listed as incidents.
	IncidentListLimit = 20

	// DefaultHealthTimeframe is the service health lookback.
	DefaultHealthTimeframe = "24 hours"
	// DefaultTrendHours is the number of hourly error buckets returned.
	DefaultTrendHours = 24
	// MaxTrendHours caps error trend requests at one week.
	MaxTrendHours = 168
	// DefaultCorrelationMinutes is the cascading failure lookback.
	DefaultCorrelationMinutes = 60
)

// Store defines the record store operations exposed to operators.
type Store interface {
	FetchRecords(ctx context.Context, q models.RecordQuery) ([]models.LogRecord, error)
	AppendAudit(ctx context.Context, entry models.AuditEntry) (string, error)
	UpdateAuditStatus(ctx context.Context, id string, status models.AuditStatus) error
	ListAudit(ctx context.Context, limit int) ([]models.AuditEntry, error)
	Stats(ctx context.Context) (models.StoreStats, error)
	RunAggregation(ctx context.Context, q repo.AggregationQuery) ([]models.CorrelationRow, error)
}

// Analyzer runs the analysis pipeline for an ad-hoc key.
type Analyzer interface {
	AnalyzeKey(ctx context.Context, key string) (models.Analysis, error)
}

// TriageService is the transport-independent facade behind the gRPC and
// HTTP surfaces.
type TriageService struct {
	logger    *slog.Logger
	scanner   *scanner.Scanner
	analyzer  Analyzer
	store     Store
	latencies *utils.LatencyTracker
}

// NewTriageService constructs the triage service facade.
func NewTriageService(logger *slog.Logger, sc *scanner.Scanner, analyzer Analyzer, store Store) *TriageService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TriageService{
		logger:    logger,
		scanner:   sc,
		analyzer:  analyzer,
		store:     store,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// RunScan triggers one scan.
func (s *TriageService) RunScan(ctx context.Context) (models.ScanReport, error) {
	if s.scanner == nil {
		return models.ScanReport{}, utils.NotConfigured("triage service", "scanner")
	}
	start := time.Now()
	report, err := s.scanner.Scan(ctx)
	if err == nil {
		s.latencies.Observe(time.Since(start))
		if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
			s.logger.Info("scan latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
		}
	}
	return report, err
}

// Status returns the scanner snapshot.
func (s *TriageService) Status() models.ScannerState {
	if s.scanner == nil {
		return models.ScannerState{Status: models.ScannerIdle}
	}
	return s.scanner.Status()
}

// Analyze runs the pipeline for an ad-hoc incident id.
func (s *TriageService) Analyze(ctx context.Context, incidentID string) (models.Analysis, error) {
	if s.analyzer == nil {
		return models.Analysis{}, utils.NotConfigured("triage service", "analyzer")
	}
	s.logger.Debug("Analyze called", slog.String("incident_id", incidentID))
	return s.analyzer.AnalyzeKey(ctx, incidentID)
}

// ListAudit returns recent audit entries. limit <= 0 uses DefaultAuditLimit.
func (s *TriageService) ListAudit(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if s.store == nil {
		return nil, utils.NotConfigured("triage service", "store")
	}
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	if limit > MaxAuditLimit {
		limit = MaxAuditLimit
	}
	return s.store.ListAudit(ctx, limit)
}

// CreateAudit records an operator-submitted audit entry.
func (s *TriageService) CreateAudit(ctx context.Context, entry models.AuditEntry) (models.AuditEntry, error) {
	if s.store == nil {
		return models.AuditEntry{}, utils.NotConfigured("triage service", "store")
	}
	if strings.TrimSpace(entry.ActionType) == "" {
		return models.AuditEntry{}, utils.InvalidArgument("create audit", "action_type is required")
	}
	if entry.Confidence < 0 || entry.Confidence > 1 {
		return models.AuditEntry{}, utils.InvalidArgument("create audit", "confidence must be within [0,1]")
	}
	if entry.Status == "" {
		entry.Status = models.AuditPending
	}
	status, err := models.ParseAuditStatus(string(entry.Status))
	if err != nil {
		return models.AuditEntry{}, utils.InvalidArgument("create audit", err.Error())
	}
	entry.Status = status
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	id, err := s.store.AppendAudit(ctx, entry)
	if err != nil {
		return models.AuditEntry{}, err
	}
	entry.ID = id
	return entry, nil
}

// SetAuditStatus applies an operator review decision and returns the
// normalized status.
func (s *TriageService) SetAuditStatus(ctx context.Context, id, status string) (models.AuditStatus, error) {
	if s.store == nil {
		return "", utils.NotConfigured("triage service", "store")
	}
	parsed, err := models.ParseAuditStatus(status)
	if err != nil {
		return "", utils.InvalidArgument("update audit", err.Error())
	}
	if err := s.store.UpdateAuditStatus(ctx, id, parsed); err != nil {
		return "", err
	}
	s.logger.Info("audit status updated", slog.String("id", id), slog.String("status", string(parsed)))
	return parsed, nil
}

// Stats returns record store counts.
func (s *TriageService) Stats(ctx context.Context) (models.StoreStats, error) {
	if s.store == nil {
		return models.StoreStats{}, utils.NotConfigured("triage service", "store")
	}
	return s.store.Stats(ctx)
}

// Incidents lists the most recent records of any level.
func (s *TriageService) Incidents(ctx context.Context) ([]models.LogRecord, error) {
	if s.store == nil {
		return nil, utils.NotConfigured("triage service", "store")
	}
	return s.store.FetchRecords(ctx, models.RecordQuery{Limit: IncidentListLimit})
}

// Tools lists the aggregation catalogue.
func (s *TriageService) Tools() []repo.Tool {
	return repo.ToolList()
}

// ExecuteTool runs a catalogue aggregation on behalf of an operator.
func (s *TriageService) ExecuteTool(ctx context.Context, tool string, params map[string]string) ([]models.CorrelationRow, error) {
	if s.store == nil {
		return nil, utils.NotConfigured("triage service", "store")
	}
	tool = strings.TrimSpace(tool)
	if tool == "" {
		return nil, utils.InvalidArgument("execute tool", "tool_id is required")
	}
	if params == nil {
		params = map[string]string{}
	}
	rows, err := s.store.RunAggregation(ctx, repo.AggregationQuery{Tool: tool, Params: params})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("tool executed", slog.String("tool", tool), slog.Int("rows", len(rows)))
	return rows, nil
}

// ServiceHealth returns per-service error rates over timeframe, an ES|QL
// time span such as "24 hours". Empty uses DefaultHealthTimeframe.
func (s *TriageService) ServiceHealth(ctx context.Context, timeframe string) ([]models.CorrelationRow, error) {
	if strings.TrimSpace(timeframe) == "" {
		timeframe = DefaultHealthTimeframe
	}
	return s.ExecuteTool(ctx, "service_health", map[string]string{"timeframe": timeframe})
}

// ErrorTrends returns hourly error counts for the last hours buckets.
func (s *TriageService) ErrorTrends(ctx context.Context, hours int) ([]models.CorrelationRow, error) {
	if hours <= 0 {
		hours = DefaultTrendHours
	}
	if hours > MaxTrendHours {
		hours = MaxTrendHours
	}
	return s.ExecuteTool(ctx, "error_timeline", map[string]string{"hours": "1", "limit": strconv.Itoa(hours)})
}

// Correlations returns traces whose errors span several services within the
// last minutes.
func (s *TriageService) Correlations(ctx context.Context, minutes int) ([]models.CorrelationRow, error) {
	if minutes <= 0 {
		minutes = DefaultCorrelationMinutes
	}
	return s.ExecuteTool(ctx, "service_correlation", map[string]string{"timeframe": fmt.Sprintf("%d minutes", minutes)})
}

// ScanLatencyP95 returns the current p95 scan latency.
func (s *TriageService) ScanLatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}
