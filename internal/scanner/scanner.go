package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-triage/internal/detector"
	"github.com/miradorstack/mirador-triage/internal/events"
	"github.com/miradorstack/mirador-triage/internal/metrics"
	"github.com/miradorstack/mirador-triage/internal/models"
	"github.com/miradorstack/mirador-triage/internal/utils"
)

const (
	// MessageNoRecords is reported when the window is empty or unavailable.
	MessageNoRecords = "No recent logs to analyze"
	// MessageNoAnomalies is reported when the detector finds nothing.
	MessageNoAnomalies = "No anomalies detected"
)

// ErrScanInProgress is returned when a trigger arrives while a scan runs.
var ErrScanInProgress = errors.New("scan already in progress")

// WindowStore supplies the records of one scan window.
type WindowStore interface {
	FetchWindow(ctx context.Context, window time.Duration, max int) ([]models.LogRecord, error)
}

// Analyzer turns one anomaly into a gated decision.
type Analyzer interface {
	Analyze(ctx context.Context, anomaly models.AnomalyEvent) (models.Analysis, error)
}

// AuditRecorder persists decisions for operator review.
type AuditRecorder interface {
	AppendAudit(ctx context.Context, entry models.AuditEntry) (string, error)
}

// Notifier announces audited decisions.
type Notifier interface {
	PublishDecision(event events.DecisionEvent) error
}

// Config holds the scan window parameters.
type Config struct {
	Window     time.Duration
	MaxRecords int
}

// DefaultConfig scans the last 24 hours, 100 records at most.
func DefaultConfig() Config {
	return Config{Window: 24 * time.Hour, MaxRecords: 100}
}

// Scanner owns the scan lifecycle: fetch a window, detect anomalies and
// analyse each one in detector order. At most one scan runs at a time.
type Scanner struct {
	mu    sync.Mutex
	state models.ScannerState

	store    WindowStore
	detector *detector.Detector
	analyzer Analyzer
	audit    AuditRecorder
	notifier Notifier
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// New constructs an idle Scanner. audit and notifier may be nil.
func New(logger *slog.Logger, store WindowStore, det *detector.Detector, analyzer Analyzer, audit AuditRecorder, notifier Notifier, cfg Config) (*Scanner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		return nil, utils.InvalidArgument("new scanner", "window store is required")
	}
	if analyzer == nil {
		return nil, utils.InvalidArgument("new scanner", "analyzer is required")
	}
	if det == nil {
		d, err := detector.New(detector.DefaultThresholds(), logger)
		if err != nil {
			return nil, err
		}
		det = d
	}
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = def.MaxRecords
	}
	return &Scanner{
		state:    models.ScannerState{Status: models.ScannerIdle},
		store:    store,
		detector: det,
		analyzer: analyzer,
		audit:    audit,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

// Status returns a consistent snapshot of the scanner state.
func (s *Scanner) Status() models.ScannerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.state
	if s.state.LastScanTime != nil {
		ts := *s.state.LastScanTime
		snapshot.LastScanTime = &ts
	}
	snapshot.ScanResults = append([]models.AnomalyResult(nil), s.state.ScanResults...)
	snapshot.RecentDetections = len(s.state.ScanResults)
	return snapshot
}

// Scan runs one scan. A trigger while another scan is in flight returns
// ErrScanInProgress. Scan-level failures move the scanner to the error
// state and are returned alongside a report carrying the error text.
func (s *Scanner) Scan(ctx context.Context) (report models.ScanReport, err error) {
	started := s.now()
	report = models.ScanReport{
		ScanID:    s.newID(),
		Anomalies: []models.AnomalyEvent{},
		StartedAt: started.UTC(),
	}

	if !s.begin() {
		report.Error = ErrScanInProgress.Error()
		report.FinishedAt = s.now().UTC()
		metrics.ObserveScan(0, metrics.OutcomeRejected)
		return report, ErrScanInProgress
	}

	logger := s.logger.With(slog.String("scan_id", report.ScanID))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan panicked: %v", r)
			logger.Error("scan panicked", slog.Any("panic", r))
			s.fail(err)
			report.Error = err.Error()
		}
		report.FinishedAt = s.now().UTC()
		metrics.ObserveScan(report.FinishedAt.Sub(started), scanOutcome(report, err))
	}()

	records, err := s.store.FetchWindow(ctx, s.cfg.Window, s.cfg.MaxRecords)
	if err != nil {
		if utils.IsInvalidArgument(err) {
			s.fail(err)
			report.Error = err.Error()
			return report, err
		}
		logger.Warn("scan window unavailable", slog.Any("error", err))
		records = nil
		err = nil
	}
	report.LogsScanned = len(records)
	if len(records) == 0 {
		s.finish(nil)
		report.Message = MessageNoRecords
		logger.Info("scan found no records")
		return report, nil
	}

	anomalies := s.detector.Detect(records)
	report.Anomalies = anomalies
	report.AnomaliesDetected = len(anomalies)
	for _, anomaly := range anomalies {
		metrics.ObserveAnomaly(string(anomaly.Kind))
	}
	if len(anomalies) == 0 {
		s.finish(nil)
		report.Message = MessageNoAnomalies
		logger.Info("scan found no anomalies", slog.Int("records", len(records)))
		return report, nil
	}

	s.setStatus(models.ScannerAnalyzing)
	results := make([]models.AnomalyResult, 0, len(anomalies))
	for _, anomaly := range anomalies {
		result := s.analyzeOne(ctx, logger, report.ScanID, anomaly)
		if result.Error != "" {
			report.AnalysesFailed++
		} else {
			report.AnalysesCompleted++
		}
		results = append(results, result)
	}
	report.Results = results
	s.finish(results)

	logger.Info("scan complete",
		slog.Int("records", len(records)),
		slog.Int("anomalies", len(anomalies)),
		slog.Int("completed", report.AnalysesCompleted),
		slog.Int("failed", report.AnalysesFailed),
	)
	return report, nil
}

func (s *Scanner) analyzeOne(ctx context.Context, logger *slog.Logger, scanID string, anomaly models.AnomalyEvent) (result models.AnomalyResult) {
	result = models.AnomalyResult{Anomaly: anomaly}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("anomaly analysis panicked",
				slog.String("trace_id", anomaly.TraceID),
				slog.Any("panic", r),
			)
			result.Analysis = nil
			result.Error = fmt.Sprintf("analysis panicked: %v", r)
		}
	}()

	analysis, err := s.analyzer.Analyze(ctx, anomaly)
	if err != nil {
		logger.Warn("anomaly analysis failed",
			slog.String("trace_id", anomaly.TraceID),
			slog.String("kind", string(anomaly.Kind)),
			slog.Any("error", err),
		)
		result.Error = err.Error()
		return result
	}
	result.Analysis = &analysis
	metrics.ObserveDecision(string(analysis.Plan.Action), string(analysis.Execution.Status))

	if s.audit != nil {
		id, err := s.audit.AppendAudit(ctx, auditEntry(anomaly, analysis, s.now()))
		if err != nil {
			metrics.ObserveAuditFailure()
			logger.Warn("audit append failed", slog.String("trace_id", anomaly.TraceID), slog.Any("error", err))
			result.AuditError = err.Error()
		} else {
			result.AuditID = id
		}
	}

	if s.notifier != nil {
		if err := s.notifier.PublishDecision(events.NewDecisionEvent(scanID, result.AuditID, &anomaly, analysis)); err != nil {
			logger.Warn("decision publish failed", slog.String("trace_id", anomaly.TraceID), slog.Any("error", err))
		}
	}
	return result
}

func auditEntry(anomaly models.AnomalyEvent, analysis models.Analysis, now time.Time) models.AuditEntry {
	status := models.AuditApproved
	if analysis.Execution.ApprovalRequired {
		status = models.AuditPending
	}
	return models.AuditEntry{
		Timestamp:   now.UTC(),
		TraceID:     analysis.IncidentID,
		ActionType:  string(analysis.Plan.Action),
		Description: anomaly.Summary,
		Confidence:  analysis.Plan.Confidence,
		Status:      status,
		Metadata: map[string]any{
			"service":            anomaly.Service,
			"kind":               string(anomaly.Kind),
			"reasoning":          analysis.Plan.Reasoning,
			"steps":              analysis.Plan.Steps,
			"execution_status":   string(analysis.Execution.Status),
			"correlations_count": len(analysis.Correlations),
			"historical_matches": len(analysis.HistoricalContext),
		},
	}
}

// Run scans every interval until ctx is done. Ticks that land while a scan
// is in flight are skipped.
func (s *Scanner) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("background scanning started", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("background scanning stopped")
			return
		case <-ticker.C:
			if _, err := s.Scan(ctx); err != nil {
				if errors.Is(err, ErrScanInProgress) {
					s.logger.Debug("skipping tick, scan in progress")
					continue
				}
				s.logger.Error("background scan failed", slog.Any("error", err))
			}
		}
	}
}

func (s *Scanner) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsScanning {
		return false
	}
	s.state.Status = models.ScannerScanning
	s.state.IsScanning = true
	s.state.LastError = ""
	return true
}

func (s *Scanner) setStatus(status models.ScannerStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Status = status
}

// finish returns to idle. Nil results keep the previous scan's results.
func (s *Scanner) finish(results []models.AnomalyResult) {
	ts := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Status = models.ScannerIdle
	s.state.IsScanning = false
	s.state.LastScanTime = &ts
	if results != nil {
		s.state.ScanResults = results
	}
}

func (s *Scanner) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Status = models.ScannerError
	s.state.IsScanning = false
	s.state.LastError = err.Error()
}

func scanOutcome(report models.ScanReport, err error) string {
	switch {
	case err != nil:
		return metrics.OutcomeError
	case report.Message != "":
		return metrics.OutcomeEmpty
	default:
		return metrics.OutcomeSuccess
	}
}
