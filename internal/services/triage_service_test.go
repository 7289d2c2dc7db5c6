package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-triage/internal/models"
	"github.com/miradorstack/mirador-triage/internal/repo"
	"github.com/miradorstack/mirador-triage/internal/scanner"
	"github.com/miradorstack/mirador-triage/internal/utils"
)

type storeStub struct {
	entries   []models.AuditEntry
	updated   map[string]models.AuditStatus
	updateErr error
	lastLimit int
	queries   []repo.AggregationQuery
}

func (s *storeStub) FetchRecords(context.Context, models.RecordQuery) ([]models.LogRecord, error) {
	r, _ := models.NewLogRecord(time.Now(), "api", "ERROR", "boom", "t-1")
	return []models.LogRecord{r}, nil
}

func (s *storeStub) AppendAudit(_ context.Context, entry models.AuditEntry) (string, error) {
	s.entries = append(s.entries, entry)
	return fmt.Sprintf("audit-%d", len(s.entries)), nil
}

func (s *storeStub) UpdateAuditStatus(_ context.Context, id string, st models.AuditStatus) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	if s.updated == nil {
		s.updated = map[string]models.AuditStatus{}
	}
	s.updated[id] = st
	return nil
}

func (s *storeStub) ListAudit(_ context.Context, limit int) ([]models.AuditEntry, error) {
	s.lastLimit = limit
	return s.entries, nil
}

func (s *storeStub) Stats(context.Context) (models.StoreStats, error) {
	return models.StoreStats{ErrorRecords: 2, TotalRecords: 10, HistoricalIncidents: 1}, nil
}

func (s *storeStub) RunAggregation(_ context.Context, q repo.AggregationQuery) ([]models.CorrelationRow, error) {
	if _, err := repo.RenderTool("logs", q); err != nil {
		return nil, err
	}
	s.queries = append(s.queries, q)
	return []models.CorrelationRow{{"service": "checkout", "errors": 3}}, nil
}

type analyzerStub struct{}

func (analyzerStub) AnalyzeKey(_ context.Context, key string) (models.Analysis, error) {
	if key == "" {
		return models.Analysis{}, utils.InvalidArgument("analyze", "key is required")
	}
	return models.Analysis{IncidentID: key, Plan: models.PlanProposal{Action: models.ActionManualInvestigation}}, nil
}

type emptyWindow struct{}

func (emptyWindow) FetchWindow(context.Context, time.Duration, int) ([]models.LogRecord, error) {
	return nil, nil
}

type scanAnalyzerStub struct{}

func (scanAnalyzerStub) Analyze(context.Context, models.AnomalyEvent) (models.Analysis, error) {
	return models.Analysis{}, errors.New("unused")
}

func newService(t *testing.T, store Store) *TriageService {
	t.Helper()
	sc, err := scanner.New(nil, emptyWindow{}, nil, scanAnalyzerStub{}, nil, nil, scanner.Config{})
	if err != nil {
		t.Fatalf("new scanner: %v", err)
	}
	return NewTriageService(nil, sc, analyzerStub{}, store)
}

func TestScanEmptyWindow(t *testing.T) {
	svc := newService(t, &storeStub{})
	resp, err := svc.Scan(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := resp.GetFields()["message"].GetStringValue(); got != scanner.MessageNoRecords {
		t.Fatalf("unexpected message %q", got)
	}
	state, err := svc.GetStatus(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if state.GetFields()["status"].GetStringValue() != string(models.ScannerIdle) {
		t.Fatalf("unexpected state %v", state.AsMap())
	}
}

func TestScanWithoutScanner(t *testing.T) {
	svc := NewTriageService(nil, nil, nil, nil)
	_, err := svc.Scan(context.Background(), &emptypb.Empty{})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected failed precondition, got %v", err)
	}
	if svc.Status().Status != models.ScannerIdle {
		t.Fatalf("expected idle status without scanner")
	}
}

func TestAnalyzeIncident(t *testing.T) {
	svc := newService(t, &storeStub{})
	req, _ := structpb.NewStruct(map[string]any{"incident_id": "trace-9"})
	resp, err := svc.AnalyzeIncident(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.GetFields()["incident_id"].GetStringValue() != "trace-9" {
		t.Fatalf("unexpected response %v", resp.AsMap())
	}

	empty, _ := structpb.NewStruct(map[string]any{})
	if _, err := svc.AnalyzeIncident(context.Background(), empty); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestListAuditClampsLimit(t *testing.T) {
	store := &storeStub{}
	svc := newService(t, store)

	if _, err := svc.ListAudit(context.Background(), 0); err != nil {
		t.Fatalf("list: %v", err)
	}
	if store.lastLimit != DefaultAuditLimit {
		t.Fatalf("expected default limit, got %d", store.lastLimit)
	}
	req, _ := structpb.NewStruct(map[string]any{"limit": 10000})
	if _, err := svc.ListAuditLogs(context.Background(), req); err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if store.lastLimit != MaxAuditLimit {
		t.Fatalf("expected max limit, got %d", store.lastLimit)
	}
}

func TestCreateAuditValidates(t *testing.T) {
	store := &storeStub{}
	svc := newService(t, store)

	if _, err := svc.CreateAudit(context.Background(), models.AuditEntry{}); !utils.IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument for missing action type, got %v", err)
	}
	if _, err := svc.CreateAudit(context.Background(), models.AuditEntry{ActionType: "ROLLBACK", Confidence: 1.5}); !utils.IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument for confidence, got %v", err)
	}

	entry, err := svc.CreateAudit(context.Background(), models.AuditEntry{ActionType: "ROLLBACK", Confidence: 0.7})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if entry.ID != "audit-1" || entry.Status != models.AuditPending || entry.Timestamp.IsZero() {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestUpdateAuditStatus(t *testing.T) {
	store := &storeStub{}
	svc := newService(t, store)

	req, _ := structpb.NewStruct(map[string]any{"id": "a-1", "status": " Approved "})
	resp, err := svc.UpdateAuditStatus(context.Background(), req)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := resp.GetFields()["status"].GetStringValue(); got != string(models.AuditApproved) {
		t.Fatalf("expected normalized status in response, got %q", got)
	}
	if store.updated["a-1"] != models.AuditApproved {
		t.Fatalf("expected approved, got %v", store.updated)
	}

	bad, _ := structpb.NewStruct(map[string]any{"id": "a-1", "status": "done"})
	if _, err := svc.UpdateAuditStatus(context.Background(), bad); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}

	store.updateErr = fmt.Errorf("update: %w", repo.ErrNotFound)
	if _, err := svc.UpdateAuditStatus(context.Background(), req); status.Code(err) != codes.NotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestExecuteTool(t *testing.T) {
	store := &storeStub{}
	svc := newService(t, store)

	rows, err := svc.ExecuteTool(context.Background(), "trace_request", map[string]string{"trace_id": "t-1"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(rows) != 1 || rows[0]["service"] != "checkout" {
		t.Fatalf("unexpected rows %v", rows)
	}
	if _, err := svc.ExecuteTool(context.Background(), " ", nil); !utils.IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument for missing tool, got %v", err)
	}
	if _, err := svc.ExecuteTool(context.Background(), "trace_request", nil); !utils.IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument for missing params, got %v", err)
	}
	if _, err := NewTriageService(nil, nil, nil, nil).ExecuteTool(context.Background(), "trace_request", nil); !utils.IsNotConfigured(err) {
		t.Fatalf("expected not configured, got %v", err)
	}
}

func TestDashboardAggregations(t *testing.T) {
	store := &storeStub{}
	svc := newService(t, store)
	ctx := context.Background()

	if _, err := svc.ServiceHealth(ctx, ""); err != nil {
		t.Fatalf("service health: %v", err)
	}
	if _, err := svc.ErrorTrends(ctx, 1000); err != nil {
		t.Fatalf("error trends: %v", err)
	}
	if _, err := svc.Correlations(ctx, 0); err != nil {
		t.Fatalf("correlations: %v", err)
	}
	if len(store.queries) != 3 {
		t.Fatalf("expected three aggregations, got %d", len(store.queries))
	}
	if q := store.queries[0]; q.Tool != "service_health" || q.Params["timeframe"] != DefaultHealthTimeframe {
		t.Fatalf("unexpected health query %+v", q)
	}
	if q := store.queries[1]; q.Tool != "error_timeline" || q.Params["hours"] != "1" || q.Params["limit"] != "168" {
		t.Fatalf("unexpected trend query %+v", q)
	}
	if q := store.queries[2]; q.Tool != "service_correlation" || q.Params["timeframe"] != "60 minutes" {
		t.Fatalf("unexpected correlation query %+v", q)
	}
}

func TestToStatusMapsScanInProgress(t *testing.T) {
	if code := status.Code(toStatus(scanner.ErrScanInProgress, "scan failed")); code != codes.Aborted {
		t.Fatalf("expected aborted, got %v", code)
	}
	if code := status.Code(toStatus(errors.New("boom"), "scan failed")); code != codes.Internal {
		t.Fatalf("expected internal, got %v", code)
	}
}
