package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-triage/internal/config"
	"github.com/miradorstack/mirador-triage/internal/models"
	"github.com/miradorstack/mirador-triage/internal/repo"
	"github.com/miradorstack/mirador-triage/internal/scanner"
	"github.com/miradorstack/mirador-triage/internal/utils"
)

type fakeBackend struct {
	scanErr    error
	analyzeErr error
	statsErr   error
	updateErr  error
	audits     []models.AuditEntry
	created    []models.AuditEntry
	updates    map[string]string
	listLimit  int
	toolCalls  []repo.AggregationQuery
	trendHours int
	corrMins   int
}

func (f *fakeBackend) RunScan(context.Context) (models.ScanReport, error) {
	report := models.ScanReport{ScanID: "scan-1", Anomalies: []models.AnomalyEvent{}}
	if f.scanErr != nil {
		report.Error = f.scanErr.Error()
		return report, f.scanErr
	}
	report.Message = scanner.MessageNoRecords
	return report, nil
}

func (f *fakeBackend) Status() models.ScannerState {
	return models.ScannerState{Status: models.ScannerIdle}
}

func (f *fakeBackend) Analyze(_ context.Context, id string) (models.Analysis, error) {
	if f.analyzeErr != nil {
		return models.Analysis{}, f.analyzeErr
	}
	return models.Analysis{IncidentID: id}, nil
}

func (f *fakeBackend) ListAudit(_ context.Context, limit int) ([]models.AuditEntry, error) {
	f.listLimit = limit
	return f.audits, nil
}

func (f *fakeBackend) CreateAudit(_ context.Context, entry models.AuditEntry) (models.AuditEntry, error) {
	if entry.ActionType == "" {
		return models.AuditEntry{}, utils.InvalidArgument("create audit", "action_type is required")
	}
	entry.ID = "audit-1"
	f.created = append(f.created, entry)
	return entry, nil
}

func (f *fakeBackend) SetAuditStatus(_ context.Context, id, status string) (models.AuditStatus, error) {
	if f.updateErr != nil {
		return "", f.updateErr
	}
	parsed, err := models.ParseAuditStatus(status)
	if err != nil {
		return "", utils.InvalidArgument("update audit", err.Error())
	}
	if f.updates == nil {
		f.updates = map[string]string{}
	}
	f.updates[id] = status
	return parsed, nil
}

func (f *fakeBackend) Stats(context.Context) (models.StoreStats, error) {
	if f.statsErr != nil {
		return models.StoreStats{}, f.statsErr
	}
	return models.StoreStats{ErrorRecords: 4, TotalRecords: 40, HistoricalIncidents: 2}, nil
}

func (f *fakeBackend) Incidents(context.Context) ([]models.LogRecord, error) {
	r, _ := models.NewLogRecord(time.Now(), "api", "ERROR", "boom", "t-1")
	return []models.LogRecord{r}, nil
}

func (f *fakeBackend) Tools() []repo.Tool {
	return repo.ToolList()
}

func (f *fakeBackend) ExecuteTool(_ context.Context, tool string, params map[string]string) ([]models.CorrelationRow, error) {
	q := repo.AggregationQuery{Tool: tool, Params: params}
	if _, err := repo.RenderTool("logs", q); err != nil {
		return nil, err
	}
	f.toolCalls = append(f.toolCalls, q)
	return []models.CorrelationRow{{"service": "checkout", "error_count": 2}}, nil
}

func (f *fakeBackend) ServiceHealth(_ context.Context, timeframe string) ([]models.CorrelationRow, error) {
	return []models.CorrelationRow{{"service": "checkout", "error_rate": 12.5, "timeframe": timeframe}}, nil
}

func (f *fakeBackend) ErrorTrends(_ context.Context, hours int) ([]models.CorrelationRow, error) {
	f.trendHours = hours
	return nil, nil
}

func (f *fakeBackend) Correlations(_ context.Context, minutes int) ([]models.CorrelationRow, error) {
	f.corrMins = minutes
	return []models.CorrelationRow{{"trace_id": "t-1", "distinct_services": 3}}, nil
}

func newTestHTTPServer(backend Backend, apiKey string) *HTTPServer {
	s := NewHTTPServer(config.ServerConfig{APIKey: apiKey}, backend, nil)
	gin.SetMode(gin.TestMode)
	return s
}

func serve(s *HTTPServer, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	s := newTestHTTPServer(&fakeBackend{}, "")
	w := serve(s, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "time")
}

func TestScanEndpoint(t *testing.T) {
	s := newTestHTTPServer(&fakeBackend{}, "")
	w := serve(s, http.MethodPost, "/agent/scan", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var report models.ScanReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, scanner.MessageNoRecords, report.Message)
}

func TestScanEndpointInProgress(t *testing.T) {
	s := newTestHTTPServer(&fakeBackend{scanErr: scanner.ErrScanInProgress}, "")
	w := serve(s, http.MethodPost, "/agent/scan", "", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), scanner.ErrScanInProgress.Error())
}

func TestScanEndpointFailure(t *testing.T) {
	s := newTestHTTPServer(&fakeBackend{scanErr: utils.InvalidArgument("fetch window", "max must be positive")}, "")
	w := serve(s, http.MethodPost, "/agent/scan", "", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "max must be positive")
}

func TestAnalyzeEndpoint(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestHTTPServer(backend, "")

	w := serve(s, http.MethodPost, "/agent/analyze?incident_id=trace-7", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"incident_id":"trace-7"`)

	w = serve(s, http.MethodPost, "/agent/analyze", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	backend.analyzeErr = fmt.Errorf("generate plan: %w", errors.New("upstream 500"))
	w = serve(s, http.MethodPost, "/agent/analyze?incident_id=trace-7", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "upstream 500")
}

func TestAuditEndpoints(t *testing.T) {
	backend := &fakeBackend{audits: []models.AuditEntry{{ID: "a-1", ActionType: "ROLLBACK", Status: models.AuditPending}}}
	s := newTestHTTPServer(backend, "")

	w := serve(s, http.MethodGet, "/audit-logs?limit=5", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, backend.listLimit)
	var entries []models.AuditEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)

	w = serve(s, http.MethodGet, "/audit-logs?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(s, http.MethodPost, "/audit-logs", `{"action_type":"SCALE_UP","confidence":0.6}`, nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, backend.created, 1)

	w = serve(s, http.MethodPost, "/audit-logs", `{"confidence":0.6}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(s, http.MethodPatch, "/audit-logs/a-1", `{"status":"Approved"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Approved", backend.updates["a-1"])
	assert.JSONEq(t, `{"id":"a-1","status":"approved"}`, w.Body.String())

	backend.updateErr = fmt.Errorf("update audit: %w", repo.ErrNotFound)
	w = serve(s, http.MethodPatch, "/audit-logs/missing", `{"status":"approved"}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatsUnavailableStillAnswers(t *testing.T) {
	s := newTestHTTPServer(&fakeBackend{statsErr: utils.NotConfigured("elasticsearch", "endpoint")}, "")
	w := serve(s, http.MethodGet, "/stats", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 0, body["active_incidents"])
	assert.Contains(t, body["error"], "not configured")
}

func TestIncidentsAndTools(t *testing.T) {
	s := newTestHTTPServer(&fakeBackend{}, "")

	w := serve(s, http.MethodGet, "/incidents", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var incidents struct {
		Total     int                `json:"total"`
		Incidents []models.LogRecord `json:"incidents"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &incidents))
	assert.Equal(t, 1, incidents.Total)

	w = serve(s, http.MethodGet, "/tools", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "service_health")
	assert.NotContains(t, w.Body.String(), "FROM ")
}

func TestExecuteToolEndpoint(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestHTTPServer(backend, "secret")
	auth := map[string]string{"Authorization": "Bearer secret"}

	w := serve(s, http.MethodPost, "/esql/execute-tool", `{"tool_id":"trace_request","params":{"trace_id":"t-1"}}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(s, http.MethodPost, "/esql/execute-tool", `{"tool_id":"search_logs","params":{"filter_clause":"level == \"ERROR\"","limit":25}}`, auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		ToolID  string                  `json:"tool_id"`
		Count   int                     `json:"count"`
		Results []models.CorrelationRow `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "search_logs", body.ToolID)
	assert.Equal(t, 1, body.Count)
	require.Len(t, backend.toolCalls, 1)
	assert.Equal(t, `level == "ERROR"`, backend.toolCalls[0].Params["filter_clause"])
	assert.Equal(t, "25", backend.toolCalls[0].Params["limit"])

	w = serve(s, http.MethodPost, "/esql/execute-tool", `{"tool_id":"drop_index","params":{}}`, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(s, http.MethodPost, "/esql/execute-tool", `{"tool_id":"trace_request","params":{"trace_id":{"nested":true}}}`, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestESQLDashboardEndpoints(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestHTTPServer(backend, "secret")

	w := serve(s, http.MethodGet, "/esql/service-health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"services":[`)

	w = serve(s, http.MethodGet, "/esql/error-trends?hours=24", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 24, backend.trendHours)
	assert.JSONEq(t, `{"trends":[]}`, w.Body.String())

	w = serve(s, http.MethodGet, "/esql/error-trends?hours=soon", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(s, http.MethodGet, "/esql/correlations?timeframe_minutes=30", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 30, backend.corrMins)
	assert.Contains(t, w.Body.String(), `"correlations":[`)

	w = serve(s, http.MethodGet, "/esql/tools", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "service_correlation")
}

func TestAPIKeyGuardsMutatingRoutes(t *testing.T) {
	s := newTestHTTPServer(&fakeBackend{}, "secret")

	w := serve(s, http.MethodPost, "/agent/scan", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(s, http.MethodPost, "/agent/scan", "", map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(s, http.MethodPost, "/agent/scan", "", map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(s, http.MethodGet, "/agent/status", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatusCodeMapping(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusCode(utils.NotConfigured("svc", "store")))
	assert.Equal(t, http.StatusConflict, statusCode(scanner.ErrScanInProgress))
	assert.Equal(t, http.StatusInternalServerError, statusCode(errors.New("boom")))
}
