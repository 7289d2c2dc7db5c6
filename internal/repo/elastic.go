package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/miradorstack/mirador-triage/internal/cache"
	"github.com/miradorstack/mirador-triage/internal/models"
	"github.com/miradorstack/mirador-triage/internal/utils"
)

// ErrNotFound is returned when an addressed document does not exist.
var ErrNotFound = errors.New("not found")

// StatusError carries a non-2xx response from the store.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("elasticsearch returned %d", e.Code)
	}
	return fmt.Sprintf("elasticsearch returned %d: %s", e.Code, e.Body)
}

func isStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// ElasticConfig addresses an Elasticsearch deployment and its indices.
type ElasticConfig struct {
	Endpoint       string
	APIKey         string
	LogsIndex      string
	IncidentsIndex string
	AuditIndex     string
	Timeout        time.Duration
}

// ElasticStore reads log records, historical incidents and aggregations from
// Elasticsearch and appends audit entries to it.
type ElasticStore struct {
	cfg            ElasticConfig
	httpClient     *http.Client
	cache          cache.Provider
	historyTTL     time.Duration
	aggregationTTL time.Duration
	logger         *slog.Logger
}

// NewElasticStore constructs a store client. A nil cache disables caching.
func NewElasticStore(cfg ElasticConfig, cacheProvider cache.Provider, historyTTL, aggregationTTL time.Duration, logger *slog.Logger) *ElasticStore {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.LogsIndex == "" {
		cfg.LogsIndex = "greenstick-logs"
	}
	if cfg.IncidentsIndex == "" {
		cfg.IncidentsIndex = "greenstick-incidents"
	}
	if cfg.AuditIndex == "" {
		cfg.AuditIndex = "greenstick-audit"
	}
	if historyTTL < 0 {
		historyTTL = 0
	}
	if aggregationTTL < 0 {
		aggregationTTL = 0
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &ElasticStore{
		cfg:            cfg,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		cache:          cacheProvider,
		historyTTL:     historyTTL,
		aggregationTTL: aggregationTTL,
		logger:         logger,
	}
}

// LogsIndex exposes the index aggregations run against.
func (s *ElasticStore) LogsIndex() string { return s.cfg.LogsIndex }

type searchHit struct {
	ID     string          `json:"_id"`
	Source json.RawMessage `json:"_source"`
}

type searchResponse struct {
	Hits struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

type logSource struct {
	Timestamp string `json:"@timestamp"`
	Service   string `json:"service"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	TraceID   string `json:"trace_id"`
}

// FetchWindow returns up to max records newer than now-window, most recent first.
func (s *ElasticStore) FetchWindow(ctx context.Context, window time.Duration, max int) ([]models.LogRecord, error) {
	if window <= 0 {
		return nil, utils.InvalidArgument("fetch window", "window must be positive")
	}
	if max <= 0 {
		return nil, utils.InvalidArgument("fetch window", "max records must be positive")
	}
	minutes := int(window / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	query := map[string]any{
		"bool": map[string]any{
			"filter": []any{
				map[string]any{"range": map[string]any{"@timestamp": map[string]any{"gte": fmt.Sprintf("now-%dm", minutes)}}},
			},
		},
	}
	return s.searchRecords(ctx, query, max)
}

// FetchRecords runs a narrowed record lookup, most recent first.
func (s *ElasticStore) FetchRecords(ctx context.Context, q models.RecordQuery) ([]models.LogRecord, error) {
	if q.Limit <= 0 {
		return nil, utils.InvalidArgument("fetch records", "limit must be positive")
	}

	filters := make([]any, 0, 4)
	if q.TraceID != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"trace_id": q.TraceID}})
	}
	if q.Level != "" {
		if _, err := models.ParseLevel(string(q.Level)); err != nil {
			return nil, utils.InvalidArgument("fetch records", err.Error())
		}
		filters = append(filters, map[string]any{"term": map[string]any{"level": string(q.Level)}})
	}
	if !q.Since.IsZero() {
		filters = append(filters, map[string]any{"range": map[string]any{"@timestamp": map[string]any{"gte": q.Since.UTC().Format(time.RFC3339)}}})
	}

	boolQuery := map[string]any{"filter": filters}
	if q.Text != "" {
		boolQuery["must"] = []any{map[string]any{"match": map[string]any{"message": q.Text}}}
	}
	return s.searchRecords(ctx, map[string]any{"bool": boolQuery}, q.Limit)
}

func (s *ElasticStore) searchRecords(ctx context.Context, query map[string]any, size int) ([]models.LogRecord, error) {
	payload := map[string]any{
		"size":  size,
		"sort":  []any{map[string]any{"@timestamp": map[string]any{"order": "desc"}}},
		"query": query,
	}

	var response searchResponse
	if err := s.do(ctx, http.MethodPost, s.cfg.LogsIndex+"/_search", payload, &response); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return []models.LogRecord{}, nil
		}
		return nil, fmt.Errorf("search logs: %w", err)
	}

	records := make([]models.LogRecord, 0, len(response.Hits.Hits))
	for _, hit := range response.Hits.Hits {
		var src logSource
		if err := json.Unmarshal(hit.Source, &src); err != nil {
			s.logger.Debug("skipping undecodable log record", slog.String("id", hit.ID), slog.Any("error", err))
			continue
		}
		ts, err := utils.ParseTimestamp(src.Timestamp)
		if err != nil {
			s.logger.Debug("skipping log record with bad timestamp", slog.String("id", hit.ID), slog.String("timestamp", src.Timestamp))
			continue
		}
		record, err := models.NewLogRecord(ts, src.Service, src.Level, src.Message, src.TraceID)
		if err != nil {
			s.logger.Debug("skipping log record", slog.String("id", hit.ID), slog.Any("error", err))
			continue
		}
		record.ID = hit.ID
		records = append(records, record)
	}
	return records, nil
}

// SearchSimilar ranks historical incidents against text. Blank text returns
// the most relevant incidents without a text constraint.
func (s *ElasticStore) SearchSimilar(ctx context.Context, text string, limit int) ([]models.HistoricalIncident, error) {
	if limit <= 0 {
		return nil, utils.InvalidArgument("search similar", "limit must be positive")
	}

	cacheKey := ""
	if s.historyTTL > 0 {
		cacheKey = fmt.Sprintf("elastic:similar:%s:%d:%s", s.cfg.IncidentsIndex, limit, text)
		var cached []models.HistoricalIncident
		if cache.GetJSON(ctx, s.cache, cacheKey, &cached) {
			return cached, nil
		}
	}

	query := map[string]any{"match_all": map[string]any{}}
	if strings.TrimSpace(text) != "" {
		query = map[string]any{
			"multi_match": map[string]any{
				"query":  text,
				"fields": []string{"description", "root_cause"},
			},
		}
	}
	payload := map[string]any{"size": limit, "query": query}

	var response searchResponse
	if err := s.do(ctx, http.MethodPost, s.cfg.IncidentsIndex+"/_search", payload, &response); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return []models.HistoricalIncident{}, nil
		}
		return nil, fmt.Errorf("search incidents: %w", err)
	}

	incidents := make([]models.HistoricalIncident, 0, len(response.Hits.Hits))
	for _, hit := range response.Hits.Hits {
		var incident models.HistoricalIncident
		if err := json.Unmarshal(hit.Source, &incident); err != nil {
			s.logger.Debug("skipping undecodable incident", slog.String("id", hit.ID), slog.Any("error", err))
			continue
		}
		if incident.IncidentID == "" {
			incident.IncidentID = hit.ID
		}
		incidents = append(incidents, incident)
	}

	if cacheKey != "" && len(incidents) > 0 {
		cache.SetJSON(ctx, s.cache, cacheKey, incidents, s.historyTTL)
	}
	return incidents, nil
}

// RunAggregation renders a catalogue tool and executes it through ES|QL.
func (s *ElasticStore) RunAggregation(ctx context.Context, q AggregationQuery) ([]models.CorrelationRow, error) {
	query, err := RenderTool(s.cfg.LogsIndex, q)
	if err != nil {
		return nil, err
	}

	cacheKey := ""
	if s.aggregationTTL > 0 {
		cacheKey = "elastic:esql:" + query
		var cached []models.CorrelationRow
		if cache.GetJSON(ctx, s.cache, cacheKey, &cached) {
			return cached, nil
		}
	}

	var response struct {
		Columns []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"columns"`
		Values [][]any `json:"values"`
	}
	if err := s.do(ctx, http.MethodPost, "_query", map[string]any{"query": query}, &response); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return []models.CorrelationRow{}, nil
		}
		return nil, fmt.Errorf("run %s: %w", q.Tool, err)
	}

	rows := make([]models.CorrelationRow, 0, len(response.Values))
	for _, values := range response.Values {
		row := make(models.CorrelationRow, len(response.Columns))
		for i, col := range response.Columns {
			if i < len(values) {
				row[col.Name] = values[i]
			}
		}
		rows = append(rows, row)
	}

	if cacheKey != "" && len(rows) > 0 {
		cache.SetJSON(ctx, s.cache, cacheKey, rows, s.aggregationTTL)
	}
	return rows, nil
}

type auditSource struct {
	Timestamp   string         `json:"@timestamp"`
	TraceID     string         `json:"trace_id"`
	ActionType  string         `json:"action_type"`
	Description string         `json:"description"`
	Confidence  float64        `json:"confidence"`
	Status      string         `json:"status"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// AppendAudit stores entry and returns the id the store assigned.
func (s *ElasticStore) AppendAudit(ctx context.Context, entry models.AuditEntry) (string, error) {
	if entry.Status == "" {
		entry.Status = models.AuditPending
	}
	if _, err := models.ParseAuditStatus(string(entry.Status)); err != nil {
		return "", utils.InvalidArgument("append audit", err.Error())
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	doc := auditSource{
		Timestamp:   entry.Timestamp.UTC().Format(time.RFC3339Nano),
		TraceID:     entry.TraceID,
		ActionType:  entry.ActionType,
		Description: entry.Description,
		Confidence:  entry.Confidence,
		Status:      string(entry.Status),
		Metadata:    entry.Metadata,
	}

	var response struct {
		ID string `json:"_id"`
	}
	if err := s.do(ctx, http.MethodPost, s.cfg.AuditIndex+"/_doc?refresh=wait_for", doc, &response); err != nil {
		return "", fmt.Errorf("append audit: %w", err)
	}
	return response.ID, nil
}

// UpdateAuditStatus moves an audit entry to status.
func (s *ElasticStore) UpdateAuditStatus(ctx context.Context, id string, status models.AuditStatus) error {
	if strings.TrimSpace(id) == "" {
		return utils.InvalidArgument("update audit", "id is required")
	}
	if _, err := models.ParseAuditStatus(string(status)); err != nil {
		return utils.InvalidArgument("update audit", err.Error())
	}

	endpoint := s.cfg.AuditIndex + "/_update/" + url.PathEscape(id) + "?refresh=wait_for"
	payload := map[string]any{"doc": map[string]any{"status": string(status)}}
	if err := s.do(ctx, http.MethodPost, endpoint, payload, nil); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return fmt.Errorf("audit entry %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("update audit: %w", err)
	}
	return nil
}

// ListAudit returns the most recent audit entries first.
func (s *ElasticStore) ListAudit(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		return nil, utils.InvalidArgument("list audit", "limit must be positive")
	}
	payload := map[string]any{
		"size":  limit,
		"sort":  []any{map[string]any{"@timestamp": map[string]any{"order": "desc"}}},
		"query": map[string]any{"match_all": map[string]any{}},
	}

	var response searchResponse
	if err := s.do(ctx, http.MethodPost, s.cfg.AuditIndex+"/_search", payload, &response); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return []models.AuditEntry{}, nil
		}
		return nil, fmt.Errorf("list audit: %w", err)
	}

	entries := make([]models.AuditEntry, 0, len(response.Hits.Hits))
	for _, hit := range response.Hits.Hits {
		var src auditSource
		if err := json.Unmarshal(hit.Source, &src); err != nil {
			s.logger.Debug("skipping undecodable audit entry", slog.String("id", hit.ID), slog.Any("error", err))
			continue
		}
		ts, _ := utils.ParseTimestamp(src.Timestamp)
		status, err := models.ParseAuditStatus(src.Status)
		if err != nil {
			status = models.AuditPending
		}
		entries = append(entries, models.AuditEntry{
			ID:          hit.ID,
			Timestamp:   ts,
			TraceID:     src.TraceID,
			ActionType:  src.ActionType,
			Description: src.Description,
			Confidence:  src.Confidence,
			Status:      status,
			Metadata:    src.Metadata,
		})
	}
	return entries, nil
}

// Stats counts error records, all records and historical incidents.
func (s *ElasticStore) Stats(ctx context.Context) (models.StoreStats, error) {
	errorsCount, err := s.count(ctx, s.cfg.LogsIndex, map[string]any{"term": map[string]any{"level": string(models.LevelError)}})
	if err != nil {
		return models.StoreStats{}, err
	}
	total, err := s.count(ctx, s.cfg.LogsIndex, nil)
	if err != nil {
		return models.StoreStats{}, err
	}
	incidents, err := s.count(ctx, s.cfg.IncidentsIndex, nil)
	if err != nil {
		return models.StoreStats{}, err
	}
	return models.StoreStats{ErrorRecords: errorsCount, TotalRecords: total, HistoricalIncidents: incidents}, nil
}

func (s *ElasticStore) count(ctx context.Context, index string, query map[string]any) (int64, error) {
	var payload any
	if query != nil {
		payload = map[string]any{"query": query}
	}
	var response struct {
		Count int64 `json:"count"`
	}
	if err := s.do(ctx, http.MethodPost, index+"/_count", payload, &response); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("count %s: %w", index, err)
	}
	return response.Count, nil
}

func (s *ElasticStore) resolvePath(p string) string {
	if s.cfg.Endpoint == "" {
		return ""
	}
	query := ""
	if idx := strings.Index(p, "?"); idx >= 0 {
		p, query = p[:idx], p[idx:]
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(s.cfg.Endpoint)
	if err != nil {
		return s.cfg.Endpoint + cleaned + query
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String() + query
}

func (s *ElasticStore) do(ctx context.Context, method, p string, payload any, out any) error {
	endpoint := s.resolvePath(p)
	if endpoint == "" {
		return utils.NotConfigured("elasticsearch", "endpoint")
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "ApiKey "+s.cfg.APIKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
