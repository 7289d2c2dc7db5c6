package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/mirador-triage/internal/config"
	"github.com/miradorstack/mirador-triage/internal/models"
	"github.com/miradorstack/mirador-triage/internal/repo"
	"github.com/miradorstack/mirador-triage/internal/scanner"
	"github.com/miradorstack/mirador-triage/internal/utils"
)

// Backend is the triage facade served over HTTP.
type Backend interface {
	RunScan(ctx context.Context) (models.ScanReport, error)
	Status() models.ScannerState
	Analyze(ctx context.Context, incidentID string) (models.Analysis, error)
	ListAudit(ctx context.Context, limit int) ([]models.AuditEntry, error)
	CreateAudit(ctx context.Context, entry models.AuditEntry) (models.AuditEntry, error)
	SetAuditStatus(ctx context.Context, id, status string) (models.AuditStatus, error)
	Stats(ctx context.Context) (models.StoreStats, error)
	Incidents(ctx context.Context) ([]models.LogRecord, error)
	Tools() []repo.Tool
	ExecuteTool(ctx context.Context, tool string, params map[string]string) ([]models.CorrelationRow, error)
	ServiceHealth(ctx context.Context, timeframe string) ([]models.CorrelationRow, error)
	ErrorTrends(ctx context.Context, hours int) ([]models.CorrelationRow, error)
	Correlations(ctx context.Context, minutes int) ([]models.CorrelationRow, error)
}

// HTTPServer exposes the operator JSON API with gin.
type HTTPServer struct {
	handler *gin.Engine
	backend Backend
	logger  *slog.Logger
	cfg     config.ServerConfig
	server  *http.Server
	mu      sync.Mutex
}

// NewHTTPServer wires routes and middleware for backend.
func NewHTTPServer(cfg config.ServerConfig, backend Backend, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &HTTPServer{
		handler: gin.New(),
		backend: backend,
		logger:  logger,
		cfg:     cfg,
	}
	s.handler.Use(gin.Recovery())
	s.handler.Use(s.loggingMiddleware())
	s.handler.Use(corsMiddleware())
	s.setupRoutes()
	return s
}

// Handler returns the gin engine.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured HTTP address until Stop is invoked.
func (s *HTTPServer) Start() error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return fmt.Errorf("HTTP server is already running")
	}
	s.server = &http.Server{
		Addr:              s.cfg.HTTPAddress,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", slog.String("address", s.cfg.HTTPAddress))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	s.server = nil
	return err
}

func (s *HTTPServer) setupRoutes() {
	s.handler.GET("/healthz", s.healthHandler)
	s.handler.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.handler.GET("/agent/status", s.statusHandler)
	s.handler.GET("/audit-logs", s.listAuditHandler)
	s.handler.GET("/stats", s.statsHandler)
	s.handler.GET("/incidents", s.incidentsHandler)
	s.handler.GET("/tools", s.toolsHandler)

	esql := s.handler.Group("/esql")
	esql.GET("/tools", s.toolsHandler)
	esql.GET("/service-health", s.serviceHealthHandler)
	esql.GET("/error-trends", s.errorTrendsHandler)
	esql.GET("/correlations", s.correlationsHandler)

	mutating := s.handler.Group("/", s.authMiddleware())
	mutating.POST("/agent/scan", s.scanHandler)
	mutating.POST("/agent/analyze", s.analyzeHandler)
	mutating.POST("/audit-logs", s.createAuditHandler)
	mutating.PATCH("/audit-logs/:id", s.updateAuditHandler)
	mutating.POST("/esql/execute-tool", s.executeToolHandler)
}

func (s *HTTPServer) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *HTTPServer) scanHandler(c *gin.Context) {
	report, err := s.backend.RunScan(c.Request.Context())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, report)
	case errors.Is(err, scanner.ErrScanInProgress):
		c.JSON(http.StatusConflict, report)
	case utils.IsNotConfigured(err):
		writeError(c, http.StatusServiceUnavailable, err)
	default:
		if report.Error == "" {
			report.Error = err.Error()
		}
		c.JSON(http.StatusInternalServerError, report)
	}
}

func (s *HTTPServer) statusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.backend.Status())
}

func (s *HTTPServer) analyzeHandler(c *gin.Context) {
	id := strings.TrimSpace(c.Query("incident_id"))
	if id == "" {
		writeError(c, http.StatusBadRequest, errors.New("incident_id is required"))
		return
	}
	analysis, err := s.backend.Analyze(c.Request.Context(), id)
	if err != nil {
		s.fail(c, "analyze", err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

func (s *HTTPServer) listAuditHandler(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	entries, err := s.backend.ListAudit(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, "list audit", err)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

func (s *HTTPServer) createAuditHandler(c *gin.Context) {
	var entry models.AuditEntry
	if err := c.ShouldBindJSON(&entry); err != nil {
		writeError(c, http.StatusBadRequest, fmt.Errorf("invalid audit entry: %w", err))
		return
	}
	created, err := s.backend.CreateAudit(c.Request.Context(), entry)
	if err != nil {
		s.fail(c, "create audit", err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

type statusUpdate struct {
	Status string `json:"status"`
}

func (s *HTTPServer) updateAuditHandler(c *gin.Context) {
	var body statusUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, fmt.Errorf("invalid status update: %w", err))
		return
	}
	id := c.Param("id")
	status, err := s.backend.SetAuditStatus(c.Request.Context(), id, body.Status)
	if err != nil {
		s.fail(c, "update audit", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": status})
}

// statsHandler always answers 200 so dashboards render; failures are
// reported as zero counts plus the error text.
func (s *HTTPServer) statsHandler(c *gin.Context) {
	stats, err := s.backend.Stats(c.Request.Context())
	if err != nil {
		s.logger.Warn("stats unavailable", slog.Any("error", err))
		c.JSON(http.StatusOK, gin.H{
			"active_incidents":     0,
			"anomaly_flux":         0,
			"historical_incidents": 0,
			"error":                err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *HTTPServer) incidentsHandler(c *gin.Context) {
	records, err := s.backend.Incidents(c.Request.Context())
	if err != nil {
		s.fail(c, "incidents", err)
		return
	}
	if records == nil {
		records = []models.LogRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"total": len(records), "incidents": records})
}

func (s *HTTPServer) toolsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": s.backend.Tools()})
}

type toolRequest struct {
	ToolID string         `json:"tool_id"`
	Params map[string]any `json:"params"`
}

func (s *HTTPServer) executeToolHandler(c *gin.Context) {
	var body toolRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, fmt.Errorf("invalid tool request: %w", err))
		return
	}
	params := make(map[string]string, len(body.Params))
	for name, raw := range body.Params {
		value, err := paramString(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, fmt.Errorf("parameter %s: %w", name, err))
			return
		}
		params[name] = value
	}
	rows, err := s.backend.ExecuteTool(c.Request.Context(), body.ToolID, params)
	if err != nil {
		s.fail(c, "execute tool", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tool_id": body.ToolID, "count": len(rows), "results": nonNilRows(rows)})
}

func (s *HTTPServer) serviceHealthHandler(c *gin.Context) {
	rows, err := s.backend.ServiceHealth(c.Request.Context(), c.Query("timeframe"))
	if err != nil {
		s.fail(c, "service health", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"services": nonNilRows(rows)})
}

func (s *HTTPServer) errorTrendsHandler(c *gin.Context) {
	hours, ok := intQuery(c, "hours")
	if !ok {
		return
	}
	rows, err := s.backend.ErrorTrends(c.Request.Context(), hours)
	if err != nil {
		s.fail(c, "error trends", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trends": nonNilRows(rows)})
}

func (s *HTTPServer) correlationsHandler(c *gin.Context) {
	minutes, ok := intQuery(c, "timeframe_minutes")
	if !ok {
		return
	}
	rows, err := s.backend.Correlations(c.Request.Context(), minutes)
	if err != nil {
		s.fail(c, "correlations", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"correlations": nonNilRows(rows)})
}

// intQuery reads an optional integer query parameter; absent yields 0.
func intQuery(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(c, http.StatusBadRequest, fmt.Errorf("invalid %s %q", name, raw))
		return 0, false
	}
	return n, true
}

func paramString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("unsupported value %v", raw)
	}
}

func nonNilRows(rows []models.CorrelationRow) []models.CorrelationRow {
	if rows == nil {
		return []models.CorrelationRow{}
	}
	return rows
}

func (s *HTTPServer) fail(c *gin.Context, op string, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("op", op), slog.Any("error", err))
	}
	writeError(c, code, err)
}

func statusCode(err error) int {
	switch {
	case utils.IsInvalidArgument(err):
		return http.StatusBadRequest
	case errors.Is(err, repo.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scanner.ErrScanInProgress):
		return http.StatusConflict
	case utils.IsNotConfigured(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, code int, err error) {
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

// authMiddleware requires "Authorization: Bearer <apiKey>" when an API key
// is configured.
func (s *HTTPServer) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.APIKey == "" {
			c.Next()
			return
		}
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.APIKey)) != 1 {
			writeError(c, http.StatusUnauthorized, errors.New("missing or invalid API key"))
			return
		}
		c.Next()
	}
}

func (s *HTTPServer) loggingMiddleware() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		s.logger.Debug("HTTP request",
			slog.String("method", param.Method),
			slog.String("path", param.Path),
			slog.Int("status", param.StatusCode),
			slog.Duration("latency", param.Latency),
			slog.String("client_ip", param.ClientIP),
		)
		return ""
	})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
