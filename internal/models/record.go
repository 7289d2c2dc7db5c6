package models

import (
	"fmt"
	"strings"
	"time"
)

// Level enumerates the log levels understood by the detectors.
type Level string

const (
	LevelError Level = "ERROR"
	LevelWarn  Level = "WARN"
	LevelInfo  Level = "INFO"
)

// ParseLevel maps a store value onto a Level. Unknown values are rejected.
func ParseLevel(value string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "ERROR":
		return LevelError, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "INFO":
		return LevelInfo, nil
	default:
		return "", fmt.Errorf("unknown log level %q", value)
	}
}

// LogRecord is a single service log line sourced from the record store.
type LogRecord struct {
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	TraceID   string    `json:"trace_id,omitempty"`
}

// NewLogRecord validates raw store fields and builds a LogRecord.
func NewLogRecord(ts time.Time, service, level, message, traceID string) (LogRecord, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return LogRecord{}, err
	}
	if strings.TrimSpace(service) == "" {
		service = "unknown"
	}
	return LogRecord{
		Timestamp: ts,
		Service:   service,
		Level:     lvl,
		Message:   message,
		TraceID:   strings.TrimSpace(traceID),
	}, nil
}

// RecordQuery narrows a record lookup. Empty fields are not applied.
type RecordQuery struct {
	TraceID string
	Level   Level
	Text    string
	Since   time.Time
	Limit   int
}

// HistoricalIncident is read-only reference data about a past incident.
type HistoricalIncident struct {
	IncidentID  string `json:"incident_id"`
	Description string `json:"description"`
	RootCause   string `json:"root_cause"`
	Resolution  string `json:"resolution"`
	Severity    string `json:"severity"`
}

// CorrelationRow is one row of an aggregation result keyed by column name.
type CorrelationRow map[string]any

// StoreStats summarises record store volumes for dashboards.
type StoreStats struct {
	ErrorRecords        int64 `json:"active_incidents"`
	TotalRecords        int64 `json:"anomaly_flux"`
	HistoricalIncidents int64 `json:"historical_incidents"`
}
