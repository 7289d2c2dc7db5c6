package models

import "time"

// ScannerStatus is the coarse lifecycle state of a Scanner.
type ScannerStatus string

const (
	ScannerIdle      ScannerStatus = "idle"
	ScannerScanning  ScannerStatus = "scanning"
	ScannerAnalyzing ScannerStatus = "analyzing"
	ScannerError     ScannerStatus = "error"
)

// ScannerState is a consistent snapshot of scanner run state.
type ScannerState struct {
	Status           ScannerStatus   `json:"status"`
	IsScanning       bool            `json:"is_scanning"`
	LastScanTime     *time.Time      `json:"last_scan_time"`
	LastError        string          `json:"last_error,omitempty"`
	RecentDetections int             `json:"recent_detections"`
	ScanResults      []AnomalyResult `json:"-"`
}

// AnomalyResult pairs an anomaly with either its analysis or its failure.
type AnomalyResult struct {
	Anomaly    AnomalyEvent `json:"anomaly"`
	Analysis   *Analysis    `json:"analysis,omitempty"`
	AuditID    string       `json:"audit_id,omitempty"`
	AuditError string       `json:"audit_error,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// ScanReport is returned by every scan trigger, including failed ones.
type ScanReport struct {
	ScanID            string          `json:"scan_id"`
	Message           string          `json:"message,omitempty"`
	Error             string          `json:"error,omitempty"`
	LogsScanned       int             `json:"logs_scanned"`
	Anomalies         []AnomalyEvent  `json:"anomalies"`
	AnomaliesDetected int             `json:"anomalies_detected"`
	AnalysesCompleted int             `json:"analyses_completed"`
	AnalysesFailed    int             `json:"analyses_failed"`
	Results           []AnomalyResult `json:"results,omitempty"`
	StartedAt         time.Time       `json:"started_at"`
	FinishedAt        time.Time       `json:"finished_at"`
}
