package models

// IncidentContext is the evidence bundle handed to the plan generator.
// Anomaly is nil for ad-hoc analyses keyed only by trace id.
type IncidentContext struct {
	Key          string               `json:"key"`
	Anomaly      *AnomalyEvent        `json:"anomaly,omitempty"`
	Records      []LogRecord          `json:"records"`
	History      []HistoricalIncident `json:"history"`
	Correlations []CorrelationRow     `json:"correlations"`
}
