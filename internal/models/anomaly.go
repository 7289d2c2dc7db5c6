package models

// AnomalyKind identifies which detector flagged an anomaly.
type AnomalyKind string

const (
	AnomalyErrorSpike      AnomalyKind = "ERROR_SPIKE"
	AnomalyCriticalKeyword AnomalyKind = "CRITICAL_KEYWORD"
	AnomalyRepeatedFailure AnomalyKind = "REPEATED_FAILURE"
)

// MaxSampleRecords bounds the samples carried on an AnomalyEvent.
const MaxSampleRecords = 3

// AnomalyEvent is a detector-flagged condition attached to a trace id.
type AnomalyEvent struct {
	Kind          AnomalyKind `json:"kind"`
	Service       string      `json:"service"`
	TraceID       string      `json:"trace_id"`
	Summary       string      `json:"summary"`
	Keyword       string      `json:"keyword,omitempty"`
	Count         int         `json:"count,omitempty"`
	SampleRecords []LogRecord `json:"sample_records,omitempty"`
}

// NewAnomalyEvent builds an event, trimming samples to MaxSampleRecords.
func NewAnomalyEvent(kind AnomalyKind, service, traceID, summary string, samples []LogRecord) AnomalyEvent {
	if len(samples) > MaxSampleRecords {
		samples = samples[:MaxSampleRecords]
	}
	return AnomalyEvent{
		Kind:          kind,
		Service:       service,
		TraceID:       traceID,
		Summary:       summary,
		SampleRecords: append([]LogRecord(nil), samples...),
	}
}
