package models

import (
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"error": LevelError, " WARNING ": LevelWarn, "Info": LevelInfo} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("TRACE"); err == nil {
		t.Fatalf("expected unknown level to be rejected")
	}
}

func TestNewLogRecordDefaultsService(t *testing.T) {
	rec, err := NewLogRecord(time.Now(), "  ", "ERROR", "boom", " t-1 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Service != "unknown" || rec.TraceID != "t-1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if _, err := NewLogRecord(time.Now(), "api", "LOUD", "boom", ""); err == nil {
		t.Fatalf("expected invalid level to be rejected")
	}
}

func TestNewAnomalyEventCapsSamples(t *testing.T) {
	samples := make([]LogRecord, 5)
	ev := NewAnomalyEvent(AnomalyErrorSpike, "api", "t-1", "spike", samples)
	if len(ev.SampleRecords) != MaxSampleRecords {
		t.Fatalf("expected %d samples, got %d", MaxSampleRecords, len(ev.SampleRecords))
	}
	samples[0].Message = "mutated"
	if ev.SampleRecords[0].Message == "mutated" {
		t.Fatalf("samples should be copied")
	}
}

func TestParseProposedAction(t *testing.T) {
	got, err := ParseProposedAction(" scale_up ")
	if err != nil || got != ActionScaleUp {
		t.Fatalf("unexpected parse: %q %v", got, err)
	}
	if _, err := ParseProposedAction(string(ActionErrorGeneratingPlan)); err == nil {
		t.Fatalf("ERROR_GENERATING_PLAN must not be accepted from a generator")
	}
}

func TestParseAuditStatus(t *testing.T) {
	got, err := ParseAuditStatus("Rejected")
	if err != nil || got != AuditRejected {
		t.Fatalf("unexpected parse: %q %v", got, err)
	}
	if _, err := ParseAuditStatus("done"); err == nil {
		t.Fatalf("expected invalid status to be rejected")
	}
}
