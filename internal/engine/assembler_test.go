package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/miradorstack/mirador-triage/internal/models"
	"github.com/miradorstack/mirador-triage/internal/repo"
	"github.com/miradorstack/mirador-triage/internal/utils"
)

type fakeStore struct {
	byTrace    map[string][]models.LogRecord
	errors     []models.LogRecord
	all        []models.LogRecord
	rows       []models.CorrelationRow
	recordErr  error
	aggErr     error
	queries    []models.RecordQuery
	aggregates []repo.AggregationQuery
}

func (f *fakeStore) FetchRecords(_ context.Context, q models.RecordQuery) ([]models.LogRecord, error) {
	f.queries = append(f.queries, q)
	if f.recordErr != nil {
		return nil, f.recordErr
	}
	switch {
	case q.TraceID != "":
		return f.byTrace[q.TraceID], nil
	case q.Level == models.LevelError:
		return f.errors, nil
	default:
		return f.all, nil
	}
}

func (f *fakeStore) RunAggregation(_ context.Context, q repo.AggregationQuery) ([]models.CorrelationRow, error) {
	f.aggregates = append(f.aggregates, q)
	if f.aggErr != nil {
		return nil, f.aggErr
	}
	return f.rows, nil
}

type fakeHistory struct {
	incidents []models.HistoricalIncident
	err       error
	texts     []string
}

func (f *fakeHistory) SearchSimilar(_ context.Context, text string, _ int) ([]models.HistoricalIncident, error) {
	f.texts = append(f.texts, text)
	return f.incidents, f.err
}

func record(service, level, message, trace string) models.LogRecord {
	rec, _ := models.NewLogRecord(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), service, level, message, trace)
	return rec
}

func TestAssemblePrefersTraceMatch(t *testing.T) {
	store := &fakeStore{
		byTrace: map[string][]models.LogRecord{"t-1": {record("checkout", "ERROR", "OOM killed", "t-1")}},
		errors:  []models.LogRecord{record("cart", "ERROR", "other", "t-9")},
		rows:    []models.CorrelationRow{{"service": "checkout"}},
	}
	history := &fakeHistory{incidents: []models.HistoricalIncident{{IncidentID: "a"}, {IncidentID: "b"}, {IncidentID: "c"}, {IncidentID: "d"}}}
	a := NewContextAssembler(nil, store, history, AssemblerConfig{CorrelationWindow: 2 * time.Hour})

	ic, err := a.Assemble(context.Background(), "t-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ic.Records) != 1 || ic.Records[0].Message != "OOM killed" {
		t.Fatalf("unexpected records: %+v", ic.Records)
	}
	if len(store.queries) != 1 || store.queries[0].Limit != 10 {
		t.Fatalf("expected a single trace query with default limit, got %+v", store.queries)
	}
	if len(ic.History) != 3 {
		t.Fatalf("expected history capped at 3, got %d", len(ic.History))
	}
	if history.texts[0] != "OOM killed" {
		t.Fatalf("expected similarity on first record message, got %q", history.texts[0])
	}
	if store.aggregates[0].Tool != "service_health" || store.aggregates[0].Params["timeframe"] != "2 hours" {
		t.Fatalf("unexpected aggregation: %+v", store.aggregates[0])
	}
	if len(ic.Correlations) != 1 {
		t.Fatalf("expected correlations")
	}
}

func TestAssembleFallsBackToErrorsThenAll(t *testing.T) {
	store := &fakeStore{all: []models.LogRecord{record("cart", "INFO", "started", "")}}
	a := NewContextAssembler(nil, store, nil, AssemblerConfig{})

	ic, err := a.Assemble(context.Background(), "missing", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.queries) != 3 {
		t.Fatalf("expected trace, error and any-level lookups, got %+v", store.queries)
	}
	if store.queries[1].Level != models.LevelError || store.queries[2].Level != "" {
		t.Fatalf("unexpected fallback order: %+v", store.queries)
	}
	if len(ic.Records) != 1 || ic.Records[0].Message != "started" {
		t.Fatalf("unexpected records: %+v", ic.Records)
	}
}

func TestAssembleDegradesWhenStoreUnavailable(t *testing.T) {
	outage := errors.New("connection refused")
	store := &fakeStore{recordErr: outage, aggErr: outage}
	history := &fakeHistory{err: outage}
	anomaly := models.NewAnomalyEvent(models.AnomalyErrorSpike, "checkout", "spike-checkout", "Error spike detected: 3 errors in checkout", nil)
	a := NewContextAssembler(nil, store, history, AssemblerConfig{})

	ic, err := a.Assemble(context.Background(), anomaly.TraceID, &anomaly)
	if err != nil {
		t.Fatalf("outage must not fail assembly: %v", err)
	}
	if len(ic.Records) != 0 || len(ic.History) != 0 || len(ic.Correlations) != 0 {
		t.Fatalf("expected empty context, got %+v", ic)
	}
	if ic.Records == nil || ic.History == nil || ic.Correlations == nil {
		t.Fatalf("expected empty, non-nil slices")
	}
	if history.texts[0] != anomaly.Summary {
		t.Fatalf("expected similarity on anomaly summary, got %q", history.texts[0])
	}
}

func TestAssembleRaisesProgrammerErrors(t *testing.T) {
	store := &fakeStore{aggErr: utils.InvalidArgument("render tool", "unknown tool")}
	a := NewContextAssembler(nil, store, nil, AssemblerConfig{})
	if _, err := a.Assemble(context.Background(), "t", nil); !utils.IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}
