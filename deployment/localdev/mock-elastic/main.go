// Command mock-elastic serves the subset of the Elasticsearch and Gemini
// APIs the triage engine uses, backed by seeded in-memory documents.
package main

import (
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type document struct {
	ID     string
	Source map[string]any
}

type store struct {
	mu      sync.Mutex
	indices map[string][]*document
}

func newStore(now time.Time) *store {
	s := &store{indices: map[string][]*document{}}
	logs := []struct {
		ago     time.Duration
		service string
		level   string
		message string
		trace   string
	}{
		{4 * time.Minute, "checkout", "ERROR", "connection refused while calling payments:8443", "trace-abc"},
		{3 * time.Minute, "checkout", "ERROR", "connection refused while calling payments:8443", "trace-abc"},
		{3 * time.Minute, "checkout", "ERROR", "connection refused while calling payments:8443", "trace-def"},
		{2 * time.Minute, "payments", "ERROR", "FATAL: worker killed after OutOfMemory", "trace-ghi"},
		{2 * time.Minute, "inventory", "WARN", "slow query on stock table", ""},
		{time.Minute, "inventory", "INFO", "cache warmed", ""},
	}
	for _, l := range logs {
		s.add("greenstick-logs", map[string]any{
			"@timestamp": now.Add(-l.ago).UTC().Format(time.RFC3339Nano),
			"service":    l.service,
			"level":      l.level,
			"message":    l.message,
			"trace_id":   l.trace,
		})
	}
	s.add("greenstick-incidents", map[string]any{
		"incident_id": "INC-1042",
		"description": "checkout could not reach payments, connection refused",
		"root_cause":  "payments pods evicted during node drain",
		"resolution":  "rolled back node pool upgrade",
	})
	s.add("greenstick-incidents", map[string]any{
		"incident_id": "INC-0977",
		"description": "payments OOM killed under load",
		"root_cause":  "unbounded batch size",
		"resolution":  "scaled up and capped batch size",
	})
	return s
}

func (s *store) add(index string, source map[string]any) string {
	id := uuid.NewString()
	s.indices[index] = append(s.indices[index], &document{ID: id, Source: source})
	return id
}

func (s *store) match(index string, query map[string]any) []*document {
	terms := map[string]string{}
	collectTerms(query, terms)
	var out []*document
	for _, doc := range s.indices[index] {
		ok := true
		for field, want := range terms {
			if got, _ := doc.Source[field].(string); got != want {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, doc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, _ := out[i].Source["@timestamp"].(string)
		tj, _ := out[j].Source["@timestamp"].(string)
		return ti > tj
	})
	return out
}

func collectTerms(node any, terms map[string]string) {
	switch v := node.(type) {
	case map[string]any:
		for key, child := range v {
			if key == "term" {
				if fields, ok := child.(map[string]any); ok {
					for field, value := range fields {
						if str, ok := value.(string); ok {
							terms[field] = str
						}
					}
				}
				continue
			}
			collectTerms(child, terms)
		}
	case []any:
		for _, child := range v {
			collectTerms(child, terms)
		}
	}
}

func main() {
	addr := flag.String("addr", ":9200", "listen address")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil)).With(slog.String("component", "mock-elastic"))
	s := newStore(time.Now())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /{index}/_search", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Size  int            `json:"size"`
			Query map[string]any `json:"query"`
		}
		if !decode(w, r, &body) {
			return
		}
		s.mu.Lock()
		docs := s.match(r.PathValue("index"), body.Query)
		s.mu.Unlock()
		if body.Size > 0 && len(docs) > body.Size {
			docs = docs[:body.Size]
		}
		hits := make([]map[string]any, 0, len(docs))
		for _, doc := range docs {
			hits = append(hits, map[string]any{"_id": doc.ID, "_source": doc.Source})
		}
		writeJSON(w, http.StatusOK, map[string]any{"hits": map[string]any{"hits": hits}})
	})

	mux.HandleFunc("POST /{index}/_count", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Query map[string]any `json:"query"`
		}
		if r.ContentLength != 0 && !decode(w, r, &body) {
			return
		}
		s.mu.Lock()
		count := len(s.match(r.PathValue("index"), body.Query))
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"count": count})
	})

	mux.HandleFunc("POST /{index}/_doc", func(w http.ResponseWriter, r *http.Request) {
		var source map[string]any
		if !decode(w, r, &source) {
			return
		}
		s.mu.Lock()
		id := s.add(r.PathValue("index"), source)
		s.mu.Unlock()
		writeJSON(w, http.StatusCreated, map[string]any{"_id": id, "result": "created"})
	})

	mux.HandleFunc("POST /{index}/_update/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Doc map[string]any `json:"doc"`
		}
		if !decode(w, r, &body) {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, doc := range s.indices[r.PathValue("index")] {
			if doc.ID == r.PathValue("id") {
				for k, v := range body.Doc {
					doc.Source[k] = v
				}
				writeJSON(w, http.StatusOK, map[string]any{"_id": doc.ID, "result": "updated"})
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "document_missing_exception"})
	})

	mux.HandleFunc("POST /_query", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		perService := map[string][2]int{}
		for _, doc := range s.indices["greenstick-logs"] {
			service, _ := doc.Source["service"].(string)
			counts := perService[service]
			counts[0]++
			if doc.Source["level"] == "ERROR" {
				counts[1]++
			}
			perService[service] = counts
		}
		s.mu.Unlock()

		services := make([]string, 0, len(perService))
		for service := range perService {
			services = append(services, service)
		}
		sort.Strings(services)
		values := make([][]any, 0, len(services))
		for _, service := range services {
			counts := perService[service]
			values = append(values, []any{counts[0], counts[1], float64(counts[1]) * 100 / float64(counts[0]), service})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"columns": []map[string]string{
				{"name": "total_logs", "type": "long"},
				{"name": "errors", "type": "long"},
				{"name": "error_rate", "type": "double"},
				{"name": "service", "type": "keyword"},
			},
			"values": values,
		})
	})

	mux.HandleFunc("POST /v1beta/models/{model}", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.PathValue("model"), ":generateContent") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		plan := `{"action":"RESTART_SERVICE","confidence":0.86,"reasoning":"repeated connection refusals point at an unhealthy payments deployment","steps":["restart payments deployment","watch checkout error rate for 10 minutes"]}`
		writeJSON(w, http.StatusOK, map[string]any{
			"candidates": []any{
				map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": plan}}}},
			},
		})
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           logRequests(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("listening", slog.String("address", *addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

func decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("encode error", slog.Any("error", err))
	}
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.status),
			slog.Duration("latency", time.Since(start)))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
