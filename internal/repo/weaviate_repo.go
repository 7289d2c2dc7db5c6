package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/miradorstack/mirador-triage/internal/cache"
	"github.com/miradorstack/mirador-triage/internal/models"
	"github.com/miradorstack/mirador-triage/internal/utils"
)

// WeaviateRepo ranks historical incidents stored in a Weaviate class. It is an
// alternative to the Elasticsearch incidents index for similarity lookups.
type WeaviateRepo struct {
	endpoint   string
	apiKey     string
	class      string
	httpClient *http.Client
	cache      cache.Provider
	similarTTL time.Duration
}

// NewWeaviateRepo constructs a Weaviate client.
func NewWeaviateRepo(endpoint, apiKey, class string, timeout time.Duration, cacheProvider cache.Provider, similarTTL time.Duration) *WeaviateRepo {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if similarTTL < 0 {
		similarTTL = 0
	}
	if class == "" {
		class = "HistoricalIncident"
	}
	return &WeaviateRepo{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		class:      class,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cacheProvider,
		similarTTL: similarTTL,
	}
}

// SearchSimilar returns incidents ranked by BM25 over description and root cause.
func (r *WeaviateRepo) SearchSimilar(ctx context.Context, text string, limit int) ([]models.HistoricalIncident, error) {
	if r == nil {
		return nil, fmt.Errorf("weaviate repo not initialised")
	}
	if limit <= 0 {
		return nil, utils.InvalidArgument("search similar", "limit must be positive")
	}
	if r.endpoint == "" {
		return nil, utils.NotConfigured("weaviate", "endpoint")
	}

	cacheKey := ""
	if r.similarTTL > 0 {
		cacheKey = fmt.Sprintf("weaviate:similar:%s:%d:%s", r.class, limit, text)
		var cached []models.HistoricalIncident
		if cache.GetJSON(ctx, r.cache, cacheKey, &cached) {
			return cached, nil
		}
	}

	search := ""
	if trimmed := strings.TrimSpace(text); trimmed != "" {
		quoted, _ := json.Marshal(trimmed)
		search = fmt.Sprintf(`bm25: {query: %s, properties: ["description", "rootCause"]}`, quoted)
	}

	gql := map[string]interface{}{
		"query": fmt.Sprintf(`{
          Get {
            %s(
              limit: %d
              %s
            ) {
              incidentId
              description
              rootCause
              resolution
              severity
            }
          }
        }`, r.class, limit, search),
	}

	payload, err := json.Marshal(gql)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/v1/graphql", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("weaviate search failed: %s", strings.TrimSpace(string(data)))
	}

	var response struct {
		Data struct {
			Get map[string][]struct {
				IncidentID  string `json:"incidentId"`
				Description string `json:"description"`
				RootCause   string `json:"rootCause"`
				Resolution  string `json:"resolution"`
				Severity    string `json:"severity"`
			} `json:"Get"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode weaviate response: %w", err)
	}
	if len(response.Errors) > 0 {
		return nil, fmt.Errorf("weaviate query error: %s", response.Errors[0].Message)
	}

	rows := response.Data.Get[r.class]
	incidents := make([]models.HistoricalIncident, 0, len(rows))
	for _, rec := range rows {
		incidents = append(incidents, models.HistoricalIncident{
			IncidentID:  rec.IncidentID,
			Description: rec.Description,
			RootCause:   rec.RootCause,
			Resolution:  rec.Resolution,
			Severity:    rec.Severity,
		})
	}

	if cacheKey != "" && len(incidents) > 0 {
		cache.SetJSON(ctx, r.cache, cacheKey, incidents, r.similarTTL)
	}

	return incidents, nil
}
