package generator

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
	"strings"
	"time"

	"github.com/miradorstack/mirador-triage/internal/models"
)

// ErrBreakerOpen is returned while the breaker short-circuits calls.
var ErrBreakerOpen = errors.New("plan generator circuit open")

// Config describes the Gemini endpoint used for plan generation.
type Config struct {
	Endpoint        string
	APIKey          string
	Model           string
	Timeout         time.Duration
	Temperature     float64
	BreakerFailures int
	BreakerCooldown time.Duration
}

// GeminiClient calls the Gemini generateContent API and returns the raw text
// of the first candidate. Validation of the text is left to the caller.
type GeminiClient struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
	breaker     *Breaker
	logger      *slog.Logger
}

// NewGeminiClient constructs a client. It returns nil when no API key is set
// so callers can treat the generator as not configured.
func NewGeminiClient(cfg Config, logger *slog.Logger) *GeminiClient {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://generativelanguage.googleapis.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &GeminiClient{
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		breaker:     NewBreaker(cfg.BreakerFailures, cfg.BreakerCooldown),
		logger:      logger,
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

// GeneratePlan asks the model for a remediation plan for ic.
func (c *GeminiClient) GeneratePlan(ctx context.Context, ic models.IncidentContext) (string, error) {
	if c.breaker.Open() {
		return "", ErrBreakerOpen
	}

	text, err := c.generate(ctx, BuildPrompt(ic))
	if err != nil {
		c.breaker.Fail()
		c.logger.Warn("plan generation failed", slog.String("key", ic.Key), slog.Any("error", err))
		return "", err
	}
	c.breaker.Success()
	return text, nil
}

func (c *GeminiClient) generate(ctx context.Context, prompt string) (string, error) {
	payload := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:      c.temperature,
			ResponseMimeType: "application/json",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.endpoint, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("gemini returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	var response generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var out strings.Builder
	for _, p := range response.Candidates[0].Content.Parts {
		out.WriteString(p.Text)
	}
	return out.String(), nil
}
