// Package extractor implements the Extraction Service (spec C4): two LLM
// calls per document (a Spanish summary, then a structured field
// extraction), a four-strategy JSON repair chain for the second call's
// response, and a heuristic confidence score for the first.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wessley-grants/ingestor/internal/domain"
	"github.com/wessley-grants/ingestor/pkg/resilience"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	minInputChars     = 50
	summaryInputChars = 10000
	fieldsInputChars  = 20000
)

// qualityIndicators are Spanish terms whose presence in a summary raises
// confidence — a cheap proxy for "did the model actually cover the grant's
// substance", grounded on original_source's _estimate_confidence.
var qualityIndicators = []string{
	"beneficiarios", "cuantía", "plazo", "requisitos", "objetivo", "ayuda", "subvención",
}

// Client calls a Gemini-compatible generateContent endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *resilience.Limiter
	breaker    *resilience.Breaker
}

// New creates an extractor Client.
func New(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout:   60 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: resilience.NewLimiter(resilience.LimiterOpts{Rate: 0.5, Burst: 2}),
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
}

// Model returns the configured model tag, used as the Extraction's
// extraction_model version marker for the llm stage's dedup rule (§4.5).
func (c *Client) Model() string { return c.model }

// Result is the outcome of processing one document's text.
type Result struct {
	Summary    string
	Fields     map[string]any
	Confidence float64
}

// Process runs the two-call flow: generate a Spanish summary (with a
// heuristic confidence score), then extract the structured field set.
// Input shorter than minInputChars produces a zero Result without calling
// the LLM, matching the original's short-circuit.
func (c *Client) Process(ctx context.Context, text, externalID string) (Result, error) {
	if len(strings.TrimSpace(text)) < minInputChars {
		return Result{}, nil
	}

	summary, confidence, err := c.generateSummary(ctx, text, externalID)
	if err != nil {
		return Result{}, err
	}

	fields, err := c.extractFields(ctx, text, externalID)
	if err != nil {
		return Result{}, err
	}

	return Result{Summary: summary, Fields: fields, Confidence: confidence}, nil
}

func (c *Client) generateSummary(ctx context.Context, text, externalID string) (string, float64, error) {
	truncated := truncate(text, summaryInputChars)
	prompt := fmt.Sprintf(summaryPromptTemplate, truncated)

	resp, err := c.generate(ctx, prompt)
	if err != nil {
		return "", 0, fmt.Errorf("extractor: generate summary %s: %w", externalID, err)
	}
	summary := strings.TrimSpace(resp)
	if summary == "" {
		return "", 0, nil
	}
	return summary, estimateConfidence(summary), nil
}

func (c *Client) extractFields(ctx context.Context, text, externalID string) (map[string]any, error) {
	truncated := truncate(text, fieldsInputChars)
	prompt := fmt.Sprintf(fieldsPromptTemplate, truncated)

	resp, err := c.generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("extractor: extract fields %s: %w", externalID, err)
	}

	jsonStr, ok := extractJSON(resp)
	if !ok {
		jsonStr, ok = extractJSON(fixCommonJSONErrors(resp))
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s: no JSON found in response", domain.ErrLLMParseError, externalID)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &fields); err != nil {
		fixed := fixCommonJSONErrors(jsonStr)
		if err2 := json.Unmarshal([]byte(fixed), &fields); err2 != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrLLMParseError, externalID, err2)
		}
	}
	return fields, nil
}

// generate calls the remote LLM through the rate limiter and circuit
// breaker, retrying on transient failure with the retry helper in retry.go.
func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	var out string
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		return withRetry(ctx, func(ctx context.Context) error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			text, err := c.call(ctx, prompt)
			if err != nil {
				return err
			}
			out = text
			return nil
		})
	})
	return out, err
}

type generateRequest struct {
	Contents []content `json:"contents"`
	GenerationConfig genConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type genConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (c *Client) call(ctx context.Context, prompt string) (string, error) {
	reqBody := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: genConfig{
			Temperature:     0.2,
			TopP:            0.8,
			TopK:            40,
			MaxOutputTokens: 8192,
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrConfigError, err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrConfigError, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTransportError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", domain.ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", domain.ErrTransportError, resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSchemaError, err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// estimateConfidence scores a generated summary 0-1 from a base score, a
// length-band adjustment, and how many quality-indicator terms it contains —
// grounded verbatim on original_source's _estimate_confidence.
func estimateConfidence(summary string) float64 {
	if len(summary) < 50 {
		return 0.0
	}
	confidence := 0.7
	switch {
	case len(summary) >= 200 && len(summary) <= 3000:
		confidence += 0.1
	case len(summary) > 5000:
		confidence -= 0.1
	}

	lower := strings.ToLower(summary)
	matches := 0
	for _, ind := range qualityIndicators {
		if strings.Contains(lower, ind) {
			matches++
		}
	}
	confidence += (float64(matches) / float64(len(qualityIndicators))) * 0.2

	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < 0.0 {
		confidence = 0.0
	}
	return confidence
}
