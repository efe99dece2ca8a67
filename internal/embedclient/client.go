// Package embedclient implements the Embedding API client used by both the
// ingestion pipeline's embed stage and the synchronous query path. Grounded
// on pkg/ollama's plain-HTTP embedding client shape, generalized from a
// gRPC-stub-backed interface (the teacher's ml-worker protobuf package is
// not available in this build) to a small hand-written Go interface.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wessley-grants/ingestor/internal/domain"
	"github.com/wessley-grants/ingestor/pkg/resilience"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Client is the interface the pipeline and search path depend on, so tests
// can substitute an in-memory fake.
type Client interface {
	Embed(ctx context.Context, text string, task domain.TaskType) ([]float32, error)
}

// HTTPClient calls a remote embedding endpoint (e.g. a Gemini-compatible
// embedContent API) over HTTP.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *resilience.Limiter
}

// New creates an HTTPClient.
func New(baseURL, apiKey, model string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: resilience.NewLimiter(resilience.LimiterOpts{Rate: 5, Burst: 10}),
	}
}

type embedRequest struct {
	Model   string `json:"model"`
	Content struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"content"`
	TaskType string `json:"taskType"`
}

type embedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// Embed returns the embedding vector for text, using task to select the
// embedding model's task_type parameter: SEMANTIC_SIMILARITY while
// ingesting, RETRIEVAL_QUERY when embedding a search query.
func (c *HTTPClient) Embed(ctx context.Context, text string, task domain.TaskType) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqBody := embedRequest{Model: c.model, TaskType: string(task)}
	reqBody.Content.Parts = []struct {
		Text string `json:"text"`
	}{{Text: text}}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigError, err)
	}

	url := fmt.Sprintf("%s/models/%s:embedContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigError, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransportError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, domain.ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", domain.ErrTransportError, resp.StatusCode)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSchemaError, err)
	}
	return out.Embedding.Values, nil
}
