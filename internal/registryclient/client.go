// Package registryclient implements the Registry API Client (spec C2): a
// paginated HTTP client over the public grants registry's JSON API, with
// rate limiting, a circuit breaker, and PDF magic-byte validation on
// downloaded documents. A 429 response is returned as domain.ErrRateLimited
// carrying the Retry-After delay (1s when the header is absent or not a
// number of seconds); the client does not sleep or retry the request itself.
package registryclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wessley-grants/ingestor/internal/domain"
	"github.com/wessley-grants/ingestor/pkg/fn"
	"github.com/wessley-grants/ingestor/pkg/resilience"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// defaultPageSize is the page size sent on every search request; spec's
// external interface caps it at 100 (§4.2, §6).
const defaultPageSize = 100

// Client calls the remote grants registry's search, detail, and document
// endpoints (spec §6's external interface).
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	breaker     *resilience.Breaker
}

// Option configures a Client.
type Option func(*Client)

// WithRate overrides the default outbound request rate.
func WithRate(rps float64, burst int) Option {
	return func(c *Client) { c.rateLimiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// New creates a Registry API Client against baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		rateLimiter: rate.NewLimiter(rate.Every(250*time.Millisecond), 4),
		breaker:     resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SearchPage is one page of the registry's search endpoint.
type SearchPage struct {
	Results []GrantSummary `json:"results"`
	Total   int            `json:"total"`
	Page    int            `json:"page"`
	HasMore bool           `json:"has_more"`
}

// GrantSummary is the abbreviated record returned by search.
type GrantSummary struct {
	ExternalID string `json:"id"`
	Title      string `json:"titulo"`
	Organism   string `json:"organo"`
}

// GrantDetail is the full detail record, including candidate document URLs.
// The schema is treated as forward-compatible: unrecognised fields are
// ignored rather than rejected (spec's open/forward-compatible JSON rule).
type GrantDetail struct {
	ExternalID      string    `json:"id"`
	Title           string    `json:"titulo"`
	Organism        string    `json:"organo"`
	PublicationDate string    `json:"fecha_publicacion,omitempty"`
	DeadlineDate    string    `json:"fecha_fin_solicitud,omitempty"`
	IsOpen          bool      `json:"abierto"`
	TotalAmount     *float64  `json:"importe_total,omitempty"`
	Documents       []DocLink `json:"documentos,omitempty"`
}

// DocLink is one linked document, with the registry's best-effort content type.
type DocLink struct {
	URL         string `json:"url"`
	Description string `json:"descripcion,omitempty"`
	IsPDF       bool   `json:"es_pdf,omitempty"`
}

// SearchFilter restricts a registry search to the controlled filter set the
// remote API accepts (spec §4.2): purpose code, beneficiary codes, and
// open/closed status. A zero-value SearchFilter matches everything.
type SearchFilter struct {
	PurposeCode      string
	BeneficiaryCodes []string
	OnlyOpen         bool
}

// Search fetches one page of grant summaries matching filter.
func (c *Client) Search(ctx context.Context, filter SearchFilter, page int) (SearchPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(defaultPageSize))
	if filter.PurposeCode != "" {
		q.Set("finalidad", filter.PurposeCode)
	}
	if len(filter.BeneficiaryCodes) > 0 {
		q.Set("tiposBeneficiario", strings.Join(filter.BeneficiaryCodes, ","))
	}
	if filter.OnlyOpen {
		q.Set("abierto", "true")
	}

	var out SearchPage
	err := c.getJSON(ctx, fmt.Sprintf("%s/grants?%s", c.baseURL, q.Encode()), &out)
	return out, err
}

// Iterate calls visit for every grant summary matching filter, paging
// forward server-side until HasMore is false, ctx is cancelled, or maxItems
// summaries have been produced (maxItems <= 0 means unbounded), implementing
// spec's "lazy, finite, non-restartable sequence" contract.
func (c *Client) Iterate(ctx context.Context, filter SearchFilter, maxItems int, visit func(GrantSummary) error) error {
	page := 1
	seen := 0
	for {
		sp, err := c.Search(ctx, filter, page)
		if err != nil {
			return err
		}
		for _, r := range sp.Results {
			if maxItems > 0 && seen >= maxItems {
				return nil
			}
			if err := visit(r); err != nil {
				return err
			}
			seen++
		}
		if !sp.HasMore || (maxItems > 0 && seen >= maxItems) {
			return nil
		}
		page++
	}
}

// GetDetail fetches the full record for a single grant.
func (c *Client) GetDetail(ctx context.Context, externalID string) (GrantDetail, error) {
	var out GrantDetail
	err := c.getJSON(ctx, fmt.Sprintf("%s/grants/%s", c.baseURL, externalID), &out)
	return out, err
}

// PrimaryDocumentURL picks the first document classified as a PDF. If none
// are classified, it falls back to the registry's synthesized per-grant
// document endpoint, per spec's Open Question #1 resolution: the fallback
// is always tried whenever no linked document was classified as PDF.
func (c *Client) PrimaryDocumentURL(detail GrantDetail) string {
	for _, d := range detail.Documents {
		if d.IsPDF {
			return d.URL
		}
	}
	return fmt.Sprintf("%s/grants/%s/document", c.baseURL, detail.ExternalID)
}

// DownloadDocument fetches a document's bytes and validates it is a PDF via
// magic bytes ("%PDF") before returning, per spec's Document Processor
// contract — a non-PDF response is domain.ErrNotPDF, not a transport error.
func (c *Client) DownloadDocument(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrConfigError, err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrTransportError, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return retryAfterErr(resp)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: status %d", domain.ErrTransportError, resp.StatusCode)
		}
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrTransportError, err)
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(body) < 4 || string(body[:4]) != "%PDF" {
		return nil, domain.ErrNotPDF
	}
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	return c.breaker.Call(ctx, func(ctx context.Context) error {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrConfigError, err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrTransportError, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return retryAfterErr(resp)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: status %d", domain.ErrTransportError, resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrSchemaError, err)
		}
		return nil
	})
}

func retryAfterErr(resp *http.Response) error {
	wait := 1 * time.Second
	if h := resp.Header.Get("Retry-After"); h != "" {
		if secs, err := strconv.Atoi(h); err == nil {
			wait = time.Duration(secs) * time.Second
		}
	}
	return fmt.Errorf("%w: retry after %s", domain.ErrRateLimited, wait)
}

// SearchStage adapts Search into an fn.Stage for composition with other
// fn.Stage combinators, pinning filter so the stage's input is just a page
// number.
func SearchStage(c *Client, filter SearchFilter) fn.Stage[int, SearchPage] {
	return func(ctx context.Context, page int) fn.Result[SearchPage] {
		sp, err := c.Search(ctx, filter, page)
		if err != nil {
			return fn.Err[SearchPage](err)
		}
		return fn.Ok(sp)
	}
}
