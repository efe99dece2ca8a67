package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/wessley-grants/ingestor/internal/domain"
	"github.com/wessley-grants/ingestor/internal/metrics"
	"github.com/wessley-grants/ingestor/internal/store"
)

// SearchOptions configures a hybrid search query, mirroring engine/rag's
// Options but without the chat-completion half — this spec's search
// surface returns ranked sources, not a synthesized answer.
type SearchOptions struct {
	TopK          int
	SearchTimeout time.Duration
	// MinSimilarity filters out hits scoring below this [0,1] cosine
	// similarity floor; <= 0 applies no threshold (spec §4.1 vector_search,
	// §6 search's min_similarity).
	MinSimilarity float32
}

// DefaultSearchOptions returns sensible defaults.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{TopK: 10, SearchTimeout: 5 * time.Second}
}

// SearchResult is one hybrid-search hit: vector similarity plus the
// metadata the Vector Index carried in its payload.
type SearchResult struct {
	ExtractionID string  `json:"extraction_id"`
	GrantID      string  `json:"grant_id"`
	Summary      string  `json:"summary"`
	Score        float32 `json:"score"`
	Meta         map[string]string `json:"meta,omitempty"`
}

// Search embeds the query text with the RETRIEVAL_QUERY task type and runs
// a k-NN similarity search filtered by the given metadata conditions,
// implementing spec's hybrid search: vector similarity AND metadata filter,
// both ANDed together, grounded on engine/rag.Service.Query's
// embed-then-search flow (the chat/LLM-synthesis step has no analog here).
func (c *Coordinator) Search(ctx context.Context, query string, filter store.Filter, opts SearchOptions) ([]SearchResult, error) {
	start := time.Now()
	defer func() { metrics.SearchDuration.Observe(time.Since(start).Seconds()) }()

	if opts.TopK <= 0 {
		opts.TopK = DefaultSearchOptions().TopK
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = DefaultSearchOptions().SearchTimeout
	}

	embedding, err := c.Embed.Embed(ctx, query, domain.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, opts.SearchTimeout)
	defer cancel()

	hits, err := c.Vectors.Search(searchCtx, embedding, opts.TopK, opts.MinSimilarity, filter)
	if err != nil {
		return nil, fmt.Errorf("search: vector search: %w", err)
	}

	out := make([]SearchResult, len(hits))
	for i, h := range hits {
		out[i] = SearchResult{
			ExtractionID: h.ExtractionID,
			GrantID:      h.GrantID,
			Summary:      h.Summary,
			Score:        h.Score,
			Meta:         h.Meta,
		}
	}
	return out, nil
}
