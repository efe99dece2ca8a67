package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wessley-grants/ingestor/internal/domain"
	"github.com/wessley-grants/ingestor/internal/embedclient"
	"github.com/wessley-grants/ingestor/internal/extractor"
	"github.com/wessley-grants/ingestor/internal/metrics"
	"github.com/wessley-grants/ingestor/internal/normalize"
	"github.com/wessley-grants/ingestor/internal/pdfprocess"
	"github.com/wessley-grants/ingestor/internal/registryclient"
	"github.com/wessley-grants/ingestor/internal/store"
)

// MaxRetries before a staging item is moved to failed and DLQ'd, matching
// engine/ingest's retry ceiling.
const MaxRetries = 3

// Store is the subset of *store.PGStore the coordinator depends on, so
// tests can substitute a fake. Every stage hands its result off through
// this interface rather than in-process memory, since stage workers for
// different stages may run in separate processes.
type Store interface {
	ClaimNext(ctx context.Context, stage domain.Stage) (domain.StagingItem, bool, error)
	ClaimByID(ctx context.Context, id string) (domain.StagingItem, bool, error)
	TransitionStatus(ctx context.Context, id string, to domain.Status, lastErr string) (domain.Stage, bool, error)
	IncrementRetry(ctx context.Context, id string, maxRetries int, lastErr string) (retries int, exhausted bool, err error)
	UpsertGrant(ctx context.Context, g domain.Grant) (domain.Grant, error)
	UpsertStaging(ctx context.Context, externalID, batchID string) (domain.StagingItem, bool, error)
	GetGrantByExternalID(ctx context.Context, externalID string) (domain.Grant, error)
	SetPrimaryPDFURL(ctx context.Context, id, url string) error
	SetPDFContentHash(ctx context.Context, id, hash string) error
	SetPDFArtifactMeta(ctx context.Context, id string, pageCount, wordCount int, isScanned bool) error
	CreateExtraction(ctx context.Context, e domain.Extraction) (domain.Extraction, error)
	ExtractionByStagingItem(ctx context.Context, stagingItemID string) (domain.Extraction, error)
	ExtractionByGrantID(ctx context.Context, grantID string) (domain.Extraction, error)
	BackfillGrantSectors(ctx context.Context, grantID string, sectors []string) error
	CreateEmbedding(ctx context.Context, extractionID, model string, dims int) (domain.Embedding, error)
}

// Coordinator wires the Registry Store, Vector Index, Registry API Client,
// Document Processor, Extraction Service, and Embedding Client into the
// four stage workers, generalizing engine/ingest.Deps/StartConsumer to a
// multi-stage CAS-driven pipeline instead of a single NATS consumer.
type Coordinator struct {
	Store    Store
	Vectors  *store.VectorIndex
	Registry *registryclient.Client
	PDF      *pdfprocess.Processor
	LLM      *extractor.Client
	Embed    embedclient.Client
	Queue    Queue
	Log      *slog.Logger

	EmbeddingModel string
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}

// RunStageWorker subscribes to wake-ups for stage. On each signal it claims
// the named item (or, if the wake-up carries no id — e.g. a periodic poll
// tick — the oldest pending item at that stage) and runs it through the
// stage's handler.
func (c *Coordinator) RunStageWorker(stage domain.Stage) (Subscription, error) {
	handler := c.handlerFor(stage)
	return c.Queue.Subscribe(stage, func(ctx context.Context, msg WakeUp) {
		var (
			item domain.StagingItem
			ok   bool
			err  error
		)
		if msg.StagingItemID != "" {
			item, ok, err = c.Store.ClaimByID(ctx, msg.StagingItemID)
		} else {
			item, ok, err = c.Store.ClaimNext(ctx, stage)
		}
		if err != nil {
			c.logger().Error("pipeline: claim failed", "stage", stage, "error", err)
			return
		}
		if !ok {
			return
		}
		c.process(ctx, stage, item, handler, msg.Force)
	})
}

type stageHandler func(ctx context.Context, item domain.StagingItem, force bool) error

// isSkippable reports whether err names a condition spec §7 defines as
// "item skipped" rather than a retryable failure: a non-PDF document or a
// grant with no resolvable primary document URL.
func isSkippable(err error) bool {
	return errors.Is(err, domain.ErrNotPDF) || errors.Is(err, domain.ErrNoPDFURL)
}

// process runs handler for item, then advances, skips, or retries it via
// CAS, generalizing engine/ingest.StartConsumer's retry/DLQ handling across
// four stages instead of one. A skippable error (isSkippable) bypasses the
// retry/DLQ path entirely and transitions the item straight to skipped,
// per spec's pending--no-pdf-url-->skipped state machine edge.
func (c *Coordinator) process(ctx context.Context, stage domain.Stage, item domain.StagingItem, handler stageHandler, force bool) {
	log := c.logger()
	start := time.Now()
	err := handler(ctx, item, force)
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())

	if err != nil {
		if isSkippable(err) {
			log.Info("pipeline: stage skipped", "stage", stage, "staging_item_id", item.ID, "reason", err)
			if _, _, terr := c.Store.TransitionStatus(ctx, item.ID, domain.StatusSkipped, err.Error()); terr != nil {
				log.Error("pipeline: transition to skipped failed", "staging_item_id", item.ID, "error", terr)
				return
			}
			metrics.StageProcessed.WithLabelValues(string(stage), "skipped").Inc()
			return
		}

		log.Error("pipeline: stage failed", "stage", stage, "staging_item_id", item.ID, "error", err)
		retries, exhausted, rerr := c.Store.IncrementRetry(ctx, item.ID, MaxRetries, err.Error())
		if rerr != nil {
			log.Error("pipeline: increment retry failed", "staging_item_id", item.ID, "error", rerr)
			return
		}
		if exhausted {
			metrics.StageProcessed.WithLabelValues(string(stage), "failed").Inc()
			metrics.DLQTotal.WithLabelValues(string(stage)).Inc()
			_ = c.Queue.PublishDLQ(ctx, stage, DLQMessage{
				StagingItemID: item.ID,
				Stage:         string(stage),
				Error:         err.Error(),
				Retries:       retries,
			})
			return
		}
		// Re-publish a wake-up so a worker retries without waiting for the
		// next poll tick.
		_ = c.Queue.Publish(ctx, stage, WakeUp{StagingItemID: item.ID, Force: force})
		return
	}

	next, hasNext, err := c.Store.TransitionStatus(ctx, item.ID, domain.StatusCompleted, "")
	if err != nil {
		log.Error("pipeline: transition failed", "staging_item_id", item.ID, "error", err)
		return
	}
	metrics.StageProcessed.WithLabelValues(string(stage), "completed").Inc()
	log.Info("pipeline: stage complete", "stage", stage, "staging_item_id", item.ID)
	if hasNext {
		if err := c.Queue.Publish(ctx, next, WakeUp{StagingItemID: item.ID}); err != nil {
			log.Warn("pipeline: wake-up publish failed", "stage", next, "error", err)
		}
	}
}

func (c *Coordinator) handlerFor(stage domain.Stage) stageHandler {
	switch stage {
	case domain.StageFetch:
		return c.handleFetch
	case domain.StagePDF:
		return c.handlePDF
	case domain.StageLLM:
		return c.handleLLM
	case domain.StageEmbed:
		return c.handleEmbed
	default:
		return func(context.Context, domain.StagingItem, bool) error {
			return fmt.Errorf("pipeline: no handler for stage %s", stage)
		}
	}
}

// handleFetch retrieves a Grant's detail record, upserts it, and resolves
// and records the primary PDF URL. Grounded on engine/ingest's
// Validate+Parse stages, generalized from a scraped-post payload to a
// registry lookup.
func (c *Coordinator) handleFetch(ctx context.Context, item domain.StagingItem, force bool) error {
	detail, err := c.Registry.GetDetail(ctx, item.ExternalID)
	if err != nil {
		return fmt.Errorf("fetch: get detail: %w", err)
	}

	grant := domain.Grant{
		ExternalID:   detail.ExternalID,
		Title:        detail.Title,
		OrganismName: detail.Organism,
		IsOpen:       detail.IsOpen,
		TotalAmount:  detail.TotalAmount,
	}
	if _, err := c.Store.UpsertGrant(ctx, grant); err != nil {
		return fmt.Errorf("fetch: upsert grant: %w", err)
	}

	url := c.Registry.PrimaryDocumentURL(detail)
	if err := c.Store.SetPrimaryPDFURL(ctx, item.ID, url); err != nil {
		return fmt.Errorf("fetch: set primary pdf url: %w", err)
	}
	return nil
}

// handlePDF downloads and processes the staging item's primary document,
// recording the resulting content hash and artifact metadata so the llm
// stage (possibly a different worker process) can recover the extracted
// markdown text and page/word/scanned classification from the Document
// Processor's content-addressed artifact store.
//
// A missing primary_pdf_url or a response that isn't a PDF at all is not a
// retryable failure: it surfaces domain.ErrNoPDFURL/domain.ErrNotPDF, which
// Coordinator.process routes straight to status=skipped (spec §7). A
// scanned PDF (no extractable text layer) is NOT one of these cases — PDF.Process
// still returns a valid Artifact with IsScanned=true, and this handler
// proceeds to record it so downstream stages keep running (spec §4.3 step 4).
func (c *Coordinator) handlePDF(ctx context.Context, item domain.StagingItem, force bool) error {
	if item.PrimaryPDFURL == "" {
		return domain.ErrNoPDFURL
	}
	raw, err := c.Registry.DownloadDocument(ctx, item.PrimaryPDFURL)
	if err != nil {
		if errors.Is(err, domain.ErrNotPDF) {
			return err
		}
		return fmt.Errorf("pdf: download: %w", err)
	}
	artifact, err := c.PDF.Process(raw, item.ExternalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotPDF) {
			return err
		}
		return fmt.Errorf("pdf: process: %w", err)
	}
	if err := c.Store.SetPDFContentHash(ctx, item.ID, artifact.ContentHash); err != nil {
		return fmt.Errorf("pdf: set content hash: %w", err)
	}
	if err := c.Store.SetPDFArtifactMeta(ctx, item.ID, artifact.PageCount, artifact.WordCount, artifact.IsScanned); err != nil {
		return fmt.Errorf("pdf: set artifact meta: %w", err)
	}
	return nil
}

// handleLLM runs the Extraction Service over the document text recovered
// from the pdf stage's artifact, applies deterministic normalization, and
// persists the Extraction (plus a Grant sectors backfill, per the
// Grant-is-authoritative-when-present rule).
//
// Deduplication (spec §4.5): if an Extraction already exists for this
// staging item and its extraction_model already equals the configured
// model tag, the document was already processed by this exact model
// version and reprocessing is skipped — unless force is set (WakeUp.Force),
// which always reprocesses.
func (c *Coordinator) handleLLM(ctx context.Context, item domain.StagingItem, force bool) error {
	if item.PDFContentHash == "" {
		return fmt.Errorf("llm: %s has no pdf_content_hash (pdf stage must run first)", item.ID)
	}

	targetModel := c.LLM.Model()
	if !force {
		if existing, err := c.Store.ExtractionByStagingItem(ctx, item.ID); err == nil && existing.ExtractionModel == targetModel {
			c.logger().Info("llm: skipping reprocess, extraction_model unchanged", "staging_item_id", item.ID, "model", targetModel)
			return nil
		}
	}

	text, err := c.PDF.LoadMarkdown(item.PDFContentHash)
	if err != nil {
		return fmt.Errorf("llm: load markdown: %w", err)
	}

	result, err := c.LLM.Process(ctx, text, item.ExternalID)
	if err != nil {
		return fmt.Errorf("llm: process: %w", err)
	}

	grant, err := c.Store.GetGrantByExternalID(ctx, item.ExternalID)
	if err != nil {
		return fmt.Errorf("llm: get grant: %w", err)
	}

	norm := normalize.All(rawFieldsOf(result.Fields))
	rawJSON, err := store.MarshalRawFields(result.Fields)
	if err != nil {
		return fmt.Errorf("llm: marshal raw fields: %w", err)
	}

	ext := domain.Extraction{
		GrantID:          grant.ID,
		StagingItemID:    item.ID,
		Summary:          result.Summary,
		Sectors:          norm.Sectors,
		Instrument:       norm.Instrument,
		Procedure:        norm.Procedure,
		AdminType:        norm.AdminType,
		AdminLevel:       norm.AdminLevel,
		AdminScope:       norm.Scope,
		BeneficiaryTypes: norm.BeneficiaryTypes,
		NUTSCode:         norm.NUTSCode,
		RawFields:        rawJSON,
		Confidence:       result.Confidence,
		ExtractedText:    text,
		PageCount:        item.PageCount,
		WordCount:        item.WordCount,
		IsScanned:        item.IsScanned,
		ExtractionModel:  targetModel,
	}
	if _, err := c.Store.CreateExtraction(ctx, ext); err != nil {
		return fmt.Errorf("llm: create extraction: %w", err)
	}
	if err := c.Store.BackfillGrantSectors(ctx, grant.ID, norm.Sectors); err != nil {
		return fmt.Errorf("llm: backfill sectors: %w", err)
	}
	return nil
}

// handleEmbed embeds the Extraction's summary and upserts it into the
// Vector Index plus the relational audit row.
func (c *Coordinator) handleEmbed(ctx context.Context, item domain.StagingItem, force bool) error {
	ext, err := c.Store.ExtractionByStagingItem(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("embed: get extraction: %w", err)
	}

	vec, err := c.Embed.Embed(ctx, ext.Summary, domain.TaskSemanticSimilarity)
	if err != nil {
		return fmt.Errorf("embed: embed: %w", err)
	}

	if err := c.Vectors.Upsert(ctx, []store.Record{{
		ExtractionID: ext.ID,
		Embedding:    vec,
		Payload: map[string]any{
			"extraction_id": ext.ID,
			"grant_id":      ext.GrantID,
			"summary":       ext.Summary,
			"instrument":    ext.Instrument,
			"procedure":     ext.Procedure,
			"nuts_code":     ext.NUTSCode,
		},
	}}); err != nil {
		return fmt.Errorf("embed: vector upsert: %w", err)
	}

	if _, err := c.Store.CreateEmbedding(ctx, ext.ID, c.EmbeddingModel, len(vec)); err != nil {
		return fmt.Errorf("embed: create embedding row: %w", err)
	}
	return nil
}

// IngestResult tallies the outcome of an IngestByFilter call, per spec's
// ingest(filter, batch_id, max_items) reporting contract (§6 scenario 2).
type IngestResult struct {
	Inserted   int
	Duplicates int
	Errors     int
}

// IngestByFilter drives registry ingestion from a search filter rather than
// an explicit list of external ids: it iterates the Registry API Client's
// search results (capped at maxItems), upserts a StagingItem per grant, and
// wakes the fetch stage for every newly-inserted item. Re-running the same
// filter is safe — a grant already staged counts as a duplicate, not an
// error, matching UpsertStaging's idempotent-enqueue behaviour.
func (c *Coordinator) IngestByFilter(ctx context.Context, filter registryclient.SearchFilter, batchID string, maxItems int) (IngestResult, error) {
	var result IngestResult
	err := c.Registry.Iterate(ctx, filter, maxItems, func(g registryclient.GrantSummary) error {
		item, inserted, err := c.Store.UpsertStaging(ctx, g.ExternalID, batchID)
		if err != nil {
			result.Errors++
			c.logger().Error("ingest: upsert staging failed", "external_id", g.ExternalID, "error", err)
			return nil
		}
		if !inserted {
			result.Duplicates++
			return nil
		}
		result.Inserted++
		if c.Queue != nil {
			if err := c.Queue.Publish(ctx, domain.StageFetch, WakeUp{StagingItemID: item.ID}); err != nil {
				c.logger().Warn("ingest: wake-up publish failed", "staging_item_id", item.ID, "error", err)
			}
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("ingest: iterate: %w", err)
	}
	return result, nil
}

// FindSimilar returns the k grants whose Extraction summary is most similar
// to the reference grant's own Extraction, excluding the reference grant
// itself (spec §4.1 find_similar, §8 "find_similar(g) never returns g
// itself"). It prefers the raw vector already stored in the Vector Index
// over re-embedding the summary, since the stored vector is the exact one
// the reference grant was indexed with.
func (c *Coordinator) FindSimilar(ctx context.Context, grantID string, k int, minSimilarity float32) ([]SearchResult, error) {
	if k <= 0 {
		k = DefaultSearchOptions().TopK
	}

	ext, err := c.Store.ExtractionByGrantID(ctx, grantID)
	if err != nil {
		return nil, fmt.Errorf("find_similar: get extraction for grant %s: %w", grantID, err)
	}

	vec, err := c.Vectors.VectorByExtraction(ctx, ext.ID)
	if err != nil {
		c.logger().Info("find_similar: stored vector unavailable, re-embedding summary", "grant_id", grantID, "error", err)
		vec, err = c.Embed.Embed(ctx, ext.Summary, domain.TaskSemanticSimilarity)
		if err != nil {
			return nil, fmt.Errorf("find_similar: embed summary: %w", err)
		}
	}

	// Over-fetch by one: the reference grant's own point is excluded below,
	// and that point would otherwise have displaced a genuine neighbour.
	hits, err := c.Vectors.Search(ctx, vec, k+1, minSimilarity, store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("find_similar: vector search: %w", err)
	}

	out := make([]SearchResult, 0, k)
	for _, h := range hits {
		if h.GrantID == grantID {
			continue
		}
		out = append(out, SearchResult{
			ExtractionID: h.ExtractionID,
			GrantID:      h.GrantID,
			Summary:      h.Summary,
			Score:        h.Score,
			Meta:         h.Meta,
		})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func rawFieldsOf(fields map[string]any) normalize.RawFields {
	get := func(k string) string {
		s, _ := fields[k].(string)
		return s
	}
	return normalize.RawFields{
		SectorsRaw:          get("sectores_raw"),
		InstrumentsRaw:      get("instrumentos_raw"),
		InstrumentLLM:       get("instrumento_normalizado"),
		ProcedureLLM:        get("procedimiento"),
		BeneficiaryTypesRaw: get("tipos_beneficiario_raw"),
		RegionMentioned:     get("region_mencionada"),
		AdminTypeRaw:        get("tipo_administracion_raw"),
		AdminLevelRaw:       get("nivel_administracion_raw"),
		ScopeRaw:            get("ambito_raw"),
	}
}
