package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wessley-grants/ingestor/internal/domain"
)

// PGStore is the relational half of the Registry Store: StagingItem, Grant,
// Extraction, and Embedding rows, with CAS status transitions. Grounded on
// the teacher's generic Repository[T, ID] shape (pkg/repo), adapted from
// Neo4j sessions to pgx transactions since this domain has no graph data.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore opens a connection pool against the given DSN.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PGStore) Close() { s.pool.Close() }

// UpsertGrant inserts or updates a Grant, keyed on external_id. Matches
// spec's "re-fetching an existing external_id updates fields in place,
// never duplicates a row" invariant.
func (s *PGStore) UpsertGrant(ctx context.Context, g domain.Grant) (domain.Grant, error) {
	if err := domain.ValidateGrant(g); err != nil {
		return domain.Grant{}, err
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO grants (id, external_id, title, organism_name, publication_date,
			deadline_date, is_open, total_amount, sectores_normalizados, document_urls,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		ON CONFLICT (external_id) DO UPDATE SET
			title = EXCLUDED.title,
			organism_name = EXCLUDED.organism_name,
			publication_date = EXCLUDED.publication_date,
			deadline_date = EXCLUDED.deadline_date,
			is_open = EXCLUDED.is_open,
			total_amount = EXCLUDED.total_amount,
			sectores_normalizados = CASE
				WHEN array_length(EXCLUDED.sectores_normalizados, 1) > 0 THEN EXCLUDED.sectores_normalizados
				ELSE grants.sectores_normalizados
			END,
			document_urls = EXCLUDED.document_urls,
			updated_at = now()
		RETURNING id, external_id, title, organism_name, publication_date, deadline_date,
			is_open, total_amount, sectores_normalizados, document_urls, created_at, updated_at
	`, g.ID, g.ExternalID, g.Title, g.OrganismName, g.PublicationDate, g.DeadlineDate,
		g.IsOpen, g.TotalAmount, g.SectoresNormalizados, g.DocumentURLs)

	var out domain.Grant
	if err := row.Scan(&out.ID, &out.ExternalID, &out.Title, &out.OrganismName,
		&out.PublicationDate, &out.DeadlineDate, &out.IsOpen, &out.TotalAmount,
		&out.SectoresNormalizados, &out.DocumentURLs, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return domain.Grant{}, fmt.Errorf("pgstore: upsert grant: %w", err)
	}
	return out, nil
}

// UpsertStaging inserts a StagingItem for a new external_id at the fetch
// stage, or is a no-op if one already exists (idempotent enqueue). The
// returned bool reports whether this call actually inserted a new row
// (true) versus found a duplicate external_id already staged (false),
// using the `xmax = 0` idiom to tell INSERT from the ON CONFLICT branch.
func (s *PGStore) UpsertStaging(ctx context.Context, externalID, batchID string) (domain.StagingItem, bool, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO staging_items (id, external_id, batch_id, stage, status, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, now(), now())
		ON CONFLICT (external_id) DO UPDATE SET updated_at = staging_items.updated_at
		RETURNING id, external_id, batch_id, stage, status, retry_count, last_error, primary_pdf_url,
			pdf_content_hash, page_count, word_count, is_scanned, created_at, updated_at, claimed_at,
			(xmax = 0) AS inserted
	`, uuid.NewString(), externalID, batchID, domain.StageFetch, domain.StatusPending)

	var out domain.StagingItem
	var inserted bool
	if err := scanStagingInserted(row, &out, &inserted); err != nil {
		return domain.StagingItem{}, false, fmt.Errorf("pgstore: upsert staging: %w", err)
	}
	return out, inserted, nil
}

// ClaimNext atomically claims the oldest pending StagingItem at the given
// stage, CAS'ing it pending->processing so exactly one worker owns it.
// Returns (zero, false, nil) if no pending item is available.
func (s *PGStore) ClaimNext(ctx context.Context, stage domain.Stage) (domain.StagingItem, bool, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE staging_items SET status = $1, claimed_at = now(), updated_at = now()
		WHERE id = (
			SELECT id FROM staging_items
			WHERE stage = $2 AND status = $3
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, external_id, batch_id, stage, status, retry_count, last_error, primary_pdf_url,
			pdf_content_hash, page_count, word_count, is_scanned, created_at, updated_at, claimed_at
	`, domain.StatusProcessing, stage, domain.StatusPending)

	var out domain.StagingItem
	if err := scanStaging(row, &out); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StagingItem{}, false, nil
		}
		return domain.StagingItem{}, false, fmt.Errorf("pgstore: claim next %s: %w", stage, err)
	}
	return out, true, nil
}

// ClaimByID performs the CAS claim pending->processing for a specific
// staging item, used when a stage worker picks up a queue message naming
// that item rather than polling for the oldest pending row. Returns
// (zero, false, nil) if the item was already claimed by another worker.
func (s *PGStore) ClaimByID(ctx context.Context, id string) (domain.StagingItem, bool, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE staging_items SET status = $1, claimed_at = now(), updated_at = now()
		WHERE id = $2 AND status = $3
		RETURNING id, external_id, batch_id, stage, status, retry_count, last_error, primary_pdf_url,
			pdf_content_hash, page_count, word_count, is_scanned, created_at, updated_at, claimed_at
	`, domain.StatusProcessing, id, domain.StatusPending)

	var out domain.StagingItem
	if err := scanStaging(row, &out); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StagingItem{}, false, nil
		}
		return domain.StagingItem{}, false, fmt.Errorf("pgstore: claim %s: %w", id, err)
	}
	return out, true, nil
}

// TransitionStatus performs the CAS transition from processing to a
// terminal status (completed/failed/skipped), or advances to the next
// stage's pending row on success. Returns the stage the item was advanced
// to, if any (false for a terminal completion or a non-completed status).
// Returns domain.ErrStaleCAS if the row was not in the expected
// "processing" state (lost race, double-ack, or bug).
func (s *PGStore) TransitionStatus(ctx context.Context, id string, to domain.Status, lastErr string) (domain.Stage, bool, error) {
	if !domain.CanTransition(domain.StatusProcessing, to) {
		return "", false, fmt.Errorf("%w: processing -> %s", domain.ErrInvalidStatus, to)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE staging_items SET status = $1, last_error = $2, updated_at = now()
		WHERE id = $3 AND status = $4
	`, to, lastErr, id, domain.StatusProcessing)
	if err != nil {
		return "", false, fmt.Errorf("pgstore: transition %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return "", false, fmt.Errorf("%w: staging_item %s", domain.ErrStaleCAS, id)
	}

	if to != domain.StatusCompleted {
		return "", false, nil
	}

	item, err := s.getStaging(ctx, id)
	if err != nil {
		return "", false, err
	}
	next, ok := domain.NextStage(item.Stage)
	if !ok {
		return "", false, nil // embed is terminal
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE staging_items SET stage = $1, status = $2, retry_count = 0, updated_at = now()
		WHERE id = $3
	`, next, domain.StatusPending, id)
	if err != nil {
		return "", false, fmt.Errorf("pgstore: advance stage %s: %w", id, err)
	}
	return next, true, nil
}

// Requeue resets a failed or skipped StagingItem back to pending with a fresh
// retry budget; a completed item is left as it is and reported as an error.
// This is the primitive behind the operator's "requeue" control (supplements
// the distilled spec with the original's reprocess-script behaviour). Returns
// the stage the item was requeued at, so the caller can wake the right
// worker.
func (s *PGStore) Requeue(ctx context.Context, id string) (domain.Stage, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE staging_items SET status = $1, retry_count = 0, last_error = '', updated_at = now()
		WHERE id = $2 AND status IN ($3, $4)
		RETURNING stage
	`, domain.StatusPending, id, domain.StatusFailed, domain.StatusSkipped)
	var stage domain.Stage
	if err := row.Scan(&stage); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("pgstore: requeue %s: not in a failed or skipped state", id)
		}
		return "", fmt.Errorf("pgstore: requeue %s: %w", id, err)
	}
	return stage, nil
}

// IncrementRetry bumps a StagingItem's retry count and, if it has exceeded
// the caller's max, moves it straight to failed instead of back to pending.
func (s *PGStore) IncrementRetry(ctx context.Context, id string, maxRetries int, lastErr string) (retries int, exhausted bool, err error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE staging_items SET retry_count = retry_count + 1, last_error = $1, updated_at = now()
		WHERE id = $2
		RETURNING retry_count
	`, lastErr, id)
	if err := row.Scan(&retries); err != nil {
		return 0, false, fmt.Errorf("pgstore: increment retry %s: %w", id, err)
	}
	exhausted = retries >= maxRetries
	if exhausted {
		if _, _, err := s.TransitionStatus(ctx, id, domain.StatusFailed, lastErr); err != nil {
			return retries, true, err
		}
	} else {
		if _, err := s.pool.Exec(ctx, `UPDATE staging_items SET status = $1 WHERE id = $2`, domain.StatusPending, id); err != nil {
			return retries, false, fmt.Errorf("pgstore: requeue after retry %s: %w", id, err)
		}
	}
	return retries, exhausted, nil
}

func (s *PGStore) getStaging(ctx context.Context, id string) (domain.StagingItem, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, external_id, batch_id, stage, status, retry_count, last_error, primary_pdf_url,
			pdf_content_hash, page_count, word_count, is_scanned, created_at, updated_at, claimed_at
		FROM staging_items WHERE id = $1
	`, id)
	var out domain.StagingItem
	if err := scanStaging(row, &out); err != nil {
		return domain.StagingItem{}, fmt.Errorf("pgstore: get staging %s: %w", id, err)
	}
	return out, nil
}

// SetPrimaryPDFURL records the resolved primary document URL for a staging
// item (after the fetch stage's document classification / fallback lookup).
func (s *PGStore) SetPrimaryPDFURL(ctx context.Context, id, url string) error {
	_, err := s.pool.Exec(ctx, `UPDATE staging_items SET primary_pdf_url = $1, updated_at = now() WHERE id = $2`, url, id)
	if err != nil {
		return fmt.Errorf("pgstore: set primary pdf url %s: %w", id, err)
	}
	return nil
}

// SetPDFContentHash records the content-addressed hash of a staging item's
// processed document, letting a later stage (a separate worker process)
// recover the extracted text from the Document Processor's artifact store.
func (s *PGStore) SetPDFContentHash(ctx context.Context, id, hash string) error {
	_, err := s.pool.Exec(ctx, `UPDATE staging_items SET pdf_content_hash = $1, updated_at = now() WHERE id = $2`, hash, id)
	if err != nil {
		return fmt.Errorf("pgstore: set pdf content hash %s: %w", id, err)
	}
	return nil
}

// SetPDFArtifactMeta records the pdf stage's page/word counts and scanned
// classification onto the staging item, so the llm stage (a later worker,
// re-fetching the row via ClaimNext/ClaimByID) can carry them forward onto
// the Extraction it creates.
func (s *PGStore) SetPDFArtifactMeta(ctx context.Context, id string, pageCount, wordCount int, isScanned bool) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE staging_items SET page_count = $1, word_count = $2, is_scanned = $3, updated_at = now()
		WHERE id = $4
	`, pageCount, wordCount, isScanned, id)
	if err != nil {
		return fmt.Errorf("pgstore: set pdf artifact meta %s: %w", id, err)
	}
	return nil
}

// GetGrantByExternalID looks up a Grant by its registry external_id, used
// by the llm stage to attach an Extraction to the Grant the fetch stage
// already upserted.
func (s *PGStore) GetGrantByExternalID(ctx context.Context, externalID string) (domain.Grant, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, external_id, title, organism_name, publication_date, deadline_date,
			is_open, total_amount, sectores_normalizados, document_urls, created_at, updated_at
		FROM grants WHERE external_id = $1
	`, externalID)
	var out domain.Grant
	if err := row.Scan(&out.ID, &out.ExternalID, &out.Title, &out.OrganismName,
		&out.PublicationDate, &out.DeadlineDate, &out.IsOpen, &out.TotalAmount,
		&out.SectoresNormalizados, &out.DocumentURLs, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return domain.Grant{}, fmt.Errorf("pgstore: get grant %s: %w", externalID, err)
	}
	return out, nil
}

// ExtractionByStagingItem looks up the Extraction a staging item's llm
// stage produced, used by the embed stage to recover the extraction id and
// summary text without an in-memory handoff between workers.
func (s *PGStore) ExtractionByStagingItem(ctx context.Context, stagingItemID string) (domain.Extraction, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, grant_id, staging_item_id, summary, objective, requirements, deadline,
			funding_amount, sectors, instrument, procedure, admin_type, admin_level,
			admin_scope, beneficiary_types, nuts_code, raw_fields, confidence,
			extracted_text, page_count, word_count, is_scanned, extraction_model, created_at
		FROM extractions WHERE staging_item_id = $1
	`, stagingItemID)
	var out domain.Extraction
	if err := scanExtraction(row, &out); err != nil {
		return domain.Extraction{}, fmt.Errorf("pgstore: get extraction for staging item %s: %w", stagingItemID, err)
	}
	return out, nil
}

// ExtractionByGrantID looks up the Extraction attached to a grant, used by
// find_similar to recover the reference grant's embedding and summary
// without requiring the caller to already know the extraction id.
func (s *PGStore) ExtractionByGrantID(ctx context.Context, grantID string) (domain.Extraction, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, grant_id, staging_item_id, summary, objective, requirements, deadline,
			funding_amount, sectors, instrument, procedure, admin_type, admin_level,
			admin_scope, beneficiary_types, nuts_code, raw_fields, confidence,
			extracted_text, page_count, word_count, is_scanned, extraction_model, created_at
		FROM extractions WHERE grant_id = $1
	`, grantID)
	var out domain.Extraction
	if err := scanExtraction(row, &out); err != nil {
		return domain.Extraction{}, fmt.Errorf("pgstore: get extraction for grant %s: %w", grantID, err)
	}
	return out, nil
}

// CreateExtraction stores the LLM-derived fields for a grant's primary
// document. One Extraction per Grant: a second call for the same grant_id
// replaces the prior row (re-extraction), per the 1:1:1 chain invariant.
func (s *PGStore) CreateExtraction(ctx context.Context, e domain.Extraction) (domain.Extraction, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	raw := e.RawFields
	if raw == nil {
		raw = []byte("{}")
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO extractions (id, grant_id, staging_item_id, summary, objective,
			requirements, deadline, funding_amount, sectors, instrument, procedure,
			admin_type, admin_level, admin_scope, beneficiary_types, nuts_code,
			raw_fields, confidence, extracted_text, page_count, word_count, is_scanned,
			extraction_model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, now())
		ON CONFLICT (grant_id) DO UPDATE SET
			staging_item_id = EXCLUDED.staging_item_id,
			summary = EXCLUDED.summary,
			objective = EXCLUDED.objective,
			requirements = EXCLUDED.requirements,
			deadline = EXCLUDED.deadline,
			funding_amount = EXCLUDED.funding_amount,
			sectors = EXCLUDED.sectors,
			instrument = EXCLUDED.instrument,
			procedure = EXCLUDED.procedure,
			admin_type = EXCLUDED.admin_type,
			admin_level = EXCLUDED.admin_level,
			admin_scope = EXCLUDED.admin_scope,
			beneficiary_types = EXCLUDED.beneficiary_types,
			nuts_code = EXCLUDED.nuts_code,
			raw_fields = EXCLUDED.raw_fields,
			confidence = EXCLUDED.confidence,
			extracted_text = EXCLUDED.extracted_text,
			page_count = EXCLUDED.page_count,
			word_count = EXCLUDED.word_count,
			is_scanned = EXCLUDED.is_scanned,
			extraction_model = EXCLUDED.extraction_model
		RETURNING id, grant_id, staging_item_id, summary, objective, requirements, deadline,
			funding_amount, sectors, instrument, procedure, admin_type, admin_level,
			admin_scope, beneficiary_types, nuts_code, raw_fields, confidence,
			extracted_text, page_count, word_count, is_scanned, extraction_model, created_at
	`, e.ID, e.GrantID, e.StagingItemID, e.Summary, e.Objective, e.Requirements, e.Deadline,
		e.FundingAmount, e.Sectors, e.Instrument, e.Procedure, e.AdminType, e.AdminLevel,
		e.AdminScope, e.BeneficiaryTypes, e.NUTSCode, raw, e.Confidence,
		e.ExtractedText, e.PageCount, e.WordCount, e.IsScanned, e.ExtractionModel)

	var out domain.Extraction
	if err := scanExtraction(row, &out); err != nil {
		return domain.Extraction{}, fmt.Errorf("pgstore: create extraction: %w", err)
	}
	return out, nil
}

// BackfillGrantSectors copies an Extraction's normalized sectors onto its
// Grant only if the Grant does not already have sectors of its own — the
// Grant's own sectores_normalizados is always authoritative when present.
func (s *PGStore) BackfillGrantSectors(ctx context.Context, grantID string, sectors []string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE grants SET sectores_normalizados = $1, updated_at = now()
		WHERE id = $2 AND (sectores_normalizados IS NULL OR array_length(sectores_normalizados, 1) IS NULL)
	`, sectors, grantID)
	if err != nil {
		return fmt.Errorf("pgstore: backfill sectors %s: %w", grantID, err)
	}
	return nil
}

// CreateEmbedding records the relational audit row for a stored vector
// (the vector itself lives in the VectorIndex).
func (s *PGStore) CreateEmbedding(ctx context.Context, extractionID, model string, dims int) (domain.Embedding, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO embeddings (id, extraction_id, model, dimensions, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (extraction_id) DO UPDATE SET model = EXCLUDED.model, dimensions = EXCLUDED.dimensions
		RETURNING id, extraction_id, model, dimensions, created_at
	`, uuid.NewString(), extractionID, model, dims)
	var out domain.Embedding
	if err := row.Scan(&out.ID, &out.ExtractionID, &out.Model, &out.Dimensions, &out.CreatedAt); err != nil {
		return domain.Embedding{}, fmt.Errorf("pgstore: create embedding: %w", err)
	}
	return out, nil
}

// Stats reports per-status/per-stage counts and extraction/embedding
// coverage ratios, supplementing the distilled spec's stats() with the
// detail original_source's export_stats.py reports.
type Stats struct {
	ByStageStatus      map[domain.Stage]map[domain.Status]int
	GrantCount         int
	ExtractionCoverage float64 // extractions / grants
	EmbeddingCoverage  float64 // embeddings / extractions
}

func (s *PGStore) Stats(ctx context.Context) (Stats, error) {
	out := Stats{ByStageStatus: make(map[domain.Stage]map[domain.Status]int)}

	rows, err := s.pool.Query(ctx, `SELECT stage, status, count(*) FROM staging_items GROUP BY stage, status`)
	if err != nil {
		return Stats{}, fmt.Errorf("pgstore: stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var stage domain.Stage
		var status domain.Status
		var n int
		if err := rows.Scan(&stage, &status, &n); err != nil {
			return Stats{}, fmt.Errorf("pgstore: stats scan: %w", err)
		}
		if out.ByStageStatus[stage] == nil {
			out.ByStageStatus[stage] = make(map[domain.Status]int)
		}
		out.ByStageStatus[stage][status] = n
	}

	var grants, extractions, embeddings int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM grants`).Scan(&grants); err != nil {
		return Stats{}, fmt.Errorf("pgstore: stats grants: %w", err)
	}
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM extractions`).Scan(&extractions); err != nil {
		return Stats{}, fmt.Errorf("pgstore: stats extractions: %w", err)
	}
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM embeddings`).Scan(&embeddings); err != nil {
		return Stats{}, fmt.Errorf("pgstore: stats embeddings: %w", err)
	}
	out.GrantCount = grants
	if grants > 0 {
		out.ExtractionCoverage = float64(extractions) / float64(grants)
	}
	if extractions > 0 {
		out.EmbeddingCoverage = float64(embeddings) / float64(extractions)
	}
	return out, nil
}

func scanStaging(row pgx.Row, out *domain.StagingItem) error {
	return row.Scan(&out.ID, &out.ExternalID, &out.BatchID, &out.Stage, &out.Status, &out.RetryCount,
		&out.LastError, &out.PrimaryPDFURL, &out.PDFContentHash, &out.PageCount, &out.WordCount,
		&out.IsScanned, &out.CreatedAt, &out.UpdatedAt, &out.ClaimedAt)
}

func scanStagingInserted(row pgx.Row, out *domain.StagingItem, inserted *bool) error {
	return row.Scan(&out.ID, &out.ExternalID, &out.BatchID, &out.Stage, &out.Status, &out.RetryCount,
		&out.LastError, &out.PrimaryPDFURL, &out.PDFContentHash, &out.PageCount, &out.WordCount,
		&out.IsScanned, &out.CreatedAt, &out.UpdatedAt, &out.ClaimedAt, inserted)
}

func scanExtraction(row pgx.Row, out *domain.Extraction) error {
	return row.Scan(&out.ID, &out.GrantID, &out.StagingItemID, &out.Summary, &out.Objective,
		&out.Requirements, &out.Deadline, &out.FundingAmount, &out.Sectors, &out.Instrument,
		&out.Procedure, &out.AdminType, &out.AdminLevel, &out.AdminScope, &out.BeneficiaryTypes,
		&out.NUTSCode, &out.RawFields, &out.Confidence, &out.ExtractedText, &out.PageCount,
		&out.WordCount, &out.IsScanned, &out.ExtractionModel, &out.CreatedAt)
}

// MarshalRawFields serializes the full LLM field set for storage in the
// extraction's raw_fields JSONB column, alongside the narrower typed columns.
func MarshalRawFields(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("pgstore: marshal raw fields: %w", err)
	}
	return b, nil
}
