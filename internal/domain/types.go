// Package domain defines the core entities and lifecycle rules of the
// grants-registry ingestion pipeline. It acts as the validation gate at
// every pipeline entry point.
package domain

import "time"

// Status is the lifecycle state of a StagingItem at a given Stage.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// ValidStatuses is the set of recognised lifecycle states.
var ValidStatuses = map[Status]bool{
	StatusPending: true, StatusProcessing: true, StatusCompleted: true,
	StatusFailed: true, StatusSkipped: true,
}

// Stage identifies one of the four pipeline stages a StagingItem moves through.
type Stage string

const (
	StageFetch Stage = "fetch"
	StagePDF   Stage = "pdf"
	StageLLM   Stage = "llm"
	StageEmbed Stage = "embed"
)

// StageOrder is the fixed order stages execute in.
var StageOrder = []Stage{StageFetch, StagePDF, StageLLM, StageEmbed}

// StagingItem tracks one grant's progress through the pipeline. It is the
// unit of work claimed (via CAS) by a stage worker.
type StagingItem struct {
	ID             string     `db:"id" json:"id"`
	ExternalID     string     `db:"external_id" json:"external_id"`
	BatchID        string     `db:"batch_id" json:"batch_id,omitempty"`
	Stage          Stage      `db:"stage" json:"stage"`
	Status         Status     `db:"status" json:"status"`
	RetryCount     int        `db:"retry_count" json:"retry_count"`
	LastError      string     `db:"last_error" json:"last_error,omitempty"`
	PrimaryPDFURL  string     `db:"primary_pdf_url" json:"primary_pdf_url,omitempty"`
	PDFContentHash string     `db:"pdf_content_hash" json:"pdf_content_hash,omitempty"`
	// PageCount/WordCount/IsScanned carry the pdf stage's artifact
	// classification forward to the llm stage, which finalises them onto
	// the Extraction it creates.
	PageCount int        `db:"page_count" json:"page_count,omitempty"`
	WordCount int        `db:"word_count" json:"word_count,omitempty"`
	IsScanned bool       `db:"is_scanned" json:"is_scanned,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	ClaimedAt *time.Time `db:"claimed_at" json:"claimed_at,omitempty"`
}

// Grant is the registry's canonical record of a public grant/subsidy
// convocatoria, as returned by the Registry API Client's search/detail calls.
type Grant struct {
	ID                    string     `db:"id" json:"id"`
	ExternalID            string     `db:"external_id" json:"external_id"`
	Title                 string     `db:"title" json:"title"`
	OrganismName          string     `db:"organism_name" json:"organism_name"`
	PublicationDate       *time.Time `db:"publication_date" json:"publication_date,omitempty"`
	DeadlineDate          *time.Time `db:"deadline_date" json:"deadline_date,omitempty"`
	IsOpen                bool       `db:"is_open" json:"is_open"`
	TotalAmount           *float64   `db:"total_amount" json:"total_amount,omitempty"`
	SectoresNormalizados  []string   `db:"sectores_normalizados" json:"sectores_normalizados,omitempty"`
	DocumentURLs          []string   `db:"document_urls" json:"document_urls,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// Extraction holds the LLM-derived structured fields for a Grant's primary
// PDF document. Field names follow original_source's PDFExtraction model,
// translated to English.
type Extraction struct {
	ID               string    `db:"id" json:"id"`
	GrantID          string    `db:"grant_id" json:"grant_id"`
	StagingItemID    string    `db:"staging_item_id" json:"staging_item_id"`
	Summary          string    `db:"summary" json:"summary"`
	Objective        string    `db:"objective" json:"objective,omitempty"`
	Requirements     string    `db:"requirements" json:"requirements,omitempty"`
	Deadline         string    `db:"deadline" json:"deadline,omitempty"`
	FundingAmount    *float64  `db:"funding_amount" json:"funding_amount,omitempty"`
	Sectors          []string  `db:"sectors" json:"sectors,omitempty"`
	Instrument       string    `db:"instrument" json:"instrument,omitempty"`
	Procedure        string    `db:"procedure" json:"procedure,omitempty"`
	AdminType        string    `db:"admin_type" json:"admin_type,omitempty"`
	AdminLevel       string    `db:"admin_level" json:"admin_level,omitempty"`
	AdminScope       string    `db:"admin_scope" json:"admin_scope,omitempty"`
	BeneficiaryTypes []string  `db:"beneficiary_types" json:"beneficiary_types,omitempty"`
	NUTSCode         string    `db:"nuts_code" json:"nuts_code,omitempty"`
	RawFields        []byte    `db:"raw_fields" json:"raw_fields,omitempty"` // JSONB of the full LLM-extracted field set
	Confidence       float64   `db:"confidence" json:"confidence"`
	// Artifact/dedup fields, carried forward from the pdf stage's
	// StagingItem and the llm stage's model tag (§3, §4.5).
	ExtractedText   string    `db:"extracted_text" json:"extracted_text,omitempty"`
	PageCount       int       `db:"page_count" json:"page_count,omitempty"`
	WordCount       int       `db:"word_count" json:"word_count,omitempty"`
	IsScanned       bool      `db:"is_scanned" json:"is_scanned,omitempty"`
	ExtractionModel string    `db:"extraction_model" json:"extraction_model,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Embedding is the vector representation of an Extraction's summary, stored
// both relationally (for auditing/joins) and in the vector index (for search).
type Embedding struct {
	ID           string    `db:"id" json:"id"`
	ExtractionID string    `db:"extraction_id" json:"extraction_id"`
	Model        string    `db:"model" json:"model"`
	Dimensions   int       `db:"dimensions" json:"dimensions"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// TaskType distinguishes the embedding purpose, matching the remote
// embedding API's task_type parameter.
type TaskType string

const (
	TaskSemanticSimilarity TaskType = "SEMANTIC_SIMILARITY"
	TaskRetrievalQuery     TaskType = "RETRIEVAL_QUERY"
)
