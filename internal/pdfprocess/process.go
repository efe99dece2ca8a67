// Package pdfprocess implements the Document Processor (spec C3): content
// addressing, page-text extraction, scanned-PDF detection, and markdown
// artifact generation for a grant's primary PDF.
package pdfprocess

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/wessley-grants/ingestor/internal/domain"
)

// minCharsPerPage below this threshold marks a PDF as scanned (no
// extractable text layer), grounded on original_source's scanned-document
// heuristic.
const minCharsPerPage = 100

// Artifact is the result of processing one PDF. A scanned PDF (no
// extractable text layer) still produces a valid Artifact with IsScanned
// set, per spec's "scanned PDFs don't abort downstream stages" rule.
type Artifact struct {
	ContentHash  string // sha256 hex digest of the raw PDF bytes
	StoredPath   string // content-addressed path under the artifact store root
	MarkdownPath string
	PageCount    int
	WordCount    int
	IsScanned    bool
	Text         string
}

// Processor hashes, stores, and extracts text from PDF bytes supplied by the
// caller; it does not download documents itself.
type Processor struct {
	StoreRoot string
}

// NewProcessor creates a Processor rooted at storeRoot.
func NewProcessor(storeRoot string) *Processor {
	return &Processor{StoreRoot: storeRoot}
}

// Process runs the six-step algorithm: hash -> content-address -> persist ->
// extract page text -> detect scanned -> emit markdown. A scanned PDF (no
// extractable text layer) is not an error: it still produces a markdown
// artifact and an Artifact with IsScanned=true, so downstream stages keep
// running (spec §4.3 step 4, §7 ScannedPdf). Only a body that isn't a PDF at
// all (ErrNotPDF) is a processing failure the caller should treat as skip.
func (p *Processor) Process(raw []byte, externalID string) (Artifact, error) {
	if len(raw) < 4 || string(raw[:4]) != "%PDF" {
		return Artifact{}, domain.ErrNotPDF
	}

	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])

	storedPath := p.contentPath(hash, ".pdf")
	if err := p.persist(storedPath, raw); err != nil {
		return Artifact{}, fmt.Errorf("pdfprocess: persist %s: %w", externalID, err)
	}

	text, pages, err := extractText(storedPath)
	if err != nil {
		return Artifact{}, fmt.Errorf("pdfprocess: extract %s: %w", externalID, err)
	}

	scanned := pages > 0 && len(text)/pages < minCharsPerPage
	words := len(strings.Fields(text))

	mdPath := p.contentPath(hash, ".md")
	md := toMarkdown(text, markdownHeader{
		SourceFile: externalID,
		PageCount:  pages,
		WordCount:  words,
		Method:     "ledongthuc/pdf page-by-page text extraction",
		IsScanned:  scanned,
	})
	if err := p.persist(mdPath, []byte(md)); err != nil {
		return Artifact{}, fmt.Errorf("pdfprocess: write markdown %s: %w", externalID, err)
	}

	return Artifact{
		ContentHash:  hash,
		StoredPath:   storedPath,
		MarkdownPath: mdPath,
		PageCount:    pages,
		WordCount:    words,
		IsScanned:    scanned,
		Text:         text,
	}, nil
}

// LoadMarkdown reads back a previously generated markdown artifact by
// content hash, letting a later pipeline stage (running in a separate
// worker process) recover a document's text without re-downloading or
// re-parsing the PDF.
func (p *Processor) LoadMarkdown(hash string) (string, error) {
	b, err := os.ReadFile(p.contentPath(hash, ".md"))
	if err != nil {
		return "", fmt.Errorf("pdfprocess: load markdown %s: %w", hash, err)
	}
	return string(b), nil
}

// contentPath derives a content-addressed path, sharding by the first two
// hex characters to avoid huge flat directories.
func (p *Processor) contentPath(hash, ext string) string {
	return filepath.Join(p.StoreRoot, hash[:2], hash+ext)
}

func (p *Processor) persist(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return nil // already stored, content-addressed write is idempotent
	}
	return os.WriteFile(path, data, 0o644)
}

func extractText(path string) (string, int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	var sb strings.Builder
	pages := r.NumPage()
	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), pages, nil
}

// markdownHeader is the short metadata block spec §4.3 step 6 requires
// ahead of a document's normalized text.
type markdownHeader struct {
	SourceFile string
	PageCount  int
	WordCount  int
	Method     string
	IsScanned  bool
}

// toMarkdown emits a header (source filename, page count, word count,
// extraction method, scanned flag) followed by the normalized page text:
// collapsed whitespace, paragraph breaks preserved.
func toMarkdown(text string, h markdownHeader) string {
	var out strings.Builder
	out.WriteString(fmt.Sprintf("# %s\n\n", h.SourceFile))
	out.WriteString(fmt.Sprintf("- pages: %d\n", h.PageCount))
	out.WriteString(fmt.Sprintf("- words: %d\n", h.WordCount))
	out.WriteString(fmt.Sprintf("- extraction method: %s\n", h.Method))
	out.WriteString(fmt.Sprintf("- scanned: %t\n\n", h.IsScanned))

	lines := strings.Split(text, "\n")
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				out.WriteString("\n")
				blank = true
			}
			continue
		}
		out.WriteString(line)
		out.WriteString("\n")
		blank = false
	}
	return out.String()
}
