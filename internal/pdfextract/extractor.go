// Package pdfextract turns an uploaded blood-report PDF into plain text and
// checks that the text looks like a medical report.
package pdfextract

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/me/bloodlens/internal/validate"
	"github.com/me/bloodlens/pkg/model"
)

// Document is an opened PDF.
type Document interface {
	NumPage() int
	// PageText returns the plain text of page i (1-based).
	PageText(i int) (string, error)
}

// OpenFunc opens a PDF from random-access bytes.
type OpenFunc func(r io.ReaderAt, size int64) (Document, error)

// OpenPDF opens a PDF with github.com/ledongthuc/pdf. The library panics on
// some malformed input; panics are returned as errors.
func OpenPDF(r io.ReaderAt, size int64) (doc Document, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			doc, err = nil, fmt.Errorf("malformed PDF: %v", rec)
		}
	}()
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, err
	}
	return &pdfDocument{reader: reader}, nil
}

type pdfDocument struct {
	reader *pdf.Reader
}

func (d *pdfDocument) NumPage() int {
	return d.reader.NumPage()
}

func (d *pdfDocument) PageText(i int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("page %d: %v", i, rec)
		}
	}()
	page := d.reader.Page(i)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

// Config bounds what Extract accepts.
type Config struct {
	MaxSizeMB      int
	MaxPages       int
	MinTextLength  int
	Terms          []string // medical vocabulary for the content heuristic
	MinTermMatches int
}

// Result is the outcome of a successful extraction.
type Result struct {
	Text         string
	Pages        int
	MatchedTerms []string
}

// Extractor validates and extracts uploaded PDFs.
type Extractor struct {
	cfg    Config
	open   OpenFunc
	logger *slog.Logger
}

// New creates an Extractor backed by OpenPDF.
func New(cfg Config, logger *slog.Logger) *Extractor {
	return &Extractor{
		cfg:    cfg,
		open:   OpenPDF,
		logger: logger.With("component", "pdfextract"),
	}
}

// WithOpener replaces the PDF backend.
func (e *Extractor) WithOpener(open OpenFunc) *Extractor {
	e.open = open
	return e
}

// Config returns the extractor limits.
func (e *Extractor) Config() Config {
	return e.cfg
}

// Extract validates the upload named name and returns its text. All failures
// are VALIDATION_ERRORs with a message fit for display.
func (e *Extractor) Extract(name string, r io.ReaderAt, size int64) (*Result, error) {
	if err := validate.PDFFile(name, size, e.cfg.MaxSizeMB); err != nil {
		return nil, err
	}

	doc, err := e.open(r, size)
	if err != nil {
		e.logger.Warn("open pdf failed", "file", name, "error", err)
		return nil, extractionError(err)
	}

	pages := doc.NumPage()
	if pages > e.cfg.MaxPages {
		return nil, model.NewValidationError(fmt.Sprintf("PDF exceeds maximum page limit of %d", e.cfg.MaxPages))
	}

	texts := make([]string, 0, pages)
	for i := 1; i <= pages; i++ {
		text, err := doc.PageText(i)
		if err != nil {
			e.logger.Warn("page extraction failed", "file", name, "page", i, "error", err)
			return nil, extractionError(err)
		}
		if text == "" {
			return nil, model.NewValidationError("Could not extract text from PDF. Please ensure it's not a scanned document.")
		}
		texts = append(texts, text)
	}

	full := strings.TrimSpace(strings.Join(texts, "\n"))
	if len(full) < e.cfg.MinTextLength {
		return nil, model.NewValidationError("Extracted text is too short. Please ensure the PDF contains valid text.")
	}

	if err := validate.PDFContent(full, e.cfg.Terms, e.cfg.MinTermMatches); err != nil {
		return nil, err
	}

	e.logger.Debug("pdf extracted", "file", name, "pages", pages, "chars", len(full))
	return &Result{
		Text:         full,
		Pages:        pages,
		MatchedTerms: validate.MatchTerms(full, e.cfg.Terms),
	}, nil
}

func extractionError(err error) error {
	apiErr := model.NewValidationError("Error extracting text from PDF: " + err.Error())
	apiErr.Cause = err
	return apiErr
}
