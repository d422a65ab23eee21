package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/me/bloodlens/pkg/model"
)

const labText = "Laboratory Blood Test Report. Patient hemoglobin 13.5 g/dL, glucose 92 mg/dL, cholesterol 180 mg/dL."

var testTerms = []string{"blood", "test", "report", "hemoglobin", "glucose", "cholesterol"}

func testConfig() Config {
	return Config{
		MaxSizeMB:      10,
		MaxPages:       50,
		MinTextLength:  50,
		Terms:          testTerms,
		MinTermMatches: 3,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDoc struct {
	pages []string
	err   error
}

func (d *fakeDoc) NumPage() int { return len(d.pages) }

func (d *fakeDoc) PageText(i int) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return d.pages[i-1], nil
}

func opener(doc Document, err error) OpenFunc {
	return func(io.ReaderAt, int64) (Document, error) { return doc, err }
}

func TestExtract_FakeDocument(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		size    int64
		doc     *fakeDoc
		openErr error
		wantErr string
	}{
		{
			name: "valid two pages",
			file: "report.pdf",
			doc:  &fakeDoc{pages: []string{labText, "Reference range reviewed."}},
		},
		{
			name:    "wrong extension",
			file:    "report.docx",
			doc:     &fakeDoc{pages: []string{labText}},
			wantErr: "Invalid file type. Please upload a PDF file.",
		},
		{
			name:    "too large",
			file:    "report.pdf",
			size:    11 * 1024 * 1024,
			doc:     &fakeDoc{pages: []string{labText}},
			wantErr: "File size exceeds 10MB limit",
		},
		{
			name:    "open failure",
			file:    "report.pdf",
			openErr: errors.New("malformed xref"),
			wantErr: "Error extracting text from PDF: malformed xref",
		},
		{
			name:    "too many pages",
			file:    "report.pdf",
			doc:     &fakeDoc{pages: make([]string, 51)},
			wantErr: "PDF exceeds maximum page limit of 50",
		},
		{
			name:    "scanned page",
			file:    "report.pdf",
			doc:     &fakeDoc{pages: []string{labText, ""}},
			wantErr: "Could not extract text from PDF. Please ensure it's not a scanned document.",
		},
		{
			name:    "whitespace only document",
			file:    "report.pdf",
			doc:     &fakeDoc{pages: []string{"  \n\t"}},
			wantErr: "Extracted text is too short.",
		},
		{
			name:    "page error",
			file:    "report.pdf",
			doc:     &fakeDoc{pages: []string{labText}, err: errors.New("bad font")},
			wantErr: "Error extracting text from PDF: bad font",
		},
		{
			name:    "too short",
			file:    "report.pdf",
			doc:     &fakeDoc{pages: []string{"blood test report"}},
			wantErr: "Extracted text is too short. Please ensure the PDF contains valid text.",
		},
		{
			name:    "not medical",
			file:    "invoice.pdf",
			doc:     &fakeDoc{pages: []string{"Invoice 2024-113 for consulting services rendered in March, net 30 days."}},
			wantErr: "doesn't appear to be a medical report",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var doc Document
			if tt.doc != nil {
				doc = tt.doc
			}
			size := tt.size
			if size == 0 {
				size = 1024
			}
			e := New(testConfig(), discardLogger()).WithOpener(opener(doc, tt.openErr))

			res, err := e.Extract(tt.file, bytes.NewReader(nil), size)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q", tt.wantErr)
				}
				if model.CodeOf(err) != model.ErrValidation {
					t.Errorf("code = %s, want VALIDATION_ERROR", model.CodeOf(err))
				}
				if !strings.Contains(model.UserMessage(err), tt.wantErr) {
					t.Errorf("message = %q, want containing %q", model.UserMessage(err), tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if res.Pages != 2 {
				t.Errorf("pages = %d, want 2", res.Pages)
			}
			if res.Text != labText+"\nReference range reviewed." {
				t.Errorf("text = %q", res.Text)
			}
			if len(res.MatchedTerms) < 3 {
				t.Errorf("matched terms = %v", res.MatchedTerms)
			}
		})
	}
}

func TestExtract_RealPDF(t *testing.T) {
	data := buildPDF(labText, "Specimen reviewed by the laboratory.")
	e := New(testConfig(), discardLogger())

	res, err := e.Extract("lab.pdf", bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Pages != 2 {
		t.Errorf("pages = %d, want 2", res.Pages)
	}
	if !strings.Contains(res.Text, "hemoglobin 13.5 g/dL") {
		t.Errorf("text missing first page content: %q", res.Text)
	}
	if !strings.Contains(res.Text, "Specimen reviewed") {
		t.Errorf("text missing second page content: %q", res.Text)
	}
}

func TestExtract_GarbageBytes(t *testing.T) {
	data := []byte(strings.Repeat("this is not a pdf file at all ", 10))
	e := New(testConfig(), discardLogger())

	_, err := e.Extract("fake.pdf", bytes.NewReader(data), int64(len(data)))
	if err == nil {
		t.Fatal("expected error for non-PDF bytes")
	}
	if !strings.HasPrefix(model.UserMessage(err), "Error extracting text from PDF: ") {
		t.Errorf("message = %q", model.UserMessage(err))
	}
}

// buildPDF writes a minimal uncompressed PDF with one Helvetica text line per page.
func buildPDF(pages ...string) []byte {
	var objects []string
	n := len(pages)
	fontID := 3 + 2*n
	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n),
	)
	for i, text := range pages {
		content := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>", fontID, 4+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}
	objects = append(objects, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestExtract_WhitespacePageIsNotScanned(t *testing.T) {
	doc := &fakeDoc{pages: []string{labText, " \n ", "Reference range reviewed."}}
	e := New(testConfig(), discardLogger()).WithOpener(opener(doc, nil))

	res, err := e.Extract("report.pdf", bytes.NewReader(nil), 1024)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Pages != 3 {
		t.Errorf("pages = %d, want 3", res.Pages)
	}
	if !strings.HasPrefix(res.Text, labText) || !strings.HasSuffix(res.Text, "Reference range reviewed.") {
		t.Errorf("text = %q", res.Text)
	}
}
