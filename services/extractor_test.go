package services

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"grant-platform-backend/internal/config"
)

func newTestExtractor(maxSize int64) *TextExtractor {
	return NewTextExtractor(&config.Config{MaxFileSize: maxSize})
}

func TestExtractPlainTextVerbatim(t *testing.T) {
	e := newTestExtractor(10 << 20)

	input := "Project narrative\n\nBudget justification follows."
	got, err := e.Extract([]byte(input), "txt")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if got != input {
		t.Errorf("Expected verbatim text, got %q", got)
	}
}

func TestExtractUnsupportedFormatIsFatal(t *testing.T) {
	e := newTestExtractor(10 << 20)

	_, err := e.Extract([]byte("binary junk"), "exe")
	if err == nil {
		t.Fatal("Expected error for unsupported format")
	}
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
	if !IsFatalExtractionError(err) {
		t.Error("Unsupported format should be fatal")
	}
}

func TestExtractOversizedInputIsFatal(t *testing.T) {
	e := newTestExtractor(16)

	_, err := e.Extract([]byte(strings.Repeat("a", 32)), "txt")
	if err == nil {
		t.Fatal("Expected error for oversized input")
	}
	if !errors.Is(err, ErrOversizedInput) {
		t.Errorf("Expected ErrOversizedInput, got %v", err)
	}
	if !IsFatalExtractionError(err) {
		t.Error("Oversized input should be fatal")
	}
}

func TestExtractFileTypeNormalization(t *testing.T) {
	e := newTestExtractor(10 << 20)

	got, err := e.Extract([]byte("hello"), ".TXT")
	if err != nil {
		t.Fatalf("Extract failed for dotted uppercase type: %v", err)
	}
	if got != "hello" {
		t.Errorf("Expected %q, got %q", "hello", got)
	}
}

func TestExtractSpreadsheet(t *testing.T) {
	workbook := excelize.NewFile()
	if err := workbook.SetSheetRow("Sheet1", "A1", &[]interface{}{"Organization", "Amount"}); err != nil {
		t.Fatalf("Failed to build workbook: %v", err)
	}
	if err := workbook.SetSheetRow("Sheet1", "A2", &[]interface{}{"Acme Trust", "50000"}); err != nil {
		t.Fatalf("Failed to build workbook: %v", err)
	}

	var buf bytes.Buffer
	if err := workbook.Write(&buf); err != nil {
		t.Fatalf("Failed to serialize workbook: %v", err)
	}

	e := newTestExtractor(10 << 20)
	got, err := e.Extract(buf.Bytes(), "xlsx")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if !strings.Contains(got, "Sheet Sheet1:") {
		t.Errorf("Expected sheet header in output, got %q", got)
	}
	if !strings.Contains(got, "Acme Trust") || !strings.Contains(got, "50000") {
		t.Errorf("Expected cell values in output, got %q", got)
	}
}

func TestExtractHTMLStripsMarkup(t *testing.T) {
	e := newTestExtractor(10 << 20)

	html := `<html><head><style>body{color:red}</style></head><body><h1>Eligibility</h1><script>alert(1)</script><p>Nonprofits only.</p></body></html>`
	got, err := e.Extract([]byte(html), "html")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if !strings.Contains(got, "Eligibility") || !strings.Contains(got, "Nonprofits only.") {
		t.Errorf("Expected body text, got %q", got)
	}
	if strings.Contains(got, "alert(1)") || strings.Contains(got, "color:red") {
		t.Errorf("Expected script and style content stripped, got %q", got)
	}
}
