package services

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"code.sajari.com/docconv"
	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"grant-platform-backend/internal/config"
	"grant-platform-backend/internal/logger"
)

var (
	// ErrUnsupportedFormat marks a file type no extractor can handle.
	// Retrying will never help.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrOversizedInput marks a payload above the extraction size cap.
	ErrOversizedInput = errors.New("file exceeds maximum extraction size")
)

// IsFatalExtractionError reports whether an extraction error is permanent,
// as opposed to a transient failure worth retrying.
func IsFatalExtractionError(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) || errors.Is(err, ErrOversizedInput)
}

// TextExtractor converts uploaded document bytes into plain text. Dispatch
// is driven by the stored file type, not by sniffing content.
type TextExtractor struct {
	maxFileSize int64
}

func NewTextExtractor(cfg *config.Config) *TextExtractor {
	return &TextExtractor{maxFileSize: cfg.MaxFileSize}
}

// Extract returns the plain text representation of data. Fatal errors wrap
// ErrUnsupportedFormat or ErrOversizedInput; everything else is retryable.
func (e *TextExtractor) Extract(data []byte, fileType string) (string, error) {
	if int64(len(data)) > e.maxFileSize {
		return "", fmt.Errorf("%w: %d bytes (limit %d)", ErrOversizedInput, len(data), e.maxFileSize)
	}

	fileType = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(fileType), "."))

	var (
		text string
		err  error
	)

	switch fileType {
	case "pdf":
		text, err = e.extractPDF(data)
	case "doc":
		text, err = e.extractWithDocconv(data, "application/msword")
	case "docx":
		text, err = e.extractWithDocconv(data, "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	case "xls", "xlsx":
		text, err = e.extractSpreadsheet(data)
	case "html", "htm":
		text, err = e.extractHTML(data)
	case "txt", "md", "json", "csv":
		text = string(data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, fileType)
	}

	if err != nil {
		return "", fmt.Errorf("extraction failed: %w", err)
	}

	return text, nil
}

func (e *TextExtractor) extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var builder strings.Builder
	pages := reader.NumPage()

	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("Failed to extract PDF page", "page", i, "error", err)
			continue
		}

		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(text)
	}

	if builder.Len() == 0 {
		return "", fmt.Errorf("no text extracted from PDF")
	}

	return builder.String(), nil
}

func (e *TextExtractor) extractWithDocconv(data []byte, mimeType string) (string, error) {
	res, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
	if err != nil {
		return "", fmt.Errorf("docconv conversion failed: %w", err)
	}
	if res.Body == "" {
		return "", fmt.Errorf("no text extracted from document")
	}
	return res.Body, nil
}

func (e *TextExtractor) extractSpreadsheet(data []byte) (string, error) {
	workbook, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer workbook.Close()

	var sheets []string
	for _, name := range workbook.GetSheetList() {
		rows, err := workbook.GetRows(name)
		if err != nil {
			logger.Warn("Failed to read spreadsheet rows", "sheet", name, "error", err)
			continue
		}

		var builder strings.Builder
		builder.WriteString(fmt.Sprintf("Sheet %s:\n", name))
		for _, row := range rows {
			builder.WriteString(strings.Join(row, "\t"))
			builder.WriteString("\n")
		}
		sheets = append(sheets, builder.String())
	}

	if len(sheets) == 0 {
		return "", fmt.Errorf("no readable sheets in spreadsheet")
	}

	return strings.Join(sheets, "\n\n"), nil
}

func (e *TextExtractor) extractHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	text := strings.TrimSpace(doc.Text())
	if text == "" {
		return "", fmt.Errorf("no text extracted from HTML")
	}

	return text, nil
}
