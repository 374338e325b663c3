package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const (
	// MaxExtractedTextLength caps persisted extracted text, in runes.
	MaxExtractedTextLength = 15000
	// MIMETypePDF is the only content type text is extracted from.
	MIMETypePDF = "application/pdf"
)

var errEmptyDocument = errors.New("extract: empty document")

// PDFExtractor pulls plain text out of PDF bytes.
type PDFExtractor struct {
	maxLength int
}

// NewPDFExtractor returns an extractor truncating output to maxLength runes (MaxExtractedTextLength when <= 0).
func NewPDFExtractor(maxLength int) *PDFExtractor {
	if maxLength <= 0 {
		maxLength = MaxExtractedTextLength
	}
	return &PDFExtractor{maxLength: maxLength}
}

// Supports reports whether contentType is extractable.
func (e *PDFExtractor) Supports(contentType string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	return mediaType == MIMETypePDF
}

// ExtractText returns the document's text truncated to the configured cap.
func (e *PDFExtractor) ExtractText(ctx context.Context, data []byte) (text string, err error) {
	if len(data) == 0 {
		return "", errEmptyDocument
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// The parser panics on some malformed inputs.
	defer func() {
		if recovered := recover(); recovered != nil {
			text = ""
			err = fmt.Errorf("extract: malformed pdf: %v", recovered)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("extract: open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract: read text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("extract: read text: %w", err)
	}
	return Truncate(strings.TrimSpace(string(raw)), e.maxLength), nil
}

// Truncate cuts text to at most maxRunes runes without splitting a rune.
func Truncate(text string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	count := 0
	for index := range text {
		if count == maxRunes {
			return text[:index]
		}
		count++
	}
	return text
}
