package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"PDFAnnouncer/internal/ports"
)

// Native extracts the text layer in-process, page by page.
type Native struct{}

var _ ports.Extractor = (*Native)(nil)

// NewNative returns the in-process extractor.
func NewNative() *Native {
	return &Native{}
}

// Extract skips pages it cannot decode and fails only when no page could be read.
func (n *Native) Extract(ctx context.Context, raw []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	if !bytes.HasPrefix(bytes.TrimLeft(raw, "\x00\t\r\n "), []byte("%PDF")) {
		return "", errors.New("missing %PDF header")
	}

	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}

	var (
		pages  []string
		failed int
	)
	total := r.NumPage()
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			failed++
			continue
		}
		pages = append(pages, pageText)
	}

	if failed > 0 && len(pages) == 0 {
		return "", fmt.Errorf("all %d pages failed to decode", failed)
	}

	return Normalize(strings.Join(pages, "\n")), nil
}
