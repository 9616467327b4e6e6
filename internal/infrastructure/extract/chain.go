package extract

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"PDFAnnouncer/internal/ports"
)

// Chain tries extractors in order and keeps the first non-empty result.
type Chain struct {
	extractors []ports.Extractor
	logger     *slog.Logger
}

var _ ports.Extractor = (*Chain)(nil)

// NewChain wires the extractors to try.
func NewChain(log *slog.Logger, extractors ...ports.Extractor) *Chain {
	return &Chain{extractors: extractors, logger: log}
}

// Extract returns "" with no error when every backend succeeded without finding text
// (image-only PDFs). It errors only when every backend failed.
func (c *Chain) Extract(ctx context.Context, raw []byte) (string, error) {
	var (
		errs      []error
		succeeded bool
	)
	for _, ex := range c.extractors {
		text, err := ex.Extract(ctx, raw)
		if err != nil {
			if c.logger != nil && !errors.Is(err, ErrUnavailable) {
				c.logger.Debug("extractor failed", "error", err)
			}
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		succeeded = true
		if text != "" {
			return text, nil
		}
	}

	if succeeded {
		return "", nil
	}
	if len(errs) == 0 {
		return "", errors.New("no extractor configured")
	}
	return "", errors.Join(errs...)
}

var (
	inlineSpace = regexp.MustCompile(`[ \t\x{00a0}]+`)
	blankLines  = regexp.MustCompile(`\n{3,}`)
)

// Normalize converts extractor output to NFC, maps page breaks to newlines, collapses
// runs of inline whitespace and squeezes blank lines.
func Normalize(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\f", "\n")
	text = strings.ToValidUTF8(text, "")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(inlineSpace.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
