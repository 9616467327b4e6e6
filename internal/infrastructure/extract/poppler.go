package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"PDFAnnouncer/internal/ports"
)

// ErrUnavailable is returned when the extraction backend is not installed.
var ErrUnavailable = errors.New("extractor unavailable")

// Poppler shells out to pdftotext, reading the PDF on stdin and text on stdout.
type Poppler struct {
	binary string
}

var _ ports.Extractor = (*Poppler)(nil)

// NewPoppler uses the given pdftotext binary; empty means "pdftotext" on PATH.
func NewPoppler(binary string) *Poppler {
	if binary == "" {
		binary = "pdftotext"
	}
	return &Poppler{binary: binary}
}

// Extract runs pdftotext. A non-zero exit that still produced text yields that text.
func (p *Poppler) Extract(ctx context.Context, raw []byte) (string, error) {
	path, err := exec.LookPath(p.binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnavailable, p.binary, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "-enc", "UTF-8", "-", "-")
	cmd.Stdin = bytes.NewReader(raw)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	text := Normalize(stdout.String())

	if runErr != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("pdftotext: %w", ctx.Err())
		}
		if text != "" {
			return text, nil
		}
		return "", fmt.Errorf("pdftotext: %w: %s", runErr, strings.TrimSpace(stderr.String()))
	}

	return text, nil
}
