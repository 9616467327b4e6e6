// Package render produces the first-page preview image attached to posts.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os/exec"
	"strings"

	"golang.org/x/image/draw"

	"PDFAnnouncer/internal/domain"
	"PDFAnnouncer/internal/ports"
)

const (
	// AltText accompanies every preview image.
	AltText = "Screenshot of first page of PDF. Auto posted so can't describe, sorry."

	defaultMaxSide = 2048
	jpegQuality    = 85
)

// FirstPage rasterises page one with pdftoppm and scales it to fit a square box.
type FirstPage struct {
	binary  string
	dpi     int
	maxSide int
}

var _ ports.Renderer = (*FirstPage)(nil)

// NewFirstPage uses the given pdftoppm binary; empty means "pdftoppm" on PATH.
func NewFirstPage(binary string, dpi, maxSide int) *FirstPage {
	if binary == "" {
		binary = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 150
	}
	if maxSide <= 0 {
		maxSide = defaultMaxSide
	}
	return &FirstPage{binary: binary, dpi: dpi, maxSide: maxSide}
}

// Render returns a JPEG of the first page.
func (f *FirstPage) Render(ctx context.Context, raw []byte) (*domain.Media, error) {
	path, err := exec.LookPath(f.binary)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", f.binary, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path,
		"-png", "-f", "1", "-l", "1", "-singlefile",
		"-r", fmt.Sprint(f.dpi), "-", "-")
	cmd.Stdin = bytes.NewReader(raw)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	img, _, err := image.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode page image: %w", err)
	}

	data, err := EncodeJPEG(Thumbnail(img, f.maxSide))
	if err != nil {
		return nil, err
	}

	return &domain.Media{Data: data, MIMEType: "image/jpeg", AltText: AltText}, nil
}

// Thumbnail scales img down, preserving aspect ratio, so neither side exceeds maxSide.
// Smaller images are returned unchanged.
func Thumbnail(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSide && h <= maxSide {
		return img
	}

	nw, nh := maxSide, maxSide
	if w >= h {
		nh = max(1, h*maxSide/w)
	} else {
		nw = max(1, w*maxSide/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// EncodeJPEG encodes img at the preview quality.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
