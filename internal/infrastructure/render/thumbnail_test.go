package render

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	return img
}

func TestThumbnailKeepsAspectRatio(t *testing.T) {
	t.Parallel()

	tall := Thumbnail(solid(300, 600), 100)
	assert.Equal(t, image.Rect(0, 0, 50, 100), tall.Bounds())

	wide := Thumbnail(solid(900, 300), 150)
	assert.Equal(t, image.Rect(0, 0, 150, 50), wide.Bounds())
}

func TestThumbnailLeavesSmallImages(t *testing.T) {
	t.Parallel()

	img := solid(40, 20)
	assert.Same(t, img, Thumbnail(img, 2048))
}

func TestEncodeJPEG(t *testing.T) {
	t.Parallel()

	data, err := EncodeJPEG(solid(16, 8))
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 16, decoded.Bounds().Dx())
}

func TestRenderMissingBinary(t *testing.T) {
	t.Parallel()

	_, err := NewFirstPage("pdftoppm-does-not-exist", 0, 0).Render(context.Background(), []byte("%PDF"))
	assert.Error(t, err)
}
