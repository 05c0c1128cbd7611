package media

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x += 64 {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPrepareImagePassesThroughNonImages(t *testing.T) {
	a := Attachment{Filename: "notes.pdf", MIME: "application/pdf", Data: []byte("%PDF-")}
	got, err := PrepareImage(a)
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestPrepareImageKeepsSmallImages(t *testing.T) {
	a := Attachment{Filename: "pose.png", MIME: "image/png", Data: encodePNG(t, 640, 480)}
	got, err := PrepareImage(a)
	require.NoError(t, err)
	assert.Equal(t, a, got, "in-bounds images must not be re-encoded")
}

func TestPrepareImageDownscalesOversized(t *testing.T) {
	a := Attachment{Filename: "stage.png", MIME: "image/png", Data: encodePNG(t, 4096, 1024)}
	got, err := PrepareImage(a)
	require.NoError(t, err)

	assert.Equal(t, "image/jpeg", got.MIME)
	assert.Equal(t, "stage.png", got.Filename)

	resized, format, err := image.Decode(bytes.NewReader(got.Data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 2048, resized.Bounds().Dx())
	assert.LessOrEqual(t, resized.Bounds().Dy(), 2048)
}

func TestPrepareImageRejectsCorruptImage(t *testing.T) {
	a := Attachment{Filename: "broken.png", MIME: "image/png", Data: []byte("not an image")}
	_, err := PrepareImage(a)
	assert.Error(t, err)
}
