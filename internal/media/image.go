package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // Register PNG decoder

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	// maxImageDimension is the largest edge an uploaded image may keep.
	// Larger images are downscaled before upload to save storage and bandwidth.
	maxImageDimension = 2048

	// jpegQuality is the re-encode quality for downscaled images
	jpegQuality = 85
)

// PrepareImage downscales oversized image attachments before upload.
// Non-image attachments and images already within bounds pass through untouched.
// Downscaled images are re-encoded as JPEG.
func PrepareImage(a Attachment) (Attachment, error) {
	if a.Kind() != KindImage {
		return a, nil
	}

	img, _, err := image.Decode(bytes.NewReader(a.Data))
	if err != nil {
		return a, fmt.Errorf("failed to decode image %s: %w", a.Filename, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= maxImageDimension && bounds.Dy() <= maxImageDimension {
		return a, nil
	}

	resized := imaging.Fit(img, maxImageDimension, maxImageDimension, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return a, fmt.Errorf("failed to encode image %s: %w", a.Filename, err)
	}

	return Attachment{
		Filename: a.Filename,
		MIME:     "image/jpeg",
		Data:     buf.Bytes(),
	}, nil
}
