package media

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an attachment for size-ceiling and display purposes.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindFile  Kind = "file"
)

// Per-kind upload size ceilings. Oversized files are rejected before any
// network call is made.
const (
	MaxVideoSize = 50 << 20 // 50MB
	MaxAudioSize = 20 << 20 // 20MB
	MaxImageSize = 10 << 20 // 10MB
	MaxFileSize  = 20 << 20 // 20MB
)

// Attachment is a file selected for upload, held in memory prior to validation
// and storage upload.
type Attachment struct {
	Filename string
	MIME     string
	Data     []byte
}

// Kind derives the attachment kind from its MIME type, sniffing the content
// when no type was declared.
func (a Attachment) Kind() Kind {
	mime := a.MIME
	if mime == "" {
		mime = http.DetectContentType(a.Data)
	}
	return KindForMIME(mime)
}

// KindForMIME maps a MIME type to an attachment kind.
func KindForMIME(mime string) Kind {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case strings.HasPrefix(mime, "video/"):
		return KindVideo
	case strings.HasPrefix(mime, "audio/"):
		return KindAudio
	default:
		return KindFile
	}
}

// Limit returns the size ceiling in bytes for the given kind.
func Limit(kind Kind) int64 {
	switch kind {
	case KindVideo:
		return MaxVideoSize
	case KindAudio:
		return MaxAudioSize
	case KindImage:
		return MaxImageSize
	default:
		return MaxFileSize
	}
}

// SizeError reports a single attachment exceeding its per-kind ceiling.
type SizeError struct {
	Filename string
	Kind     Kind
	Size     int64
	Limit    int64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("%s: %s size %d bytes exceeds maximum of %d bytes (%dMB)",
		e.Filename, e.Kind, e.Size, e.Limit, e.Limit>>20)
}

// Validate checks a single attachment against its per-kind size ceiling.
func Validate(a Attachment) error {
	if a.Filename == "" {
		return errors.New("attachment filename is required")
	}
	if len(a.Data) == 0 {
		return fmt.Errorf("%s: attachment is empty", a.Filename)
	}
	kind := a.Kind()
	limit := Limit(kind)
	if int64(len(a.Data)) > limit {
		return &SizeError{
			Filename: a.Filename,
			Kind:     kind,
			Size:     int64(len(a.Data)),
			Limit:    limit,
		}
	}
	return nil
}

// ValidateAll checks every attachment and returns the combined per-file errors.
// All files are checked so the caller can report every offending file at once.
func ValidateAll(atts []Attachment) error {
	var errs []error
	for _, a := range atts {
		if err := Validate(a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
