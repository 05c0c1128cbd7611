package posts

import "errors"

var (
	// ErrPostNotFound indicates the requested post doesn't exist
	ErrPostNotFound = errors.New("post not found")

	// ErrCommentNotFound indicates the requested comment doesn't exist
	ErrCommentNotFound = errors.New("comment not found")

	// ErrContentEmpty indicates post or comment content is empty
	ErrContentEmpty = errors.New("content is required")

	// ErrContentTooLong indicates content exceeds 5000 graphemes
	ErrContentTooLong = errors.New("content exceeds 5000 graphemes")

	// ErrNotAuthorized indicates the user may not perform this action
	ErrNotAuthorized = errors.New("not authorized")
)

// IsNotFound checks if an error is a "not found" error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPostNotFound) || errors.Is(err, ErrCommentNotFound)
}

// IsValidationError checks if an error is a content validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrContentEmpty) || errors.Is(err, ErrContentTooLong)
}
