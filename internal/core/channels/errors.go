package channels

import "errors"

var (
	// ErrChannelNotFound indicates the requested channel doesn't exist
	ErrChannelNotFound = errors.New("channel not found")

	// ErrNotAMember indicates the user doesn't belong to the channel
	ErrNotAMember = errors.New("user is not a member of this channel")
)

// IsNotFound checks if an error is a "not found" error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrChannelNotFound)
}
