package feed

import (
	"context"

	"github.com/studioalign/studio07-sub001/internal/core/channels"
	"github.com/studioalign/studio07-sub001/internal/core/posts"
	"github.com/studioalign/studio07-sub001/internal/media"
)

// Backend is the collaborator contract the reconciler depends on. It is
// implemented by studio.HTTPClient in production and by fakes in tests.
type Backend interface {
	// FetchChannel returns channel metadata and the full hydrated post list.
	// Must fail with channels.ErrChannelNotFound for unknown channel ids.
	FetchChannel(ctx context.Context, channelID string) (*channels.ChannelDetail, error)

	// GetPost returns full post detail with nested comments, reactions and media.
	// Used to hydrate post-insert events, which carry only a partial row.
	GetPost(ctx context.Context, postID string) (*posts.Post, error)

	// GetComment returns full comment detail with the author name resolved.
	GetComment(ctx context.Context, postID, commentID string) (*posts.Comment, error)

	// CreatePost persists a post, uploading each attachment to object storage
	// and one media row per uploaded file. Returns the created post's detail.
	CreatePost(ctx context.Context, channelID, content string, attachments []media.Attachment) (*posts.Post, error)

	// UpdatePost edits a post's content in place.
	UpdatePost(ctx context.Context, postID, content string) (*posts.Post, error)

	// DeletePost removes a post and everything nested under it.
	DeletePost(ctx context.Context, postID string) error

	// CreateComment persists a comment on a post.
	CreateComment(ctx context.Context, postID, content string) (*posts.Comment, error)

	// UpdateComment edits a comment's content in place.
	UpdateComment(ctx context.Context, postID, commentID, content string) (*posts.Comment, error)

	// DeleteComment removes a single comment.
	DeleteComment(ctx context.Context, postID, commentID string) error

	// ToggleReaction inserts or deletes the acting user's reaction row
	// (existence-check-then-insert-or-delete semantics).
	ToggleReaction(ctx context.Context, postID string) (bool, error)
}
