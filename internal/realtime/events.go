// Package realtime delivers channel-scoped change notifications for posts,
// comments and reactions over three independent WebSocket subscriptions.
// Events carry primary keys plus the changed row's raw fields; consumers
// re-fetch full detail when a richer shape is needed.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Op is the change operation carried by an event.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Entity names a subscription stream.
type Entity string

const (
	EntityPosts     Entity = "posts"
	EntityComments  Entity = "comments"
	EntityReactions Entity = "reactions"
)

// PostEvent is a change notification for a post row.
type PostEvent struct {
	Op        Op
	ChannelID string
	PostID    string
	Content   string
	EditedAt  *time.Time
}

// CommentEvent is a change notification for a comment row.
type CommentEvent struct {
	Op        Op
	ChannelID string
	PostID    string
	CommentID string
	Content   string
	EditedAt  *time.Time
}

// ReactionEvent is a change notification for a reaction row. Reactions have
// no id of their own; identity is the (post, user) pair.
type ReactionEvent struct {
	Op        Op
	ChannelID string
	PostID    string
	UserID    string
}

// PostHandler processes post change events.
type PostHandler interface {
	HandlePostEvent(ctx context.Context, ev *PostEvent) error
}

// CommentHandler processes comment change events.
type CommentHandler interface {
	HandleCommentEvent(ctx context.Context, ev *CommentEvent) error
}

// ReactionHandler processes reaction change events.
type ReactionHandler interface {
	HandleReactionEvent(ctx context.Context, ev *ReactionEvent) error
}

// Handlers bundles the three per-entity handlers. A single type (like the
// feed reconciler) typically implements all three.
type Handlers struct {
	Posts     PostHandler
	Comments  CommentHandler
	Reactions ReactionHandler
}

// Envelope is the wire shape of one realtime message.
type Envelope struct {
	Entity Entity          `json:"entity"`
	Op     Op              `json:"op"`
	Row    json.RawMessage `json:"row"`
}

// PostRow is the raw row payload for post events.
type PostRow struct {
	ID        string     `json:"id"`
	ChannelID string     `json:"channelId"`
	Content   string     `json:"content"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`
}

// CommentRow is the raw row payload for comment events.
type CommentRow struct {
	ID        string     `json:"id"`
	PostID    string     `json:"postId"`
	ChannelID string     `json:"channelId"`
	Content   string     `json:"content"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`
}

// ReactionRow is the raw row payload for reaction events.
type ReactionRow struct {
	PostID    string `json:"postId"`
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId"`
}

// dispatch decodes an envelope's row and routes it to the matching handler.
func dispatch(ctx context.Context, env *Envelope, h Handlers) error {
	switch env.Op {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return fmt.Errorf("unknown op %q", env.Op)
	}

	switch env.Entity {
	case EntityPosts:
		if h.Posts == nil {
			return nil
		}
		var row PostRow
		if err := json.Unmarshal(env.Row, &row); err != nil {
			return fmt.Errorf("failed to parse post row: %w", err)
		}
		if row.ID == "" {
			return fmt.Errorf("post event missing id")
		}
		return h.Posts.HandlePostEvent(ctx, &PostEvent{
			Op:        env.Op,
			ChannelID: row.ChannelID,
			PostID:    row.ID,
			Content:   row.Content,
			EditedAt:  row.EditedAt,
		})

	case EntityComments:
		if h.Comments == nil {
			return nil
		}
		var row CommentRow
		if err := json.Unmarshal(env.Row, &row); err != nil {
			return fmt.Errorf("failed to parse comment row: %w", err)
		}
		if row.ID == "" || row.PostID == "" {
			return fmt.Errorf("comment event missing id or post id")
		}
		return h.Comments.HandleCommentEvent(ctx, &CommentEvent{
			Op:        env.Op,
			ChannelID: row.ChannelID,
			PostID:    row.PostID,
			CommentID: row.ID,
			Content:   row.Content,
			EditedAt:  row.EditedAt,
		})

	case EntityReactions:
		if h.Reactions == nil {
			return nil
		}
		var row ReactionRow
		if err := json.Unmarshal(env.Row, &row); err != nil {
			return fmt.Errorf("failed to parse reaction row: %w", err)
		}
		if row.PostID == "" || row.UserID == "" {
			return fmt.Errorf("reaction event missing post id or user id")
		}
		return h.Reactions.HandleReactionEvent(ctx, &ReactionEvent{
			Op:        env.Op,
			ChannelID: row.ChannelID,
			PostID:    row.PostID,
			UserID:    row.UserID,
		})

	default:
		return fmt.Errorf("unknown entity %q", env.Entity)
	}
}
