package feed

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/studioalign/studio07-sub001/internal/core/posts"
	"github.com/studioalign/studio07-sub001/internal/media"
)

// provisionalID generates a locally unique id for an optimistic entity.
// The prefix keeps provisional ids from ever colliding with server ids.
func provisionalID() string {
	return "local-" + uuid.NewString()
}

// surfaceErr records a mutation error and notifies the view layer.
func (r *Reconciler) surfaceErr(err error) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
	r.notify()
}

// CreatePost validates content and attachments, optimistically prepends a
// provisional post, then issues the create call. On success the provisional
// post is swapped for the server's copy and the real id is marked seen, so
// the push echo (whichever side of the create response it lands on) yields
// exactly one visible post. On failure the provisional post is removed and
// the error surfaced; no retry is attempted.
func (r *Reconciler) CreatePost(ctx context.Context, content string, attachments []media.Attachment) error {
	if err := posts.ValidateContent(content); err != nil {
		r.surfaceErr(err)
		return err
	}
	// Per-file size ceilings, checked before any network call
	if err := media.ValidateAll(attachments); err != nil {
		r.surfaceErr(err)
		return err
	}

	provisional := &posts.Post{
		ID:        provisionalID(),
		Content:   content,
		Author:    r.user,
		CreatedAt: time.Now().UTC(),
		Media:     []posts.Media{},
		Reactions: []string{},
		Comments:  []*posts.Comment{},
	}

	r.mu.Lock()
	channelID := r.channelID
	gen := r.generation
	provisional.ChannelID = channelID
	r.posts = append([]*posts.Post{provisional}, r.posts...)
	r.mu.Unlock()
	r.notify()

	created, err := r.backend.CreatePost(ctx, channelID, content, attachments)

	r.mu.Lock()
	r.removePostLocked(provisional.ID)
	if err != nil {
		if gen == r.generation {
			r.lastErr = err
		}
		r.mu.Unlock()
		r.notify()
		r.logger.Error("post creation failed", "channel", channelID, "error", err)
		return err
	}
	if gen == r.generation {
		// Mark seen before anything else: closes the race where the push
		// notification lands between the server write and this point
		r.seenPosts[created.ID] = struct{}{}
		if r.findPostLocked(created.ID) == nil {
			r.posts = append([]*posts.Post{created}, r.posts...)
			r.trackPostLocked(created)
			r.sortPostsLocked()
		}
		r.lastErr = nil
	}
	r.mu.Unlock()
	r.notify()
	return nil
}

// ToggleReaction optimistically flips the acting user's reaction on a post,
// then issues the toggle call. The flip covers both the membership and the
// (post, user) dedup entry, so the server's echo event is absorbed. On
// failure both are reverted exactly to their prior state.
func (r *Reconciler) ToggleReaction(ctx context.Context, postID string) error {
	userID := r.user.ID

	r.mu.Lock()
	p := r.findPostLocked(postID)
	if p == nil {
		r.mu.Unlock()
		r.surfaceErr(posts.ErrPostNotFound)
		return posts.ErrPostNotFound
	}
	had := p.HasReaction(userID)
	hadSeen := r.reactionSeenLocked(postID, userID)
	if had {
		p.RemoveReaction(userID)
		r.clearReactionSeenLocked(postID, userID)
	} else {
		p.AddReaction(userID)
		r.markReactionSeenLocked(postID, userID)
	}
	gen := r.generation
	r.mu.Unlock()
	r.notify()

	if _, err := r.backend.ToggleReaction(ctx, postID); err != nil {
		r.mu.Lock()
		if gen == r.generation {
			if p := r.findPostLocked(postID); p != nil {
				if had {
					p.AddReaction(userID)
				} else {
					p.RemoveReaction(userID)
				}
				if hadSeen {
					r.markReactionSeenLocked(postID, userID)
				} else {
					r.clearReactionSeenLocked(postID, userID)
				}
			}
			r.lastErr = err
		}
		r.mu.Unlock()
		r.notify()
		r.logger.Error("reaction toggle failed", "post", postID, "error", err)
		return err
	}

	r.mu.Lock()
	if gen == r.generation {
		r.lastErr = nil
	}
	r.mu.Unlock()
	r.notify()
	return nil
}

// CreateComment optimistically appends a provisional comment to a post, then
// issues the create call, with the same swap-and-mark-seen discipline as
// CreatePost.
func (r *Reconciler) CreateComment(ctx context.Context, postID, content string) error {
	if err := posts.ValidateContent(content); err != nil {
		r.surfaceErr(err)
		return err
	}

	provisional := &posts.Comment{
		ID:        provisionalID(),
		PostID:    postID,
		Content:   content,
		Author:    r.user,
		CreatedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	p := r.findPostLocked(postID)
	if p == nil {
		r.mu.Unlock()
		r.surfaceErr(posts.ErrPostNotFound)
		return posts.ErrPostNotFound
	}
	p.Comments = append(p.Comments, provisional)
	gen := r.generation
	r.mu.Unlock()
	r.notify()

	created, err := r.backend.CreateComment(ctx, postID, content)

	r.mu.Lock()
	if p := r.findPostLocked(postID); p != nil {
		p.RemoveComment(provisional.ID)
	}
	if err != nil {
		if gen == r.generation {
			r.lastErr = err
		}
		r.mu.Unlock()
		r.notify()
		r.logger.Error("comment creation failed", "post", postID, "error", err)
		return err
	}
	if gen == r.generation {
		r.seenComments[created.ID] = struct{}{}
		if p := r.findPostLocked(postID); p != nil && p.FindComment(created.ID) == nil {
			p.Comments = append(p.Comments, created)
		}
		r.lastErr = nil
	}
	r.mu.Unlock()
	r.notify()
	return nil
}

// UpdatePost optimistically patches a post's content, reverting exactly on
// failure.
func (r *Reconciler) UpdatePost(ctx context.Context, postID, content string) error {
	if err := posts.ValidateContent(content); err != nil {
		r.surfaceErr(err)
		return err
	}

	now := time.Now().UTC()
	r.mu.Lock()
	p := r.findPostLocked(postID)
	if p == nil {
		r.mu.Unlock()
		r.surfaceErr(posts.ErrPostNotFound)
		return posts.ErrPostNotFound
	}
	prevContent, prevEditedAt := p.Content, p.EditedAt
	p.Content = content
	p.EditedAt = &now
	gen := r.generation
	r.mu.Unlock()
	r.notify()

	updated, err := r.backend.UpdatePost(ctx, postID, content)

	r.mu.Lock()
	if gen == r.generation {
		if p := r.findPostLocked(postID); p != nil {
			if err != nil {
				p.Content = prevContent
				p.EditedAt = prevEditedAt
			} else {
				p.Content = updated.Content
				p.EditedAt = updated.EditedAt
			}
		}
		if err != nil {
			r.lastErr = err
		} else {
			r.lastErr = nil
		}
	}
	r.mu.Unlock()
	r.notify()
	if err != nil {
		r.logger.Error("post update failed", "post", postID, "error", err)
	}
	return err
}

// UpdateComment optimistically patches a comment's content, reverting exactly
// on failure.
func (r *Reconciler) UpdateComment(ctx context.Context, postID, commentID, content string) error {
	if err := posts.ValidateContent(content); err != nil {
		r.surfaceErr(err)
		return err
	}

	now := time.Now().UTC()
	r.mu.Lock()
	p := r.findPostLocked(postID)
	if p == nil {
		r.mu.Unlock()
		r.surfaceErr(posts.ErrPostNotFound)
		return posts.ErrPostNotFound
	}
	c := p.FindComment(commentID)
	if c == nil {
		r.mu.Unlock()
		r.surfaceErr(posts.ErrCommentNotFound)
		return posts.ErrCommentNotFound
	}
	prevContent, prevEditedAt := c.Content, c.EditedAt
	c.Content = content
	c.EditedAt = &now
	gen := r.generation
	r.mu.Unlock()
	r.notify()

	updated, err := r.backend.UpdateComment(ctx, postID, commentID, content)

	r.mu.Lock()
	if gen == r.generation {
		if p := r.findPostLocked(postID); p != nil {
			if c := p.FindComment(commentID); c != nil {
				if err != nil {
					c.Content = prevContent
					c.EditedAt = prevEditedAt
				} else {
					c.Content = updated.Content
					c.EditedAt = updated.EditedAt
				}
			}
		}
		if err != nil {
			r.lastErr = err
		} else {
			r.lastErr = nil
		}
	}
	r.mu.Unlock()
	r.notify()
	if err != nil {
		r.logger.Error("comment update failed", "comment", commentID, "error", err)
	}
	return err
}

// DeletePost optimistically removes a post (clearing its dedup entries), then
// issues the delete call. On failure the post and its dedup entries are
// restored at the original position.
func (r *Reconciler) DeletePost(ctx context.Context, postID string) error {
	r.mu.Lock()
	removed, idx := r.removePostLocked(postID)
	if removed == nil {
		r.mu.Unlock()
		r.surfaceErr(posts.ErrPostNotFound)
		return posts.ErrPostNotFound
	}
	r.untrackPostLocked(removed)
	gen := r.generation
	r.mu.Unlock()
	r.notify()

	err := r.backend.DeletePost(ctx, postID)
	if err != nil {
		r.mu.Lock()
		if gen == r.generation {
			if idx > len(r.posts) {
				idx = len(r.posts)
			}
			r.posts = append(r.posts[:idx], append([]*posts.Post{removed}, r.posts[idx:]...)...)
			r.trackPostLocked(removed)
			r.lastErr = err
		}
		r.mu.Unlock()
		r.notify()
		r.logger.Error("post deletion failed", "post", postID, "error", err)
		return err
	}

	r.mu.Lock()
	if gen == r.generation {
		r.lastErr = nil
	}
	r.mu.Unlock()
	r.notify()
	return nil
}

// DeleteComment optimistically removes a comment (clearing its dedup entry),
// restoring it on failure.
func (r *Reconciler) DeleteComment(ctx context.Context, postID, commentID string) error {
	r.mu.Lock()
	p := r.findPostLocked(postID)
	if p == nil {
		r.mu.Unlock()
		r.surfaceErr(posts.ErrPostNotFound)
		return posts.ErrPostNotFound
	}
	removed := p.FindComment(commentID)
	if removed == nil {
		r.mu.Unlock()
		r.surfaceErr(posts.ErrCommentNotFound)
		return posts.ErrCommentNotFound
	}
	p.RemoveComment(commentID)
	delete(r.seenComments, commentID)
	gen := r.generation
	r.mu.Unlock()
	r.notify()

	err := r.backend.DeleteComment(ctx, postID, commentID)
	if err != nil {
		r.mu.Lock()
		if gen == r.generation {
			if p := r.findPostLocked(postID); p != nil && p.FindComment(commentID) == nil {
				p.Comments = append(p.Comments, removed)
				r.seenComments[commentID] = struct{}{}
			}
			r.lastErr = err
		}
		r.mu.Unlock()
		r.notify()
		r.logger.Error("comment deletion failed", "comment", commentID, "error", err)
		return err
	}

	r.mu.Lock()
	if gen == r.generation {
		r.lastErr = nil
	}
	r.mu.Unlock()
	r.notify()
	return nil
}
