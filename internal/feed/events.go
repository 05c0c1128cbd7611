package feed

import (
	"context"
	"fmt"

	"github.com/studioalign/studio07-sub001/internal/core/posts"
	"github.com/studioalign/studio07-sub001/internal/realtime"
)

// The reconciler implements realtime.PostHandler, realtime.CommentHandler and
// realtime.ReactionHandler. Handler errors are logged by the subscription and
// never reach the user-visible error field.

// HandlePostEvent applies a post change notification.
func (r *Reconciler) HandlePostEvent(ctx context.Context, ev *realtime.PostEvent) error {
	switch ev.Op {
	case realtime.OpInsert:
		return r.applyPostInsert(ctx, ev)
	case realtime.OpUpdate:
		r.applyPostUpdate(ev)
		return nil
	case realtime.OpDelete:
		r.applyPostDelete(ev)
		return nil
	default:
		return fmt.Errorf("unknown post op %q", ev.Op)
	}
}

// applyPostInsert hydrates and prepends a newly pushed post. The event row is
// partial, so full detail is fetched; the id is marked seen before the fetch
// so a duplicate delivery arriving mid-fetch is ignored.
func (r *Reconciler) applyPostInsert(ctx context.Context, ev *realtime.PostEvent) error {
	r.mu.Lock()
	if ev.ChannelID != r.channelID {
		r.mu.Unlock()
		return nil
	}
	if _, dup := r.seenPosts[ev.PostID]; dup {
		// Already produced by this client's optimistic path or a duplicate delivery
		r.mu.Unlock()
		return nil
	}
	r.seenPosts[ev.PostID] = struct{}{}
	gen := r.generation
	r.mu.Unlock()

	post, err := r.backend.GetPost(ctx, ev.PostID)

	r.mu.Lock()
	if gen != r.generation {
		// Channel switched or reloaded while the fetch was in flight; the
		// load reset the seen sets, so just drop the late result
		r.mu.Unlock()
		return nil
	}
	if err != nil {
		// Clear the mark so a redelivery can retry the hydration
		delete(r.seenPosts, ev.PostID)
		r.mu.Unlock()
		return fmt.Errorf("failed to hydrate post %s: %w", ev.PostID, err)
	}
	if r.findPostLocked(post.ID) == nil {
		r.posts = append([]*posts.Post{post}, r.posts...)
		r.trackPostLocked(post)
	}
	r.mu.Unlock()
	r.notify()
	return nil
}

// applyPostUpdate patches content and edit timestamp in place, leaving nested
// comments and reactions untouched.
func (r *Reconciler) applyPostUpdate(ev *realtime.PostEvent) {
	r.mu.Lock()
	p := r.findPostLocked(ev.PostID)
	if p == nil || ev.ChannelID != r.channelID {
		r.mu.Unlock()
		return
	}
	p.Content = ev.Content
	p.EditedAt = ev.EditedAt
	r.mu.Unlock()
	r.notify()
}

func (r *Reconciler) applyPostDelete(ev *realtime.PostEvent) {
	r.mu.Lock()
	p, _ := r.removePostLocked(ev.PostID)
	if p == nil {
		r.mu.Unlock()
		return
	}
	r.untrackPostLocked(p)
	r.mu.Unlock()
	r.notify()
}

// HandleCommentEvent applies a comment change notification.
func (r *Reconciler) HandleCommentEvent(ctx context.Context, ev *realtime.CommentEvent) error {
	switch ev.Op {
	case realtime.OpInsert:
		return r.applyCommentInsert(ctx, ev)
	case realtime.OpUpdate:
		r.applyCommentUpdate(ev)
		return nil
	case realtime.OpDelete:
		r.applyCommentDelete(ev)
		return nil
	default:
		return fmt.Errorf("unknown comment op %q", ev.Op)
	}
}

// applyCommentInsert hydrates and appends a pushed comment to its post.
// Comments for posts outside the current view are silently dropped, without
// marking the id seen: if the post shows up later its detail fetch carries
// the comment anyway, and a stale mark would suppress that path's dedup.
func (r *Reconciler) applyCommentInsert(ctx context.Context, ev *realtime.CommentEvent) error {
	r.mu.Lock()
	if ev.ChannelID != r.channelID || r.findPostLocked(ev.PostID) == nil {
		r.mu.Unlock()
		return nil
	}
	if _, dup := r.seenComments[ev.CommentID]; dup {
		r.mu.Unlock()
		return nil
	}
	r.seenComments[ev.CommentID] = struct{}{}
	gen := r.generation
	r.mu.Unlock()

	comment, err := r.backend.GetComment(ctx, ev.PostID, ev.CommentID)

	r.mu.Lock()
	if gen != r.generation {
		r.mu.Unlock()
		return nil
	}
	if err != nil {
		delete(r.seenComments, ev.CommentID)
		r.mu.Unlock()
		return fmt.Errorf("failed to hydrate comment %s: %w", ev.CommentID, err)
	}
	p := r.findPostLocked(ev.PostID)
	if p == nil {
		// Post deleted while the fetch was in flight
		delete(r.seenComments, ev.CommentID)
		r.mu.Unlock()
		return nil
	}
	if p.FindComment(comment.ID) == nil {
		p.Comments = append(p.Comments, comment)
	}
	r.mu.Unlock()
	r.notify()
	return nil
}

func (r *Reconciler) applyCommentUpdate(ev *realtime.CommentEvent) {
	r.mu.Lock()
	p := r.findPostLocked(ev.PostID)
	if p == nil {
		r.mu.Unlock()
		return
	}
	c := p.FindComment(ev.CommentID)
	if c == nil {
		r.mu.Unlock()
		return
	}
	c.Content = ev.Content
	c.EditedAt = ev.EditedAt
	r.mu.Unlock()
	r.notify()
}

func (r *Reconciler) applyCommentDelete(ev *realtime.CommentEvent) {
	r.mu.Lock()
	p := r.findPostLocked(ev.PostID)
	if p == nil || !p.RemoveComment(ev.CommentID) {
		r.mu.Unlock()
		return
	}
	delete(r.seenComments, ev.CommentID)
	r.mu.Unlock()
	r.notify()
}

// HandleReactionEvent applies a reaction change notification. Reactions carry
// their full identity (post id, user id) in the event, so no detail fetch is
// needed.
func (r *Reconciler) HandleReactionEvent(_ context.Context, ev *realtime.ReactionEvent) error {
	switch ev.Op {
	case realtime.OpInsert:
		r.applyReactionInsert(ev)
		return nil
	case realtime.OpDelete:
		r.applyReactionDelete(ev)
		return nil
	case realtime.OpUpdate:
		// Reactions are set membership; updates don't occur
		return nil
	default:
		return fmt.Errorf("unknown reaction op %q", ev.Op)
	}
}

func (r *Reconciler) applyReactionInsert(ev *realtime.ReactionEvent) {
	r.mu.Lock()
	p := r.findPostLocked(ev.PostID)
	if p == nil || ev.ChannelID != r.channelID {
		r.mu.Unlock()
		return
	}
	if r.reactionSeenLocked(ev.PostID, ev.UserID) {
		// Duplicate delivery or echo of a local optimistic toggle
		r.mu.Unlock()
		return
	}
	r.markReactionSeenLocked(ev.PostID, ev.UserID)
	p.AddReaction(ev.UserID)
	r.mu.Unlock()
	r.notify()
}

func (r *Reconciler) applyReactionDelete(ev *realtime.ReactionEvent) {
	r.mu.Lock()
	r.clearReactionSeenLocked(ev.PostID, ev.UserID)
	p := r.findPostLocked(ev.PostID)
	if p == nil || !p.HasReaction(ev.UserID) {
		r.mu.Unlock()
		return
	}
	p.RemoveReaction(ev.UserID)
	r.mu.Unlock()
	r.notify()
}

var _ realtime.PostHandler = (*Reconciler)(nil)
var _ realtime.CommentHandler = (*Reconciler)(nil)
var _ realtime.ReactionHandler = (*Reconciler)(nil)

// Handlers returns the realtime handler bundle backed by this reconciler.
func (r *Reconciler) Handlers() realtime.Handlers {
	return realtime.Handlers{Posts: r, Comments: r, Reactions: r}
}
