package feed

import (
	"context"

	"github.com/studioalign/studio07-sub001/internal/core/posts"
)

// Load fetches channel metadata and the full post list in one pass,
// rebuilding the dedup sets wholesale from the result.
//
// Load is idempotent and safe to call repeatedly (manual refresh). Racing
// loads are generation-gated: every call bumps the generation and a response
// is discarded unless its generation is still current when it resolves, so a
// slow earlier response can never clobber a newer result.
func (r *Reconciler) Load(ctx context.Context, channelID string) error {
	r.mu.Lock()
	r.generation++
	gen := r.generation
	r.channelID = channelID
	r.loadingChannel = true
	r.loadingPosts = true
	r.mu.Unlock()
	r.notify()

	detail, err := r.backend.FetchChannel(ctx, channelID)

	r.mu.Lock()
	if gen != r.generation {
		// Superseded by a newer load; discard this result entirely
		r.mu.Unlock()
		return nil
	}
	r.loadingChannel = false
	r.loadingPosts = false

	if err != nil {
		r.lastErr = err
		r.channel = nil
		r.posts = nil
		r.resetSeenLocked()
		r.mu.Unlock()
		r.notify()
		r.logger.Error("channel load failed", "channel", channelID, "error", err)
		return err
	}

	r.lastErr = nil
	channel := detail.Channel
	r.channel = &channel
	r.posts = make([]*posts.Post, len(detail.Posts))
	copy(r.posts, detail.Posts)
	r.sortPostsLocked()

	r.resetSeenLocked()
	for _, p := range r.posts {
		r.trackPostLocked(p)
	}
	postCount := len(r.posts)
	r.mu.Unlock()
	r.notify()

	r.logger.Info("channel loaded",
		"channel", channelID,
		"posts", postCount)
	return nil
}
