// Package feed maintains an in-memory view of one channel's posts, merging
// three update sources into a single consistent, newest-first list: direct
// fetches, optimistic local mutations, and pushed change notifications.
//
// Every insert path checks a dedup set before mutating and every removal
// path clears the matching dedup entry; that discipline is what keeps
// optimistic entities from being double-counted when their server echo
// arrives, and keeps legitimate future events (a user re-reacting after
// unreacting) from being silently dropped.
package feed

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/studioalign/studio07-sub001/internal/core/channels"
	"github.com/studioalign/studio07-sub001/internal/core/posts"
)

// Reconciler holds the reconciled feed state for one channel at a time.
//
// All state is guarded by a single mutex; network calls happen outside it.
// WebSocket delivery goroutines and caller goroutines interleave through the
// lock, so handlers and mutations each observe a consistent list.
type Reconciler struct {
	backend Backend
	user    posts.Author
	logger  *slog.Logger

	mu             sync.Mutex
	generation     uint64 // bumped by every Load; gates stale async results
	channelID      string
	channel        *channels.Channel
	posts          []*posts.Post
	loadingChannel bool
	loadingPosts   bool
	lastErr        error

	// Dedup bookkeeping, never used for business logic
	seenPosts     map[string]struct{}
	seenComments  map[string]struct{}
	seenReactions map[string]map[string]struct{} // post id -> reacting user ids

	onChange func()
}

// New creates a reconciler acting as the given user.
func New(backend Backend, user posts.Author, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		backend:       backend,
		user:          user,
		logger:        logger,
		seenPosts:     make(map[string]struct{}),
		seenComments:  make(map[string]struct{}),
		seenReactions: make(map[string]map[string]struct{}),
	}
}

// OnChange registers a callback invoked after every state change. Intended
// for the view layer; the callback must not call back into the reconciler
// synchronously from a handler goroutine it wants to block.
func (r *Reconciler) OnChange(fn func()) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Snapshot is a deep-copied view of the reconciler state, safe for the view
// layer to hold across further mutations.
type Snapshot struct {
	Channel        *channels.Channel
	Posts          []*posts.Post
	LoadingChannel bool
	LoadingPosts   bool
	Err            error
}

// Snapshot returns a copy of the current state.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		LoadingChannel: r.loadingChannel,
		LoadingPosts:   r.loadingPosts,
		Err:            r.lastErr,
	}
	if r.channel != nil {
		ch := *r.channel
		ch.Members = append([]channels.Member(nil), r.channel.Members...)
		snap.Channel = &ch
	}
	snap.Posts = make([]*posts.Post, len(r.posts))
	for i, p := range r.posts {
		snap.Posts[i] = p.Clone()
	}
	return snap
}

// ChannelID returns the id of the channel currently loaded (or loading).
func (r *Reconciler) ChannelID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channelID
}

// notify invokes the change callback outside the lock.
func (r *Reconciler) notify() {
	r.mu.Lock()
	fn := r.onChange
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// resetSeenLocked clears all dedup bookkeeping. Called on every load so that
// stale ids from a previous channel never suppress events in the new one.
func (r *Reconciler) resetSeenLocked() {
	r.seenPosts = make(map[string]struct{})
	r.seenComments = make(map[string]struct{})
	r.seenReactions = make(map[string]map[string]struct{})
}

// trackPostLocked records a post and everything nested under it as seen.
func (r *Reconciler) trackPostLocked(p *posts.Post) {
	r.seenPosts[p.ID] = struct{}{}
	for _, c := range p.Comments {
		r.seenComments[c.ID] = struct{}{}
	}
	for _, userID := range p.Reactions {
		r.markReactionSeenLocked(p.ID, userID)
	}
}

// untrackPostLocked clears every dedup entry owned by a post, so removal
// never suppresses a legitimate future event for the same ids.
func (r *Reconciler) untrackPostLocked(p *posts.Post) {
	delete(r.seenPosts, p.ID)
	for _, c := range p.Comments {
		delete(r.seenComments, c.ID)
	}
	delete(r.seenReactions, p.ID)
}

func (r *Reconciler) markReactionSeenLocked(postID, userID string) {
	users := r.seenReactions[postID]
	if users == nil {
		users = make(map[string]struct{})
		r.seenReactions[postID] = users
	}
	users[userID] = struct{}{}
}

func (r *Reconciler) clearReactionSeenLocked(postID, userID string) {
	if users := r.seenReactions[postID]; users != nil {
		delete(users, userID)
		if len(users) == 0 {
			delete(r.seenReactions, postID)
		}
	}
}

func (r *Reconciler) reactionSeenLocked(postID, userID string) bool {
	_, ok := r.seenReactions[postID][userID]
	return ok
}

// findPostLocked returns the post with the given id, or nil.
func (r *Reconciler) findPostLocked(postID string) *posts.Post {
	for _, p := range r.posts {
		if p.ID == postID {
			return p
		}
	}
	return nil
}

// removePostLocked removes a post by id, returning it and its index.
// Returns (nil, -1) when absent.
func (r *Reconciler) removePostLocked(postID string) (*posts.Post, int) {
	for i, p := range r.posts {
		if p.ID == postID {
			r.posts = append(r.posts[:i], r.posts[i+1:]...)
			return p, i
		}
	}
	return nil, -1
}

// sortPostsLocked orders posts newest-first. The sort is stable so posts
// sharing a creation timestamp keep their arrival order.
func (r *Reconciler) sortPostsLocked() {
	sort.SliceStable(r.posts, func(i, j int) bool {
		return r.posts[i].CreatedAt.After(r.posts[j].CreatedAt)
	})
}
