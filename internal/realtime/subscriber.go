package realtime

import (
	"context"
	"strings"
	"sync"
)

// Subscriber owns the three per-entity subscriptions for the active channel.
// Switching channels tears the current trio down and dials a fresh one, so
// events from a previous channel can never leak into the new view.
type Subscriber struct {
	wsURL string

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSubscriber creates a subscriber for the given API base URL.
// http(s) schemes are rewritten to ws(s).
func NewSubscriber(baseURL string) *Subscriber {
	wsURL := strings.TrimSuffix(baseURL, "/")
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}
	return &Subscriber{wsURL: wsURL + "/api/realtime"}
}

// Subscribe establishes the post, comment and reaction subscriptions for the
// given channel, cancelling any previous channel's subscriptions first.
func (s *Subscriber) Subscribe(ctx context.Context, channelID string, handlers Handlers) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	subCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, entity := range []Entity{EntityPosts, EntityComments, EntityReactions} {
		sub := NewSubscription(s.wsURL, channelID, entity, handlers)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_ = sub.Start(subCtx)
		}()
	}
}

// Close tears down the active subscriptions and waits for them to exit.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Subscriber) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.wg.Wait()
}
