package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profileServer struct {
	mu       sync.Mutex
	profiles map[string]Profile
	requests int
}

func (s *profileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests++
	userID := r.URL.Path[len("/api/profiles/"):]
	profile, ok := s.profiles[userID]
	s.mu.Unlock()

	if !ok {
		http.Error(w, "profile not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(profile)
}

func (s *profileServer) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func newProfileStack(t *testing.T) (*profileServer, *Resolver) {
	t.Helper()
	srv := &profileServer{profiles: map[string]Profile{
		"user-1": {ID: "user-1", DisplayName: "Alex"},
	}}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, NewResolver(ts.URL, "token", nil)
}

func TestResolveServesSecondHitFromCache(t *testing.T) {
	srv, resolver := newProfileStack(t)
	ctx := context.Background()

	profile, err := resolver.Resolve(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Alex", profile.DisplayName)
	assert.Equal(t, 1, srv.requestCount())

	profile, err = resolver.Resolve(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Alex", profile.DisplayName)
	assert.Equal(t, 1, srv.requestCount(), "second hit must come from cache")
}

func TestResolveUnknownUser(t *testing.T) {
	srv, resolver := newProfileStack(t)
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, "user-missing")
	assert.ErrorIs(t, err, ErrProfileNotFound)

	// Failures are not cached; the next call hits the backend again
	_, err = resolver.Resolve(ctx, "user-missing")
	assert.ErrorIs(t, err, ErrProfileNotFound)
	assert.Equal(t, 2, srv.requestCount())
}

func TestResolveRequiresUserID(t *testing.T) {
	_, resolver := newProfileStack(t)
	_, err := resolver.Resolve(context.Background(), "")
	assert.Error(t, err)
}

func TestDisplayNameFallsBackToID(t *testing.T) {
	_, resolver := newProfileStack(t)
	ctx := context.Background()

	assert.Equal(t, "Alex", resolver.DisplayName(ctx, "user-1"))
	assert.Equal(t, "user-missing", resolver.DisplayName(ctx, "user-missing"))
}
