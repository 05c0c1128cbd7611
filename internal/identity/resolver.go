// Package identity resolves user ids to display names via the backend's
// profile endpoint, with a bounded LRU cache in front so comment and post
// hydration doesn't hammer the API for the same handful of authors.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// ErrProfileNotFound indicates the user id is unknown to the backend
var ErrProfileNotFound = errors.New("profile not found")

// Profile is the minimal identity shape the feed needs.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// cachedProfile is a cache entry with expiration
type cachedProfile struct {
	profile   Profile
	expiresAt time.Time
}

// Resolver fetches profiles over HTTP with a bounded LRU cache and an
// outbound rate limiter.
type Resolver struct {
	baseURL    string
	token      string
	httpClient *http.Client
	cache      *lru.Cache[string, cachedProfile]
	limiter    *rate.Limiter
	ttl        time.Duration
	logger     *slog.Logger
}

// NewResolver creates a profile resolver against the given API base URL.
func NewResolver(baseURL, token string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	// Bounded cache: max 1000 entries to prevent unbounded memory growth
	cache, err := lru.New[string, cachedProfile](1000)
	if err != nil {
		// Never happens with a valid size; keep a minimal cache rather than nil
		logger.Warn("failed to create profile cache, resolution will be slower", "error", err)
		cache, _ = lru.New[string, cachedProfile](1)
	}

	return &Resolver{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cache: cache,
		// 10 requests per second, burst of 20
		limiter: rate.NewLimiter(10, 20),
		ttl:     time.Hour,
		logger:  logger,
	}
}

// Resolve returns the profile for a user id, serving from cache when fresh.
func (r *Resolver) Resolve(ctx context.Context, userID string) (*Profile, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	if entry, ok := r.cache.Get(userID); ok && time.Now().Before(entry.expiresAt) {
		profile := entry.profile
		return &profile, nil
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	profile, err := r.fetch(ctx, userID)
	if err != nil {
		return nil, err
	}

	r.cache.Add(userID, cachedProfile{
		profile:   *profile,
		expiresAt: time.Now().Add(r.ttl),
	})

	return profile, nil
}

// DisplayName resolves just the display name, falling back to the user id
// when resolution fails. Used for best-effort hydration paths.
func (r *Resolver) DisplayName(ctx context.Context, userID string) string {
	profile, err := r.Resolve(ctx, userID)
	if err != nil {
		r.logger.Debug("display name resolution failed, falling back to id",
			"user", userID,
			"error", err)
		return userID
	}
	return profile.DisplayName
}

func (r *Resolver) fetch(ctx context.Context, userID string) (*Profile, error) {
	endpoint := r.baseURL + "/api/profiles/" + url.PathEscape(userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile request: %w", err)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			r.logger.Warn("failed to close profile response body", "error", closeErr)
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrProfileNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, fmt.Errorf("profile request returned %d: %s", resp.StatusCode, string(body))
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile response: %w", err)
	}
	if profile.ID == "" {
		profile.ID = userID
	}

	return &profile, nil
}
