package studio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// refreshLeeway is how close to expiry a token may get before it is refreshed.
const refreshLeeway = 30 * time.Second

// tokenManager holds the current access token and refreshes it through the
// configured TokenSource shortly before it expires. Expiry is read from the
// token's own exp claim; the signature is the backend's concern, not ours.
type tokenManager struct {
	source TokenSource
	logger *slog.Logger

	mu        sync.Mutex
	current   string
	expiresAt time.Time
}

func newTokenManager(initial string, source TokenSource, logger *slog.Logger) *tokenManager {
	m := &tokenManager{
		source:  source,
		logger:  logger,
		current: initial,
	}
	m.expiresAt = tokenExpiry(initial)
	return m
}

// token returns a usable access token, refreshing first when the current one
// is expired or about to expire.
func (m *tokenManager) token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.source == nil || m.expiresAt.IsZero() || time.Until(m.expiresAt) > refreshLeeway {
		return m.current, nil
	}

	fresh, err := m.source(ctx)
	if err != nil {
		return "", fmt.Errorf("token refresh failed: %w", err)
	}

	m.current = fresh
	m.expiresAt = tokenExpiry(fresh)
	m.logger.Debug("access token refreshed", "expires_at", m.expiresAt)
	return m.current, nil
}

// tokenExpiry extracts the exp claim from a JWT access token.
// Returns the zero time for opaque (non-JWT) tokens, which are then never refreshed.
func tokenExpiry(token string) time.Time {
	if token == "" {
		return time.Time{}
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
