package auth

import (
	"context"
	"fmt"
	"sync"
)

// TokenProvider obtains tokens from the backend.
type TokenProvider interface {
	GetToken(ctx context.Context, apiKey string) (*AuthToken, error)
}

// Manager caches the bearer token for the configured API key and renews it on
// expiry. It implements the CredentialProvider port: an empty header with a
// nil error means the caller is anonymous.
type Manager struct {
	apiKey   string
	provider TokenProvider

	mutex sync.Mutex
	token *AuthToken
}

// NewManager creates a token manager. An empty apiKey yields an anonymous
// manager that never attaches credentials.
func NewManager(apiKey string, provider TokenProvider) *Manager {
	return &Manager{
		apiKey:   apiKey,
		provider: provider,
	}
}

// AuthorizationHeader returns the Authorization header value for credentialed
// requests, fetching or renewing the cached token as needed.
func (m *Manager) AuthorizationHeader(ctx context.Context) (string, error) {
	if m.apiKey == "" {
		return "", nil
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.token == nil || m.token.IsExpired() {
		token, err := m.provider.GetToken(ctx, m.apiKey)
		if err != nil {
			return "", fmt.Errorf("failed to obtain token: %w", err)
		}
		m.token = token
	}

	return fmt.Sprintf("%s %s", m.token.Type, m.token.Token), nil
}

// Invalidate drops the cached token so the next request fetches a fresh one.
func (m *Manager) Invalidate() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.token = nil
}
