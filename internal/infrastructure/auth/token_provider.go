package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AuthToken is a bearer token issued by the API in exchange for an API key.
type AuthToken struct {
	Token     string
	Type      string
	ExpiresAt time.Time
}

// IsExpired reports whether the token is past (or within a minute of) expiry.
func (t *AuthToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt.Add(-1 * time.Minute))
}

// tokenResponse is the shape of POST /api/auth/token.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// HTTPTokenProvider exchanges an API key for a bearer token over HTTP.
type HTTPTokenProvider struct {
	apiEndpoint string
	httpClient  *http.Client
}

// NewHTTPTokenProvider creates a new HTTP-based token provider
func NewHTTPTokenProvider(apiEndpoint string) *HTTPTokenProvider {
	return &HTTPTokenProvider{
		apiEndpoint: apiEndpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetToken obtains a new token for the given API key.
func (p *HTTPTokenProvider) GetToken(ctx context.Context, apiKey string) (*AuthToken, error) {
	body := map[string]interface{}{
		"grant_type": "api_key",
		"api_key":    apiKey,
	}

	requestBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/auth/token", p.apiEndpoint)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "tenq-cli/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	tokenType := tokenResp.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return &AuthToken{
		Token:     tokenResp.AccessToken,
		Type:      tokenType,
		ExpiresAt: time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
	}, nil
}
