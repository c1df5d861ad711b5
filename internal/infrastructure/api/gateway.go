package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/tenq-ai/tenq-cli/internal/application/ports"
	"github.com/tenq-ai/tenq-cli/internal/core/domain"
)

const userAgent = "tenq-cli/1.0"

// TenQAPIGateway implements the SummaryGateway interface for the non-streaming
// endpoints. Streaming requests go through StreamClient and bypass the retry
// machinery.
type TenQAPIGateway struct {
	endpoint    string
	credentials ports.CredentialProvider
	httpClient  *http.Client
	retryPolicy *RetryPolicy
	breaker     *CircuitBreaker
	logger      ports.LoggingGateway
	status      ports.ConnectionStatus
	mutex       sync.RWMutex
}

// RetryPolicy defines retry behavior
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay"`
	Multiplier  float64       `json:"multiplier"`
}

// DefaultRetryPolicy returns a sensible default retry policy
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}
}

// CircuitBreaker implements circuit breaker pattern
type CircuitBreaker struct {
	maxFailures     int
	resetTimeout    time.Duration
	failureCount    int
	lastFailureTime time.Time
	state           CircuitBreakerState
	mutex           sync.RWMutex
}

// CircuitBreakerState represents the circuit breaker state
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
	}
}

// CanExecute returns true if the circuit breaker allows execution
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.lastFailureTime) >= cb.resetTimeout {
			cb.state = StateHalfOpen
			return true
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful execution
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failureCount = 0
	cb.state = StateClosed
}

// RecordFailure records a failed execution
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failureCount++
	cb.lastFailureTime = time.Now()

	if cb.failureCount >= cb.maxFailures {
		cb.state = StateOpen
	}
}

// NewTenQAPIGateway creates a new API gateway
func NewTenQAPIGateway(endpoint string, credentials ports.CredentialProvider, logger ports.LoggingGateway) *TenQAPIGateway {
	return &TenQAPIGateway{
		endpoint:    endpoint,
		credentials: credentials,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retryPolicy: DefaultRetryPolicy(),
		breaker:     NewCircuitBreaker(5, 60*time.Second),
		logger:      logger,
	}
}

// NewTestAPIGateway creates a new API gateway with test-friendly settings
func NewTestAPIGateway(endpoint string, credentials ports.CredentialProvider, logger ports.LoggingGateway) *TenQAPIGateway {
	return &TenQAPIGateway{
		endpoint:    endpoint,
		credentials: credentials,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		retryPolicy: &RetryPolicy{
			MaxAttempts: 2,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    1 * time.Second,
			Multiplier:  2.0,
		},
		breaker: NewCircuitBreaker(3, 5*time.Second),
		logger:  logger,
	}
}

// filingsResponse is the shape of GET /api/filings.
type filingsResponse struct {
	Filings []domain.Filing `json:"filings"`
}

// ListFilings returns the most recent filings known to the backend.
func (g *TenQAPIGateway) ListFilings(ctx context.Context, limit int) ([]domain.Filing, error) {
	path := "/api/filings"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}

	var out filingsResponse
	err := g.executeWithRetry(func() error {
		return g.getJSON(ctx, path, &out)
	})
	if err != nil {
		return nil, err
	}
	return out.Filings, nil
}

// GetSummary fetches the stored summary for a filing, if one exists.
func (g *TenQAPIGateway) GetSummary(ctx context.Context, filingID int64) (*domain.Summary, error) {
	var out domain.Summary
	err := g.executeWithRetry(func() error {
		return g.getJSON(ctx, fmt.Sprintf("/api/filings/%d/summary", filingID), &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// TestConnection tests the API connection and authentication
func (g *TenQAPIGateway) TestConnection(ctx context.Context) error {
	g.logger.Log(ports.LogLevelInfo, "Testing API connection", map[string]interface{}{
		"endpoint": g.endpoint,
	})

	start := time.Now()
	err := g.executeWithRetry(func() error {
		return g.getJSON(ctx, "/health", nil)
	})
	if err != nil {
		g.updateConnectionStatus(false, time.Since(start), err.Error())
		return err
	}

	latency := time.Since(start)
	g.updateConnectionStatus(true, latency, "")
	g.logger.Log(ports.LogLevelInfo, "API connection test successful", map[string]interface{}{
		"latency_ms": latency.Milliseconds(),
	})
	return nil
}

// GetConnectionStatus returns the current connection status
func (g *TenQAPIGateway) GetConnectionStatus() ports.ConnectionStatus {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.status
}

// getJSON issues a GET against the API and decodes the response into out,
// which may be nil when only the status matters.
func (g *TenQAPIGateway) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	if g.credentials != nil {
		header, err := g.credentials.AuthorizationHeader(ctx)
		if err != nil {
			return fmt.Errorf("failed to obtain credentials: %w", err)
		}
		if header != "" {
			req.Header.Set("Authorization", header)
		}
	}

	g.logHTTPRequest(req)

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return &ConnectionError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	g.logHTTPResponse(resp, body, latency)

	if resp.StatusCode == http.StatusUnauthorized {
		return authenticationError(body)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpError(resp.StatusCode, body)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// executeWithRetry executes a function with retry logic and circuit breaker
func (g *TenQAPIGateway) executeWithRetry(fn func() error) error {
	if !g.breaker.CanExecute() {
		return fmt.Errorf("circuit breaker is open")
	}

	var lastErr error
	for attempt := 0; attempt < g.retryPolicy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := g.calculateDelay(attempt)
			g.logger.Log(ports.LogLevelDebug, "Retrying request", map[string]interface{}{
				"attempt": attempt + 1,
				"delay":   delay.String(),
			})
			time.Sleep(delay)
		}

		err := fn()
		if err == nil {
			g.breaker.RecordSuccess()
			return nil
		}

		lastErr = err
		g.breaker.RecordFailure()

		if !shouldRetry(err) {
			return lastErr
		}
	}

	return fmt.Errorf("request failed after %d attempts: %w", g.retryPolicy.MaxAttempts, lastErr)
}

// calculateDelay calculates the delay for retry attempts
func (g *TenQAPIGateway) calculateDelay(attempt int) time.Duration {
	delay := time.Duration(float64(g.retryPolicy.BaseDelay) *
		float64(attempt) * g.retryPolicy.Multiplier)

	if delay > g.retryPolicy.MaxDelay {
		delay = g.retryPolicy.MaxDelay
	}

	return delay
}

// shouldRetry determines if an error should trigger a retry. Authentication
// and client errors are terminal; network failures and server errors retry.
func shouldRetry(err error) bool {
	switch e := err.(type) {
	case *AuthenticationError:
		return false
	case *HTTPError:
		return e.StatusCode >= 500
	default:
		return true
	}
}

// isDebugEnabled checks if debug logging is enabled
func (g *TenQAPIGateway) isDebugEnabled() bool {
	return g.logger != nil && g.logger.GetLogLevel() == ports.LogLevelDebug
}

// logHTTPRequest logs HTTP request details for debugging
func (g *TenQAPIGateway) logHTTPRequest(req *http.Request) {
	if !g.isDebugEnabled() {
		return
	}

	g.logger.Log(ports.LogLevelDebug, "HTTP Request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})
}

// logHTTPResponse logs HTTP response details for debugging
func (g *TenQAPIGateway) logHTTPResponse(resp *http.Response, body []byte, latency time.Duration) {
	if !g.isDebugEnabled() {
		return
	}

	bodyPreview := string(body)
	if len(bodyPreview) > 1000 {
		bodyPreview = bodyPreview[:1000] + "... (truncated)"
	}

	g.logger.Log(ports.LogLevelDebug, "HTTP Response", map[string]interface{}{
		"status_code":  resp.StatusCode,
		"body_size":    len(body),
		"body_preview": bodyPreview,
		"latency_ms":   latency.Milliseconds(),
	})
}

// updateConnectionStatus updates the connection status
func (g *TenQAPIGateway) updateConnectionStatus(connected bool, latency time.Duration, errorMsg string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.status.IsConnected = connected
	g.status.Latency = latency
	g.status.LastError = errorMsg

	if connected {
		g.status.LastConnected = time.Now()
		g.status.RetryCount = 0
	} else {
		g.status.RetryCount++
	}
}
