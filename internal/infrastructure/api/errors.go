package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ConnectionError indicates the request could not be completed before any
// response was received (network failure, DNS, TLS).
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthenticationError indicates both the credentialed and the guest attempt
// were rejected with 401.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string { return e.Message }

// HTTPError indicates a non-401 non-2xx response. Message is derived from the
// response body when possible, else from the status class.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string { return e.Message }

// TimeoutError indicates no bytes arrived within the inactivity window.
type TimeoutError struct {
	Window time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("stream timed out: no data received for %s", e.Window)
}

// errorDetail is the optional shape of non-2xx response bodies.
type errorDetail struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

// messageFromBody extracts a human message from an error response body. The
// body-derived message takes precedence over the status-based default.
func messageFromBody(body []byte) string {
	var detail errorDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return ""
	}
	if detail.Detail != "" {
		return detail.Detail
	}
	return detail.Message
}

// statusMessage returns the default human message for an error status.
func statusMessage(statusCode int) string {
	switch {
	case statusCode == http.StatusForbidden:
		return "permission denied"
	case statusCode == http.StatusTooManyRequests:
		return "rate limited, try again later"
	case statusCode >= 500:
		return "server error, try again later"
	default:
		return fmt.Sprintf("request failed with status %d", statusCode)
	}
}

// httpError builds the terminal error for a non-401 non-2xx response.
func httpError(statusCode int, body []byte) *HTTPError {
	msg := messageFromBody(body)
	if msg == "" {
		msg = statusMessage(statusCode)
	}
	return &HTTPError{StatusCode: statusCode, Message: msg}
}

// authenticationError builds the terminal error for a 401 on the guest
// attempt.
func authenticationError(body []byte) *AuthenticationError {
	msg := messageFromBody(body)
	if msg == "" {
		msg = "authentication failed"
	}
	return &AuthenticationError{Message: msg}
}
