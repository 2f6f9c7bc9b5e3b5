// Package core provides the error model shared by the CareDraft API.
package core

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorType represents the type of error that occurred
type ErrorType string

const (
	// ErrorTypeProvider indicates an upstream AI provider error (5xx)
	ErrorTypeProvider ErrorType = "provider_error"
	// ErrorTypeRateLimit indicates a rate limit error (429)
	ErrorTypeRateLimit ErrorType = "rate_limit_error"
	// ErrorTypeInvalidRequest indicates a client error (4xx)
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeAuthentication indicates an authentication error (401)
	ErrorTypeAuthentication ErrorType = "authentication_error"
	// ErrorTypeNotFound indicates a not found error (404)
	ErrorTypeNotFound ErrorType = "not_found_error"
	// ErrorTypeInternal indicates an unexpected server-side failure (500)
	ErrorTypeInternal ErrorType = "internal_error"
)

// APIError is the error type returned to API clients.
type APIError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	Provider   string    `json:"provider,omitempty"`
	// RetryAfterSeconds is only set for rate limit errors.
	RetryAfterSeconds int `json:"retry_after_seconds,omitempty"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *APIError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to its wire shape.
func (e *APIError) ToJSON() map[string]any {
	body := map[string]any{
		"type":    e.Type,
		"message": e.Message,
	}
	if e.RetryAfterSeconds > 0 {
		body["retry_after_seconds"] = e.RetryAfterSeconds
	}
	return map[string]any{"error": body}
}

// NewProviderError creates a new provider error (upstream 5xx)
func NewProviderError(provider string, statusCode int, message string, err error) *APIError {
	return &APIError{
		Type:       ErrorTypeProvider,
		Message:    message,
		StatusCode: statusCode,
		Provider:   provider,
		Err:        err,
	}
}

// NewRateLimitError creates a 429 error telling the client when to retry.
func NewRateLimitError(message string, retryAfterSeconds int) *APIError {
	return &APIError{
		Type:              ErrorTypeRateLimit,
		Message:           message,
		StatusCode:        http.StatusTooManyRequests,
		RetryAfterSeconds: retryAfterSeconds,
	}
}

// NewInvalidRequestError creates a new invalid request error (400)
func NewInvalidRequestError(message string, err error) *APIError {
	return NewInvalidRequestErrorWithStatus(http.StatusBadRequest, message, err)
}

// NewInvalidRequestErrorWithStatus creates a new invalid request error with a specific status code
func NewInvalidRequestErrorWithStatus(statusCode int, message string, err error) *APIError {
	return &APIError{
		Type:       ErrorTypeInvalidRequest,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// NewAuthenticationError creates a new authentication error (401)
func NewAuthenticationError(message string) *APIError {
	return &APIError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewNotFoundError creates a new not found error (404)
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewInternalError wraps an unexpected failure so its cause is kept for logs only.
func NewInternalError(message string, err error) *APIError {
	return &APIError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// ParseProviderError turns an upstream AI provider error body into an APIError.
func ParseProviderError(provider string, statusCode int, body []byte, originalErr error) *APIError {
	var errorResponse struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := string(body)
	if err := json.Unmarshal(body, &errorResponse); err == nil && errorResponse.Error.Message != "" {
		message = errorResponse.Error.Message
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		// The provider key is ours, not the caller's, so this is a gateway failure.
		return NewProviderError(provider, http.StatusBadGateway, "provider rejected credentials: "+message, originalErr)
	case statusCode == http.StatusTooManyRequests:
		return NewProviderError(provider, http.StatusServiceUnavailable, "provider rate limited: "+message, originalErr)
	case statusCode >= 400 && statusCode < 500:
		err := NewInvalidRequestErrorWithStatus(statusCode, message, originalErr)
		err.Provider = provider
		return err
	default:
		return NewProviderError(provider, http.StatusBadGateway, message, originalErr)
	}
}
