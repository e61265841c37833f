package handler

import (
	"errors"
	"time"
)

// Constants for handler configuration
const (
	// DefaultTimeout is the maximum time to process a request
	DefaultTimeout = 10 * time.Second

	// MaxTokenLength is the maximum allowed length for a JWT token
	MaxTokenLength = 16384 // 16KB

	// MaxBodySize limits JSON request bodies
	MaxBodySize = 1 << 20 // 1MB

	// HealthPath is the unauthenticated liveness check
	HealthPath = "/health"
)

// Context key types to avoid string collision in context values
type contextKey string

const (
	RequestIDContextKey contextKey = "requestId"
	StartTimeContextKey contextKey = "startTime"
)

// Custom error types for more precise error reporting
var (
	ErrEmptyToken      = errors.New("token is empty")
	ErrTokenTooLarge   = errors.New("token exceeds maximum allowed size")
	ErrInvalidJSON     = errors.New("invalid JSON in request body")
	ErrInvalidID       = errors.New("invalid resource id")
	ErrInvalidField    = errors.New("invalid field value")
	ErrMissingCode     = errors.New("authorization code is missing")
	ErrExchangeFailed  = errors.New("authorization code exchange failed")
	ErrNoPrincipal     = errors.New("request has no authenticated principal")
	ErrExchangeUnavail = errors.New("token exchange is not configured")
)

// ResponseHeaders common headers to include in all API responses
var ResponseHeaders = map[string]string{
	"Content-Type": "application/json",
}

// Response represents a standardized API error response
type Response struct {
	Success      bool   `json:"success"`
	StatusCode   int    `json:"statusCode,omitempty"`
	RequestID    string `json:"requestId"`
	ProcessingMS int64  `json:"processingMs,omitempty"`
	Message      string `json:"message,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
}

// TokenResponse is returned by the public code exchange endpoint
type TokenResponse struct {
	IDToken     string `json:"id_token"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}
