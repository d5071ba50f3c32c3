package client

import (
	"context"
	"errors"
	"strings"
)

// Error types for reward backend responses.
// These indicate non-retryable errors that should fail immediately.

// DispatchError represents an error response from the reward backend.
// It includes the HTTP status code for proper error classification.
type DispatchError struct {
	StatusCode int
	Message    string
}

func (e *DispatchError) Error() string {
	return e.Message
}

// HTTPStatusCode returns the HTTP status code from the backend response.
func (e *DispatchError) HTTPStatusCode() int {
	return e.StatusCode
}

// Convenience constructors for common error types

// BadRequestError indicates invalid request parameters (400).
// Examples: unknown reward item, invalid quantity
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string {
	return "bad request: " + e.Message
}

func (e *BadRequestError) HTTPStatusCode() int {
	return 400
}

// NotFoundError indicates resource not found (404).
// Examples: reward item not configured, contributor account deleted
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return "resource not found: " + e.Resource
}

func (e *NotFoundError) HTTPStatusCode() int {
	return 404
}

// ForbiddenError indicates insufficient permissions (403).
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	return "forbidden: " + e.Message
}

func (e *ForbiddenError) HTTPStatusCode() int {
	return 403
}

// AuthenticationError indicates authentication failure (401).
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	return "authentication failed: " + e.Message
}

func (e *AuthenticationError) HTTPStatusCode() int {
	return 401
}

// HTTPStatusCodeError is an interface for errors that include HTTP status codes.
type HTTPStatusCodeError interface {
	error
	HTTPStatusCode() int
}

// IsRetryableHTTPStatus determines if an HTTP status code should be retried.
//
// Non-retryable status codes (4xx client errors):
//   - 400 Bad Request - invalid parameters
//   - 401 Unauthorized - authentication failed
//   - 403 Forbidden - insufficient permissions
//   - 404 Not Found - resource doesn't exist
//   - 409 Conflict - resource conflict
//   - 422 Unprocessable Entity - validation failed
//
// Retryable status codes:
//   - 408 Request Timeout
//   - 429 Too Many Requests
//   - 500 Internal Server Error
//   - 502 Bad Gateway
//   - 503 Service Unavailable
//   - 504 Gateway Timeout
func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 400, 401, 403, 404, 409, 422:
		// Client errors - non-retryable
		return false
	case 408, 429, 500, 502, 503, 504:
		// Timeouts and server errors - retryable
		return true
	default:
		// For unknown codes, treat 4xx as non-retryable, 5xx as retryable
		if statusCode >= 400 && statusCode < 500 {
			return false
		}
		return true
	}
}

// IsRetryableError determines if an error from RewardDispatcher or Announcer
// should be retried.
//
// Classification strategy:
// 1. If error implements HTTPStatusCodeError, check status code (most reliable)
// 2. Fallback to error message pattern matching (for generic errors)
//
// Usage in retry logic:
//
//	err := dispatcher.Grant(...)
//	if err != nil && !IsRetryableError(err) {
//	    return err  // Fail immediately
//	}
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Strategy 1: Check for HTTP status code (most reliable)
	var httpErr HTTPStatusCodeError
	if errors.As(err, &httpErr) {
		return IsRetryableHTTPStatus(httpErr.HTTPStatusCode())
	}

	// Strategy 2: Fallback to pattern matching for generic errors
	errMsg := strings.ToLower(err.Error())

	// Non-retryable patterns (4xx-like errors)
	nonRetryablePatterns := []string{
		"bad request",
		"invalid argument",
		"not found",
		"forbidden",
		"unauthorized",
		"authentication failed",
		"permission denied",
		"invalid item",
		"invalid quantity",
		"unknown contributor",
	}

	for _, pattern := range nonRetryablePatterns {
		if strings.Contains(errMsg, pattern) {
			return false
		}
	}

	// All other errors are considered retryable
	// (network timeouts, 502/503, connection refused, etc.)
	return true
}

// RewardDispatcher grants completion rewards to contributors. It is the
// boundary to the inventory backend; the completion coordinator calls it once
// per contributor and relies on it being safely retriable.
type RewardDispatcher interface {
	// Grant issues quantity of rewardItem to one contributor.
	// Returns error if the grant fails; the caller classifies retryability
	// with IsRetryableError and retries with bounded backoff.
	Grant(ctx context.Context, contributorID, rewardItem string, quantity int) error
}

// Announcer posts challenge completion notices to the configured channel.
// Announcement failures never block a challenge from completing: the caller
// logs, retries once, and moves on.
type Announcer interface {
	// Announce posts the completion notice for one challenge.
	Announce(ctx context.Context, channelID, challengeName string, totalReached int64, contributorCount int) error
}
