package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrEmptyBaseURL is returned by New when no store URL is configured.
	ErrEmptyBaseURL = errors.New("base url is required")

	// ErrMissingCredentials is returned by New when a key or secret is empty.
	ErrMissingCredentials = errors.New("consumer key and secret are required")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents connection failures and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents a 2xx response with an unreadable body.
	ErrorClassDecode ErrorClass = "decode"
)

// TransportError is returned when no HTTP response was received.
type TransportError struct {
	Method   string
	Resource string
	Err      error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: transport error: %v", e.Method, e.Resource, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError is returned for a non-2xx response.
type APIError struct {
	Method     string
	Resource   string
	StatusCode int
	ErrorClass ErrorClass
	Code       string
	Message    string
	Body       []byte
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s: API %s error (status %d): %s: %s",
			e.Method, e.Resource, e.ErrorClass, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s: API %s error (status %d): %s",
		e.Method, e.Resource, e.ErrorClass, e.StatusCode, truncate(string(e.Body), 200))
}

// DecodeError is returned when a successful response body cannot be decoded.
type DecodeError struct {
	Resource string
	Err      error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s response: %v", e.Resource, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0 if err is not an
// APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr)
}

// classifyStatus categorizes a non-2xx status code.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 429:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	default:
		return ErrorClassServer
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
