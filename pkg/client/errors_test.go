package client

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		expected   ErrorClass
	}{
		{name: "bad request", statusCode: 400, expected: ErrorClassClient},
		{name: "unauthorized", statusCode: 401, expected: ErrorClassClient},
		{name: "not found", statusCode: 404, expected: ErrorClassClient},
		{name: "too many requests", statusCode: 429, expected: ErrorClassRateLimit},
		{name: "server error 500", statusCode: 500, expected: ErrorClassServer},
		{name: "server error 503", statusCode: 503, expected: ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := classifyStatus(tt.statusCode)
			if result != tt.expected {
				t.Errorf("classifyStatus(%d) = %q, want %q", tt.statusCode, result, tt.expected)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		apiError *APIError
		expected string
	}{
		{
			name: "error with store code",
			apiError: &APIError{
				Method:     "POST",
				Resource:   "products",
				StatusCode: 400,
				ErrorClass: ErrorClassClient,
				Code:       "rest_invalid_param",
				Message:    "Invalid parameter(s): create",
			},
			expected: "POST products: API client error (status 400): rest_invalid_param: Invalid parameter(s): create",
		},
		{
			name: "error with raw body",
			apiError: &APIError{
				Method:     "GET",
				Resource:   "products/categories",
				StatusCode: 502,
				ErrorClass: ErrorClassServer,
				Body:       []byte("Bad Gateway"),
			},
			expected: "GET products/categories: API server error (status 502): Bad Gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.apiError.Error()
			if result != tt.expected {
				t.Errorf("Error() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	wrappedErr := errors.New("connection refused")
	tErr := &TransportError{Method: "GET", Resource: "products", Err: wrappedErr}

	if !errors.Is(tErr, wrappedErr) {
		t.Error("errors.Is should work with wrapped error")
	}

	wrapped := fmt.Errorf("enumerate: %w", tErr)
	if !IsTransport(wrapped) {
		t.Error("IsTransport should see through wrapping")
	}
	if StatusCode(wrapped) != 0 {
		t.Errorf("StatusCode() = %d, want 0", StatusCode(wrapped))
	}
}

func TestStatusCode(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", &APIError{StatusCode: 429, ErrorClass: ErrorClassRateLimit})
	if got := StatusCode(err); got != 429 {
		t.Errorf("StatusCode() = %d, want 429", got)
	}
	if IsTransport(err) {
		t.Error("APIError should not be reported as transport error")
	}
}
