package authapi

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedResponse is returned when a 2xx body lacks the fields the endpoint promises
var ErrMalformedResponse = errors.New("malformed response")

// HTTPError represents a non-2xx HTTP response from the API.
type HTTPError struct {
	StatusCode int
	Message    string // Human readable message extracted from the body, if any
	Body       []byte
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, string(e.Body))
}

// IsStatus returns true if err (or any wrapped error) is an HTTPError with the given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	return false
}

// MessageOf returns the backend's human readable failure message, or "" when err carries none.
func MessageOf(err error) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Message
	}
	return ""
}

// extractMessage looks for the message fields the backend uses, in order of preference:
// message, detail, error, then the first entry of non_field_errors.
func extractMessage(body []byte) string {
	var payload struct {
		Message        string   `json:"message"`
		Detail         string   `json:"detail"`
		Error          string   `json:"error"`
		NonFieldErrors []string `json:"non_field_errors"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	switch {
	case payload.Message != "":
		return payload.Message
	case payload.Detail != "":
		return payload.Detail
	case payload.Error != "":
		return payload.Error
	case len(payload.NonFieldErrors) > 0:
		return payload.NonFieldErrors[0]
	}
	return ""
}
