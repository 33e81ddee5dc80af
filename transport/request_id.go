package transport

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader is the header key for request ID
const RequestIDHeader = "X-Request-ID"

// RequestID stamps a fresh X-Request-ID on outgoing requests that do not carry one
type RequestID struct {
	Base http.RoundTripper
}

var _ http.RoundTripper = RequestID{}

func (t RequestID) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if req.Header.Get(RequestIDHeader) != "" {
		return base.RoundTrip(req)
	}
	stamped := req.Clone(req.Context())
	stamped.Header.Set(RequestIDHeader, uuid.New().String())
	return base.RoundTrip(stamped)
}
