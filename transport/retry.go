package transport

import (
	"context"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// Refresher is the slice of the session manager the retry transport needs
type Refresher interface {
	// RefreshAuth makes sure a usable access token is installed, returning false when the session is gone.
	RefreshAuth(ctx context.Context) bool
	// AccessToken returns the currently installed access token.
	AccessToken() string
}

type contextKey string

const noRetryKey contextKey = "transport.no_retry"

// WithoutRetry marks requests made with ctx as exempt from the 401 refresh-and-retry.
// Endpoints that authenticate by other means (login, refresh, password reset) use it,
// and so does the refresh call itself so a rejected refresh can never recurse.
func WithoutRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRetryKey, true)
}

func retryDisabled(ctx context.Context) bool {
	disabled, _ := ctx.Value(noRetryKey).(bool)
	return disabled
}

// Retry replays a request at most once after a 401, provided the refresher
// could install a valid access token. The replay goes straight to the base
// transport, so a second 401 is returned to the caller as is.
type Retry struct {
	base      http.RoundTripper
	refresher Refresher
	log       zerolog.Logger
}

var _ http.RoundTripper = (*Retry)(nil)

// NewRetry wraps base. A nil base uses http.DefaultTransport.
func NewRetry(base http.RoundTripper, refresher Refresher, log zerolog.Logger) *Retry {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Retry{base: base, refresher: refresher, log: log}
}

func (t *Retry) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if !t.retryable(req) {
		return resp, nil
	}

	if !t.refresher.RefreshAuth(req.Context()) {
		t.log.Debug().Str("path", req.URL.Path).Msg("401 and session could not be refreshed")
		return resp, nil
	}

	replay := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return resp, nil
		}
		replay.Body = body
	}
	tok := &oauth2.Token{AccessToken: t.refresher.AccessToken(), TokenType: "Bearer"}
	tok.SetAuthHeader(replay)

	// The first response is discarded in favour of the replay.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	_ = resp.Body.Close()

	t.log.Debug().Str("path", req.URL.Path).Msg("replaying request after token refresh")
	return t.base.RoundTrip(replay)
}

func (t *Retry) retryable(req *http.Request) bool {
	if t.refresher == nil || retryDisabled(req.Context()) {
		return false
	}
	if req.Header.Get("Authorization") == "" {
		return false
	}
	// A consumed body that cannot be recreated cannot be replayed.
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return false
	}
	return true
}
