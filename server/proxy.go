package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	sessionerrors "github.com/jrsteele09/go-habit-session/internal/errors"
	"github.com/jrsteele09/go-habit-session/transport"
)

// maxReplayBody is the largest request body buffered so a 401 can be replayed after a refresh
const maxReplayBody = 1 << 20

// newBackendProxy forwards /api/* to the backend. Every forwarded request carries the
// session's access token; a 401 triggers one refresh and one replay.
func newBackendProxy(apiURL string, sessions SessionManager, backend http.RoundTripper) (http.Handler, error) {
	target, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", apiURL, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("api url %q must be absolute", apiURL)
	}

	if backend == nil {
		backend = http.DefaultTransport
	}
	retry := transport.NewRetry(transport.RequestID{Base: backend}, sessions, log.Logger)

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Header.Del("Cookie")
			bufferBody(pr.Out)
		},
		Transport: &oauth2.Transport{
			Source: sessions.TokenSource(),
			Base:   retry,
		},
		ErrorHandler: proxyError,
	}

	// /api/habits/ on this server is <api url>/habits/ on the backend
	return http.StripPrefix("/api", proxy), nil
}

// bufferBody makes small bodies replayable by setting GetBody
func bufferBody(req *http.Request) {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return
	}
	if req.ContentLength < 0 || req.ContentLength > maxReplayBody {
		return
	}
	data, err := io.ReadAll(io.LimitReader(req.Body, maxReplayBody))
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil {
		return
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

func proxyError(w http.ResponseWriter, r *http.Request, err error) {
	logger := zerolog.Ctx(r.Context())
	switch {
	case errors.Is(err, sessionerrors.ErrSessionExpired):
		logger.Info().Err(err).Msg("proxy: session gone")
		writeJSONError(w, http.StatusUnauthorized, "session expired")
	case isTimeoutError(err):
		logger.Warn().Err(err).Msg("proxy: backend timed out")
		writeJSONError(w, http.StatusGatewayTimeout, "backend service timed out")
	default:
		logger.Error().Err(err).Msg("proxy: backend unavailable")
		writeJSONError(w, http.StatusBadGateway, "backend service unavailable")
	}
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
