package session

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-habit-session/internal/errors"
	"github.com/jrsteele09/go-habit-session/token"
)

const refreshKey = "refresh"

// RefreshAuth makes sure a usable access token is installed. It returns false when
// the session cannot proceed as authenticated.
//
// An unexpired access token is trusted without a network call. Otherwise concurrent
// callers share a single refresh call and all observe its outcome. A rejected refresh
// clears the whole session. A caller whose ctx ends stops waiting and gets false; the
// shared refresh carries on for the others.
func (m *Manager) RefreshAuth(ctx context.Context) bool {
	m.mu.Lock()
	switch {
	case m.refreshToken == "":
		m.mu.Unlock()
		return false
	case m.phase == PhaseAuthenticating:
		authenticated := m.isAuthenticated
		m.mu.Unlock()
		return authenticated
	case m.accessToken != "" && !token.Decode(m.accessToken).ExpiredAt(m.now()):
		m.mu.Unlock()
		return true
	}
	m.mu.Unlock()

	ch := m.refreshGroup.DoChan(refreshKey, func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx)), nil
	})
	select {
	case res := <-ch:
		return res.Val.(bool)
	case <-ctx.Done():
		return false
	}
}

func (m *Manager) refresh(ctx context.Context) bool {
	m.mu.Lock()
	refresh := m.refreshToken
	if refresh == "" {
		m.mu.Unlock()
		return false
	}
	if m.phase == PhaseAuthenticating {
		authenticated := m.isAuthenticated
		m.mu.Unlock()
		return authenticated
	}
	// A flight that finished just before this one started may already have installed a fresh token.
	if m.accessToken != "" && !token.Decode(m.accessToken).ExpiredAt(m.now()) {
		m.mu.Unlock()
		return true
	}
	gen := m.generation
	m.phase = PhaseRefreshing
	m.loading++
	m.mu.Unlock()

	callCtx, cancel := m.callContext(ctx)
	resp, err := m.api.RefreshToken(callCtx, refresh)
	cancel()

	m.mu.Lock()
	m.loading--
	if gen != m.generation {
		// Logged out or logged in again while the refresh was in flight.
		authenticated := m.isAuthenticated
		m.mu.Unlock()
		m.log.Debug().Msg("discarding refresh result for a replaced session")
		return authenticated
	}

	if err != nil {
		m.user = nil
		m.accessToken = ""
		m.refreshToken = ""
		m.isAuthenticated = false
		m.errMsg = MsgSessionExpired
		m.phase = PhaseExpired
		m.generation++
		m.api.ClearAuthToken()
		m.mu.Unlock()

		m.log.Warn().Err(err).Msg("token refresh failed, session cleared")
		m.persist(ctx)
		return false
	}

	m.accessToken = resp.Access
	if m.user != nil {
		m.isAuthenticated = true
	}
	if m.isAuthenticated {
		m.phase = PhaseAuthenticated
	} else {
		m.phase = PhaseAnonymous
	}
	m.api.SetAuthToken(resp.Access)
	m.mu.Unlock()

	m.log.Debug().Msg("access token refreshed")
	m.persist(ctx)
	return true
}

// TokenSource exposes the session as an oauth2.TokenSource. Each Token call goes
// through RefreshAuth, so an oauth2.Transport built on it always sends a fresh token.
func (m *Manager) TokenSource() oauth2.TokenSource {
	return tokenSource{m: m}
}

type tokenSource struct {
	m *Manager
}

func (s tokenSource) Token() (*oauth2.Token, error) {
	if !s.m.RefreshAuth(context.Background()) {
		return nil, errors.Wrapf(errors.ErrSessionExpired, "[TokenSource.Token]")
	}

	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.accessToken == "" {
		return nil, errors.Wrapf(errors.ErrSessionExpired, "[TokenSource.Token]")
	}
	tok := &oauth2.Token{
		AccessToken:  s.m.accessToken,
		RefreshToken: s.m.refreshToken,
		TokenType:    "Bearer",
	}
	if exp := token.Decode(s.m.accessToken); exp.Valid {
		tok.Expiry = exp.At
	}
	return tok, nil
}
