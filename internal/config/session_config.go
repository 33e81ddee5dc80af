package config

import "time"

const (
	authCallTimeoutVar = "AUTH_CALL_TIMEOUT"
	refreshIntervalVar = "REFRESH_INTERVAL"
	sessionKeyVar      = "SESSION_KEY"
)

type SessionConfig interface {
	GetAuthCallTimeout() time.Duration
	GetRefreshInterval() time.Duration
	GetSessionKey() string
}

type Session struct {
	source
}

var _ SessionConfig = Session{}

// GetAuthCallTimeout bounds a single refresh round trip shared by all waiting callers
func (s Session) GetAuthCallTimeout() time.Duration {
	return s.v.GetDuration(authCallTimeoutVar)
}

// GetRefreshInterval is the keepalive period while authenticated
func (s Session) GetRefreshInterval() time.Duration {
	return s.v.GetDuration(refreshIntervalVar)
}

// GetSessionKey is the persisted-state key, kept apart from any other app state
func (s Session) GetSessionKey() string {
	return s.v.GetString(sessionKeyVar)
}
