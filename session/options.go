package session

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultAuthCallTimeout = 30 * time.Second
	DefaultRefreshInterval = 10 * time.Minute
)

type Option func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(m *Manager) {
		m.now = nowFunc
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// WithAuthCallTimeout bounds every call the manager makes to the backend. Zero or less disables the bound.
func WithAuthCallTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.authCallTimeout = d
	}
}
