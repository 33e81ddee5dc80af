package session

import (
	"context"
	"time"
)

// Decision is what a route guard should do with a request for a protected page
type Decision int

const (
	Allow Decision = iota // Render the protected content
	Wait                  // Authentication is being resolved, show a loading state
	Deny                  // No session, send the user to the login surface
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Wait:
		return "wait"
	case Deny:
		return "deny"
	}
	return "unknown"
}

// Gate checks the session for a protected route. An authenticated session is
// refreshed first, so a dead session is denied rather than allowed.
func (m *Manager) Gate(ctx context.Context) Decision {
	if m.State().IsAuthenticated {
		m.RefreshAuth(ctx)
	}

	s := m.State()
	switch {
	case s.Phase == PhaseRefreshing:
		return Wait
	case s.IsAuthenticated:
		return Allow
	case s.Phase == PhaseAuthenticating:
		return Wait
	}
	return Deny
}

// Keepalive refreshes an authenticated session on a fixed interval, so an idle
// session does not expire between user actions.
type Keepalive struct {
	m        *Manager
	interval time.Duration
}

// NewKeepalive returns a keepalive ticking every interval. Zero or less uses DefaultRefreshInterval.
func NewKeepalive(m *Manager, interval time.Duration) *Keepalive {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Keepalive{m: m, interval: interval}
}

// Run checks the session immediately and then on every tick until ctx is cancelled.
func (k *Keepalive) Run(ctx context.Context) {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		k.check(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (k *Keepalive) check(ctx context.Context) {
	if !k.m.State().IsAuthenticated {
		return
	}
	if !k.m.RefreshAuth(ctx) && ctx.Err() == nil {
		k.m.log.Info().Msg("keepalive found the session expired")
	}
}
