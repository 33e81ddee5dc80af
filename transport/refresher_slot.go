package transport

import (
	"context"
	"sync"
)

// RefresherSlot is a Refresher bound after construction. The backend client has to
// exist before the session manager that refreshes through it, so its Retry transport
// is built on a slot and the manager is bound once created. An unbound slot reports no session.
type RefresherSlot struct {
	mu sync.RWMutex
	r  Refresher
}

var _ Refresher = (*RefresherSlot)(nil)

// Bind installs r as the refresher every later call delegates to
func (s *RefresherSlot) Bind(r Refresher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.r = r
}

func (s *RefresherSlot) RefreshAuth(ctx context.Context) bool {
	r := s.bound()
	if r == nil {
		return false
	}
	return r.RefreshAuth(ctx)
}

func (s *RefresherSlot) AccessToken() string {
	r := s.bound()
	if r == nil {
		return ""
	}
	return r.AccessToken()
}

func (s *RefresherSlot) bound() Refresher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.r
}
