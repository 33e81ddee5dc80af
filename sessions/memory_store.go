package sessions

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/jrsteele09/go-habit-session/internal/errors"
)

// MemoryStore keeps records in process. A zero retention keeps them until deleted.
type MemoryStore struct {
	cache *ttlcache.Cache[string, []byte]
}

var _ Backend = (*MemoryStore)(nil)

// NewMemoryStore starts the expiry loop; call Close to stop it.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	ttl := retention
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, []byte](ttl),
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go cache.Start()

	return &MemoryStore{cache: cache}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	item := s.cache.Get(key)
	if item == nil {
		return nil, errors.ErrSessionNotFound
	}
	return append([]byte(nil), item.Value()...), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, data []byte) error {
	s.cache.Set(key, append([]byte(nil), data...), ttlcache.DefaultTTL)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

// Close stops the expiry loop
func (s *MemoryStore) Close() error {
	s.cache.Stop()
	return nil
}
