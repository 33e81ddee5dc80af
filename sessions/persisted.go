package sessions

import (
	"context"
	"encoding/json"

	"github.com/jrsteele09/go-habit-session/internal/errors"
	"github.com/jrsteele09/go-habit-session/users"
)

// DefaultKey is the storage key the session record lives under
const DefaultKey = "auth-storage"

// Persisted is the part of the session that survives a restart. Loading flags and
// error messages are deliberately absent. Empty token strings mean "no token".
type Persisted struct {
	User            *users.User `json:"user"`
	AccessToken     string      `json:"accessToken"`
	RefreshToken    string      `json:"refreshToken"`
	IsAuthenticated bool        `json:"isAuthenticated"`
}

// Consistent reports whether p satisfies the session invariants: an authenticated
// record carries a user and both tokens.
func (p Persisted) Consistent() bool {
	if !p.IsAuthenticated {
		return true
	}
	return p.User != nil && p.AccessToken != "" && p.RefreshToken != ""
}

type envelope struct {
	State   Persisted `json:"state"`
	Version int       `json:"version"`
}

const currentVersion = 0

// Backend stores opaque records by key. Get returns errors.ErrSessionNotFound when nothing is stored.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Store loads and saves the persisted session
type Store interface {
	Load(ctx context.Context) (Persisted, error)
	Save(ctx context.Context, p Persisted) error
	Clear(ctx context.Context) error
}

// KeyedStore keeps a single session record, wrapped in a versioned envelope, under one key of a Backend.
type KeyedStore struct {
	backend Backend
	key     string
}

var _ Store = (*KeyedStore)(nil)

// NewStore returns a Store writing to key on backend. An empty key uses DefaultKey.
func NewStore(backend Backend, key string) *KeyedStore {
	if key == "" {
		key = DefaultKey
	}
	return &KeyedStore{backend: backend, key: key}
}

// Key returns the key the record is stored under
func (s *KeyedStore) Key() string {
	return s.key
}

// Load returns errors.ErrSessionNotFound when no record is stored.
func (s *KeyedStore) Load(ctx context.Context) (Persisted, error) {
	data, err := s.backend.Get(ctx, s.key)
	if err != nil {
		return Persisted{}, errors.Wrapf(err, "[KeyedStore.Load] %s", s.key)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Persisted{}, errors.Wrapf(err, "[KeyedStore.Load] decode %s", s.key)
	}
	return env.State, nil
}

func (s *KeyedStore) Save(ctx context.Context, p Persisted) error {
	data, err := json.Marshal(envelope{State: p, Version: currentVersion})
	if err != nil {
		return errors.Wrapf(err, "[KeyedStore.Save] encode %s", s.key)
	}
	return errors.Wrapf(s.backend.Set(ctx, s.key, data), "[KeyedStore.Save] %s", s.key)
}

func (s *KeyedStore) Clear(ctx context.Context) error {
	return errors.Wrapf(s.backend.Delete(ctx, s.key), "[KeyedStore.Clear] %s", s.key)
}
