package session_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-habit-session/authapi"
	"github.com/jrsteele09/go-habit-session/session"
	"github.com/jrsteele09/go-habit-session/sessions"
)

var fixedNow = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func nowFunc() time.Time { return fixedNow }

// signedToken returns an HS256 JWT expiring at exp.
func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"exp":     exp.Unix(),
		"user_id": 1,
		"jti":     exp.String(),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

// backend is a scripted habit API recording hits and Authorization headers per path.
type backend struct {
	srv *httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	hits     map[string]int
	auth     map[string]string
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{
		handlers: map[string]http.HandlerFunc{},
		hits:     map[string]int{},
		auth:     map[string]string{},
	}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits[r.URL.Path]++
		b.auth[r.URL.Path] = r.Header.Get("Authorization")
		h := b.handlers[r.URL.Path]
		b.mu.Unlock()

		if h == nil {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) handle(path string, h http.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[path] = h
}

func (b *backend) hitCount(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

func (b *backend) lastAuth(path string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.auth[path]
}

func (b *backend) client() *authapi.Client {
	return authapi.New(b.srv.URL, b.srv.Client())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respond(status int, body any) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, status, body)
	}
}

func newStore(t *testing.T) *sessions.KeyedStore {
	t.Helper()
	mem := sessions.NewMemoryStore(0)
	t.Cleanup(func() { _ = mem.Close() })
	return sessions.NewStore(mem, "")
}

func newManager(t *testing.T, api session.API, store sessions.Store, opts ...session.Option) *session.Manager {
	t.Helper()
	opts = append([]session.Option{session.WithNowTime(nowFunc), session.WithLogger(zerolog.Nop())}, opts...)
	m, err := session.New(api, store, opts...)
	require.NoError(t, err)
	return m
}

// loggedIn returns a manager holding a session with the given access token.
func loggedIn(t *testing.T, b *backend, access string, opts ...session.Option) (*session.Manager, *authapi.Client, *sessions.KeyedStore) {
	t.Helper()
	store := newStore(t)
	require.NoError(t, store.Save(context.Background(), sessions.Persisted{
		User:            &usersFixture,
		AccessToken:     access,
		RefreshToken:    "ref1",
		IsAuthenticated: true,
	}))
	client := b.client()
	return newManager(t, client, store, opts...), client, store
}

func jsonDecode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
