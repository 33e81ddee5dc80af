package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-habit-session/authapi"
	"github.com/jrsteele09/go-habit-session/internal/config"
	"github.com/jrsteele09/go-habit-session/server"
	"github.com/jrsteele09/go-habit-session/session"
	"github.com/jrsteele09/go-habit-session/sessions"
	"github.com/jrsteele09/go-habit-session/transport"
	"github.com/jrsteele09/go-habit-session/users"
)

const allowedOrigin = "http://localhost:3039"

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{"exp": exp.Unix(), "jti": exp.String()})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

type seenRequest struct {
	path      string
	query     string
	auth      string
	requestID string
	cookie    string
	body      string
}

// fixture runs the BFF in front of a scripted backend mounted under /api.
type fixture struct {
	t       *testing.T
	backend *httptest.Server
	handler http.Handler
	manager *session.Manager

	mu       sync.Mutex
	routes   map[string]http.HandlerFunc
	requests []seenRequest
}

func newFixture(t *testing.T, persisted *sessions.Persisted) *fixture {
	t.Helper()
	f := &fixture{t: t, routes: map[string]http.HandlerFunc{}}
	f.backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, seenRequest{
			path:      r.URL.Path,
			query:     r.URL.RawQuery,
			auth:      r.Header.Get("Authorization"),
			requestID: r.Header.Get(transport.RequestIDHeader),
			cookie:    r.Header.Get("Cookie"),
			body:      string(body),
		})
		h := f.routes[r.Method+" "+r.URL.Path]
		f.mu.Unlock()
		if h == nil {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(f.backend.Close)

	mem := sessions.NewMemoryStore(0)
	t.Cleanup(func() { _ = mem.Close() })
	store := sessions.NewStore(mem, "")
	if persisted != nil {
		require.NoError(t, store.Save(context.Background(), *persisted))
	}

	client := authapi.New(f.backend.URL+"/api", f.backend.Client())
	manager, err := session.New(client, store, session.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	f.manager = manager

	v := viper.New()
	v.Set("API_URL", f.backend.URL+"/api")
	v.Set("ENV", "TEST")
	v.Set("ALLOWED_ORIGINS", allowedOrigin)
	srv, err := server.New(config.FromViper(v), manager, f.backend.Client().Transport)
	require.NoError(t, err)
	f.handler = srv
	return f
}

func loggedInFixture(t *testing.T, access string) *fixture {
	t.Helper()
	return newFixture(t, &sessions.Persisted{
		User:            &users.User{ID: 1, Email: "a@b.com"},
		AccessToken:     access,
		RefreshToken:    "ref1",
		IsAuthenticated: true,
	})
}

func (f *fixture) handle(pattern string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[pattern] = h
}

func (f *fixture) seen(path string) []seenRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []seenRequest
	for _, r := range f.requests {
		if r.path == path {
			out = append(out, r)
		}
	}
	return out
}

func (f *fixture) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	f.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

type sessionBody struct {
	User            *users.User `json:"user"`
	IsAuthenticated bool        `json:"isAuthenticated"`
	IsLoading       bool        `json:"isLoading"`
	Error           *string     `json:"error"`
	Phase           string      `json:"phase"`
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) sessionBody {
	t.Helper()
	var body sessionBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get(transport.RequestIDHeader))
}

func TestLoginRoute(t *testing.T) {
	t.Run("success hides tokens", func(t *testing.T) {
		f := newFixture(t, nil)
		f.handle("POST /api/users/login/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"id": 1, "email": "a@b.com"}, "access": "tok1", "refresh": "ref1"})
		})

		rec := f.do(http.MethodPost, "/auth/login", `{"email":"a@b.com","password":"x"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotContains(t, rec.Body.String(), "tok1")
		require.NotContains(t, rec.Body.String(), "ref1")

		body := decodeSession(t, rec)
		require.True(t, body.IsAuthenticated)
		require.Equal(t, int64(1), body.User.ID)
		require.Nil(t, body.Error)
		require.Equal(t, "authenticated", body.Phase)

		rec = f.do(http.MethodGet, "/auth/session", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, decodeSession(t, rec).IsAuthenticated)
	})

	t.Run("backend rejection", func(t *testing.T) {
		f := newFixture(t, nil)
		f.handle("POST /api/users/login/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Identifiants invalides"})
		})

		rec := f.do(http.MethodPost, "/auth/login", `{"email":"a@b.com","password":"bad"}`, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeSession(t, rec)
		require.False(t, body.IsAuthenticated)
		require.Equal(t, "Identifiants invalides", *body.Error)

		rec = f.do(http.MethodDelete, "/auth/error", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Nil(t, decodeSession(t, rec).Error)
	})

	t.Run("invalid body", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(http.MethodPost, "/auth/login", `{"email":`, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Empty(t, f.seen("/api/users/login/"))
	})
}

func TestLogoutRoute(t *testing.T) {
	access := signedToken(t, time.Now().Add(time.Hour))
	f := loggedInFixture(t, access)
	f.handle("POST /api/users/logout/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	})

	rec := f.do(http.MethodPost, "/auth/logout", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, decodeSession(t, rec).IsAuthenticated)

	revoked := f.seen("/api/users/logout/")
	require.Len(t, revoked, 1)
	require.JSONEq(t, `{"refresh":"ref1"}`, revoked[0].body)
	require.Equal(t, "Bearer "+access, revoked[0].auth)
}

func TestRefreshRoute(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(http.MethodPost, "/auth/refresh", "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("stale token refreshed", func(t *testing.T) {
		f := loggedInFixture(t, signedToken(t, time.Now().Add(-time.Minute)))
		fresh := signedToken(t, time.Now().Add(time.Hour))
		f.handle("POST /api/users/token/refresh/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"access": fresh})
		})

		rec := f.do(http.MethodPost, "/auth/refresh", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, fresh, f.manager.AccessToken())
	})
}

func TestProfileRoute(t *testing.T) {
	t.Run("requires session", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(http.MethodPatch, "/auth/profile", `{"first_name":"Ana"}`, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("merges update", func(t *testing.T) {
		f := loggedInFixture(t, signedToken(t, time.Now().Add(time.Hour)))
		f.handle("PATCH /api/users/profile/1/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"id": 1, "first_name": "Ana"})
		})

		rec := f.do(http.MethodPatch, "/auth/profile", `{"first_name":"Ana"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeSession(t, rec)
		require.Equal(t, "Ana", body.User.FirstName)
		require.Equal(t, "a@b.com", body.User.Email)
	})
}

func TestPasswordResetRoute(t *testing.T) {
	f := newFixture(t, nil)
	f.handle("POST /api/users/password/reset/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	rec := f.do(http.MethodPost, "/auth/password/reset", `{"email":"a@b.com"}`, nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, session.MsgResetPasswordFailed, *decodeSession(t, rec).Error)
}

func TestAccountRoutes(t *testing.T) {
	tests := []struct {
		name     string
		route    string
		backend  string
		body     string
		loggedIn bool
		message  string
		success  any
	}{
		{
			name:    "register",
			route:   "/auth/register",
			backend: "/api/users/register/",
			body:    `{"username":"ana","email":"a@b.com","password":"x","password2":"x"}`,
			message: session.MsgRegisterFailed,
			success: map[string]any{"user": map[string]any{"id": 2, "email": "a@b.com"}, "access": "tok2", "refresh": "ref2"},
		},
		{
			name:     "change password",
			route:    "/auth/password/change",
			backend:  "/api/users/password/change/",
			body:     `{"old_password":"x","new_password":"y"}`,
			loggedIn: true,
			message:  session.MsgChangePasswordFailed,
		},
		{
			name:    "reset password",
			route:   "/auth/password/reset",
			backend: "/api/users/password/reset/",
			body:    `{"email":"a@b.com"}`,
			message: session.MsgResetPasswordFailed,
		},
		{
			name:    "set new password",
			route:   "/auth/password/reset/confirm",
			backend: "/api/users/password/reset/confirm/",
			body:    `{"uid":"MQ","token":"abc","new_password":"y"}`,
			message: session.MsgSetPasswordFailed,
		},
		{
			name:    "verify email",
			route:   "/auth/verify-email",
			backend: "/api/users/verify-email/",
			body:    `{"token":"abc"}`,
			message: session.MsgVerifyEmailFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f *fixture
			if tt.loggedIn {
				f = loggedInFixture(t, signedToken(t, time.Now().Add(time.Hour)))
			} else {
				f = newFixture(t, nil)
			}
			f.handle("POST "+tt.backend, func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusBadRequest, map[string]any{})
			})

			rec := f.do(http.MethodPost, tt.route, tt.body, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, tt.message, *decodeSession(t, rec).Error)
			require.Len(t, f.seen(tt.backend), 1)

			success := tt.success
			if success == nil {
				success = map[string]string{"message": "ok"}
			}
			f.handle("POST "+tt.backend, func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, success)
			})
			rec = f.do(http.MethodPost, tt.route, tt.body, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			require.Nil(t, decodeSession(t, rec).Error)
			require.Len(t, f.seen(tt.backend), 2)
		})
	}
}

func TestProxy(t *testing.T) {
	t.Run("anonymous api call is denied", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(http.MethodGet, "/api/habits/", "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Empty(t, f.seen("/api/habits/"))
	})

	t.Run("anonymous page request goes to login", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(http.MethodGet, "/api/habits/?week=3", "", map[string]string{"Accept": "text/html"})
		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, "/login?from=%2Fapi%2Fhabits%2F%3Fweek%3D3", rec.Header().Get("Location"))
	})

	t.Run("forwards with the session token", func(t *testing.T) {
		access := signedToken(t, time.Now().Add(time.Hour))
		f := loggedInFixture(t, access)
		f.handle("GET /api/habits/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, []string{"run"})
		})

		rec := f.do(http.MethodGet, "/api/habits/?done=1", "", map[string]string{
			"Cookie":                  "sid=browser",
			"Authorization":           "Bearer forged",
			transport.RequestIDHeader: "req-42",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `["run"]`, rec.Body.String())

		seen := f.seen("/api/habits/")
		require.Len(t, seen, 1)
		require.Equal(t, "Bearer "+access, seen[0].auth)
		require.Equal(t, "done=1", seen[0].query)
		require.Equal(t, "req-42", seen[0].requestID)
		require.Empty(t, seen[0].cookie)
	})

	t.Run("stale token is refreshed before forwarding", func(t *testing.T) {
		f := loggedInFixture(t, signedToken(t, time.Now().Add(-time.Minute)))
		fresh := signedToken(t, time.Now().Add(time.Hour))
		f.handle("POST /api/users/token/refresh/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"access": fresh})
		})
		f.handle("GET /api/habits/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, []string{})
		})

		rec := f.do(http.MethodGet, "/api/habits/", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "Bearer "+fresh, f.seen("/api/habits/")[0].auth)
		require.Len(t, f.seen("/api/users/token/refresh/"), 1)
	})

	t.Run("401 is replayed once with its body", func(t *testing.T) {
		f := loggedInFixture(t, signedToken(t, time.Now().Add(time.Hour)))
		var mu sync.Mutex
		calls := 0
		f.handle("POST /api/habits/", func(w http.ResponseWriter, _ *http.Request) {
			mu.Lock()
			calls++
			first := calls == 1
			mu.Unlock()
			if first {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token revoked"})
				return
			}
			writeJSON(w, http.StatusCreated, map[string]int{"id": 9})
		})

		rec := f.do(http.MethodPost, "/api/habits/", `{"name":"read"}`, nil)
		require.Equal(t, http.StatusCreated, rec.Code)

		seen := f.seen("/api/habits/")
		require.Len(t, seen, 2)
		require.Equal(t, `{"name":"read"}`, seen[0].body)
		require.Equal(t, `{"name":"read"}`, seen[1].body)
	})

	t.Run("dead session is denied", func(t *testing.T) {
		f := loggedInFixture(t, signedToken(t, time.Now().Add(-time.Minute)))
		f.handle("POST /api/users/token/refresh/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is blacklisted"})
		})

		rec := f.do(http.MethodGet, "/api/habits/", "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decodeSession(t, rec)
		require.Equal(t, session.MsgSessionExpired, *body.Error)
		require.Equal(t, "expired", body.Phase)
		require.Empty(t, f.seen("/api/habits/"))
	})
}

func TestCors(t *testing.T) {
	f := newFixture(t, nil)

	t.Run("preflight from allowed origin", func(t *testing.T) {
		rec := f.do(http.MethodOptions, "/auth/login", "", map[string]string{"Origin": allowedOrigin})
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, allowedOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
		require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	})

	t.Run("preflight on the proxy skips the session guard", func(t *testing.T) {
		rec := f.do(http.MethodOptions, "/api/habits/", "", map[string]string{"Origin": allowedOrigin})
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, allowedOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("unknown origin gets no headers", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/auth/session", "", map[string]string{"Origin": "https://evil.example"})
		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRequestIDEcho(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/auth/session", "", map[string]string{transport.RequestIDHeader: "abc"})
	require.Equal(t, "abc", rec.Header().Get(transport.RequestIDHeader))
}

func TestNewRejectsRelativeAPIURL(t *testing.T) {
	v := viper.New()
	v.Set("API_URL", "/api")
	mem := sessions.NewMemoryStore(0)
	defer mem.Close()
	manager, err := session.New(authapi.New("", nil), sessions.NewStore(mem, ""), session.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	_, err = server.New(config.FromViper(v), manager, nil)
	require.Error(t, err)
}
