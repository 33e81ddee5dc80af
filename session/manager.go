package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/jrsteele09/go-habit-session/authapi"
	"github.com/jrsteele09/go-habit-session/internal/errors"
	"github.com/jrsteele09/go-habit-session/sessions"
	"github.com/jrsteele09/go-habit-session/token"
	"github.com/jrsteele09/go-habit-session/users"
)

// API is the part of the backend client the manager drives
type API interface {
	Login(ctx context.Context, credentials authapi.LoginCredentials) (*authapi.AuthResponse, error)
	Register(ctx context.Context, userData authapi.RegisterUserData) (*authapi.AuthResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*authapi.RefreshResponse, error)
	UpdateUser(ctx context.Context, userID int64, update users.Update) (users.Patch, error)
	ChangePassword(ctx context.Context, passwordData authapi.ChangePasswordData) (*authapi.MessageResponse, error)
	ResetPassword(ctx context.Context, resetData authapi.PasswordResetData) (*authapi.MessageResponse, error)
	SetNewPassword(ctx context.Context, newPasswordData authapi.NewPasswordData) (*authapi.MessageResponse, error)
	VerifyEmail(ctx context.Context, verificationData authapi.EmailVerificationData) (*authapi.MessageResponse, error)
	Logout(ctx context.Context, accessToken, refreshToken string) (*authapi.MessageResponse, error)

	SetAuthToken(token string)
	ClearAuthToken()
}

var _ API = (*authapi.Client)(nil)

// Manager owns the authentication session: identity, token pair, loading and error
// flags. It is safe for concurrent use.
type Manager struct {
	api             API
	store           sessions.Store
	log             zerolog.Logger
	now             func() time.Time
	authCallTimeout time.Duration

	mu              sync.Mutex
	phase           Phase
	user            *users.User
	accessToken     string
	refreshToken    string
	isAuthenticated bool
	loading         int
	errMsg          string
	authInFlight    bool
	generation      uint64 // bumped whenever the identity changes, so stale completions can be dropped
	updateSeq       uint64
	appliedUpdate   uint64

	refreshGroup singleflight.Group
	persistMu    sync.Mutex
}

// New creates a manager and rehydrates it from store.
// Optional configuration can be provided via options (e.g., WithNowTime for testing).
func New(api API, store sessions.Store, opts ...Option) (*Manager, error) {
	if api == nil {
		return nil, errors.New("[session.New] api is required")
	}
	if store == nil {
		return nil, errors.New("[session.New] store is required")
	}

	m := &Manager{
		api:             api,
		store:           store,
		log:             log.Logger,
		now:             token.NowTimeFunc,
		authCallTimeout: DefaultAuthCallTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.rehydrate()
	return m, nil
}

func (m *Manager) rehydrate() {
	ctx, cancel := m.callContext(context.Background())
	defer cancel()

	p, err := m.store.Load(ctx)
	switch {
	case errors.Is(err, errors.ErrSessionNotFound):
		return
	case err != nil:
		m.log.Warn().Err(err).Msg("unable to load persisted session, starting anonymous")
		return
	case !p.Consistent():
		m.log.Warn().Msg("persisted session is inconsistent, starting anonymous")
		return
	}

	m.user = p.User
	m.accessToken = p.AccessToken
	m.refreshToken = p.RefreshToken
	m.isAuthenticated = p.IsAuthenticated
	if p.IsAuthenticated {
		m.phase = PhaseAuthenticated
		m.api.SetAuthToken(p.AccessToken)
		m.log.Debug().Str("email", p.User.Email).Msg("session restored")
	}
}

// State returns a snapshot of the session
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Manager) stateLocked() State {
	s := State{
		Phase:           m.phase,
		AccessToken:     m.accessToken,
		RefreshToken:    m.refreshToken,
		IsAuthenticated: m.isAuthenticated,
		IsLoading:       m.loading > 0,
		Error:           m.errMsg,
	}
	if m.user != nil {
		s.User = m.user.Clone()
	}
	return s
}

// AccessToken returns the installed access token, "" when there is none
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessToken
}

// IsTokenExpired reports whether raw is expired or undecodable.
func (m *Manager) IsTokenExpired(raw string) bool {
	return token.Decode(raw).ExpiredAt(m.now())
}

func (m *Manager) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errMsg = ""
}

// Login authenticates with email and password and installs the returned session.
func (m *Manager) Login(ctx context.Context, credentials authapi.LoginCredentials) error {
	return m.authenticate(ctx, "Login", MsgLoginFailed, func(ctx context.Context) (*authapi.AuthResponse, error) {
		return m.api.Login(ctx, credentials)
	})
}

// Register creates an account and installs the returned session.
func (m *Manager) Register(ctx context.Context, userData authapi.RegisterUserData) error {
	return m.authenticate(ctx, "Register", MsgRegisterFailed, func(ctx context.Context) (*authapi.AuthResponse, error) {
		return m.api.Register(ctx, userData)
	})
}

func (m *Manager) authenticate(ctx context.Context, op, fallback string, call func(context.Context) (*authapi.AuthResponse, error)) error {
	m.mu.Lock()
	if m.authInFlight || m.phase == PhaseRefreshing {
		m.mu.Unlock()
		return errors.Wrapf(errors.ErrAuthInProgress, "[Manager.%s]", op)
	}
	m.authInFlight = true
	previous := m.phase
	m.phase = PhaseAuthenticating
	m.loading++
	m.errMsg = ""
	m.mu.Unlock()

	callCtx, cancel := m.callContext(ctx)
	resp, err := call(callCtx)
	cancel()

	m.mu.Lock()
	m.authInFlight = false
	m.loading--
	if err != nil {
		m.errMsg = messageFor(err, fallback)
		if m.phase == PhaseAuthenticating {
			m.phase = previous
		}
		m.mu.Unlock()
		m.log.Info().Err(err).Str("op", op).Msg("authentication failed")
		return errors.Wrapf(err, "[Manager.%s]", op)
	}

	m.user = resp.User.Clone()
	m.accessToken = resp.Access
	m.refreshToken = resp.Refresh
	m.isAuthenticated = true
	m.phase = PhaseAuthenticated
	m.generation++
	m.api.SetAuthToken(resp.Access)
	m.mu.Unlock()

	m.log.Info().Str("op", op).Int64("user_id", resp.User.ID).Msg("session established")
	m.persist(ctx)
	return nil
}

// Logout forgets the session locally, then asks the backend to revoke the refresh
// token. Revocation is best effort. The error message is left untouched.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	access, refresh := m.accessToken, m.refreshToken
	m.user = nil
	m.accessToken = ""
	m.refreshToken = ""
	m.isAuthenticated = false
	m.phase = PhaseAnonymous
	m.generation++
	m.api.ClearAuthToken()
	m.mu.Unlock()

	m.persist(ctx)
	m.log.Info().Msg("logged out")

	if refresh == "" {
		return
	}
	callCtx, cancel := m.callContext(ctx)
	defer cancel()
	if _, err := m.api.Logout(callCtx, access, refresh); err != nil {
		m.log.Debug().Err(err).Msg("refresh token revocation failed")
	}
}

// persist saves the current persisted subset. Saves are serialized and each one
// snapshots the state at save time, so the last save always reflects the latest state.
func (m *Manager) persist(ctx context.Context) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	p := sessions.Persisted{
		AccessToken:     m.accessToken,
		RefreshToken:    m.refreshToken,
		IsAuthenticated: m.isAuthenticated,
	}
	if m.user != nil {
		p.User = m.user.Clone()
	}
	m.mu.Unlock()

	saveCtx, cancel := m.callContext(context.WithoutCancel(ctx))
	defer cancel()
	if err := m.store.Save(saveCtx, p); err != nil {
		m.log.Err(err).Msg("unable to persist session")
	}
}

func (m *Manager) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.authCallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.authCallTimeout)
}

func messageFor(err error, fallback string) string {
	if msg := authapi.MessageOf(err); msg != "" {
		return msg
	}
	return fallback
}
