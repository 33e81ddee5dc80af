package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-habit-session/authapi"
	"github.com/jrsteele09/go-habit-session/internal/config"
	"github.com/jrsteele09/go-habit-session/session"
	"github.com/jrsteele09/go-habit-session/users"
)

// SessionManager is what the HTTP surface needs from the session manager
type SessionManager interface {
	State() session.State
	Login(ctx context.Context, credentials authapi.LoginCredentials) error
	Register(ctx context.Context, userData authapi.RegisterUserData) error
	Logout(ctx context.Context)
	RefreshAuth(ctx context.Context) bool
	ClearError()
	UpdateUser(ctx context.Context, update users.Update) error
	ChangePassword(ctx context.Context, passwordData authapi.ChangePasswordData) error
	ResetPassword(ctx context.Context, resetData authapi.PasswordResetData) error
	SetNewPassword(ctx context.Context, newPasswordData authapi.NewPasswordData) error
	VerifyEmail(ctx context.Context, verificationData authapi.EmailVerificationData) error
	Gate(ctx context.Context) session.Decision
	TokenSource() oauth2.TokenSource
	AccessToken() string
}

var _ SessionManager = (*session.Manager)(nil)

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	sessions SessionManager
	proxy    http.Handler
}

// New wires the session routes and the guarded backend proxy. backend is the
// transport proxied calls leave through; nil uses http.DefaultTransport.
func New(c config.Config, sessions SessionManager, backend http.RoundTripper) (*Server, error) {
	if sessions == nil {
		return nil, fmt.Errorf("[Server New] session manager is required")
	}

	proxy, err := newBackendProxy(c.GetAPIURL(), sessions, backend)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create backend proxy: %w", err)
	}

	s := &Server{
		mux:      http.NewServeMux(),
		config:   c,
		sessions: sessions,
		proxy:    proxy,
	}
	s.env = c.GetEnv()

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			log.Info().Msgf("[%s] %s", colourMethod(parts[0]), parts[1])
		} else {
			log.Info().Msgf("[%s] %s", colourMethod(""), parts[0])
		}
	}
}
