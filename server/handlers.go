package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-habit-session/authapi"
	sessionerrors "github.com/jrsteele09/go-habit-session/internal/errors"
	"github.com/jrsteele09/go-habit-session/session"
	"github.com/jrsteele09/go-habit-session/users"
)

const (
	contentTypeJSON = "application/json"
	maxBodyBytes    = 1 << 20
)

// sessionView is the session as the browser sees it. Tokens never leave the server.
type sessionView struct {
	User            *users.User `json:"user"`
	IsAuthenticated bool        `json:"isAuthenticated"`
	IsLoading       bool        `json:"isLoading"`
	Error           *string     `json:"error"`
	Phase           string      `json:"phase"`
}

func viewOf(state session.State) sessionView {
	v := sessionView{
		User:            state.User,
		IsAuthenticated: state.IsAuthenticated,
		IsLoading:       state.IsLoading,
		Phase:           state.Phase.String(),
	}
	if state.Error != "" {
		msg := state.Error
		v.Error = &msg
	}
	return v
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return jsonAction(s, func(ctx context.Context, credentials authapi.LoginCredentials) error {
		return s.sessions.Login(ctx, credentials)
	})
}

func (s *Server) RegisterHandler() http.HandlerFunc {
	return jsonAction(s, func(ctx context.Context, userData authapi.RegisterUserData) error {
		return s.sessions.Register(ctx, userData)
	})
}

func (s *Server) UpdateProfileHandler() http.HandlerFunc {
	return jsonAction(s, func(ctx context.Context, update users.Update) error {
		return s.sessions.UpdateUser(ctx, update)
	})
}

func (s *Server) ChangePasswordHandler() http.HandlerFunc {
	return jsonAction(s, func(ctx context.Context, passwordData authapi.ChangePasswordData) error {
		return s.sessions.ChangePassword(ctx, passwordData)
	})
}

func (s *Server) ResetPasswordHandler() http.HandlerFunc {
	return jsonAction(s, func(ctx context.Context, resetData authapi.PasswordResetData) error {
		return s.sessions.ResetPassword(ctx, resetData)
	})
}

func (s *Server) SetNewPasswordHandler() http.HandlerFunc {
	return jsonAction(s, func(ctx context.Context, newPasswordData authapi.NewPasswordData) error {
		return s.sessions.SetNewPassword(ctx, newPasswordData)
	})
}

func (s *Server) VerifyEmailHandler() http.HandlerFunc {
	return jsonAction(s, func(ctx context.Context, verificationData authapi.EmailVerificationData) error {
		return s.sessions.VerifyEmail(ctx, verificationData)
	})
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.sessions.Logout(r.Context())
		writeSession(w, http.StatusOK, s.sessions.State())
	}
}

// RefreshHandler answers 200 when the session is usable after the check, 401 otherwise
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		if !s.sessions.RefreshAuth(r.Context()) {
			status = http.StatusUnauthorized
		}
		writeSession(w, status, s.sessions.State())
	}
}

func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		writeSession(w, http.StatusOK, s.sessions.State())
	}
}

func (s *Server) ClearErrorHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.sessions.ClearError()
		writeSession(w, http.StatusOK, s.sessions.State())
	}
}

// jsonAction decodes a T from the body, runs action and answers with the resulting session.
func jsonAction[T any](s *Server, action func(context.Context, T) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload T
		decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err := decoder.Decode(&payload); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := action(r.Context(), payload); err != nil {
			status := statusFor(err)
			zerolog.Ctx(r.Context()).Info().Err(err).Int("status", status).Msg("session action failed")
			writeSession(w, status, s.sessions.State())
			return
		}
		writeSession(w, http.StatusOK, s.sessions.State())
	}
}

// statusFor maps a session failure onto the status the browser should see. Backend
// client errors are passed through; anything else from the backend is a bad gateway.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sessionerrors.ErrAuthInProgress):
		return http.StatusConflict
	case errors.Is(err, sessionerrors.ErrNotAuthenticated), errors.Is(err, sessionerrors.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	var httpErr *authapi.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
		return httpErr.StatusCode
	}
	return http.StatusBadGateway
}

func writeSession(w http.ResponseWriter, status int, state session.State) {
	writeJSON(w, status, viewOf(state))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, description string) {
	writeJSON(w, status, map[string]string{"error": description})
}
