package server

import (
	"net/http"
)

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.APIMiddleware()...))

	// SESSION
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthRegister, ChainMiddleware(s.RegisterHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthSession, ChainMiddleware(s.SessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("DELETE "+RouteAuthError, ChainMiddleware(s.ClearErrorHandler(), s.APIMiddleware()...))

	// ACCOUNT
	s.RegisterRouteHandler("PATCH "+RouteAuthProfile, ChainMiddleware(s.UpdateProfileHandler(), s.APIMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("POST "+RouteChangePassword, ChainMiddleware(s.ChangePasswordHandler(), s.APIMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("POST "+RouteResetPassword, ChainMiddleware(s.ResetPasswordHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteResetPasswordVerify, ChainMiddleware(s.SetNewPasswordHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteVerifyEmail, ChainMiddleware(s.VerifyEmailHandler(), s.APIMiddleware()...))

	// CORS preflight for the session routes; the proxy route answers its own.
	s.RegisterRouteHandler("OPTIONS /auth/", ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))

	// Backend API (requires a live session)
	s.RegisterRouteHandler(RouteAPI, ChainMiddleware(s.proxyHandler(), s.APIMiddleware(s.RequireSession())...))
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// PreflightHandler is only reached when CorsMiddleware lets an OPTIONS request through
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) proxyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.proxy.ServeHTTP(w, r)
	}
}
