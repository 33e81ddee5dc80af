package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Login surface of the single page app, where denied page requests are sent
	RouteLogin = "/login"

	// Session Routes
	RouteAuthLogin    = "/auth/login"
	RouteAuthRegister = "/auth/register"
	RouteAuthLogout   = "/auth/logout"
	RouteAuthRefresh  = "/auth/refresh"
	RouteAuthSession  = "/auth/session"
	RouteAuthError    = "/auth/error"

	// Account Routes
	RouteAuthProfile         = "/auth/profile"
	RouteChangePassword      = "/auth/password/change"
	RouteResetPassword       = "/auth/password/reset"
	RouteResetPasswordVerify = "/auth/password/reset/confirm"
	RouteVerifyEmail         = "/auth/verify-email"

	// Backend API, proxied with the session's credentials
	RouteAPI = "/api/"

	RouteHealth = "/healthz"
)
