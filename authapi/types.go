package authapi

import "github.com/jrsteele09/go-habit-session/users"

// LoginCredentials is the body of POST /users/login/
type LoginCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterUserData is the body of POST /users/register/. Password2 is the confirmation field.
type RegisterUserData struct {
	Username  string `json:"username,omitempty"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	// User is the authenticated identity record.
	User users.User `json:"user"`

	// Access is the short-lived JWT sent as "Authorization: Bearer <access>".
	Access string `json:"access"`

	// Refresh is the long-lived credential used only against /users/token/refresh/.
	Refresh string `json:"refresh"`

	// Message is an optional human readable confirmation.
	Message string `json:"message,omitempty"`
}

// RefreshRequest is the body of the refresh and logout endpoints
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// RefreshResponse carries the newly minted access token. The refresh token is not rotated.
type RefreshResponse struct {
	Access string `json:"access"`
}

// ChangePasswordData is the body of POST /users/password/change/
type ChangePasswordData struct {
	OldPassword  string `json:"old_password"`
	NewPassword  string `json:"new_password"`
	NewPassword2 string `json:"new_password2"`
}

// PasswordResetData requests a reset link for Email
type PasswordResetData struct {
	Email string `json:"email"`
}

// NewPasswordData confirms a reset with the uid/token pair from the reset link
type NewPasswordData struct {
	UID         string `json:"uid"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// EmailVerificationData is the uid/token pair from the verification link
type EmailVerificationData struct {
	UID   string `json:"uid"`
	Token string `json:"token"`
}

// MessageResponse is the confirmation returned by password, verification and logout endpoints
type MessageResponse struct {
	Message string `json:"message"`
}
