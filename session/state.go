package session

import "github.com/jrsteele09/go-habit-session/users"

// Phase is the position of the session in its lifecycle
type Phase int

const (
	PhaseAnonymous      Phase = iota // No session
	PhaseAuthenticating              // Login or register in flight
	PhaseAuthenticated               // Session installed, idle
	PhaseRefreshing                  // Access token stale, refresh in flight
	PhaseExpired                     // Refresh failed; anonymous with an explanatory error
)

func (p Phase) String() string {
	switch p {
	case PhaseAnonymous:
		return "anonymous"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseRefreshing:
		return "refreshing"
	case PhaseExpired:
		return "expired"
	}
	return "unknown"
}

// State is a point in time copy of the session. Mutating it has no effect on the Manager.
type State struct {
	Phase           Phase
	User            *users.User
	AccessToken     string
	RefreshToken    string
	IsAuthenticated bool
	IsLoading       bool
	Error           string
}

// User-facing messages, in the language of the habit tracker UI.
const (
	MsgLoginFailed          = "Échec de connexion. Veuillez réessayer."
	MsgRegisterFailed       = "Échec d'inscription. Veuillez réessayer."
	MsgUpdateFailed         = "Échec de mise à jour. Veuillez réessayer."
	MsgChangePasswordFailed = "Échec de changement de mot de passe. Veuillez réessayer."
	MsgResetPasswordFailed  = "Échec de réinitialisation de mot de passe. Veuillez réessayer."
	MsgSetPasswordFailed    = "Échec de définition du nouveau mot de passe. Veuillez réessayer."
	MsgVerifyEmailFailed    = "Échec de vérification de l'email. Veuillez réessayer."
	MsgSessionExpired       = "Session expirée. Veuillez vous reconnecter."
)
