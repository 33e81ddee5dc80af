package token

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Expiry is the outcome of decoding an access token: either a valid expiry
// instant or Invalid when the token cannot be decoded.
type Expiry struct {
	Valid bool
	At    time.Time
}

// Invalid is the Expiry of a token that could not be decoded
var Invalid = Expiry{}

// Decode reads the exp claim of a JWT without verifying its signature. The
// client never holds the signing key; the backend still verifies every request.
func Decode(rawToken string) Expiry {
	if strings.TrimSpace(rawToken) == "" {
		return Invalid
	}

	claims := jwtlib.MapClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return Invalid
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return Invalid
	}
	return Expiry{Valid: true, At: exp.Time}
}

// ExpiredAt reports whether the token must be treated as expired at now.
// Undecodable tokens are always expired.
func (e Expiry) ExpiredAt(now time.Time) bool {
	return !e.Valid || !e.At.After(now)
}

// IsExpired decodes rawToken and checks it against the current time
func IsExpired(rawToken string) bool {
	return Decode(rawToken).ExpiredAt(NowTimeFunc())
}
