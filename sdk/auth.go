package sdk

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// now is replaced in tests
var now = time.Now

// CheckToken validates a token locally. Session tokens are JWTs and are
// rejected once their exp claim has passed; anything that is not a JWT is
// treated as an opaque API key and accepted as is.
func CheckToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrNotAuthenticated
	}
	if strings.Count(token, ".") != 2 {
		return nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if exp.Before(now()) {
		return ErrTokenExpired
	}
	return nil
}
