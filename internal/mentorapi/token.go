package mentorapi

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoUserID is returned when a token carries no recognisable user id claim.
var ErrNoUserID = errors.New("token has no user id claim")

var userIDClaims = []string{"_id", "id", "userId", "sub"}

// UserIDFromToken extracts the user id from a bearer token. The signature is
// not checked here; the upstream API verifies the token on every request.
func UserIDFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	for _, key := range userIDClaims {
		if v, ok := claims[key].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", ErrNoUserID
}
