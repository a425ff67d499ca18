package credentials

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RefreshSkew is how close to expiry an access token may get before the CLI
// refreshes it ahead of a request.
const RefreshSkew = time.Minute

// TokenExpiry reads the exp claim of a token without verifying it. The CLI
// cannot verify server tokens; it only needs to know when to refresh.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("token has no expiry")
	}
	return claims.ExpiresAt.Time, nil
}

// NeedsRefresh reports whether token expires within RefreshSkew of now.
// Unparseable tokens always need a refresh.
func NeedsRefresh(token string, now time.Time) bool {
	exp, err := TokenExpiry(token)
	if err != nil {
		return true
	}
	return !now.Add(RefreshSkew).Before(exp)
}
