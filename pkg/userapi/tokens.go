package userapi

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenExpiry reads the exp claim of a session token without verifying its
// signature. Only the user service can verify its tokens; the expiry is used
// to refresh ahead of a guaranteed 401.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}

// NeedsRefresh reports whether token expires within skew of now. Tokens that
// cannot be parsed are left to the service to judge.
func NeedsRefresh(token string, now time.Time, skew time.Duration) bool {
	if token == "" {
		return true
	}
	exp, err := TokenExpiry(token)
	if err != nil {
		return false
	}
	return !now.Add(skew).Before(exp)
}
