// Package session owns the client-held token pair and its lifecycle:
// local expiry detection, the pre-expiry warning countdown, silent refresh,
// and forced logout. No other component mutates token state; consumers
// receive the access token through an explicit provider function.
package session

import (
	"time"

	"github.com/golang-jwt/jwt/v4"

	apperrors "github.com/veritahealth/onboard/internal/errors"
)

// TokenPair is the client-held session credential. Both tokens are always
// replaced together; a partial update never occurs.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// DecodeExpiry extracts the expiry time from the access token's claims
// without contacting the server. The signature is deliberately not
// verified: the client only schedules around expiry, the server remains
// the authority on token validity.
func DecodeExpiry(accessToken string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, apperrors.NewAuthError("failed to decode access token", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, apperrors.NewAuthError("access token has no exp claim", nil)
	}
	return claims.ExpiresAt.Time, nil
}

// NewTokenPair builds a TokenPair from raw tokens, decoding the access
// token's expiry.
func NewTokenPair(accessToken, refreshToken string) (*TokenPair, error) {
	expiresAt, err := DecodeExpiry(accessToken)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}
