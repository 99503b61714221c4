package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any bearer token that fails to parse,
// verify or carry the expected claims.
var ErrInvalidToken = errors.New("invalid token")

const tokenIssuer = "village"

// TokenClaims ties an access token to a server-side session. The session
// row stays authoritative: revoking it revokes the token.
type TokenClaims struct {
	SessionID   int64 `json:"sid"`
	UserID      int64 `json:"uid"`
	HouseholdID int64 `json:"hid"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for the session and its expiry.
func (ti *TokenIssuer) Issue(sessionID, userID, householdID int64) (string, time.Time, error) {
	if len(ti.secret) == 0 {
		return "", time.Time{}, errors.New("jwt secret is empty")
	}
	now := ti.now()
	expires := now.Add(ti.ttl)
	claims := TokenClaims{
		SessionID:   sessionID,
		UserID:      userID,
		HouseholdID: householdID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies a token and returns its claims.
func (ti *TokenIssuer) Parse(tokenStr string) (*TokenClaims, error) {
	if len(ti.secret) == 0 {
		return nil, ErrInvalidToken
	}
	claims := &TokenClaims{}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return ti.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(ti.now))
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.SessionID == 0 || claims.UserID == 0 || claims.HouseholdID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
