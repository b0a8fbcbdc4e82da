package jwtkit

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signer mints bearer tokens for a claim set.
type Signer interface {
	CreateToken(claims jwt.MapClaims, ttl time.Duration) (string, error)
}

// HMAC256Signer signs HS256 tokens with a shared secret.
type HMAC256Signer struct {
	Secret []byte
}

// CreateToken signs the claims with HS256. Issued-at and expiration are
// stamped from ttl unless the caller already set them.
func (tm *HMAC256Signer) CreateToken(claims jwt.MapClaims, ttl time.Duration) (string, error) {
	now := time.Now()
	if _, ok := claims["iat"]; !ok {
		claims["iat"] = now.Unix()
	}
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = now.Add(ttl).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.Secret)
}
