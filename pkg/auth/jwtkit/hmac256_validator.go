package jwtkit

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Validator checks a bearer token and returns its claims.
type Validator interface {
	Validate(tokenStr string) (jwt.MapClaims, error)
}

// HMAC256Validator verifies HS256 tokens against a shared secret.
type HMAC256Validator struct {
	Secret []byte
}

func (tv *HMAC256Validator) Validate(tokenStr string) (jwt.MapClaims, error) {
	parser := jwt.NewParser(jwt.WithStrictDecoding())

	token, err := parser.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		// Reject any non-HMAC method; an RS256 token must not pass with
		// the secret interpreted as a public key.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return tv.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if err := ValidateStandardClaims(mapClaims); err != nil {
		return nil, err
	}
	return mapClaims, nil
}
