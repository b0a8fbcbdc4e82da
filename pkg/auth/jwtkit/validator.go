package jwtkit

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ValidateStandardClaims checks the registered time claims. exp is
// mandatory; nbf and iat are checked only when present.
func ValidateStandardClaims(claims jwt.MapClaims) error {
	now := time.Now().Unix()

	exp, ok := claims["exp"].(float64)
	if !ok {
		return fmt.Errorf("missing exp claim")
	}
	if now > int64(exp) {
		return fmt.Errorf("token is expired")
	}

	if nbf, ok := claims["nbf"].(float64); ok && now < int64(nbf) {
		return fmt.Errorf("token not valid yet")
	}
	if iat, ok := claims["iat"].(float64); ok && now < int64(iat) {
		return fmt.Errorf("token issued in the future")
	}
	return nil
}
