package jwtkit

import (
	"fmt"
	"strings"

	"github.com/fgrzl/claims"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// ScopeAllNodes grants access to every node behind an endpoint.
	ScopeAllNodes = "gridkit::*"

	scopePrefix = "gridkit::"
)

// NewNodeClaims builds the claim set for a peer allowed to reach the given
// nodes. With no nodes it grants the wildcard scope.
func NewNodeClaims(subject string, nodes ...uuid.UUID) jwt.MapClaims {
	scopes := make([]string, 0, len(nodes))
	for _, node := range nodes {
		scopes = append(scopes, scopePrefix+node.String())
	}
	if len(scopes) == 0 {
		scopes = append(scopes, ScopeAllNodes)
	}
	return jwt.MapClaims{
		"sub":    subject,
		"scopes": strings.Join(scopes, " "),
	}
}

// NewClaimsPrincipal flattens raw jwt claims into a claims.Principal.
func NewClaimsPrincipal(raw jwt.MapClaims) claims.Principal {
	claimList := make(claims.ClaimList, 0, len(raw))

	for k, v := range raw {
		switch val := v.(type) {
		case string:
			claimList = append(claimList, claims.NewClaim(k, val))
		case float64:
			claimList = append(claimList, claims.NewClaim(k, fmt.Sprintf("%v", val)))
		case []interface{}:
			strs := make([]string, 0, len(val))
			for _, item := range val {
				strs = append(strs, fmt.Sprint(item))
			}
			claimList = append(claimList, claims.NewClaim(k, strings.Join(strs, ",")))
		case interface{}:
			claimList = append(claimList, claims.NewClaim(k, fmt.Sprint(val)))
		default:
			// unknown type, skip
		}
	}

	p := claims.NewPrincipalFromList(claimList)
	return p
}
