// Package actor decodes the caller identity carried on every inbound
// operation (§6: sync/rebuild take an explicit actor for audit
// attribution), restating the JWT claims/parse shape from
// backend/server/auth.go's Claims/create_token/validate_token without the
// login/session machinery around it.
package actor

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Claims mirrors backend/server/auth.go's Claims struct, generalized from
// a single numeric UserID to a taxpayer-entity-scoped actor identity.
type Claims struct {
	ActorID   int    `json:"actorId"`
	ActorName string `json:"actorName"`
	jwt.RegisteredClaims
}

// Actor is the decoded caller identity threaded into sync/rebuild calls
// for audit attribution.
type Actor struct {
	ID   int
	Name string
}

func (a Actor) String() string {
	if a.Name != "" {
		return a.Name
	}
	return fmt.Sprintf("actor#%d", a.ID)
}

// Issue mints a signed token for an actor, the same shape as
// backend/server/auth.go::create_token.
func Issue(signingKey []byte, a Actor, ttl time.Duration) (string, error) {
	claims := &Claims{
		ActorID:   a.ID,
		ActorName: a.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(signingKey)
}

// Parse decodes and validates a token, the same shape as
// backend/server/auth.go::validate_token.
func Parse(signingKey []byte, tokenString string) (Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return signingKey, nil
	})
	if err != nil {
		return Actor{}, fmt.Errorf("cannot parse actor token: %w", err)
	}
	if !token.Valid {
		return Actor{}, fmt.Errorf("invalid actor token")
	}
	return Actor{ID: claims.ActorID, Name: claims.ActorName}, nil
}
