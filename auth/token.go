/*
Package auth verifies the bearer tokens issued by the identity service.

PURPOSE:
  Login lives elsewhere. This service only checks the HS256 signature and
  expiry of the token it is handed and turns the claims into the Actor the
  allocation core works with. The Actor travels in the request context;
  there is no process-wide session state.

CLAIMS:
  empCode, name, role, region, branch, exp

SEE ALSO:
  - api/middleware.go: Bearer middleware
  - cmd/devtoken: Issues tokens for local development
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/allocation-ledger/allocation"
	"github.com/warp/allocation-ledger/directory"
)

var ErrUnauthenticated = errors.New("unauthenticated")

type Claims struct {
	EmpCode string `json:"empCode"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	Region  string `json:"region,omitempty"`
	Branch  string `json:"branch,omitempty"`
	jwt.RegisteredClaims
}

// Actor converts verified claims into the caller identity.
func (c Claims) Actor() (allocation.Actor, error) {
	role, err := directory.ParseRole(c.Role)
	if err != nil {
		return allocation.Actor{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if c.EmpCode == "" {
		return allocation.Actor{}, fmt.Errorf("%w: token has no empCode", ErrUnauthenticated)
	}
	return allocation.Actor{
		EmpCode: c.EmpCode,
		Name:    c.Name,
		Role:    role,
		Region:  c.Region,
		Branch:  c.Branch,
	}, nil
}

// =============================================================================
// VERIFIER
// =============================================================================

type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// WithClock overrides the time used for expiry checks.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify parses tokenString and returns the Actor it names.
func (v *Verifier) Verify(tokenString string) (allocation.Actor, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return allocation.Actor{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return claims.Actor()
}

// Issue signs a token for actor valid for ttl. Used by cmd/devtoken and tests.
func Issue(secret string, actor allocation.Actor, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		EmpCode: actor.EmpCode,
		Name:    actor.Name,
		Role:    string(actor.Role),
		Region:  actor.Region,
		Branch:  actor.Branch,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.EmpCode,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// =============================================================================
// CONTEXT
// =============================================================================

type contextKey string

const actorKey contextKey = "actor"

func WithActor(ctx context.Context, actor allocation.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func ActorFrom(ctx context.Context) (allocation.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(allocation.Actor)
	return actor, ok
}
