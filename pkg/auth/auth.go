package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Decision is an authenticator's vote on a request.
type Decision int

const (
	// Abstain means the credentials are not this authenticator's kind.
	Abstain Decision = iota

	// Allow means the credentials are valid.
	Allow

	// Deny means credentials are present but invalid.
	Deny
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	}
	return "abstain"
}

// Result is the outcome of one authentication attempt.
type Result struct {
	Decision Decision
	Identity *Identity // set on Allow
	Err      error     // set on Deny
}

// Identity is an authenticated caller.
type Identity struct {
	Subject string

	// Tenant prefixes the file store references the caller creates and
	// limits the ones it may read. Empty means unscoped.
	Tenant string

	// Tier selects the rate limit.
	Tier string
}

// Anonymous is the identity given to requests that no authenticator
// claimed, when the chain allows them.
var Anonymous = Identity{Subject: "anonymous", Tier: DefaultTier}

// DefaultTier is the tier of identities that do not name one.
const DefaultTier = "default"

// Authenticator inspects a request's credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, r *http.Request) Result

func (f AuthenticatorFunc) Authenticate(ctx context.Context, r *http.Request) Result {
	return f(ctx, r)
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// Chain asks each authenticator in turn.
type Chain struct {
	authenticators []Authenticator
	anonymous      bool
}

// NewChain builds a chain. With allowAnonymous set, requests every
// authenticator abstains on continue as Anonymous.
func NewChain(allowAnonymous bool, authenticators ...Authenticator) *Chain {
	return &Chain{authenticators: authenticators, anonymous: allowAnonymous}
}

// Authenticate returns the first Allow or Deny.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) Result {
	for _, a := range c.authenticators {
		if res := a.Authenticate(ctx, r); res.Decision != Abstain {
			return res
		}
	}
	if c.anonymous {
		id := Anonymous
		return Result{Decision: Allow, Identity: &id}
	}
	return Result{Decision: Deny, Err: ErrUnauthenticated}
}

// BearerToken returns the token of a Bearer Authorization header. The
// scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}
