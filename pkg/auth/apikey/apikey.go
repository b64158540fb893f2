// Package apikey authenticates callers that present one of a fixed set of
// keys, either as a Bearer token or in the X-API-Key header.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/rhuss/wandel/pkg/auth"
)

// Header is the alternative to a Bearer token.
const Header = "X-API-Key"

// Key is one configured key and the identity it grants.
type Key struct {
	Key     string
	Subject string
	Tenant  string
	Tier    string
}

type entry struct {
	hash     [sha256.Size]byte
	identity auth.Identity
}

// Authenticator checks presented keys. Only key hashes are kept.
type Authenticator struct {
	entries []entry
}

// New creates an authenticator for keys.
func New(keys []Key) *Authenticator {
	a := &Authenticator{entries: make([]entry, 0, len(keys))}
	for _, k := range keys {
		subject := k.Subject
		if subject == "" {
			subject = "apikey"
		}
		a.entries = append(a.entries, entry{
			hash:     sha256.Sum256([]byte(k.Key)),
			identity: auth.Identity{Subject: subject, Tenant: k.Tenant, Tier: k.Tier},
		})
	}
	return a
}

// Authenticate abstains when no key is presented. An unknown X-API-Key
// is denied; an unknown Bearer token is left to the next authenticator,
// which may accept it as a JWT. Every entry is compared so that the time
// taken does not depend on which key matched.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	key := r.Header.Get(Header)
	fromHeader := key != ""
	if !fromHeader {
		token, ok := auth.BearerToken(r)
		if !ok || token == "" {
			return auth.Result{Decision: auth.Abstain}
		}
		key = token
	}

	sum := sha256.Sum256([]byte(key))
	match := -1
	for i := range a.entries {
		if subtle.ConstantTimeCompare(sum[:], a.entries[i].hash[:]) == 1 {
			match = i
		}
	}
	switch {
	case match >= 0:
		id := a.entries[match].identity
		return auth.Result{Decision: auth.Allow, Identity: &id}
	case fromHeader:
		return auth.Result{Decision: auth.Deny, Err: auth.ErrUnauthenticated}
	}
	return auth.Result{Decision: auth.Abstain}
}
