// Package jwt authenticates callers presenting a signed JWT as a Bearer
// token. Tokens are verified against a configured RSA or ECDSA public key,
// or an HMAC secret.
package jwt

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/wandel/pkg/auth"
	"github.com/rhuss/wandel/pkg/debug"
)

// Config selects the verification key and the claims that make up the
// identity.
type Config struct {
	Issuer   string
	Audience string

	// PublicKeyFile is a PEM encoded RSA or ECDSA public key. Secret is
	// used instead when set.
	PublicKeyFile string
	Secret        string

	SubjectClaim string // default "sub"
	TenantClaim  string // default "tenant"
	TierClaim    string // default "tier"

	Leeway time.Duration
}

func (c *Config) applyDefaults() {
	if c.SubjectClaim == "" {
		c.SubjectClaim = "sub"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant"
	}
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
}

// Authenticator verifies Bearer JWTs.
type Authenticator struct {
	cfg     Config
	key     any
	methods []string
	parser  *jwtlib.Parser
}

// New loads the verification key.
func New(cfg Config) (*Authenticator, error) {
	cfg.applyDefaults()
	a := &Authenticator{cfg: cfg}

	switch {
	case cfg.Secret != "":
		a.key = []byte(cfg.Secret)
		a.methods = []string{"HS256", "HS384", "HS512"}
	case cfg.PublicKeyFile != "":
		data, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading JWT public key: %w", err)
		}
		key, methods, err := parsePublicKey(data)
		if err != nil {
			return nil, fmt.Errorf("parsing JWT public key %s: %w", cfg.PublicKeyFile, err)
		}
		a.key, a.methods = key, methods
	default:
		return nil, errors.New("jwt: either a secret or a public key file is required")
	}

	opts := []jwtlib.ParserOption{jwtlib.WithValidMethods(a.methods), jwtlib.WithLeeway(cfg.Leeway)}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}
	a.parser = jwtlib.NewParser(opts...)
	return a, nil
}

func parsePublicKey(data []byte) (any, []string, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, nil, errors.New("no PEM block found")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, nil, err
	}
	switch key.(type) {
	case *rsa.PublicKey:
		return key, []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512"}, nil
	case *ecdsa.PublicKey:
		return key, []string{"ES256", "ES384", "ES512"}, nil
	}
	return nil, nil, fmt.Errorf("unsupported key type %T", key)
}

// Authenticate abstains without a Bearer token and denies a token that
// does not verify or has no subject.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	token, ok := auth.BearerToken(r)
	if !ok {
		return auth.Result{Decision: auth.Abstain}
	}

	claims := jwtlib.MapClaims{}
	if _, err := a.parser.ParseWithClaims(token, claims, func(*jwtlib.Token) (any, error) { return a.key, nil }); err != nil {
		debug.Log("auth", "jwt rejected", "error", err)
		return auth.Result{Decision: auth.Deny, Err: fmt.Errorf("invalid JWT: %w", err)}
	}

	subject := stringClaim(claims, a.cfg.SubjectClaim)
	if subject == "" {
		return auth.Result{Decision: auth.Deny, Err: fmt.Errorf("JWT has no %q claim", a.cfg.SubjectClaim)}
	}
	return auth.Result{Decision: auth.Allow, Identity: &auth.Identity{
		Subject: subject,
		Tenant:  stringClaim(claims, a.cfg.TenantClaim),
		Tier:    stringClaim(claims, a.cfg.TierClaim),
	}}
}

func stringClaim(claims jwtlib.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}
