package jwt

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/wandel/pkg/auth"
)

func writePublicKey(t *testing.T, pub any) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "key.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func sign(t *testing.T, method jwtlib.SigningMethod, key any, claims jwtlib.MapClaims) string {
	t.Helper()
	s, err := jwtlib.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	return s
}

func authenticate(a *Authenticator, token string) auth.Result {
	r := httptest.NewRequest(http.MethodPost, "/transform", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return a.Authenticate(context.Background(), r)
}

func claims(extra jwtlib.MapClaims) jwtlib.MapClaims {
	c := jwtlib.MapClaims{
		"sub": "router",
		"iss": "https://idp.example",
		"aud": "wandel",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range extra {
		c[k] = v
	}
	return c
}

func TestRSA(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	a, err := New(Config{Issuer: "https://idp.example", Audience: "wandel", PublicKeyFile: writePublicKey(t, &key.PublicKey)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res := authenticate(a, sign(t, jwtlib.SigningMethodRS256, key, claims(jwtlib.MapClaims{"tenant": "acme", "tier": "gold"})))
	if res.Decision != auth.Allow {
		t.Fatalf("decision = %s (%v)", res.Decision, res.Err)
	}
	if got := *res.Identity; got != (auth.Identity{Subject: "router", Tenant: "acme", Tier: "gold"}) {
		t.Errorf("identity = %+v", got)
	}

	other, _ := rsa.GenerateKey(rand.Reader, 2048)
	rejected := map[string]string{
		"expired":        sign(t, jwtlib.SigningMethodRS256, key, claims(jwtlib.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()})),
		"wrong issuer":   sign(t, jwtlib.SigningMethodRS256, key, claims(jwtlib.MapClaims{"iss": "https://other"})),
		"wrong audience": sign(t, jwtlib.SigningMethodRS256, key, claims(jwtlib.MapClaims{"aud": "other"})),
		"wrong key":      sign(t, jwtlib.SigningMethodRS256, other, claims(nil)),
		"no subject":     sign(t, jwtlib.SigningMethodRS256, key, claims(jwtlib.MapClaims{"sub": ""})),
		"hmac algorithm": sign(t, jwtlib.SigningMethodHS256, []byte("secret"), claims(nil)),
		"garbage":        "not.a.jwt",
	}
	for name, token := range rejected {
		t.Run(name, func(t *testing.T) {
			if res := authenticate(a, token); res.Decision != auth.Deny || res.Err == nil {
				t.Errorf("decision = %s, err = %v", res.Decision, res.Err)
			}
		})
	}

	if res := authenticate(a, ""); res.Decision != auth.Abstain {
		t.Errorf("no token: decision = %s", res.Decision)
	}
}

func TestECDSA(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	a, err := New(Config{PublicKeyFile: writePublicKey(t, &key.PublicKey)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if res := authenticate(a, sign(t, jwtlib.SigningMethodES256, key, claims(nil))); res.Decision != auth.Allow {
		t.Errorf("decision = %s (%v)", res.Decision, res.Err)
	}
}

func TestSecretAndCustomClaims(t *testing.T) {
	a, err := New(Config{Secret: "s3cret", SubjectClaim: "client_id", TenantClaim: "org"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	token := sign(t, jwtlib.SigningMethodHS256, []byte("s3cret"), jwtlib.MapClaims{"client_id": "svc", "org": "acme"})
	res := authenticate(a, token)
	if res.Decision != auth.Allow {
		t.Fatalf("decision = %s (%v)", res.Decision, res.Err)
	}
	if res.Identity.Subject != "svc" || res.Identity.Tenant != "acme" || res.Identity.Tier != "" {
		t.Errorf("identity = %+v", res.Identity)
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected an error without a key")
	}
	if _, err := New(Config{PublicKeyFile: filepath.Join(t.TempDir(), "missing.pem")}); err == nil {
		t.Error("expected an error for a missing key file")
	}
	bad := filepath.Join(t.TempDir(), "bad.pem")
	os.WriteFile(bad, []byte("not pem"), 0o600)
	if _, err := New(Config{PublicKeyFile: bad}); err == nil {
		t.Error("expected an error for a file without PEM")
	}
}
