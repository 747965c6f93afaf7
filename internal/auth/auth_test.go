package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/marketplace-registry/marketplace-registry/internal/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestGenerateAPIKey(t *testing.T) {
	key, hash, display, err := GenerateAPIKey("mkt_")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(key, "mkt_") {
		t.Errorf("key missing prefix: %s", key)
	}
	if !strings.HasPrefix(key, display) {
		t.Errorf("display prefix %q is not a prefix of the key", display)
	}
	if len(display) != DisplayPrefixLength {
		t.Errorf("display prefix length %d, expected %d", len(display), DisplayPrefixLength)
	}
	if !ValidateAPIKey(key, hash) {
		t.Error("generated key does not validate against its own hash")
	}
	if ValidateAPIKey(key+"x", hash) {
		t.Error("tampered key validated")
	}
}

func TestGeneratedKeysAreUnique(t *testing.T) {
	k1, _, _, err := GenerateAPIKey("mkt_")
	if err != nil {
		t.Fatal(err)
	}
	k2, _, _, err := GenerateAPIKey("mkt_")
	if err != nil {
		t.Fatal(err)
	}
	if k1 == k2 {
		t.Error("two generated keys are identical")
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer mkt_abc123", "mkt_abc123", false},
		{"Bearer   spaced  ", "spaced", false},
		{"", "", true},
		{"Basic dXNlcg==", "", true},
		{"Bearer ", "", true},
	}
	for _, tc := range cases {
		got, err := ExtractBearerToken(tc.header)
		if tc.wantErr {
			if err == nil {
				t.Errorf("header %q: expected error", tc.header)
			}
			continue
		}
		if err != nil {
			t.Errorf("header %q: %v", tc.header, err)
			continue
		}
		if got != tc.want {
			t.Errorf("header %q: got %q, want %q", tc.header, got, tc.want)
		}
	}
}

func TestTokenRoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer(config.JWTConfig{Secret: testSecret, TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}

	token, err := issuer.Issue("user-1", "dev@example.com", "member")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "dev@example.com" || claims.Role != "member" {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if claims.Issuer != "marketplace-registry" {
		t.Errorf("unexpected issuer %q", claims.Issuer)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	issuer, err := NewTokenIssuer(config.JWTConfig{Secret: testSecret, TokenTTL: -time.Minute})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	// A non-positive TTL falls back to one hour, so expire by issuing with a
	// different issuer instance whose clock-relative TTL has passed.
	issuer.ttl = -time.Minute

	token, err := issuer.Issue("user-1", "dev@example.com", "member")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuer.Verify(token); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestWrongSecretRejected(t *testing.T) {
	a, _ := NewTokenIssuer(config.JWTConfig{Secret: testSecret})
	b, _ := NewTokenIssuer(config.JWTConfig{Secret: strings.Repeat("x", 32)})

	token, err := a.Issue("user-1", "dev@example.com", "member")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.Verify(token); err == nil {
		t.Error("expected token signed with a different secret to be rejected")
	}
}

func TestIssuerConfigValidation(t *testing.T) {
	if _, err := NewTokenIssuer(config.JWTConfig{}); err == nil {
		t.Error("expected error for missing secret")
	}
	if _, err := NewTokenIssuer(config.JWTConfig{Secret: "short"}); err == nil {
		t.Error("expected error for short secret")
	}
}
