package security

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndParseToken(t *testing.T) {
	v, err := NewVerifier("a-long-shared-identity-secret")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	token, err := v.IssueToken(" Alice@X.com ", "Alice", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	id, err := v.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.Email != "alice@x.com" || id.Name != "Alice" {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestParseTokenRejectsForeignAndExpiredTokens(t *testing.T) {
	v, _ := NewVerifier("a-long-shared-identity-secret")
	other, _ := NewVerifier("another-secret")

	foreign, err := other.IssueToken("a@x.com", "", time.Hour)
	if err != nil {
		t.Fatalf("issue foreign: %v", err)
	}
	if _, err := v.ParseToken(foreign); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}

	v.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := v.IssueToken("a@x.com", "", time.Hour)
	if err != nil {
		t.Fatalf("issue expired: %v", err)
	}
	v.now = time.Now
	if _, err := v.ParseToken(expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier("  "); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{header: "Bearer abc.def", token: "abc.def", ok: true},
		{header: "bearer   abc", token: "abc", ok: true},
		{header: "Basic abc", ok: false},
		{header: "Bearer ", ok: false},
		{header: "", ok: false},
	}
	for _, tc := range tests {
		token, ok := BearerToken(tc.header)
		if token != tc.token || ok != tc.ok {
			t.Fatalf("BearerToken(%q) = %q, %v", tc.header, token, ok)
		}
	}
}
