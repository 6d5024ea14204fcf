package auth

import (
	"testing"
	"time"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, "kid1", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	username, err := ParseToken(secret, issued)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if username != "kid1" {
		t.Fatalf("unexpected username: %q", username)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, "kid1", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := ParseToken(secret, issued); err == nil {
		t.Fatal("expected ParseToken() to fail for expired token")
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	issued, err := IssueToken([]byte("secret"), "kid1", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := ParseToken([]byte("other-secret"), issued); err == nil {
		t.Fatal("expected ParseToken() to fail for wrong secret")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	for _, tokenString := range []string{"", "garbage", "a.b", "a.b.c"} {
		if _, err := ParseToken([]byte("secret"), tokenString); err == nil {
			t.Fatalf("expected ParseToken(%q) to fail", tokenString)
		}
	}
}
