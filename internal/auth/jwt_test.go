package auth

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := NewToken("secret", "colegio", time.Minute, Claims{
		UserID: "user-1",
		Email:  "ana@example.com",
		Role:   "student",
		Name:   "Ana",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	claims, err := ParseToken("secret", "colegio", token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != "student" || claims.Email != "ana@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := NewToken("secret", "colegio", time.Minute, Claims{UserID: "user-1", Role: "teacher"})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("other", "colegio", token); err == nil {
		t.Fatalf("expected signature mismatch")
	}
}

func TestTokenExpired(t *testing.T) {
	token, err := NewToken("secret", "colegio", -time.Minute, Claims{UserID: "user-1", Role: "teacher"})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("secret", "colegio", token); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestTokenWrongIssuer(t *testing.T) {
	token, err := NewToken("secret", "otro", time.Minute, Claims{UserID: "user-1", Role: "teacher"})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("secret", "colegio", token); err == nil {
		t.Fatalf("expected issuer mismatch")
	}
}
