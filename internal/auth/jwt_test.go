package auth

import (
	"strings"
	"testing"
	"time"

	"studio/internal/entity"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewManagerAndTokenLifecycle(t *testing.T) {
	mgr, err := NewManager("test-secret", "issuer", time.Minute*30)
	if err != nil {
		t.Fatalf("unexpected error creating manager: %v", err)
	}

	user := &entity.DbUser{ID: "7b0c2f8e-0d55-4a39-9d5e-2b1f4a6c9e01", Email: "ops@example.com", Role: entity.UserRoleAdmin}
	token, expiresAt, err := mgr.GenerateToken(user)
	if err != nil {
		t.Fatalf("unexpected error generating token: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if expiresAt.Before(time.Now()) {
		t.Fatal("expected future expiry time")
	}

	claims, err := mgr.ParseToken(token)
	if err != nil {
		t.Fatalf("unexpected error parsing token: %v", err)
	}
	if claims.UserID != user.ID {
		t.Fatalf("expected user id %s, got %s", user.ID, claims.UserID)
	}
	if claims.Subject != user.ID {
		t.Fatalf("expected subject %s, got %s", user.ID, claims.Subject)
	}
	if !strings.EqualFold(claims.Email, user.Email) {
		t.Fatalf("expected email %s, got %s", user.Email, claims.Email)
	}
	if claims.Role != user.Role {
		t.Fatalf("expected role %s, got %s", user.Role, claims.Role)
	}
}

func TestNewManagerRequiresSecret(t *testing.T) {
	if _, err := NewManager("   ", "", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestGenerateTokenRequiresUserID(t *testing.T) {
	mgr, err := NewManager("test-secret", "", 0)
	if err != nil {
		t.Fatalf("unexpected error creating manager: %v", err)
	}
	if _, _, err := mgr.GenerateToken(&entity.DbUser{ID: "  "}); err == nil {
		t.Fatal("expected error for blank user id")
	}
	if _, _, err := mgr.GenerateToken(nil); err == nil {
		t.Fatal("expected error for nil user")
	}
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	issuer, _ := NewManager("secret-a", "", time.Hour)
	verifier, _ := NewManager("secret-b", "", time.Hour)

	token, _, err := issuer.GenerateToken(&entity.DbUser{ID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error generating token: %v", err)
	}
	if _, err := verifier.ParseToken(token); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	mgr, _ := NewManager("test-secret", "", time.Hour)
	past := time.Now().Add(-2 * time.Hour)
	claims := Claims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "studio",
			Subject:   "u1",
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := mgr.ParseToken(signed); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestParseTokenFallsBackToSubject(t *testing.T) {
	mgr, _ := NewManager("test-secret", "", time.Hour)
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "studio",
			Subject:   "u-sub",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	signed, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	parsed, err := mgr.ParseToken(signed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.UserID != "u-sub" {
		t.Fatalf("expected subject fallback, got %q", parsed.UserID)
	}
}

func TestParseTokenRejectsOtherIssuer(t *testing.T) {
	studio, _ := NewManager("shared-secret", "studio", time.Hour)
	other, _ := NewManager("shared-secret", "billing", time.Hour)

	token, _, err := other.GenerateToken(&entity.DbUser{ID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error generating token: %v", err)
	}
	if _, err := studio.ParseToken(token); err == nil {
		t.Fatal("expected issuer mismatch error")
	}
}
