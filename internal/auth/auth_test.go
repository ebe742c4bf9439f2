package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndValidate(t *testing.T) {
	t.Setenv(secretEnvVariable, "test-secret")
	ResetSecretForTests()
	defer ResetSecretForTests()

	token, err := GenerateToken("ABC123", "player-1", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.PlayerID() != "player-1" || claims.GameCode != "ABC123" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected token id")
	}
}

func TestRejectsForeignSignature(t *testing.T) {
	SetSecret("one")
	token, err := GenerateToken("ABC123", "p", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	SetSecret("two")
	defer ResetSecretForTests()
	if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRejectsExpiredAndIncomplete(t *testing.T) {
	SetSecret("s3cret")
	defer ResetSecretForTests()

	past := time.Now().Add(-2 * time.Hour)
	expired := Claims{
		GameCode: "ABC123",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "p",
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
		},
	}
	noGame := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "p",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	for name, c := range map[string]Claims{"expired": expired, "no game": noGame} {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("s3cret"))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := ParseAndValidate(signed); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestMissingSecret(t *testing.T) {
	t.Setenv(secretEnvVariable, "")
	ResetSecretForTests()
	defer ResetSecretForTests()
	if _, err := GenerateToken("ABC123", "p", time.Hour); err == nil {
		t.Fatal("expected error without a secret")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := ContextWithPlayer(context.Background(), " ABC123 ", "player-7")
	p, ok := PlayerFromContext(ctx)
	if !ok || p.PlayerID != "player-7" || p.GameCode != "ABC123" {
		t.Fatalf("unexpected player: %+v ok=%v", p, ok)
	}
	if _, ok := PlayerFromContext(context.Background()); ok {
		t.Fatal("empty context must not carry a player")
	}
	ctx = ContextWithToken(ctx, "tok")
	if tok, ok := TokenFromContext(ctx); !ok || tok != "tok" {
		t.Fatalf("token: %q %v", tok, ok)
	}
}
