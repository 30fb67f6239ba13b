package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return ss
}

func TestValidateTokenRoundTrip(t *testing.T) {
	svc := NewService(nil, "test-secret")

	ss := signToken(t, "test-secret", Claims{
		ID:       "u1",
		Username: "ada",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	id, username, err := svc.ValidateToken(ss)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if id != "u1" || username != "ada" {
		t.Errorf("principal = (%s, %s), want (u1, ada)", id, username)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	svc := NewService(nil, "right-secret")
	ss := signToken(t, "wrong-secret", Claims{
		ID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	if _, _, err := svc.ValidateToken(ss); err == nil {
		t.Fatal("token signed with wrong secret validated")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := NewService(nil, "test-secret")
	ss := signToken(t, "test-secret", Claims{
		ID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	if _, _, err := svc.ValidateToken(ss); err == nil {
		t.Fatal("expired token validated")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := NewService(nil, "test-secret")
	if _, _, err := svc.ValidateToken("not-a-token"); err == nil {
		t.Fatal("garbage token validated")
	}
}
