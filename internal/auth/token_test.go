// ABOUTME: Unit tests for JWT issue/verify and unverified expiry inspection
// ABOUTME: Tests valid, invalid, expired and opaque tokens

package auth

import (
	"errors"
	"testing"
	"time"
)

const testSecret = "test-secret-key-for-jwt-signing"

func TestJWTVerifier_ValidToken(t *testing.T) {
	verifier := NewJWTVerifier([]byte(testSecret))

	learnerID := "learner-123"
	token, err := verifier.Generate(learnerID, time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	gotID, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if gotID != learnerID {
		t.Errorf("Verify() = %q, want %q", gotID, learnerID)
	}
}

func TestJWTVerifier_InvalidToken(t *testing.T) {
	verifier := NewJWTVerifier([]byte(testSecret))

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "garbage token", token: "not-a-jwt-token"},
		{name: "malformed JWT", token: "header.payload.signature"},
		{
			name: "wrong secret",
			token: func() string {
				other := NewJWTVerifier([]byte("different-secret"))
				token, _ := other.Generate("learner-123", time.Hour)
				return token
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(tt.token)
			if err == nil {
				t.Fatal("Verify() should have returned an error")
			}
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	verifier := NewJWTVerifier([]byte(testSecret))

	token, err := verifier.Generate("learner-123", -time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	_, err = verifier.Verify(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify() error = %v, want ErrExpiredToken", err)
	}
}

func TestExpiresAt(t *testing.T) {
	verifier := NewJWTVerifier([]byte(testSecret))

	token, err := verifier.Generate("learner-123", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	exp, ok := ExpiresAt(token)
	if !ok {
		t.Fatal("ExpiresAt() ok = false, want true")
	}
	if d := time.Until(exp); d < 59*time.Minute || d > time.Hour+time.Second {
		t.Errorf("ExpiresAt() = %v from now, want about 1h", d)
	}

	if _, ok := ExpiresAt("opaque-session-token"); ok {
		t.Error("ExpiresAt() on opaque token should report ok = false")
	}
}

func TestCheckExpiry(t *testing.T) {
	verifier := NewJWTVerifier([]byte(testSecret))

	token, err := verifier.Generate("learner-123", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if err := CheckExpiry(token, time.Now()); err != nil {
		t.Errorf("CheckExpiry(now) error = %v, want nil", err)
	}
	if err := CheckExpiry(token, time.Now().Add(2*time.Hour)); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("CheckExpiry(+2h) error = %v, want ErrExpiredToken", err)
	}
	if err := CheckExpiry("opaque-session-token", time.Now()); err != nil {
		t.Errorf("CheckExpiry(opaque) error = %v, want nil", err)
	}
}
