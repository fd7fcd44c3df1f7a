package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/gs1oliot/oliot-ons-2.0.1/internal/platform/errors"
)

var testSecret = []byte("ons-test-secret")

func signToken(t *testing.T, secret []byte, claims jwt.RegisteredClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func testVerifier(t *testing.T, now time.Time) *Verifier {
	t.Helper()
	v, err := NewVerifier(Config{
		Secret: testSecret,
		Issuer: "ons",
		Now:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

func TestVerify(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	v := testVerifier(t, now)

	token := signToken(t, testSecret, jwt.RegisteredClaims{
		Issuer:    "ons",
		Subject:   "alice",
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})

	claims, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Principal != "alice" {
		t.Fatalf("principal = %q, want alice", claims.Principal)
	}
}

func TestVerifyFailures(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	v := testVerifier(t, now)

	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"wrong secret", signToken(t, []byte("other-secret"), jwt.RegisteredClaims{
			Issuer: "ons", Subject: "alice",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		})},
		{"expired", signToken(t, testSecret, jwt.RegisteredClaims{
			Issuer: "ons", Subject: "alice",
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
		})},
		{"issuer mismatch", signToken(t, testSecret, jwt.RegisteredClaims{
			Issuer: "someone-else", Subject: "alice",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		})},
		{"missing subject", signToken(t, testSecret, jwt.RegisteredClaims{
			Issuer:    "ons",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		})},
		{"not yet active", signToken(t, testSecret, jwt.RegisteredClaims{
			Issuer: "ons", Subject: "alice",
			NotBefore: jwt.NewNumericDate(now.Add(time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Verify(tc.token)
			if err == nil {
				t.Fatal("expected error")
			}
			if !apperrors.Is(err, apperrors.CodeUnauthenticated) {
				t.Fatalf("code = %v, want unauthenticated", apperrors.CodeOf(err))
			}
		})
	}
}

func TestFromAuthorization(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	v := testVerifier(t, now)

	token := signToken(t, testSecret, jwt.RegisteredClaims{
		Issuer: "ons", Subject: "bob",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})

	claims, err := v.FromAuthorization("Bearer " + token)
	if err != nil {
		t.Fatalf("from authorization: %v", err)
	}
	if claims.Principal != "bob" {
		t.Fatalf("principal = %q, want bob", claims.Principal)
	}

	if _, err := v.FromAuthorization(token); !apperrors.Is(err, apperrors.CodeUnauthenticated) {
		t.Fatalf("missing scheme should be unauthenticated, got %v", err)
	}
	if _, err := v.FromAuthorization("Basic dXNlcjpwYXNz"); !apperrors.Is(err, apperrors.CodeUnauthenticated) {
		t.Fatalf("basic scheme should be unauthenticated, got %v", err)
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewVerifier(Config{}); err == nil {
		t.Fatal("expected error for missing secret")
	}
}
