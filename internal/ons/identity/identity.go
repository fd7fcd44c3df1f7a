// Package identity verifies bearer tokens and resolves them to principal
// names. Tokens are HS256 JWTs whose subject claim is the principal.
package identity

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/gs1oliot/oliot-ons-2.0.1/internal/platform/errors"
)

// Config defines how bearer tokens are verified.
type Config struct {
	Secret []byte
	Issuer string
	Now    func() time.Time
}

// Claims captures the validated identity carried by a token.
type Claims struct {
	Principal string
	Issuer    string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
}

// Verifier checks bearer tokens against a shared secret.
type Verifier struct {
	cfg Config
}

// NewVerifier returns a Verifier for the given config.
func NewVerifier(cfg Config) (*Verifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("identity: secret is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Verifier{cfg: cfg}, nil
}

// Verify parses and validates token, returning the identity it carries.
// All verification failures map to the unauthenticated code.
func (v *Verifier) Verify(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, apperrors.New(apperrors.CodeUnauthenticated, "bearer token is required")
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
		return v.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	if v.cfg.Issuer != "" && parsed.Issuer != v.cfg.Issuer {
		return Claims{}, apperrors.WithMetadata(
			apperrors.CodeUnauthenticated,
			"token issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}

	now := v.cfg.Now().UTC()
	if parsed.ExpiresAt != nil && !parsed.ExpiresAt.Time.UTC().After(now) {
		return Claims{}, apperrors.New(apperrors.CodeUnauthenticated, "token is expired")
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time.UTC()) {
		return Claims{}, apperrors.New(apperrors.CodeUnauthenticated, "token not active yet")
	}

	principal := strings.TrimSpace(parsed.Subject)
	if principal == "" {
		return Claims{}, apperrors.New(apperrors.CodeUnauthenticated, "token subject is required")
	}

	claims := Claims{
		Principal: principal,
		Issuer:    parsed.Issuer,
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time.UTC()
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// FromAuthorization extracts the bearer token from an Authorization header
// value and verifies it.
func (v *Verifier) FromAuthorization(header string) (Claims, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return Claims{}, apperrors.New(apperrors.CodeUnauthenticated, "authorization header must use the bearer scheme")
	}
	return v.Verify(header[len(prefix):])
}

func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return apperrors.New(apperrors.CodeUnauthenticated, "token signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeUnauthenticated, "token alg is invalid")
	}
	return apperrors.New(apperrors.CodeUnauthenticated, "token is invalid")
}
