// Package token issues and verifies the scoped tokens presented to the
// upstream GraphQL engine and decrypts externally issued session cookies.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/bhoriuchi/graphql-ws-bridge/errs"
	"github.com/golang-jwt/jwt/v5"
)

// ClaimsNamespace is the claim key the upstream engine reads authorization
// claims from. Its spelling is part of the wire contract.
const ClaimsNamespace = "https://hasura.io/jwt/claims"

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token expired")
	ErrMalformedToken = errors.New("malformed token")
)

// AuthorizationClaims is the object embedded under ClaimsNamespace
type AuthorizationClaims struct {
	AllowedRoles []string `json:"x-hasura-allowed-roles"`
	DefaultRole  string   `json:"x-hasura-default-role"`
	SubjectID    string   `json:"x-hasura-user-id"`
}

// Claims are the claims of a scoped token
type Claims struct {
	Authorization AuthorizationClaims `json:"https://hasura.io/jwt/claims"`
	jwt.RegisteredClaims
}

// ScopedClaims is the verified view of a scoped token
type ScopedClaims struct {
	Subject      string
	SubjectID    string
	AllowedRoles []string
	DefaultRole  string
	ExpiresAt    time.Time
}

// Service signs scoped tokens with a symmetric secret
type Service struct {
	secret []byte
	now    func() time.Time
}

// Option configures a Service
type Option func(s *Service)

// WithClock overrides the time source used for issuing and verifying
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a token service. An empty secret is accepted here and
// reported by Issue and Verify.
func NewService(secret string, opts ...Option) *Service {
	s := &Service{
		secret: []byte(secret),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Issue signs a token for subject carrying claims that expires ttl ("1h"
// style) from now
func (s *Service) Issue(subject string, claims AuthorizationClaims, ttl string) (string, error) {
	if len(s.secret) == 0 {
		return "", errs.Newf(errs.ErrConfig, "issue token", "signing secret is not configured")
	}

	lifetime, err := time.ParseDuration(ttl)
	if err != nil {
		return "", errs.Newf(errs.ErrConfig, "issue token", "invalid ttl %q: %s", ttl, err)
	}

	if claims.SubjectID == "" {
		claims.SubjectID = subject
	}

	now := s.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Authorization: claims,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
	})

	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// Verify validates the signature and expiration of a token
func (s *Service) Verify(tokenString string) (*ScopedClaims, error) {
	if len(s.secret) == 0 {
		return nil, errs.Newf(errs.ErrConfig, "verify token", "signing secret is not configured")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, classify(err)
	}

	scoped := &ScopedClaims{
		Subject:      claims.Subject,
		SubjectID:    claims.Authorization.SubjectID,
		AllowedRoles: claims.Authorization.AllowedRoles,
		DefaultRole:  claims.Authorization.DefaultRole,
	}
	if claims.ExpiresAt != nil {
		scoped.ExpiresAt = claims.ExpiresAt.Time
	}

	return scoped, nil
}

// classify maps jwt validation errors onto the token error kinds
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %s", ErrExpiredToken, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %s", ErrMalformedToken, err)
	}
	return fmt.Errorf("%w: %s", ErrInvalidToken, err)
}
