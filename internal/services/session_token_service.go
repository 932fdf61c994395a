package services

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	"github.com/ericfisherdev/roomgate/internal/domain"
)

// MinSecretLength is the shortest JWT secret accepted.
const MinSecretLength = 32

const sessionKeyInfo = "roomgate session v1"

// SessionTokenService signs and verifies session tokens.
type SessionTokenService interface {
	// Issue builds claims for subject valid from now and signs them.
	Issue(subject, name string) (string, domain.SessionClaims, error)

	// Sign encodes claims as an HS256 JWT.
	Sign(claims domain.SessionClaims) (string, error)

	// Verify checks signature and expiry and returns the decoded claims.
	Verify(token string) (domain.SessionClaims, error)
}

// sessionJWTClaims is the wire form of domain.SessionClaims.
type sessionJWTClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// sessionTokenService implements SessionTokenService.
type sessionTokenService struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewSessionTokenService creates a session codec keyed from secret.
// A nil clock means time.Now.
func NewSessionTokenService(secret string, ttl time.Duration, now func() time.Time) (SessionTokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, domain.NewValidationError("WEAK_SECRET",
			fmt.Sprintf("JWT secret must be at least %d characters", MinSecretLength), nil)
	}
	if ttl <= 0 {
		ttl = domain.DefaultSessionTTL
	}
	if now == nil {
		now = time.Now
	}

	key, err := deriveSessionKey(secret)
	if err != nil {
		return nil, domain.NewInternalError("KEY_DERIVATION_FAILED", "Failed to derive signing key", err)
	}

	return &sessionTokenService{key: key, ttl: ttl, now: now}, nil
}

// Issue builds claims for subject valid from now and signs them.
func (s *sessionTokenService) Issue(subject, name string) (string, domain.SessionClaims, error) {
	issuedAt := s.now().Truncate(time.Second)
	claims := domain.SessionClaims{
		Subject:   subject,
		Name:      name,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(s.ttl),
	}

	token, err := s.Sign(claims)
	if err != nil {
		return "", domain.SessionClaims{}, err
	}
	return token, claims, nil
}

// Sign encodes claims as an HS256 JWT.
func (s *sessionTokenService) Sign(claims domain.SessionClaims) (string, error) {
	if err := claims.Validate(); err != nil {
		return "", err
	}

	wire := &sessionJWTClaims{
		Name: claims.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, wire).SignedString(s.key)
	if err != nil {
		return "", domain.NewInternalError("TOKEN_GENERATION_FAILED", "Failed to sign session token", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the decoded claims.
// Every failure is reported as the same unauthorized error.
func (s *sessionTokenService) Verify(token string) (domain.SessionClaims, error) {
	if token == "" {
		return domain.SessionClaims{}, domain.NewUnauthorizedError("Missing session token", nil)
	}

	parsed, err := jwt.ParseWithClaims(token, &sessionJWTClaims{}, func(_ *jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return domain.SessionClaims{}, domain.NewUnauthorizedError(describeTokenError(err), err)
	}

	wire, ok := parsed.Claims.(*sessionJWTClaims)
	if !ok || !parsed.Valid || wire.Subject == "" || wire.IssuedAt == nil {
		return domain.SessionClaims{}, domain.NewUnauthorizedError("Invalid session token claims", nil)
	}

	return domain.SessionClaims{
		Subject:   wire.Subject,
		Name:      wire.Name,
		IssuedAt:  wire.IssuedAt.Time,
		ExpiresAt: wire.ExpiresAt.Time,
	}, nil
}

func describeTokenError(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "Session token expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "Session token signature invalid"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "Session token malformed"
	default:
		return "Invalid session token"
	}
}

// deriveSessionKey stretches the configured secret into a 32-byte HMAC key.
func deriveSessionKey(secret string) ([]byte, error) {
	key := make([]byte, sha256.Size)
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte(sessionKeyInfo))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
