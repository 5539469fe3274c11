// Package token issues and verifies self-describing access proofs (signed JWTs).
package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/MasCreaThor/testflow-auth/internal/errs"
)

const (
	// DefaultAccessTTL is the lifetime of an access proof.
	DefaultAccessTTL = 24 * time.Hour
	// Leeway tolerates clock skew between issuer and verifier.
	Leeway = 30 * time.Second
)

// Claims is the payload of an access proof.
type Claims struct {
	Ext map[string]any `json:"ext,omitempty"`
	jwt.RegisteredClaims
}

// AccessClaims is the verified view of an access proof.
type AccessClaims struct {
	SubjectID uuid.UUID
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Ext       map[string]any
}

// Signer signs and verifies access proofs with a shared or asymmetric key.
type Signer struct {
	method  jwt.SigningMethod
	signKey any
	verKey  any
	issuer  string
	ttl     time.Duration
	now     func() time.Time
}

// Option configures Signer.
type Option func(*Signer)

// WithTTL overrides the access proof lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Signer) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithIssuer sets the iss claim; verification then requires it.
func WithIssuer(iss string) Option {
	return func(s *Signer) { s.issuer = iss }
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Signer) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewHS256 constructs a Signer using a shared HMAC key.
func NewHS256(key []byte, opts ...Option) (*Signer, error) {
	if len(key) == 0 {
		return nil, errors.New("token: empty signing key")
	}
	return newSigner(jwt.SigningMethodHS256, key, key, opts), nil
}

// NewRS256 constructs a Signer using an RSA key pair.
func NewRS256(priv *rsa.PrivateKey, pub *rsa.PublicKey, opts ...Option) (*Signer, error) {
	if priv == nil || pub == nil {
		return nil, errors.New("token: both private and public keys are required")
	}
	return newSigner(jwt.SigningMethodRS256, priv, pub, opts), nil
}

// NewRS256FromFiles loads PEM encoded keys from disk.
func NewRS256FromFiles(privPath, pubPath string, opts ...Option) (*Signer, error) {
	privPEM, err := os.ReadFile(privPath)
	if err != nil {
		return nil, fmt.Errorf("token: read private key: %w", err)
	}
	pubPEM, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, fmt.Errorf("token: read public key: %w", err)
	}
	priv, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, fmt.Errorf("token: parse private key: %w", err)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, fmt.Errorf("token: parse public key: %w", err)
	}
	return NewRS256(priv, pub, opts...)
}

func newSigner(m jwt.SigningMethod, signKey, verKey any, opts []Option) *Signer {
	s := &Signer{method: m, signKey: signKey, verKey: verKey, ttl: DefaultAccessTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the configured access proof lifetime.
func (s *Signer) TTL() time.Duration { return s.ttl }

// Issue signs an access proof for subjectID carrying optional extra claims.
func (s *Signer) Issue(subjectID uuid.UUID, ext map[string]any) (string, time.Time, error) {
	if subjectID == uuid.Nil {
		return "", time.Time{}, fmt.Errorf("%w: empty subject", errs.ErrInvalidInput)
	}
	jti, err := uuid.NewV4()
	if err != nil {
		return "", time.Time{}, err
	}
	now := s.now()
	exp := now.Add(s.ttl)
	claims := Claims{
		Ext: ext,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subjectID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti.String(),
		},
	}
	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.signKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access proof: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature and timestamps without any store lookup.
func (s *Signer) Verify(raw string) (AccessClaims, error) {
	if raw == "" {
		return AccessClaims{}, errs.ErrTokenInvalid
	}
	popts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithLeeway(Leeway),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if s.issuer != "" {
		popts = append(popts, jwt.WithIssuer(s.issuer))
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.verKey, nil
	}, popts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AccessClaims{}, errs.ErrTokenExpired
		}
		return AccessClaims{}, errs.ErrTokenInvalid
	}
	if !parsed.Valid {
		return AccessClaims{}, errs.ErrTokenInvalid
	}

	id, err := uuid.FromString(claims.Subject)
	if err != nil || id == uuid.Nil {
		return AccessClaims{}, errs.ErrTokenInvalid
	}
	out := AccessClaims{SubjectID: id, TokenID: claims.ID, Ext: claims.Ext}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
