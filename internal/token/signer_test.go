package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/MasCreaThor/testflow-auth/internal/errs"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestHS256_IssueVerify(t *testing.T) {
	t.Parallel()

	c := &clock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	s, err := NewHS256([]byte("secret"), WithClock(c.now), WithTTL(time.Hour), WithIssuer("testflow"))
	require.NoError(t, err)

	sub := uuid.Must(uuid.NewV4())
	raw, exp, err := s.Issue(sub, map[string]any{"email": "a@b.c"})
	require.NoError(t, err)
	require.Equal(t, c.t.Add(time.Hour), exp)

	got, err := s.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, sub, got.SubjectID)
	require.Equal(t, "a@b.c", got.Ext["email"])
	require.NotEmpty(t, got.TokenID)
	require.True(t, got.ExpiresAt.Equal(exp))
}

func TestHS256_Expired(t *testing.T) {
	t.Parallel()

	c := &clock{t: time.Now()}
	s, err := NewHS256([]byte("secret"), WithClock(c.now), WithTTL(time.Minute))
	require.NoError(t, err)

	raw, _, err := s.Issue(uuid.Must(uuid.NewV4()), nil)
	require.NoError(t, err)

	c.t = c.t.Add(time.Minute + Leeway + time.Second)
	_, err = s.Verify(raw)
	require.ErrorIs(t, err, errs.ErrTokenExpired)
}

func TestHS256_TamperAndWrongKey(t *testing.T) {
	t.Parallel()

	s1, _ := NewHS256([]byte("k1"))
	s2, _ := NewHS256([]byte("k2"))

	raw, _, err := s1.Issue(uuid.Must(uuid.NewV4()), nil)
	require.NoError(t, err)

	_, err = s2.Verify(raw)
	require.ErrorIs(t, err, errs.ErrTokenInvalid)

	_, err = s1.Verify(raw + "x")
	require.ErrorIs(t, err, errs.ErrTokenInvalid)

	_, err = s1.Verify("")
	require.ErrorIs(t, err, errs.ErrTokenInvalid)
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	s, _ := NewHS256([]byte("k"))
	claims := jwt.RegisteredClaims{
		Subject:   uuid.Must(uuid.NewV4()).String(),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("k"))
	require.NoError(t, err)

	_, err = s.Verify(raw)
	require.ErrorIs(t, err, errs.ErrTokenInvalid)
}

func TestVerify_IssuerAndSubject(t *testing.T) {
	t.Parallel()

	other, _ := NewHS256([]byte("k"), WithIssuer("other"))
	s, _ := NewHS256([]byte("k"), WithIssuer("testflow"))

	raw, _, err := other.Issue(uuid.Must(uuid.NewV4()), nil)
	require.NoError(t, err)
	_, err = s.Verify(raw)
	require.ErrorIs(t, err, errs.ErrTokenInvalid)

	_, _, err = s.Issue(uuid.Nil, nil)
	require.ErrorIs(t, err, errs.ErrInvalidInput)

	claims := jwt.RegisteredClaims{
		Issuer:    "testflow",
		Subject:   "not-a-uuid",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)
	_, err = s.Verify(bad)
	require.ErrorIs(t, err, errs.ErrTokenInvalid)
}

func TestRS256_FromFiles(t *testing.T) {
	t.Parallel()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()
	privPath := filepath.Join(dir, "priv.pem")
	pubPath := filepath.Join(dir, "pub.pem")
	require.NoError(t, os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{
		Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv),
	}), 0o600))
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{
		Type: "PUBLIC KEY", Bytes: pubDER,
	}), 0o600))

	s, err := NewRS256FromFiles(privPath, pubPath)
	require.NoError(t, err)

	sub := uuid.Must(uuid.NewV4())
	raw, _, err := s.Issue(sub, nil)
	require.NoError(t, err)
	got, err := s.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, sub, got.SubjectID)

	hs, _ := NewHS256([]byte("k"))
	_, err = hs.Verify(raw)
	require.ErrorIs(t, err, errs.ErrTokenInvalid)

	_, err = NewRS256FromFiles(filepath.Join(dir, "missing"), pubPath)
	require.Error(t, err)
}

func TestConstructors_Validate(t *testing.T) {
	t.Parallel()

	_, err := NewHS256(nil)
	require.Error(t, err)
	_, err = NewRS256(nil, nil)
	require.Error(t, err)

	s, _ := NewHS256([]byte("k"), WithTTL(-time.Second))
	require.Equal(t, DefaultAccessTTL, s.TTL())
}
