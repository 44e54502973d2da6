package jwt

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCfg = Config{Secret: "test-secret", Issuer: "entitle", Audience: "api", TTL: time.Hour, Leeway: time.Second}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrMissingSigningKey)

	svc, err := New(Config{Secret: "s"})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, svc.cfg.TTL)
}

func TestIssueAndParse(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newService(testCfg, func() time.Time { return now })

	token, err := svc.Issue("user-1", "ada@example.com")
	require.NoError(t, err)

	claims, err := svc.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "entitle", claims.Issuer)
	assert.NotEmpty(t, claims.ID)

	_, err = svc.Issue("", "")
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	svc := newService(testCfg, func() time.Time { return clock })

	sign := func(method jwtlib.SigningMethod, key any, c Claims) string {
		t.Helper()
		s, err := jwtlib.NewWithClaims(method, c).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := func() Claims {
		return Claims{RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "entitle",
			Audience:  jwtlib.ClaimStrings{"api"},
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(time.Hour)),
		}}
	}

	t.Run("wrong key", func(t *testing.T) {
		_, err := svc.Parse(sign(jwtlib.SigningMethodHS256, []byte("other"), valid()))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		_, err := svc.Parse(sign(jwtlib.SigningMethodHS512, []byte("test-secret"), valid()))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		_, err := svc.Parse(sign(jwtlib.SigningMethodNone, jwtlib.UnsafeAllowNoneSignatureType, valid()))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		c := valid()
		c.Issuer = "someone-else"
		_, err := svc.Parse(sign(jwtlib.SigningMethodHS256, []byte("test-secret"), c))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		c := valid()
		c.Audience = jwtlib.ClaimStrings{"web"}
		_, err := svc.Parse(sign(jwtlib.SigningMethodHS256, []byte("test-secret"), c))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing expiry", func(t *testing.T) {
		c := valid()
		c.ExpiresAt = nil
		_, err := svc.Parse(sign(jwtlib.SigningMethodHS256, []byte("test-secret"), c))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		c := valid()
		c.Subject = ""
		_, err := svc.Parse(sign(jwtlib.SigningMethodHS256, []byte("test-secret"), c))
		assert.ErrorIs(t, err, ErrMissingSubject)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.Parse("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestParseExpired(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	svc := newService(testCfg, func() time.Time { return clock })

	token, err := svc.Issue("user-1", "")
	require.NoError(t, err)

	clock = now.Add(time.Hour + 500*time.Millisecond)
	_, err = svc.Parse(token)
	assert.NoError(t, err, "within leeway")

	clock = now.Add(2 * time.Hour)
	_, err = svc.Parse(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}
