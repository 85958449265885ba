// AngelaMos | 2026
// jwt_test.go

package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelamos/tenfold/internal/config"
	"github.com/angelamos/tenfold/internal/core"
)

// newManagerForTest generates a key pair in a temp dir and writes the
// paths back through cfg so callers can build sibling managers on the
// same keys.
func newManagerForTest(t *testing.T, cfg *config.SessionConfig) *Manager {
	t.Helper()

	dir := t.TempDir()
	cfg.PrivateKeyPath = filepath.Join(dir, "private.pem")
	cfg.PublicKeyPath = filepath.Join(dir, "public.pem")

	require.NoError(t, GenerateKeyPair(cfg.PrivateKeyPath, cfg.PublicKeyPath))

	manager, err := NewManager(*cfg)
	require.NoError(t, err)
	return manager
}

func sessionConfig() config.SessionConfig {
	return config.SessionConfig{
		TokenExpire: time.Hour,
		ClockSkew:   300 * time.Second,
		Issuer:      "tenfold",
		Audience:    "tenfold-web",
		CookieName:  "access_token",
	}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	cfg := sessionConfig()
	manager := newManagerForTest(t, &cfg)

	token, err := manager.CreateSessionToken(SessionClaims{
		UserID: "u-1",
		AuthID: "google-1",
		Email:  "a@example.com",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	identity, err := manager.VerifySessionToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", identity.UserID)
	assert.Equal(t, "google-1", identity.AuthID)
	assert.Equal(t, "a@example.com", identity.Email)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	cfg := sessionConfig()
	manager := newManagerForTest(t, &cfg)

	_, err := manager.VerifySessionToken(
		context.Background(),
		"not.a.token",
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidCredential))
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	issuingCfg := sessionConfig()
	verifyingCfg := sessionConfig()
	issuing := newManagerForTest(t, &issuingCfg)
	verifying := newManagerForTest(t, &verifyingCfg)

	token, err := issuing.CreateSessionToken(SessionClaims{
		UserID: "u-1",
		AuthID: "google-1",
	})
	require.NoError(t, err)

	_, err = verifying.VerifySessionToken(context.Background(), token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidCredential))
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	cfg := sessionConfig()
	manager := newManagerForTest(t, &cfg)

	token, err := manager.CreateSessionToken(SessionClaims{
		UserID: "u-1",
		AuthID: "google-1",
	})
	require.NoError(t, err)

	// same keys, different expected audience
	otherCfg := cfg
	otherCfg.Audience = "other-app"
	other, err := NewManager(otherCfg)
	require.NoError(t, err)

	_, err = other.VerifySessionToken(context.Background(), token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidCredential))
}

func TestExpiredTokenWithinSkewIsAccepted(t *testing.T) {
	cfg := sessionConfig()
	// expires immediately, but the 300s leeway keeps it valid
	cfg.TokenExpire = time.Nanosecond
	manager := newManagerForTest(t, &cfg)

	token, err := manager.CreateSessionToken(SessionClaims{
		UserID: "u-1",
		AuthID: "google-1",
	})
	require.NoError(t, err)

	_, err = manager.VerifySessionToken(context.Background(), token)
	assert.NoError(t, err)
}

func TestExpiredTokenBeyondSkewIsRejected(t *testing.T) {
	cfg := sessionConfig()
	cfg.TokenExpire = time.Nanosecond
	cfg.ClockSkew = 0
	manager := newManagerForTest(t, &cfg)

	token, err := manager.CreateSessionToken(SessionClaims{
		UserID: "u-1",
		AuthID: "google-1",
	})
	require.NoError(t, err)

	_, err = manager.VerifySessionToken(context.Background(), token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidCredential))
}

func TestCookieShape(t *testing.T) {
	cfg := sessionConfig()
	cfg.CookieSecure = true
	manager := newManagerForTest(t, &cfg)

	cookie := manager.Cookie("tok")
	assert.Equal(t, "access_token", cookie.Name)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, "/", cookie.Path)

	cleared := manager.ClearedCookie()
	assert.Equal(t, -1, cleared.MaxAge)
	assert.Empty(t, cleared.Value)
}
