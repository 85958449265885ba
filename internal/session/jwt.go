// AngelaMos | 2026
// jwt.go

// Package session issues and verifies the funnel's session credential:
// an ES256 JWT carried in an httponly cookie, resolved to an identity
// on every request. A missing credential is an anonymous visitor, not
// an error.
package session

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/angelamos/tenfold/internal/config"
	"github.com/angelamos/tenfold/internal/core"
	"github.com/angelamos/tenfold/internal/middleware"
)

type Manager struct {
	privateKey jwk.Key
	publicKey  jwk.Key
	publicJWKS jwk.Set
	config     config.SessionConfig
}

func NewManager(cfg config.SessionConfig) (*Manager, error) {
	privateKeyPEM, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	privateKey, err := jwk.ParseKey(privateKeyPEM, jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	if setErr := privateKey.Set(jwk.AlgorithmKey, jwa.ES256()); setErr != nil {
		return nil, fmt.Errorf("set algorithm: %w", setErr)
	}

	keyID := uuid.New().String()[:8]
	if setErr := privateKey.Set(jwk.KeyIDKey, keyID); setErr != nil {
		return nil, fmt.Errorf("set key id: %w", setErr)
	}

	publicKey, err := privateKey.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}

	if setErr := publicKey.Set(jwk.KeyUsageKey, "sig"); setErr != nil {
		return nil, fmt.Errorf("set key usage: %w", setErr)
	}

	publicJWKS := jwk.NewSet()
	if addErr := publicJWKS.AddKey(publicKey); addErr != nil {
		return nil, fmt.Errorf("add key to set: %w", addErr)
	}

	return &Manager{
		privateKey: privateKey,
		publicKey:  publicKey,
		publicJWKS: publicJWKS,
		config:     cfg,
	}, nil
}

func GenerateKeyPair(privateKeyPath, publicKeyPath string) error {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	jwkPrivate, err := jwk.Import(privateKey)
	if err != nil {
		return fmt.Errorf("import private key: %w", err)
	}

	keyID := uuid.New().String()[:8]
	if setErr := jwkPrivate.Set(jwk.KeyIDKey, keyID); setErr != nil {
		return fmt.Errorf("set key id: %w", setErr)
	}
	if setErr := jwkPrivate.Set(jwk.AlgorithmKey, jwa.ES256()); setErr != nil {
		return fmt.Errorf("set algorithm: %w", setErr)
	}

	privatePEM, err := jwk.Pem(jwkPrivate)
	if err != nil {
		return fmt.Errorf("encode private key: %w", err)
	}

	if writeErr := os.WriteFile(privateKeyPath, privatePEM, 0o600); writeErr != nil {
		return fmt.Errorf("write private key: %w", writeErr)
	}

	jwkPublic, err := jwkPrivate.PublicKey()
	if err != nil {
		return fmt.Errorf("derive public key: %w", err)
	}

	publicPEM, err := jwk.Pem(jwkPublic)
	if err != nil {
		return fmt.Errorf("encode public key: %w", err)
	}

	//nolint:gosec // G306: public key is intentionally world-readable
	if writeErr := os.WriteFile(publicKeyPath, publicPEM, 0o644); writeErr != nil {
		return fmt.Errorf("write public key: %w", writeErr)
	}

	return nil
}

// SessionClaims is what the funnel stores in a session token.
type SessionClaims struct {
	UserID string `json:"sub"`
	AuthID string `json:"auth_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

func (m *Manager) CreateSessionToken(claims SessionClaims) (string, error) {
	now := time.Now()

	token, err := jwt.NewBuilder().
		JwtID(uuid.New().String()).
		Issuer(m.config.Issuer).
		Audience([]string{m.config.Audience}).
		Subject(claims.UserID).
		IssuedAt(now).
		Expiration(now.Add(m.config.TokenExpire)).
		NotBefore(now).
		Claim("auth_id", claims.AuthID).
		Claim("email", claims.Email).
		Claim("role", claims.Role).
		Claim("type", "session").
		Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.ES256(), m.privateKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return string(signed), nil
}

// VerifySessionToken validates signature, issuer, audience and the time
// window with the configured clock-skew leeway, and resolves the token
// to an identity. It satisfies middleware.CredentialVerifier.
func (m *Manager) VerifySessionToken(
	ctx context.Context,
	tokenString string,
) (*middleware.Identity, error) {
	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(jwa.ES256(), m.publicKey),
		jwt.WithValidate(true),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithAcceptableSkew(m.config.ClockSkew),
	)
	if err != nil {
		if isTokenExpiredError(err) {
			return nil, fmt.Errorf(
				"verify token: expired: %w",
				core.ErrInvalidCredential,
			)
		}
		return nil, fmt.Errorf("verify token: %w", core.ErrInvalidCredential)
	}

	var tokenType string
	if err := token.Get("type", &tokenType); err != nil ||
		tokenType != "session" {
		return nil, fmt.Errorf(
			"verify token: invalid token type: %w",
			core.ErrInvalidCredential,
		)
	}

	subject, ok := token.Subject()
	if !ok || subject == "" {
		return nil, fmt.Errorf(
			"verify token: missing subject: %w",
			core.ErrInvalidCredential,
		)
	}

	var authID string
	if err := token.Get("auth_id", &authID); err != nil || authID == "" {
		return nil, fmt.Errorf(
			"verify token: missing auth_id claim: %w",
			core.ErrInvalidCredential,
		)
	}

	var email string
	//nolint:errcheck // email is informational, absence is tolerated
	_ = token.Get("email", &email)

	var role string
	//nolint:errcheck // role defaults to a regular user
	_ = token.Get("role", &role)

	return &middleware.Identity{
		UserID: subject,
		AuthID: authID,
		Email:  email,
		Role:   role,
	}, nil
}

func isTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "exp") &&
		strings.Contains(errStr, "not satisfied")
}

func (m *Manager) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")

		if err := json.NewEncoder(w).Encode(m.publicJWKS); err != nil {
			http.Error(
				w,
				"Internal Server Error",
				http.StatusInternalServerError,
			)
			return
		}
	}
}

func (m *Manager) KeyID() string {
	var kid string
	//nolint:errcheck // key ID always set during NewManager init
	_ = m.privateKey.Get(jwk.KeyIDKey, &kid)
	return kid
}

// Cookie builds the session cookie the way the funnel hands it to the
// browser: httponly, SameSite=Lax, scoped to the whole site.
func (m *Manager) Cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     m.config.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.config.TokenExpire.Seconds()),
		HttpOnly: true,
		Secure:   m.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearedCookie expires the session cookie immediately.
func (m *Manager) ClearedCookie() *http.Cookie {
	return &http.Cookie{
		Name:     m.config.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}
