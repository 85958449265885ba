// AngelaMos | 2026
// auth.go

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelamos/tenfold/internal/core"
)

const (
	IdentityKey contextKey = "identity"
)

// Identity is the resolved session principal. A nil Identity in context
// means the caller is an anonymous visitor, which is a legitimate state
// for the funnel, not an error.
type Identity struct {
	UserID string
	AuthID string
	Email  string
	Role   string
}

type CredentialVerifier interface {
	VerifySessionToken(ctx context.Context, token string) (*Identity, error)
}

// OptionalSession resolves a session credential when one is present and
// valid, and otherwise lets the request through anonymously. Read paths
// use this so a visitor with no cookie, or a stale one, still gets a
// well-formed VISITOR view instead of a 401.
func OptionalSession(
	verifier CredentialVerifier,
	cookieName string,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r, cookieName)

			if token != "" {
				identity, err := verifier.VerifySessionToken(r.Context(), token)
				if err == nil {
					r = r.WithContext(withIdentity(r.Context(), identity))
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Authenticator requires a valid session credential. A missing credential
// is UNAUTHORIZED; a present-but-invalid one is INVALID_CREDENTIAL so the
// client knows to re-authenticate rather than retry.
func Authenticator(
	verifier CredentialVerifier,
	cookieName string,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r, cookieName)

			if token == "" {
				core.JSONError(
					w,
					core.UnauthorizedError("missing session credential"),
				)
				return
			}

			identity, err := verifier.VerifySessionToken(r.Context(), token)
			if err != nil {
				if core.IsAppError(err) {
					core.JSONError(w, err)
					return
				}
				core.JSONError(w, core.InvalidCredentialError())
				return
			}

			ctx := withIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := GetIdentity(r.Context())

		if identity == nil {
			core.JSONError(
				w,
				core.UnauthorizedError("authentication required"),
			)
			return
		}

		if identity.Role != "admin" {
			core.JSONError(
				w,
				core.ForbiddenError("insufficient permissions"),
			)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ExtractToken reads the session cookie first, then falls back to a
// bearer Authorization header for non-browser clients.
func ExtractToken(r *http.Request, cookieName string) string {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

func withIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

func GetIdentity(ctx context.Context) *Identity {
	if identity, ok := ctx.Value(IdentityKey).(*Identity); ok {
		return identity
	}
	return nil
}

func GetUserID(ctx context.Context) string {
	if identity := GetIdentity(ctx); identity != nil {
		return identity.UserID
	}
	return ""
}

func IsAuthenticated(ctx context.Context) bool {
	return GetUserID(ctx) != ""
}
