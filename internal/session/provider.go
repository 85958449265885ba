// AngelaMos | 2026
// provider.go

package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/angelamos/tenfold/internal/core"
)

// GoogleIdentity is what the identity provider resolves a credential to.
type GoogleIdentity struct {
	AuthID  string
	Email   string
	Name    string
	Picture string
}

// IdentityProvider is the black-box sign-in integration. The credential
// is whatever the client-side Google flow produced; only the verified
// identity crosses this boundary.
type IdentityProvider interface {
	VerifyCredential(
		ctx context.Context,
		credential string,
	) (*GoogleIdentity, error)
}

// MockIdentity is the development provider selected by
// provider.identity_mock. It accepts any non-empty credential and
// derives a stable identity from it, so repeated sign-ins hit the same
// user row.
type MockIdentity struct {
	Fail bool
}

func NewMockIdentity() *MockIdentity {
	return &MockIdentity{}
}

func (m *MockIdentity) VerifyCredential(
	ctx context.Context,
	credential string,
) (*GoogleIdentity, error) {
	if m.Fail {
		return nil, fmt.Errorf("mock identity: %w", core.ErrUpstreamProvider)
	}
	if credential == "" {
		return nil, fmt.Errorf(
			"mock identity: empty credential: %w",
			core.ErrInvalidCredential,
		)
	}

	sum := sha256.Sum256([]byte(credential))
	id := hex.EncodeToString(sum[:])[:12]

	return &GoogleIdentity{
		AuthID:  "google-" + id,
		Email:   id + "@example.com",
		Name:    "Mock User " + id[:4],
		Picture: "https://example.com/avatar/" + id,
	}, nil
}
