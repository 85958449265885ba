// AngelaMos | 2026
// service.go

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/angelamos/tenfold/internal/core"
	"github.com/angelamos/tenfold/internal/funnel"
)

type TransitionEngine interface {
	Transition(
		ctx context.Context,
		authID string,
		target funnel.State,
		patch funnel.Metadata,
		reason string,
	) (*funnel.Snapshot, error)
}

type TokenIssuer interface {
	CreateSessionToken(claims SessionClaims) (string, error)
}

type Service struct {
	identity IdentityProvider
	users    funnel.Repository
	engine   TransitionEngine
	tokens   TokenIssuer
	logger   *slog.Logger
}

func NewService(
	identity IdentityProvider,
	users funnel.Repository,
	engine TransitionEngine,
	tokens TokenIssuer,
	logger *slog.Logger,
) *Service {
	return &Service{
		identity: identity,
		users:    users,
		engine:   engine,
		tokens:   tokens,
		logger:   logger,
	}
}

// SignInWithGoogle verifies the credential, upserts the user by auth id
// and records the VISITOR → AUTH transition for first-time visitors. A
// returning user keeps whatever state they had; sign-in never moves
// anyone backward.
func (s *Service) SignInWithGoogle(
	ctx context.Context,
	credential string,
) (string, *SignInResponse, error) {
	ident, err := s.identity.VerifyCredential(ctx, credential)
	if err != nil {
		if errors.Is(err, core.ErrInvalidCredential) {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("verify google credential: %w", err)
	}

	user := &funnel.User{
		AuthID:        ident.AuthID,
		Email:         ident.Email,
		Name:          ident.Name,
		CurrentState:  funnel.StateVisitor,
		StateMetadata: funnel.Metadata{},
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return "", nil, err
	}

	snapshot := user.Snapshot()

	if user.CurrentState == funnel.StateVisitor {
		patch := funnel.Metadata{
			funnel.NamespaceUser: map[string]any{
				"email":   ident.Email,
				"auth_id": ident.AuthID,
				"name":    ident.Name,
				"picture": ident.Picture,
			},
		}
		snapshot, err = s.engine.Transition(
			ctx,
			ident.AuthID,
			funnel.StateAuth,
			patch,
			"google_signin",
		)
		if err != nil {
			return "", nil, err
		}
	}

	token, err := s.tokens.CreateSessionToken(SessionClaims{
		UserID: user.ID,
		AuthID: user.AuthID,
		Email:  user.Email,
	})
	if err != nil {
		return "", nil, fmt.Errorf("issue session token: %w", err)
	}

	s.logger.Info("user signed in",
		"auth_id", user.AuthID,
		"state", snapshot.State,
	)

	return token, &SignInResponse{
		AuthID:   user.AuthID,
		Email:    user.Email,
		Name:     user.Name,
		State:    snapshot.State,
		Metadata: snapshot.Metadata,
	}, nil
}
