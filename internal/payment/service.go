// AngelaMos | 2026
// service.go

package payment

import (
	"context"
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

type Service struct {
	billing BillingProvider
	users   funnel.Repository
	engine  TransitionEngine
	logger  *slog.Logger
}

func NewService(
	billing BillingProvider,
	users funnel.Repository,
	engine TransitionEngine,
	logger *slog.Logger,
) *Service {
	return &Service{
		billing: billing,
		users:   users,
		engine:  engine,
		logger:  logger,
	}
}

// Checkout opens a billing session and parks it in the payment
// namespace as pending. The user's state does not move until the
// session is confirmed.
func (s *Service) Checkout(
	ctx context.Context,
	authID string,
	planID string,
) (*CheckoutResponse, error) {
	user, err := s.users.GetByAuthID(ctx, authID)
	if err != nil {
		return nil, err
	}

	session, err := s.billing.CreateCheckout(ctx, authID, planID)
	if err != nil {
		return nil, fmt.Errorf("create checkout: %w", err)
	}

	patch := funnel.Metadata{
		funnel.NamespacePayment: map[string]any{
			"plan_id":    session.PlanID,
			"session_id": session.SessionID,
			"status":     CheckoutPending,
		},
	}
	if _, err := s.engine.Transition(
		ctx,
		authID,
		user.CurrentState,
		patch,
		"checkout_opened",
	); err != nil {
		return nil, err
	}

	s.logger.Info("checkout session opened",
		"auth_id", authID,
		"plan_id", planID,
		"session_id", session.SessionID,
	)

	return &CheckoutResponse{
		SessionID:   session.SessionID,
		CheckoutURL: session.CheckoutURL,
		PlanID:      session.PlanID,
	}, nil
}

// Confirm verifies the session with the provider and, on success,
// records the transition into PAYMENT.
func (s *Service) Confirm(
	ctx context.Context,
	authID string,
	sessionID string,
) (*ConfirmResponse, error) {
	status, err := s.billing.VerifyCheckout(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("verify checkout: %w", err)
	}

	if status != CheckoutCompleted {
		return nil, fmt.Errorf(
			"checkout %s not completed (status %s): %w",
			sessionID,
			status,
			core.ErrInvalidInput,
		)
	}

	patch := funnel.Metadata{
		funnel.NamespacePayment: map[string]any{
			"session_id": sessionID,
			"status":     CheckoutCompleted,
		},
	}
	snapshot, err := s.engine.Transition(
		ctx,
		authID,
		funnel.StatePayment,
		patch,
		"payment_confirmed",
	)
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment confirmed",
		"auth_id", authID,
		"session_id", sessionID,
	)

	return &ConfirmResponse{
		State:    snapshot.State,
		Metadata: snapshot.Metadata,
	}, nil
}
