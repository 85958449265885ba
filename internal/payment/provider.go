// AngelaMos | 2026
// provider.go

// Package payment runs the checkout leg of the funnel against a
// black-box billing provider and confirms it into the AUTH → PAYMENT
// transition.
package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelamos/tenfold/internal/core"
)

// Checkout status values as the billing provider reports them.
const (
	CheckoutPending   = "pending"
	CheckoutCompleted = "completed"
)

type CheckoutSession struct {
	SessionID   string
	CheckoutURL string
	PlanID      string
}

// BillingProvider is the black-box payment integration; concrete SDK
// call shapes are out of scope.
type BillingProvider interface {
	CreateCheckout(
		ctx context.Context,
		authID string,
		planID string,
	) (*CheckoutSession, error)
	VerifyCheckout(ctx context.Context, sessionID string) (string, error)
}

// MockBilling is the development provider selected by
// provider.billing_mock. Every created session verifies as completed.
type MockBilling struct {
	checkoutURL string
	FailCreate  bool
	FailVerify  bool
}

func NewMockBilling(checkoutURL string) *MockBilling {
	return &MockBilling{checkoutURL: checkoutURL}
}

func (m *MockBilling) CreateCheckout(
	ctx context.Context,
	authID string,
	planID string,
) (*CheckoutSession, error) {
	if m.FailCreate {
		return nil, fmt.Errorf("mock checkout: %w", core.ErrUpstreamProvider)
	}

	sessionID := "cs_" + uuid.NewString()
	return &CheckoutSession{
		SessionID:   sessionID,
		CheckoutURL: m.checkoutURL + "/" + sessionID,
		PlanID:      planID,
	}, nil
}

func (m *MockBilling) VerifyCheckout(
	ctx context.Context,
	sessionID string,
) (string, error) {
	if m.FailVerify {
		return "", fmt.Errorf("mock verify: %w", core.ErrUpstreamProvider)
	}
	if sessionID == "" {
		return "", fmt.Errorf("mock verify: %w", core.ErrInvalidInput)
	}
	return CheckoutCompleted, nil
}
