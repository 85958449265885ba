// AngelaMos | 2026
// dto.go

package payment

import (
	"github.com/angelamos/tenfold/internal/funnel"
)

type CheckoutRequest struct {
	PlanID string `json:"plan_id" validate:"required,max=64"`
}

type CheckoutResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
	PlanID      string `json:"plan_id"`
}

type ConfirmRequest struct {
	SessionID string `json:"session_id" validate:"required,max=128"`
}

type ConfirmResponse struct {
	State    funnel.State    `json:"state"`
	Metadata funnel.Metadata `json:"metadata"`
}
