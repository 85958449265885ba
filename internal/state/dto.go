// AngelaMos | 2026
// dto.go

package state

import (
	"github.com/angelamos/tenfold/internal/funnel"
)

type TransitionRequest struct {
	Metadata map[string]any `json:"metadata"`
	Reason   string         `json:"reason" validate:"omitempty,max=128"`
}

type StateResponse struct {
	State    funnel.State    `json:"state"`
	Metadata funnel.Metadata `json:"metadata"`
}

type RequirementsResponse struct {
	State              funnel.State `json:"state"`
	RequiredFields     []string     `json:"required_fields"`
	AllowedTransitions []string     `json:"allowed_transitions"`
}
