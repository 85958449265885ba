// AngelaMos | 2026
// dto.go

package session

import (
	"github.com/angelamos/tenfold/internal/funnel"
)

type GoogleSignInRequest struct {
	Credential string `json:"credential" validate:"required"`
}

type SignInResponse struct {
	AuthID   string          `json:"auth_id"`
	Email    string          `json:"email"`
	Name     string          `json:"name"`
	State    funnel.State    `json:"state"`
	Metadata funnel.Metadata `json:"metadata"`
}
