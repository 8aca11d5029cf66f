package service

import (
	"github.com/google/uuid"

	"github.com/devlinkhq/marketplace-backend/internal/models"
)

// Identity is the resolved caller passed explicitly into every operation.
// It comes from the auth middleware; services never reach into ambient
// session state.
type Identity struct {
	UserID uuid.UUID
	Role   string
}

func (id Identity) IsClient() bool {
	return id.Role == models.RoleClient
}

func (id Identity) IsDeveloper() bool {
	return id.Role == models.RoleDeveloper
}

func (id Identity) IsAdmin() bool {
	return id.Role == models.RoleAdmin
}
