package auth

import (
	"context"

	"github.com/pimgrid/api/internal/services"
)

// RoleAuthorizer maps identity roles onto catalog read and edit checks.
// Requests without an identity pass; the middleware already rejected them
// when verification is enabled.
type RoleAuthorizer struct{}

// Check implements services.Authorizer.
func (RoleAuthorizer) Check(ctx context.Context, entityType string, action services.Action) bool {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return true
	}
	switch action {
	case services.ActionEdit:
		return identity.HasAnyRole(RoleEditor, RoleAdmin)
	default:
		return identity.HasAnyRole(RoleViewer, RoleEditor, RoleAdmin)
	}
}
