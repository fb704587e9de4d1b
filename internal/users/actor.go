package users

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/poflow-backend/pkg/db/models"
	"github.com/angelmondragon/poflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/poflow-backend/pkg/errors"
	"github.com/angelmondragon/poflow-backend/pkg/permissions"
)

// Actor is the authenticated caller of a tenant-scoped operation.
type Actor struct {
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	Role           enums.UserRole
	Email          string
	Name           string
}

// ActorFromUser builds an Actor from a loaded member row.
func ActorFromUser(u *models.User) Actor {
	return Actor{
		UserID:         u.ID,
		OrganizationID: u.OrganizationID,
		Role:           u.Role,
		Email:          u.Email,
		Name:           u.Name,
	}
}

// Require checks that the actor is identified and holds perm.
func (a Actor) Require(perm permissions.Permission) error {
	if a.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if a.OrganizationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeForbidden, "organization context missing")
	}
	if !permissions.Has(a.Role, perm) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "insufficient role").
			WithDetails(map[string]any{"required_permission": string(perm)})
	}
	return nil
}

type actorKey struct{}

// WithActor stores the actor on ctx.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored by the auth middleware.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}
