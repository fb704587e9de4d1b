package middleware

import (
	"context"

	"github.com/angelmondragon/poflow-backend/internal/users"
	pkgerrors "github.com/angelmondragon/poflow-backend/pkg/errors"
)

// RequireActor returns the authenticated actor or an Unauthorized error.
func RequireActor(ctx context.Context) (users.Actor, error) {
	if ctx == nil {
		return users.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	actor, ok := users.ActorFromContext(ctx)
	if !ok {
		return users.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return actor, nil
}
