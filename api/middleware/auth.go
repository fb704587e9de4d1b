package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/poflow-backend/api/responses"
	"github.com/angelmondragon/poflow-backend/internal/users"
	pkgAuth "github.com/angelmondragon/poflow-backend/pkg/auth"
	"github.com/angelmondragon/poflow-backend/pkg/config"
	"github.com/angelmondragon/poflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/poflow-backend/pkg/errors"
	"github.com/angelmondragon/poflow-backend/pkg/logger"
)

// UserResolver loads the member named by a token subject.
type UserResolver interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Auth validates a bearer token, loads the member it names and seeds the
// request context with their actor. Role and organization always come from
// the users table, never from the token.
func Auth(cfg config.JWTConfig, resolver UserResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			userID, err := claims.UserID()
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token subject"))
				return
			}

			user, err := resolver.FindByID(r.Context(), userID)
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown user"))
				return
			case err != nil:
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user"))
				return
			case !user.IsActive:
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user deactivated"))
				return
			}

			actor := users.ActorFromUser(user)
			ctx := users.WithActor(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithActor(ctx, actor.UserID.String(), actor.OrganizationID.String(), actor.Role.String())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
