package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/poflow-backend/internal/users"
	"github.com/angelmondragon/poflow-backend/pkg/auth"
	"github.com/angelmondragon/poflow-backend/pkg/config"
	"github.com/angelmondragon/poflow-backend/pkg/db/models"
	"github.com/angelmondragon/poflow-backend/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer", Audience: "authenticated"}

type stubResolver struct {
	users map[uuid.UUID]*models.User
	err   error
}

func (s stubResolver) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func mintTestToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := auth.MintAccessToken(testJWT, time.Now(), userID, "member@example.com", time.Hour)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func serveAuth(handler http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testJWT, stubResolver{}, nil)(okHandler())
	if resp := serveAuth(handler, ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(testJWT, stubResolver{}, nil)(okHandler())
	if resp := serveAuth(handler, "Bearer invalid"); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsUnknownAndInactiveUsers(t *testing.T) {
	inactive := &models.User{ID: uuid.New(), OrganizationID: uuid.New(), Role: enums.UserRoleAdmin}
	handler := Auth(testJWT, stubResolver{users: map[uuid.UUID]*models.User{inactive.ID: inactive}}, nil)(okHandler())

	if resp := serveAuth(handler, "Bearer "+mintTestToken(t, uuid.New())); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown user got %d", resp.Code)
	}
	if resp := serveAuth(handler, "Bearer "+mintTestToken(t, inactive.ID)); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for inactive user got %d", resp.Code)
	}
}

func TestAuthReportsResolverFailure(t *testing.T) {
	handler := Auth(testJWT, stubResolver{err: errors.New("db down")}, nil)(okHandler())
	if resp := serveAuth(handler, "Bearer "+mintTestToken(t, uuid.New())); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestAuthSeedsActorFromUsersTable(t *testing.T) {
	member := &models.User{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		Email:          "manager@example.com",
		Name:           "Morgan",
		Role:           enums.UserRoleManager,
		IsActive:       true,
	}
	var captured users.Actor
	handler := Auth(testJWT, stubResolver{users: map[uuid.UUID]*models.User{member.ID: member}}, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := RequireActor(r.Context())
			if err != nil {
				t.Errorf("expected actor in context: %v", err)
			}
			captured = actor
			w.WriteHeader(http.StatusOK)
		}))

	resp := serveAuth(handler, "Bearer "+mintTestToken(t, member.ID))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.UserID != member.ID || captured.OrganizationID != member.OrganizationID {
		t.Fatalf("unexpected actor %+v", captured)
	}
	if captured.Role != enums.UserRoleManager {
		t.Fatalf("expected manager role got %s", captured.Role)
	}
}

func TestRequireActorWithoutAuth(t *testing.T) {
	if _, err := RequireActor(context.Background()); err == nil {
		t.Fatal("expected error without actor")
	}
}
