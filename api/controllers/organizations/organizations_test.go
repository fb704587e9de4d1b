package organizations

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalorgs "github.com/angelmondragon/poflow-backend/internal/organizations"
	"github.com/angelmondragon/poflow-backend/internal/users"
	"github.com/angelmondragon/poflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/poflow-backend/pkg/errors"
)

type stubService struct {
	settings  *internalorgs.SettingsInput
	invite    *internalorgs.InviteInput
	role      enums.UserRole
	removeErr error
}

func (s *stubService) Get(ctx context.Context, actor users.Actor) (*internalorgs.OrganizationDTO, error) {
	return &internalorgs.OrganizationDTO{ID: actor.OrganizationID}, nil
}

func (s *stubService) UpdateSettings(ctx context.Context, actor users.Actor, input internalorgs.SettingsInput) (*internalorgs.OrganizationDTO, error) {
	s.settings = &input
	return &internalorgs.OrganizationDTO{ID: actor.OrganizationID}, nil
}

func (s *stubService) ListMembers(ctx context.Context, actor users.Actor) ([]users.UserDTO, error) {
	return []users.UserDTO{}, nil
}

func (s *stubService) InviteMember(ctx context.Context, actor users.Actor, input internalorgs.InviteInput) (*users.UserDTO, error) {
	s.invite = &input
	return &users.UserDTO{ID: uuid.New(), Email: input.Email, Role: input.Role}, nil
}

func (s *stubService) ChangeMemberRole(ctx context.Context, actor users.Actor, memberID uuid.UUID, role enums.UserRole) (*users.UserDTO, error) {
	s.role = role
	return &users.UserDTO{ID: memberID, Role: role}, nil
}

func (s *stubService) RemoveMember(ctx context.Context, actor users.Actor, memberID uuid.UUID) error {
	return s.removeErr
}

func adminRequest(method, target, body string, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = users.WithActor(ctx, users.Actor{UserID: uuid.New(), OrganizationID: uuid.New(), Role: enums.UserRoleAdmin})
	return req.WithContext(ctx)
}

func TestUpdateSettingsParsesEnums(t *testing.T) {
	svc := &stubService{}
	body := `{"approval_threshold":"2500","default_tax_mode":"inclusive","currency":"usd"}`
	resp := httptest.NewRecorder()

	UpdateSettings(svc, nil).ServeHTTP(resp, adminRequest(http.MethodPatch, "/api/v1/organization", body, nil))

	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, svc.settings)
	require.NotNil(t, svc.settings.ApprovalThreshold)
	assert.True(t, svc.settings.ApprovalThreshold.Equal(decimal.NewFromInt(2500)))
	assert.Equal(t, enums.TaxModeInclusive, *svc.settings.DefaultTaxMode)
	assert.Equal(t, enums.CurrencyUSD, *svc.settings.Currency)
	assert.Nil(t, svc.settings.AutoApproveAdmin)
}

func TestUpdateSettingsRejectsUnknownCurrency(t *testing.T) {
	svc := &stubService{}
	resp := httptest.NewRecorder()

	UpdateSettings(svc, nil).ServeHTTP(resp, adminRequest(http.MethodPatch, "/api/v1/organization", `{"currency":"XYZ"}`, nil))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Nil(t, svc.settings)
}

func TestInviteMember(t *testing.T) {
	svc := &stubService{}
	body := `{"email":"new@example.com","name":"  New Buyer ","role":"manager"}`
	resp := httptest.NewRecorder()

	InviteMember(svc, nil).ServeHTTP(resp, adminRequest(http.MethodPost, "/api/v1/organization/members", body, nil))

	require.Equal(t, http.StatusCreated, resp.Code)
	require.NotNil(t, svc.invite)
	assert.Equal(t, "New Buyer", svc.invite.Name)
	assert.Equal(t, enums.UserRoleManager, svc.invite.Role)
}

func TestInviteMemberRejectsBadEmail(t *testing.T) {
	svc := &stubService{}
	resp := httptest.NewRecorder()

	InviteMember(svc, nil).ServeHTTP(resp, adminRequest(http.MethodPost, "/api/v1/organization/members", `{"email":"nope","name":"x","role":"VIEWER"}`, nil))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Nil(t, svc.invite)
}

func TestChangeMemberRole(t *testing.T) {
	svc := &stubService{}
	resp := httptest.NewRecorder()
	req := adminRequest(http.MethodPatch, "/api/v1/organization/members/x", `{"role":"ADMIN"}`, map[string]string{"memberId": uuid.NewString()})

	ChangeMemberRole(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, enums.UserRoleAdmin, svc.role)
}

func TestRemoveMember(t *testing.T) {
	params := map[string]string{"memberId": uuid.NewString()}

	resp := httptest.NewRecorder()
	RemoveMember(&stubService{}, nil).ServeHTTP(resp, adminRequest(http.MethodDelete, "/api/v1/organization/members/x", "", params))
	assert.Equal(t, http.StatusNoContent, resp.Code)

	svc := &stubService{removeErr: pkgerrors.New(pkgerrors.CodeConflict, "organization must keep an admin")}
	resp = httptest.NewRecorder()
	RemoveMember(svc, nil).ServeHTTP(resp, adminRequest(http.MethodDelete, "/api/v1/organization/members/x", "", params))
	assert.Equal(t, http.StatusConflict, resp.Code)
}
