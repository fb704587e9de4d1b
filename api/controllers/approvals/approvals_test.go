package approvals

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalapprovals "github.com/angelmondragon/poflow-backend/internal/approvals"
	"github.com/angelmondragon/poflow-backend/internal/users"
	"github.com/angelmondragon/poflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/poflow-backend/pkg/errors"
)

type stubService struct {
	submitted  *internalapprovals.SubmitInput
	denyReason string
	approveErr error
}

func (s *stubService) Submit(ctx context.Context, actor users.Actor, input internalapprovals.SubmitInput) (*internalapprovals.SubmitResult, error) {
	s.submitted = &input
	return &internalapprovals.SubmitResult{}, nil
}

func (s *stubService) Resubmit(ctx context.Context, actor users.Actor, poID, approverID uuid.UUID) (*internalapprovals.SubmitResult, error) {
	return &internalapprovals.SubmitResult{}, nil
}

func (s *stubService) Approve(ctx context.Context, actor users.Actor, requestID uuid.UUID) (*internalapprovals.DecisionResult, error) {
	if s.approveErr != nil {
		return nil, s.approveErr
	}
	return &internalapprovals.DecisionResult{}, nil
}

func (s *stubService) Deny(ctx context.Context, actor users.Actor, requestID uuid.UUID, reason string) (*internalapprovals.DecisionResult, error) {
	s.denyReason = reason
	return &internalapprovals.DecisionResult{}, nil
}

func (s *stubService) AuditTrail(ctx context.Context, actor users.Actor, poID uuid.UUID) (*internalapprovals.AuditTrail, error) {
	return &internalapprovals.AuditTrail{Actions: []internalapprovals.ActionDTO{}}, nil
}

func (s *stubService) ListPending(ctx context.Context, actor users.Actor) ([]internalapprovals.PendingApproval, error) {
	return []internalapprovals.PendingApproval{}, nil
}

func adminRequest(method, target, body string, params map[string]string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = users.WithActor(ctx, users.Actor{UserID: uuid.New(), OrganizationID: uuid.New(), Role: enums.UserRoleAdmin})
	return req.WithContext(ctx)
}

func TestSubmitPassesApprover(t *testing.T) {
	svc := &stubService{}
	approverID := uuid.New()
	body := `{"supplier_name":"Acme","approver_id":"` + approverID.String() + `","line_items":[{"description":"Desk","quantity":"1","unit_price":"1500"}]}`
	resp := httptest.NewRecorder()

	Submit(svc, nil).ServeHTTP(resp, adminRequest(http.MethodPost, "/api/v1/approvals/submit", body, nil))

	require.Equal(t, http.StatusCreated, resp.Code)
	require.NotNil(t, svc.submitted)
	assert.Equal(t, approverID, svc.submitted.ApproverID)
	assert.Equal(t, "Acme", svc.submitted.PurchaseOrder.SupplierName)
}

func TestSubmitRequiresApprover(t *testing.T) {
	svc := &stubService{}
	body := `{"supplier_name":"Acme","line_items":[{"description":"Desk","quantity":"1","unit_price":"1500"}]}`
	resp := httptest.NewRecorder()

	Submit(svc, nil).ServeHTTP(resp, adminRequest(http.MethodPost, "/api/v1/approvals/submit", body, nil))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Nil(t, svc.submitted)
}

func TestApproveConflict(t *testing.T) {
	svc := &stubService{approveErr: pkgerrors.New(pkgerrors.CodeConflict, "approval request already approved")}
	resp := httptest.NewRecorder()
	req := adminRequest(http.MethodPost, "/api/v1/approvals/x/approve", "", map[string]string{"approvalId": uuid.NewString()})

	Approve(svc, nil).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Contains(t, resp.Body.String(), "already approved")
}

func TestDenyWithAndWithoutBody(t *testing.T) {
	svc := &stubService{}
	params := map[string]string{"approvalId": uuid.NewString()}

	resp := httptest.NewRecorder()
	Deny(svc, nil).ServeHTTP(resp, adminRequest(http.MethodPost, "/api/v1/approvals/x/deny", `{"reason":"over budget"}`, params))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "over budget", svc.denyReason)

	svc.denyReason = "unset"
	resp = httptest.NewRecorder()
	Deny(svc, nil).ServeHTTP(resp, adminRequest(http.MethodPost, "/api/v1/approvals/x/deny", "", params))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "", svc.denyReason)
}

func TestHistoryRejectsBadID(t *testing.T) {
	resp := httptest.NewRecorder()
	req := adminRequest(http.MethodGet, "/api/v1/approvals/x/history", "", map[string]string{"poId": "nope"})

	History(&stubService{}, nil).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestPendingWrapsItems(t *testing.T) {
	resp := httptest.NewRecorder()

	Pending(&stubService{}, nil).ServeHTTP(resp, adminRequest(http.MethodGet, "/api/v1/approvals/pending", "", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"data":{"items":[]}}`, resp.Body.String())
}
