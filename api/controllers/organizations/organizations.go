package organizations

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/poflow-backend/api/middleware"
	"github.com/angelmondragon/poflow-backend/api/responses"
	"github.com/angelmondragon/poflow-backend/api/validators"
	internalorgs "github.com/angelmondragon/poflow-backend/internal/organizations"
	"github.com/angelmondragon/poflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/poflow-backend/pkg/errors"
	"github.com/angelmondragon/poflow-backend/pkg/logger"
	"github.com/angelmondragon/poflow-backend/pkg/types"
)

type settingsRequest struct {
	Name              *string          `json:"name" validate:"omitempty,min=1,max=255"`
	ApprovalThreshold *decimal.Decimal `json:"approval_threshold"`
	AutoApproveAdmin  *bool            `json:"auto_approve_admin"`
	DefaultTaxMode    *string          `json:"default_tax_mode"`
	DefaultTaxRate    *decimal.Decimal `json:"default_tax_rate"`
	Currency          *string          `json:"currency"`
}

func (s settingsRequest) toInput() (internalorgs.SettingsInput, error) {
	input := internalorgs.SettingsInput{
		Name:              s.Name,
		ApprovalThreshold: s.ApprovalThreshold,
		AutoApproveAdmin:  s.AutoApproveAdmin,
		DefaultTaxRate:    s.DefaultTaxRate,
	}
	if s.DefaultTaxMode != nil {
		mode, err := enums.ParseTaxMode(strings.ToUpper(strings.TrimSpace(*s.DefaultTaxMode)))
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tax mode").
				WithDetails(map[string]any{"field": "default_tax_mode"})
		}
		input.DefaultTaxMode = &mode
	}
	if s.Currency != nil {
		currency, err := enums.ParseCurrency(strings.ToUpper(strings.TrimSpace(*s.Currency)))
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency").
				WithDetails(map[string]any{"field": "currency"})
		}
		input.Currency = &currency
	}
	return input, nil
}

type inviteRequest struct {
	Email string `json:"email" validate:"required,email,max=320"`
	Name  string `json:"name" validate:"required,max=255"`
	Role  string `json:"role" validate:"required"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required"`
}

func parseRole(raw string) (enums.UserRole, error) {
	role, err := enums.ParseUserRole(strings.ToUpper(strings.TrimSpace(raw)))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role").
			WithDetails(map[string]any{"field": "role"})
	}
	return role, nil
}

// Get returns the actor's organization and approval policy.
func Get(svc internalorgs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		org, err := svc.Get(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, org)
	}
}

func UpdateSettings(svc internalorgs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body settingsRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := body.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		org, err := svc.UpdateSettings(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, org)
	}
}

func ListMembers(svc internalorgs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		members, err := svc.ListMembers(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, types.Items(members))
	}
}

// InviteMember adds an invited user to the actor's organization.
func InviteMember(svc internalorgs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body inviteRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		role, err := parseRole(body.Role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		member, err := svc.InviteMember(r.Context(), actor, internalorgs.InviteInput{
			Email: body.Email,
			Name:  validators.SanitizeString(body.Name, 255),
			Role:  role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, member)
	}
}

func ChangeMemberRole(svc internalorgs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		memberID, err := validators.ParseUUIDParam(r, "memberId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body roleRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		role, err := parseRole(body.Role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		member, err := svc.ChangeMemberRole(r.Context(), actor, memberID, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, member)
	}
}

func RemoveMember(svc internalorgs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		memberID, err := validators.ParseUUIDParam(r, "memberId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.RemoveMember(r.Context(), actor, memberID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
