package organizations

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/poflow-backend/internal/notifications"
	"github.com/angelmondragon/poflow-backend/internal/users"
	"github.com/angelmondragon/poflow-backend/pkg/db"
	"github.com/angelmondragon/poflow-backend/pkg/db/models"
	"github.com/angelmondragon/poflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/poflow-backend/pkg/errors"
	"github.com/angelmondragon/poflow-backend/pkg/permissions"
	"github.com/angelmondragon/poflow-backend/pkg/postcommit"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service manages organization settings and membership.
type Service interface {
	Get(ctx context.Context, actor users.Actor) (*OrganizationDTO, error)
	UpdateSettings(ctx context.Context, actor users.Actor, input SettingsInput) (*OrganizationDTO, error)
	ListMembers(ctx context.Context, actor users.Actor) ([]users.UserDTO, error)
	InviteMember(ctx context.Context, actor users.Actor, input InviteInput) (*users.UserDTO, error)
	ChangeMemberRole(ctx context.Context, actor users.Actor, memberID uuid.UUID, role enums.UserRole) (*users.UserDTO, error)
	RemoveMember(ctx context.Context, actor users.Actor, memberID uuid.UUID) error
}

type service struct {
	repo     *Repository
	users    *users.Repository
	tx       txRunner
	notifier notifications.Notifier
	hooks    postcommit.Dispatcher
}

var maxTaxRate = decimal.NewFromInt(100)

// NewService wires organization dependencies.
func NewService(repo *Repository, userRepo *users.Repository, tx txRunner, notifier notifications.Notifier, hooks postcommit.Dispatcher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("organizations repository required")
	}
	if userRepo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if hooks == nil {
		return nil, fmt.Errorf("post-commit dispatcher required")
	}
	return &service{repo: repo, users: userRepo, tx: tx, notifier: notifier, hooks: hooks}, nil
}

func (s *service) Get(ctx context.Context, actor users.Actor) (*OrganizationDTO, error) {
	if err := actor.Require(permissions.POView); err != nil {
		return nil, err
	}
	org, err := s.load(ctx, s.repo, actor.OrganizationID)
	if err != nil {
		return nil, err
	}
	return FromModel(org), nil
}

func (s *service) UpdateSettings(ctx context.Context, actor users.Actor, input SettingsInput) (*OrganizationDTO, error) {
	if err := actor.Require(permissions.OrgManageSettings); err != nil {
		return nil, err
	}

	fields, invalid := settingsFields(input)
	if len(invalid) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid settings").WithDetails(invalid)
	}

	var out *models.Organization
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpdateSettings(ctx, actor.OrganizationID, fields); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update organization settings")
		}
		org, err := s.load(ctx, repo, actor.OrganizationID)
		out = org
		return err
	})
	if err != nil {
		return nil, err
	}
	return FromModel(out), nil
}

func (s *service) ListMembers(ctx context.Context, actor users.Actor) ([]users.UserDTO, error) {
	if err := actor.Require(permissions.POView); err != nil {
		return nil, err
	}
	rows, err := s.users.ListByOrganization(ctx, actor.OrganizationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list members")
	}
	return lo.Map(rows, func(u models.User, _ int) users.UserDTO {
		return *users.FromModel(&u)
	}), nil
}

func (s *service) InviteMember(ctx context.Context, actor users.Actor, input InviteInput) (*users.UserDTO, error) {
	if err := actor.Require(permissions.OrgManageMembers); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	name := strings.TrimSpace(input.Name)
	invalid := map[string]string{}
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		invalid["email"] = "invalid email"
	}
	if name == "" {
		invalid["name"] = "required"
	}
	if !input.Role.IsValid() {
		invalid["role"] = "invalid role"
	}
	if len(invalid) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid invitation").WithDetails(invalid)
	}
	if err := requireGrantable(actor, input.Role); err != nil {
		return nil, err
	}

	inviter := actor.UserID
	member, err := s.users.Create(ctx, users.CreateUserDTO{
		OrganizationID: actor.OrganizationID,
		Email:          email,
		Name:           name,
		Role:           input.Role,
		InvitedBy:      &inviter,
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "a user with this email already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create member")
	}

	s.hooks.Dispatch(ctx, notifications.Hook(s.notifier, notifications.Event{
		Type:           enums.NotificationMemberInvited,
		OrganizationID: actor.OrganizationID,
		RecipientID:    member.ID,
		Data: map[string]any{
			"email":      member.Email,
			"role":       member.Role,
			"invited_by": actor.Name,
		},
	}))
	return users.FromModel(member), nil
}

func (s *service) ChangeMemberRole(ctx context.Context, actor users.Actor, memberID uuid.UUID, role enums.UserRole) (*users.UserDTO, error) {
	if err := actor.Require(permissions.OrgManageMembers); err != nil {
		return nil, err
	}
	if !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	if err := requireGrantable(actor, role); err != nil {
		return nil, err
	}

	var out *models.User
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.users.WithTx(tx)
		member, err := findMember(ctx, repo, actor.OrganizationID, memberID)
		if err != nil {
			return err
		}
		if err := requireGrantable(actor, member.Role); err != nil {
			return err
		}
		if member.Role.IsApprover() && !role.IsApprover() {
			if err := guardLastApprover(ctx, s.repo.WithTx(tx), repo, actor.OrganizationID); err != nil {
				return err
			}
		}
		if err := repo.UpdateRole(ctx, member.ID, role); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update member role")
		}
		member.Role = role
		out = member
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users.FromModel(out), nil
}

func (s *service) RemoveMember(ctx context.Context, actor users.Actor, memberID uuid.UUID) error {
	if err := actor.Require(permissions.OrgManageMembers); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.users.WithTx(tx)
		member, err := findMember(ctx, repo, actor.OrganizationID, memberID)
		if err != nil {
			return err
		}
		if err := requireGrantable(actor, member.Role); err != nil {
			return err
		}
		if member.Role.IsApprover() {
			if err := guardLastApprover(ctx, s.repo.WithTx(tx), repo, actor.OrganizationID); err != nil {
				return err
			}
		}
		if err := repo.Deactivate(ctx, member.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove member")
		}
		return nil
	})
}

func (s *service) load(ctx context.Context, repo *Repository, id uuid.UUID) (*models.Organization, error) {
	org, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "organization not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load organization")
	}
	return org, nil
}

func settingsFields(input SettingsInput) (map[string]any, map[string]string) {
	fields := map[string]any{}
	invalid := map[string]string{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			invalid["name"] = "required"
		}
		fields["name"] = name
	}
	if input.ApprovalThreshold != nil {
		if input.ApprovalThreshold.IsNegative() {
			invalid["approval_threshold"] = "must not be negative"
		}
		fields["approval_threshold"] = input.ApprovalThreshold.Round(2)
	}
	if input.AutoApproveAdmin != nil {
		fields["auto_approve_admin"] = *input.AutoApproveAdmin
	}
	if input.DefaultTaxMode != nil {
		if !input.DefaultTaxMode.IsValid() {
			invalid["default_tax_mode"] = "must be NONE, EXCLUSIVE or INCLUSIVE"
		}
		fields["default_tax_mode"] = *input.DefaultTaxMode
	}
	if input.DefaultTaxRate != nil {
		if input.DefaultTaxRate.IsNegative() || input.DefaultTaxRate.GreaterThan(maxTaxRate) {
			invalid["default_tax_rate"] = "must be between 0 and 100"
		}
		fields["default_tax_rate"] = input.DefaultTaxRate.Round(2)
	}
	if input.Currency != nil {
		if !input.Currency.IsValid() {
			invalid["currency"] = "unsupported currency"
		}
		fields["currency"] = *input.Currency
	}
	return fields, invalid
}

// requireGrantable stops admins from managing SUPER_ADMIN members or roles.
func requireGrantable(actor users.Actor, role enums.UserRole) error {
	if role == enums.UserRoleSuperAdmin && actor.Role != enums.UserRoleSuperAdmin {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only a super admin can manage super admins")
	}
	return nil
}

func findMember(ctx context.Context, repo *users.Repository, orgID, memberID uuid.UUID) (*models.User, error) {
	member, err := repo.FindInOrganization(ctx, orgID, memberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member")
	}
	return member, nil
}

// guardLastApprover serializes approver removals per organization through the
// organization row lock, then refuses the change when it would leave none.
func guardLastApprover(ctx context.Context, orgs *Repository, members *users.Repository, orgID uuid.UUID) error {
	if _, err := orgs.LockByID(ctx, orgID); err != nil {
		return db.LookupError(err, "organization not found")
	}
	count, err := members.CountApprovers(ctx, orgID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count approvers")
	}
	if count <= 1 {
		return pkgerrors.New(pkgerrors.CodeConflict, "organization must keep at least one admin")
	}
	return nil
}
