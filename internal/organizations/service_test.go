package organizations

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/poflow-backend/internal/notifications"
	"github.com/angelmondragon/poflow-backend/internal/testdb"
	"github.com/angelmondragon/poflow-backend/internal/users"
	"github.com/angelmondragon/poflow-backend/pkg/db"
	"github.com/angelmondragon/poflow-backend/pkg/db/models"
	"github.com/angelmondragon/poflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/poflow-backend/pkg/errors"
	"github.com/angelmondragon/poflow-backend/pkg/postcommit"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingNotifier) Notify(ctx context.Context, event notifications.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

type fixture struct {
	svc      Service
	org      *models.Organization
	notifier *recordingNotifier
	super    users.Actor
	admin    users.Actor
	manager  users.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := testdb.Open(t)
	notifier := &recordingNotifier{}
	runner := postcommit.NewRunner(nil, nil, postcommit.Options{Sync: true})

	svc, err := NewService(NewRepository(conn), users.NewRepository(conn), db.FromConn(conn), notifier, runner)
	require.NoError(t, err)

	org := testdb.SeedOrganization(t, conn)
	return &fixture{
		svc:      svc,
		org:      org,
		notifier: notifier,
		super:    users.ActorFromUser(testdb.SeedUser(t, conn, org.ID, enums.UserRoleSuperAdmin)),
		admin:    users.ActorFromUser(testdb.SeedUser(t, conn, org.ID, enums.UserRoleAdmin)),
		manager:  users.ActorFromUser(testdb.SeedUser(t, conn, org.ID, enums.UserRoleManager)),
	}
}

func TestUpdateSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	threshold := decimal.RequireFromString("2500.555")
	mode := enums.TaxModeInclusive
	auto := true
	out, err := f.svc.UpdateSettings(ctx, f.admin, SettingsInput{
		ApprovalThreshold: &threshold,
		DefaultTaxMode:    &mode,
		AutoApproveAdmin:  &auto,
	})
	require.NoError(t, err)
	assert.Equal(t, "2500.56", out.ApprovalThreshold)
	assert.Equal(t, enums.TaxModeInclusive, out.DefaultTaxMode)
	assert.True(t, out.AutoApproveAdmin)
	assert.Equal(t, "20.00", out.DefaultTaxRate)

	got, err := f.svc.Get(ctx, f.manager)
	require.NoError(t, err)
	assert.Equal(t, "2500.56", got.ApprovalThreshold)
}

func TestUpdateSettingsValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rate := decimal.NewFromInt(101)
	negative := decimal.NewFromInt(-1)
	_, err := f.svc.UpdateSettings(ctx, f.admin, SettingsInput{DefaultTaxRate: &rate, ApprovalThreshold: &negative})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Len(t, typed.Details(), 2)

	_, err = f.svc.UpdateSettings(ctx, f.manager, SettingsInput{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestInviteMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	member, err := f.svc.InviteMember(ctx, f.admin, InviteInput{Email: " New.Buyer@Example.com ", Name: "New Buyer", Role: enums.UserRoleManager})
	require.NoError(t, err)
	assert.Equal(t, "new.buyer@example.com", member.Email)
	assert.Equal(t, f.org.ID, member.OrganizationID)
	require.NotNil(t, member.InvitedBy)
	assert.Equal(t, f.admin.UserID, *member.InvitedBy)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, enums.NotificationMemberInvited, f.notifier.events[0].Type)
	assert.Equal(t, member.ID, f.notifier.events[0].RecipientID)

	_, err = f.svc.InviteMember(ctx, f.admin, InviteInput{Email: "new.buyer@example.com", Name: "Dup", Role: enums.UserRoleViewer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = f.svc.InviteMember(ctx, f.admin, InviteInput{Email: "boss@example.com", Name: "Boss", Role: enums.UserRoleSuperAdmin})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.InviteMember(ctx, f.super, InviteInput{Email: "boss@example.com", Name: "Boss", Role: enums.UserRoleSuperAdmin})
	require.NoError(t, err)

	_, err = f.svc.InviteMember(ctx, f.admin, InviteInput{Email: "nope", Name: "", Role: "OWNER"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	members, err := f.svc.ListMembers(ctx, f.manager)
	require.NoError(t, err)
	assert.Len(t, members, 5)
}

func TestLastAdminGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ChangeMemberRole(ctx, f.super, f.admin.UserID, enums.UserRoleManager)
	require.NoError(t, err)

	_, err = f.svc.ChangeMemberRole(ctx, f.super, f.super.UserID, enums.UserRoleAdmin)
	require.NoError(t, err)

	self := f.super
	self.Role = enums.UserRoleAdmin
	_, err = f.svc.ChangeMemberRole(ctx, self, self.UserID, enums.UserRoleViewer)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	err = f.svc.RemoveMember(ctx, self, self.UserID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	require.NoError(t, f.svc.RemoveMember(ctx, self, f.manager.UserID))
	err = f.svc.RemoveMember(ctx, self, f.manager.UserID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestAdminCannotDemoteSuperAdmin(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ChangeMemberRole(context.Background(), f.admin, f.super.UserID, enums.UserRoleViewer)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}
