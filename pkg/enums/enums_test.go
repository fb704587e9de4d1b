package enums

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRoleOrdering(t *testing.T) {
	assert.Less(t, UserRoleViewer.Rank(), UserRoleManager.Rank())
	assert.Less(t, UserRoleManager.Rank(), UserRoleAdmin.Rank())
	assert.Less(t, UserRoleAdmin.Rank(), UserRoleSuperAdmin.Rank())
	assert.Equal(t, -1, UserRole("OWNER").Rank())
	assert.False(t, UserRole("OWNER").IsValid())
}

func TestUserRoleIsApprover(t *testing.T) {
	assert.False(t, UserRoleViewer.IsApprover())
	assert.False(t, UserRoleManager.IsApprover())
	assert.True(t, UserRoleAdmin.IsApprover())
	assert.True(t, UserRoleSuperAdmin.IsApprover())
}

func TestParseEnums(t *testing.T) {
	role, err := ParseUserRole("ADMIN")
	require.NoError(t, err)
	assert.Equal(t, UserRoleAdmin, role)
	_, err = ParseUserRole("admin")
	assert.Error(t, err)

	status, err := ParsePurchaseOrderStatus("PENDING_APPROVAL")
	require.NoError(t, err)
	assert.Equal(t, PurchaseOrderStatusPendingApproval, status)
	_, err = ParsePurchaseOrderStatus("SHIPPED")
	assert.Error(t, err)

	mode, err := ParseTaxMode("INCLUSIVE")
	require.NoError(t, err)
	assert.Equal(t, TaxModeInclusive, mode)
	_, err = ParseTaxMode("VAT")
	assert.Error(t, err)

	approval, err := ParseApprovalStatus("DENIED")
	require.NoError(t, err)
	assert.True(t, approval.IsTerminal())
	assert.False(t, ApprovalStatusPending.IsTerminal())
}

func TestPurchaseOrderStatusHelpers(t *testing.T) {
	assert.True(t, PurchaseOrderStatusSent.AcceptsInvoice())
	assert.True(t, PurchaseOrderStatusReceived.AcceptsInvoice())
	assert.False(t, PurchaseOrderStatusDraft.AcceptsInvoice())
	assert.True(t, PurchaseOrderStatusInvoiced.IsTerminal())
	assert.True(t, PurchaseOrderStatusCancelled.IsTerminal())
	assert.False(t, PurchaseOrderStatusSent.IsTerminal())
}

func TestCurrencyParsingAndFormatting(t *testing.T) {
	c, err := ParseCurrency(" eur ")
	require.NoError(t, err)
	assert.Equal(t, CurrencyEUR, c)
	_, err = ParseCurrency("JPY")
	assert.Error(t, err)

	assert.Equal(t, "£1200.50", CurrencyGBP.FormatAmount(decimal.RequireFromString("1200.5")))
	assert.Equal(t, "JPY", Currency("JPY").Symbol())
}
