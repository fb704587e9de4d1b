// Package policy decides when a purchase order needs an approver.
package policy

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/poflow-backend/pkg/db/models"
	"github.com/angelmondragon/poflow-backend/pkg/enums"
)

// RequiresApproval reports whether amount exceeds the organization threshold,
// unless auto approval is enabled for admins and role ranks ADMIN or higher.
func RequiresApproval(org *models.Organization, amount decimal.Decimal, role enums.UserRole) bool {
	if org == nil {
		return true
	}
	if !amount.GreaterThan(org.ApprovalThreshold) {
		return false
	}
	if org.AutoApproveAdmin && role.Rank() >= enums.UserRoleAdmin.Rank() {
		return false
	}
	return true
}
