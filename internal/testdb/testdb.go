// Package testdb opens in-memory sqlite databases carrying the service schema
// for repository and service tests.
package testdb

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/poflow-backend/pkg/db/models"
	"github.com/angelmondragon/poflow-backend/pkg/enums"
)

var seq atomic.Int64

// Decimal columns are TEXT so values round-trip without float affinity.
var schema = []string{`
CREATE TABLE organizations (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  approval_threshold TEXT NOT NULL,
  auto_approve_admin INTEGER NOT NULL DEFAULT 0,
  default_tax_mode TEXT NOT NULL,
  default_tax_rate TEXT NOT NULL,
  currency TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE users (
  id TEXT PRIMARY KEY,
  organization_id TEXT NOT NULL,
  email TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  role TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  invited_by TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE counters (
  id TEXT PRIMARY KEY,
  organization_id TEXT NOT NULL,
  name TEXT NOT NULL,
  value INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME,
  CONSTRAINT counters_org_name_key UNIQUE (organization_id, name)
);`, `
CREATE TABLE purchase_orders (
  id TEXT PRIMARY KEY,
  organization_id TEXT NOT NULL,
  created_by TEXT NOT NULL,
  number TEXT NOT NULL,
  status TEXT NOT NULL,
  supplier_name TEXT NOT NULL,
  supplier_email TEXT,
  currency TEXT NOT NULL,
  notes TEXT,
  tax_mode TEXT NOT NULL,
  tax_rate TEXT NOT NULL,
  subtotal_amount TEXT NOT NULL,
  tax_amount TEXT NOT NULL,
  total_amount TEXT NOT NULL,
  invoice_upload_token TEXT UNIQUE,
  invoice_upload_token_expires_at DATETIME,
  invoice_url TEXT,
  invoice_received_at DATETIME,
  sent_at DATETIME,
  received_at DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  CONSTRAINT purchase_orders_org_number_key UNIQUE (organization_id, number)
);`, `
CREATE TABLE line_items (
  id TEXT PRIMARY KEY,
  purchase_order_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  description TEXT NOT NULL,
  quantity TEXT NOT NULL,
  unit_price TEXT NOT NULL,
  total_price TEXT NOT NULL,
  created_at DATETIME
);`, `
CREATE TABLE approval_requests (
  id TEXT PRIMARY KEY,
  organization_id TEXT NOT NULL,
  purchase_order_id TEXT NOT NULL,
  requester_id TEXT NOT NULL,
  approver_id TEXT NOT NULL,
  status TEXT NOT NULL,
  amount TEXT NOT NULL,
  reason TEXT,
  decided_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  deleted_at DATETIME
);`, `
CREATE UNIQUE INDEX approval_requests_active_po_key ON approval_requests (purchase_order_id) WHERE deleted_at IS NULL;`, `
CREATE TABLE approval_actions (
  id TEXT PRIMARY KEY,
  approval_request_id TEXT NOT NULL,
  purchase_order_id TEXT NOT NULL,
  actor_id TEXT NOT NULL,
  action TEXT NOT NULL,
  reason TEXT,
  created_at DATETIME
);`,
}

// Open returns an isolated database for the calling test. The pool is capped
// at one connection so transactions serialize the way row locks would.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))

	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

// SeedOrganization inserts an organization with a 1000.00 threshold and 20% exclusive tax.
func SeedOrganization(t *testing.T, conn *gorm.DB, mutate ...func(*models.Organization)) *models.Organization {
	t.Helper()
	org := &models.Organization{
		ID:                uuid.New(),
		Name:              "Acme Ltd",
		ApprovalThreshold: decimal.NewFromInt(1000),
		DefaultTaxMode:    enums.TaxModeExclusive,
		DefaultTaxRate:    decimal.NewFromInt(20),
		Currency:          enums.CurrencyGBP,
	}
	for _, fn := range mutate {
		fn(org)
	}
	require.NoError(t, conn.Create(org).Error)
	return org
}

// SeedUser inserts an active user with role in org.
func SeedUser(t *testing.T, conn *gorm.DB, orgID uuid.UUID, role enums.UserRole) *models.User {
	t.Helper()
	id := uuid.New()
	user := &models.User{
		ID:             id,
		OrganizationID: orgID,
		Email:          fmt.Sprintf("%s@example.com", id.String()[:8]),
		Name:           strings.ToLower(role.String()) + " user",
		Role:           role,
		IsActive:       true,
	}
	require.NoError(t, conn.Create(user).Error)
	return user
}

// SeedPurchaseOrder inserts an order in status with a 100.00 + 20% total.
func SeedPurchaseOrder(t *testing.T, conn *gorm.DB, orgID, createdBy uuid.UUID, status enums.PurchaseOrderStatus) *models.PurchaseOrder {
	t.Helper()
	id := uuid.New()
	po := &models.PurchaseOrder{
		ID:             id,
		OrganizationID: orgID,
		CreatedBy:      createdBy,
		Number:         "PO-" + strings.ToUpper(id.String()[:8]),
		Status:         status,
		SupplierName:   "Paper Supplies Ltd",
		Currency:       enums.CurrencyGBP,
		TaxMode:        enums.TaxModeExclusive,
		TaxRate:        decimal.NewFromInt(20),
		SubtotalAmount: decimal.NewFromInt(100),
		TaxAmount:      decimal.NewFromInt(20),
		TotalAmount:    decimal.NewFromInt(120),
	}
	require.NoError(t, conn.Omit("LineItems").Create(po).Error)
	return po
}
