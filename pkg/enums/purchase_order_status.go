package enums

import "fmt"

// PurchaseOrderStatus tracks the lifecycle of a purchase order.
type PurchaseOrderStatus string

const (
	PurchaseOrderStatusDraft           PurchaseOrderStatus = "DRAFT"
	PurchaseOrderStatusPendingApproval PurchaseOrderStatus = "PENDING_APPROVAL"
	PurchaseOrderStatusApproved        PurchaseOrderStatus = "APPROVED"
	PurchaseOrderStatusSent            PurchaseOrderStatus = "SENT"
	PurchaseOrderStatusReceived        PurchaseOrderStatus = "RECEIVED"
	PurchaseOrderStatusInvoiced        PurchaseOrderStatus = "INVOICED"
	PurchaseOrderStatusCancelled       PurchaseOrderStatus = "CANCELLED"
)

var validPurchaseOrderStatuses = []PurchaseOrderStatus{
	PurchaseOrderStatusDraft,
	PurchaseOrderStatusPendingApproval,
	PurchaseOrderStatusApproved,
	PurchaseOrderStatusSent,
	PurchaseOrderStatusReceived,
	PurchaseOrderStatusInvoiced,
	PurchaseOrderStatusCancelled,
}

// String implements fmt.Stringer.
func (s PurchaseOrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PurchaseOrderStatus.
func (s PurchaseOrderStatus) IsValid() bool {
	for _, candidate := range validPurchaseOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s PurchaseOrderStatus) IsTerminal() bool {
	return s == PurchaseOrderStatusInvoiced || s == PurchaseOrderStatusCancelled
}

// AcceptsInvoice reports whether a supplier may be sent an invoice upload link.
func (s PurchaseOrderStatus) AcceptsInvoice() bool {
	return s == PurchaseOrderStatusSent || s == PurchaseOrderStatusReceived
}

// ParsePurchaseOrderStatus converts raw input into a PurchaseOrderStatus.
func ParsePurchaseOrderStatus(value string) (PurchaseOrderStatus, error) {
	for _, candidate := range validPurchaseOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid purchase order status %q", value)
}
