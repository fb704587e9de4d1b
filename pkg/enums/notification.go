package enums

import "fmt"

// NotificationType identifies the event carried by a published notification.
type NotificationType string

const (
	NotificationApprovalRequested NotificationType = "approval_requested"
	NotificationApprovalApproved  NotificationType = "approval_approved"
	NotificationApprovalDenied    NotificationType = "approval_denied"
	NotificationInvoiceReceived   NotificationType = "invoice_received"
	NotificationMemberInvited     NotificationType = "member_invited"
)

var validNotificationTypes = []NotificationType{
	NotificationApprovalRequested,
	NotificationApprovalApproved,
	NotificationApprovalDenied,
	NotificationInvoiceReceived,
	NotificationMemberInvited,
}

// String implements fmt.Stringer.
func (n NotificationType) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationType.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
