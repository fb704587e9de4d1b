package enums

import "fmt"

// ApprovalStatus is the state of an approval request.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusDenied   ApprovalStatus = "DENIED"
)

var validApprovalStatuses = []ApprovalStatus{
	ApprovalStatusPending,
	ApprovalStatusApproved,
	ApprovalStatusDenied,
}

// String implements fmt.Stringer.
func (s ApprovalStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ApprovalStatus.
func (s ApprovalStatus) IsValid() bool {
	for _, candidate := range validApprovalStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the request has already been decided.
func (s ApprovalStatus) IsTerminal() bool {
	return s == ApprovalStatusApproved || s == ApprovalStatusDenied
}

// ParseApprovalStatus converts raw input into an ApprovalStatus.
func ParseApprovalStatus(value string) (ApprovalStatus, error) {
	for _, candidate := range validApprovalStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid approval status %q", value)
}

// ApprovalActionType labels a row in the approval audit trail.
type ApprovalActionType string

const (
	ApprovalActionSubmitted ApprovalActionType = "SUBMITTED"
	ApprovalActionApproved  ApprovalActionType = "APPROVED"
	ApprovalActionDenied    ApprovalActionType = "DENIED"
)

var validApprovalActionTypes = []ApprovalActionType{
	ApprovalActionSubmitted,
	ApprovalActionApproved,
	ApprovalActionDenied,
}

// String implements fmt.Stringer.
func (a ApprovalActionType) String() string {
	return string(a)
}

// IsValid reports whether the value is a known ApprovalActionType.
func (a ApprovalActionType) IsValid() bool {
	for _, candidate := range validApprovalActionTypes {
		if candidate == a {
			return true
		}
	}
	return false
}
