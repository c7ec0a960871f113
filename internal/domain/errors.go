package domain

import (
	"errors"
	"fmt"
)

// Authorization failures. Every stage fails closed: a stage either fully
// allows and enriches the request context, or terminates the request.
var (
	ErrAuthRequired       = errors.New("authentication required")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrNoActiveBusiness   = errors.New("no active business for this user")
	ErrNotAMember         = errors.New("not a member of this business")
	ErrMembershipDisabled = errors.New("access to this business has been disabled")
	ErrBusinessInactive   = errors.New("this business is inactive")
	ErrSubscriptionOff    = errors.New("subscription is inactive or expired")
	ErrSuperAdminOnly     = errors.New("super admin privileges required")
	ErrAdminOnly          = errors.New("only admin allowed")
)

// Storage and lifecycle failures
var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicate          = errors.New("already exists")
	ErrLastAdmin          = errors.New("cannot remove a membership holding the Admin role")
	ErrProvisioningFailed = errors.New("business provisioning failed")
)

// PermissionDeniedError carries the requested module/action so the caller can
// see exactly which capability was missing without leaking tenant data.
type PermissionDeniedError struct {
	Module string
	Action string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied (%s:%s)", e.Module, e.Action)
}
