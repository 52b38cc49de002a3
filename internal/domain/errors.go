package domain

import "errors"

// Client-triggerable errors. Protocol adapters translate these into their
// own wire codes; none of them closes the session.
var (
	ErrGroupNameTooLong         = errors.New("group name too long")
	ErrGroupDoesNotExist        = errors.New("group does not exist")
	ErrCannotRemoveSpecialGroup = errors.New("cannot remove special group")
	ErrContactDoesNotExist      = errors.New("contact does not exist")
	ErrContactAlreadyOnList     = errors.New("contact already on list")
	ErrContactNotOnList         = errors.New("contact not on list")
	ErrUserDoesNotExist         = errors.New("user does not exist")
	ErrContactNotOnline         = errors.New("contact not online")
)

// ErrServerError denotes an internal invariant violation. Adapters should
// treat it as a bug signal, not something to retry.
var ErrServerError = errors.New("internal server error")
