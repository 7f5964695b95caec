// Package errors holds the failure taxonomy shared by the native modules.
// Every failure aborts the whole host call; none are retried internally.
package errors

import stderrors "errors"

var (
	// Authorization
	ErrUnauthorised = stderrors.New("access control unauthorised account")
	ErrNotCreator   = stderrors.New("caller must be the contract creator")

	// Lifecycle
	ErrAlreadyInitialised = stderrors.New("contract already initialised")
	ErrNotInitialised     = stderrors.New("uninitialised contract")

	// Existence
	ErrUnknownBucket      = stderrors.New("unknown bucket")
	ErrBucketExists       = stderrors.New("bucket already exists")
	ErrNoScheduledUpgrade = stderrors.New("upgrade not scheduled")

	// Capacity
	ErrInsufficientCapacity = stderrors.New("insufficient capacity to consume")
	ErrSetFull              = stderrors.New("set capacity reached")

	// Timing
	ErrScheduleTooSoon = stderrors.New("must schedule at least min upgrade delay time in future")
	ErrUpgradeNotDue   = stderrors.New("schedule complete ts not met")

	// Integrity
	ErrCodeHashMismatch = stderrors.New("invalid program hash")

	// Safety rails
	ErrLastAdmin       = stderrors.New("access control: cannot remove last default admin")
	ErrAdminRoleUnheld = stderrors.New("access control: admin role has no holders")
	ErrModulePaused    = stderrors.New("module paused")
)

// Category labels used when reporting failures.
const (
	CategoryAuthorization = "authorization"
	CategoryLifecycle     = "lifecycle"
	CategoryExistence     = "existence"
	CategoryCapacity      = "capacity"
	CategoryTiming        = "timing"
	CategoryIntegrity     = "integrity"
	CategorySafety        = "safety"
	CategoryInternal      = "internal"
)

var categories = []struct {
	err      error
	category string
}{
	{ErrUnauthorised, CategoryAuthorization},
	{ErrNotCreator, CategoryAuthorization},
	{ErrAlreadyInitialised, CategoryLifecycle},
	{ErrNotInitialised, CategoryLifecycle},
	{ErrUnknownBucket, CategoryExistence},
	{ErrBucketExists, CategoryExistence},
	{ErrNoScheduledUpgrade, CategoryExistence},
	{ErrInsufficientCapacity, CategoryCapacity},
	{ErrSetFull, CategoryCapacity},
	{ErrScheduleTooSoon, CategoryTiming},
	{ErrUpgradeNotDue, CategoryTiming},
	{ErrCodeHashMismatch, CategoryIntegrity},
	{ErrLastAdmin, CategorySafety},
	{ErrAdminRoleUnheld, CategorySafety},
	{ErrModulePaused, CategorySafety},
}

// Category classifies err. Anything outside the taxonomy, such as a storage
// failure, is internal. A nil error has no category.
func Category(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range categories {
		if stderrors.Is(err, c.err) {
			return c.category
		}
	}
	return CategoryInternal
}
