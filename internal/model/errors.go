package model

import "errors"

// Sentinel errors shared by the store, service and API layers.
// Use errors.Is() to check these.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrItemUnavailable   = errors.New("item is not available")
	ErrNotOwner          = errors.New("item is not owned by the user")
	ErrSelfSwap          = errors.New("cannot request a swap for your own item")
	ErrNoOfferedItems    = errors.New("at least one offered item is required")
	ErrEmailTaken        = errors.New("email already registered")
	ErrBadCredentials    = errors.New("invalid credentials")
)
