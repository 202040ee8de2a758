package domain

import "errors"

// Sentinel errors shared by the stores and the order service. Decode
// failures are not here; they carry their own kind in the orders package.
var (
	ErrNotFound      = errors.New("order not found")
	ErrAlreadyExists = errors.New("order already submitted")
	ErrRateLimited   = errors.New("submission rate limit exceeded")
	ErrLockHeld      = errors.New("order submission in flight")
	ErrNotOpen       = errors.New("order is not open")
)
