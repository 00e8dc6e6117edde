package orders

import "errors"

var (
	// ErrIllegalTransition means the current status does not permit the requested move.
	ErrIllegalTransition = errors.New("illegal order transition")
	// ErrAlreadyApplied means the order already sits in the requested status.
	ErrAlreadyApplied = errors.New("order transition already applied")
	ErrNotFound       = errors.New("order not found")
)
