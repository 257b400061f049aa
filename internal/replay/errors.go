package replay

import "errors"

var (
	// ErrInvalidRate is returned for a rate that is not finite and positive.
	ErrInvalidRate = errors.New("replay rate must be finite and greater than zero")

	// ErrInvalidRange is returned when From is after To.
	ErrInvalidRange = errors.New("replay range start is after its end")
)
