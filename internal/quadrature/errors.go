package quadrature

import "errors"

var (
	// ErrClosed is returned by PollDelta after Close.
	ErrClosed = errors.New("quadrature: worker closed")

	// ErrPinRead is returned when the pins could not be sampled repeatedly.
	ErrPinRead = errors.New("quadrature: pin read failed")

	// ErrInvalidPins is returned for negative or identical pin numbers.
	ErrInvalidPins = errors.New("quadrature: invalid pin pair")
)
