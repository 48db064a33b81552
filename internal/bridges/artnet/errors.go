package artnet

import "errors"

// Domain errors for the Art-Net bridge.
var (
	// ErrInvalidChannels is returned for a malformed channel spec.
	ErrInvalidChannels = errors.New("artnet: invalid channel spec")

	// ErrInvalidAddress is returned when net, subnet or universe is out of range.
	ErrInvalidAddress = errors.New("artnet: invalid port address")

	// ErrInvalidLength is returned when the DMX payload size is not 2-512.
	ErrInvalidLength = errors.New("artnet: invalid data length")
)
