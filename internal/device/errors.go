package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrInvalidReading) {
//	    // reading carried no usable device id
//	}
var (
	// ErrInvalidReading is returned when a reading cannot be attributed to a device.
	ErrInvalidReading = errors.New("device: invalid reading")
)
