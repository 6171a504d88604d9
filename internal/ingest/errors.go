package ingest

import "errors"

// Domain errors for the ingest package.
//
// Payload errors are never fatal: the message is logged and discarded.
var (
	// ErrMalformedPayload is returned when a message body is not valid JSON.
	ErrMalformedPayload = errors.New("ingest: malformed payload")

	// ErrNoReading is returned when a payload has no usable reading container.
	ErrNoReading = errors.New("ingest: no reading in payload")

	// ErrMissingDeviceID is returned when the first reading has no Device field.
	ErrMissingDeviceID = errors.New("ingest: reading has no device id")

	// ErrStopped is returned when a message arrives after the ingestor stopped.
	ErrStopped = errors.New("ingest: stopped")
)
