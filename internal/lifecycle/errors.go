package lifecycle

import "errors"

var (
	// ErrConnectDeadline is returned when the broker did not connect in time.
	// It is the only fatal runtime condition of the core.
	ErrConnectDeadline = errors.New("lifecycle: connect deadline exceeded")

	// ErrUnknownTarget is returned for an unsupported notify target.
	ErrUnknownTarget = errors.New("lifecycle: unknown notify target")
)
