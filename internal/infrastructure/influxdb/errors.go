package influxdb

import "errors"

// Errors returned by Connect and HealthCheck. Write failures are never
// returned; they arrive asynchronously through the SetOnError callback.
var (
	// ErrNotConnected is returned by HealthCheck once the client is closed.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed wraps the startup ping failure, so a misconfigured
	// export stops the relay before it subscribes.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
