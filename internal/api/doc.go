// Package api serves live Zigbee device state over HTTP and WebSocket.
//
// This package provides:
//   - REST endpoints for device records, per-device history and broker status
//   - A broadcast hub that pushes a snapshot to new observers and a delta
//     for every accepted reading
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Push Protocol
//
// A WebSocket observer (connecting to /ws, or to / with an Upgrade header)
// receives, in order:
//
//	{"type":"snapshot","devices":{...},"history":{...}}
//	{"type":"metadata","brokerURL":"mqtt://...","topic":"tele/tasmota/SENSOR","version":"..."}
//	{"type":"update","devices":{...},"latestMessage":{"topic":...,"reading":{...},"rawPayload":{...}}}  (repeated)
//
// Observers that cannot keep up, or whose connection broke, are dropped
// without affecting the others.
//
// # Pull Endpoints
//
//	GET /api/devices                 all records, first-seen order
//	GET /api/devices/{id}            one record (404 if unknown)
//	GET /api/devices/{id}/history    newest first ([] if unknown)
//	GET /api/status                  {brokerURL, topic, connected}
//	GET /api/health                  "ok", or 503 "degraded" with failing checks
//	GET /api/metrics
package api
