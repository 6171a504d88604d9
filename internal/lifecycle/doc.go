// Package lifecycle reports process readiness to whoever launched the core.
//
// Three one-shot events exist:
//
//   - broker-connected: the bridge topic subscription is active
//   - listener-ready: the HTTP/WebSocket listener accepts connections
//   - fatal: the core cannot do its job and is about to exit non-zero
//
// In-process supervisors read Signaler.Events(). External supervisors get
// the same events as JSON lines through a WriterNotifier, normally on stdout
// (logs go to stderr so the two never mix).
//
// WatchConnectDeadline turns a missing broker-connected event into the
// fatal event and ErrConnectDeadline.
package lifecycle
