package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// EventKind identifies a lifecycle notification.
type EventKind string

const (
	EventBrokerConnected EventKind = "broker-connected"
	EventListenerReady   EventKind = "listener-ready"
	EventFatal           EventKind = "fatal"
)

// maxEvents is the number of distinct one-shot events a Signaler can emit.
const maxEvents = 3

// Event is a single lifecycle notification.
type Event struct {
	Kind  EventKind `json:"event"`
	Error string    `json:"error,omitempty"`
	At    time.Time `json:"-"`
}

// Notifier forwards events to a supervising collaborator outside the process.
type Notifier interface {
	Notify(ev Event) error
}

// Logger defines the logging interface used by the Signaler.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Signaler emits the process readiness events exactly once each.
//
// Once Fatal has fired no further events are emitted, so a broker that
// connects after the deadline never produces a broker-connected signal.
//
// All methods are safe for concurrent use.
type Signaler struct {
	mu        sync.Mutex
	fired     map[EventKind]bool
	connected chan struct{}

	events    chan Event
	notifiers []Notifier
	logger    Logger
}

// NewSignaler creates a Signaler that forwards events to the given notifiers.
// Nil notifiers are ignored.
func NewSignaler(logger Logger, notifiers ...Notifier) *Signaler {
	if logger == nil {
		logger = noopLogger{}
	}
	s := &Signaler{
		fired:     make(map[EventKind]bool, maxEvents),
		connected: make(chan struct{}),
		events:    make(chan Event, maxEvents),
		logger:    logger,
	}
	for _, n := range notifiers {
		if n != nil {
			s.notifiers = append(s.notifiers, n)
		}
	}
	return s
}

// Events returns the in-process event stream. It carries at most one event
// of each kind and never blocks the emitter.
func (s *Signaler) Events() <-chan Event {
	return s.events
}

// Connected is closed once BrokerConnected has fired.
func (s *Signaler) Connected() <-chan struct{} {
	return s.connected
}

// BrokerConnected reports that the broker subscription is active.
func (s *Signaler) BrokerConnected() {
	s.emit(Event{Kind: EventBrokerConnected})
}

// ListenerReady reports that the HTTP/WebSocket listener accepts connections.
func (s *Signaler) ListenerReady() {
	s.emit(Event{Kind: EventListenerReady})
}

// Fatal reports an unrecoverable error. The caller is expected to exit.
func (s *Signaler) Fatal(err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	s.emit(Event{Kind: EventFatal, Error: msg})
}

// WatchConnectDeadline waits for BrokerConnected.
//
// Parameters:
//   - ctx: Cancels the watch without error
//   - deadline: How long the broker has to connect; 0 or less disables the watch
//
// Returns:
//   - error: ErrConnectDeadline (after emitting Fatal) if the deadline passed first
func (s *Signaler) WatchConnectDeadline(ctx context.Context, deadline time.Duration) error {
	if deadline <= 0 {
		return nil
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case <-s.connected:
		return nil
	case <-ctx.Done():
		return nil
	case <-timer.C:
	}

	err := fmt.Errorf("%w: no broker connection within %v", ErrConnectDeadline, deadline)
	if !s.emit(Event{Kind: EventFatal, Error: err.Error()}) {
		// Fatal already fired, or the broker connected while the timer fired.
		select {
		case <-s.connected:
			return nil
		default:
		}
	}
	return err
}

// emit records ev and forwards it. It reports whether ev was emitted.
func (s *Signaler) emit(ev Event) bool {
	s.mu.Lock()
	if s.fired[ev.Kind] || s.fired[EventFatal] {
		s.mu.Unlock()
		return false
	}
	s.fired[ev.Kind] = true
	if ev.Kind == EventBrokerConnected {
		close(s.connected)
	}
	ev.At = time.Now()
	s.events <- ev
	s.mu.Unlock()

	switch ev.Kind {
	case EventFatal:
		s.logger.Error("lifecycle: fatal", "error", ev.Error)
	default:
		s.logger.Info("lifecycle: "+string(ev.Kind))
	}

	for _, n := range s.notifiers {
		if err := n.Notify(ev); err != nil {
			s.logger.Warn("lifecycle notification failed", "event", ev.Kind, "error", err)
		}
	}
	return true
}
