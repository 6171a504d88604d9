package lifecycle

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Notify targets accepted by NewNotifier.
const (
	NotifyStdout = "stdout"
	NotifyStderr = "stderr"
	NotifyNone   = "none"
)

// WriterNotifier writes each event as one JSON line, e.g.
//
//	{"event":"broker-connected"}
//	{"event":"fatal","error":"lifecycle: connect deadline exceeded: ..."}
//
// A supervising process reads these from the core's stdout.
type WriterNotifier struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriterNotifier creates a notifier writing to w.
func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{enc: json.NewEncoder(w)}
}

// Notify writes ev as a single line.
func (n *WriterNotifier) Notify(ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.enc.Encode(ev); err != nil {
		return fmt.Errorf("writing %s event: %w", ev.Kind, err)
	}
	return nil
}

// NewNotifier picks the notifier for a configured target.
//
// Parameters:
//   - target: "stdout", "stderr" or "none"
//   - stdout, stderr: The process streams
//
// Returns:
//   - Notifier: nil for "none"
//   - error: ErrUnknownTarget for anything else
func NewNotifier(target string, stdout, stderr io.Writer) (Notifier, error) {
	switch strings.ToLower(target) {
	case NotifyStdout:
		return NewWriterNotifier(stdout), nil
	case NotifyStderr:
		return NewWriterNotifier(stderr), nil
	case NotifyNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}
}
