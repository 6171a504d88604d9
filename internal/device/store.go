package device

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Store.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store owns the current state of every device and its reading history.
//
// A device present in the record map is always present in the history map,
// and both are updated under the same lock, so readers never observe a
// record without its matching history entry.
//
// All public methods are thread-safe. Returned values are copies.
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record
	history map[string][]HistoryEntry // oldest first; reversed on read
	order   []string                  // device ids in first-seen order

	// maxHistory caps entries per device; 0 keeps everything.
	maxHistory int

	accepted uint64
	logger   Logger
}

// NewStore creates an empty store.
//
// Parameters:
//   - maxHistory: Entries kept per device, oldest dropped first; 0 means unbounded
//
// Returns:
//   - *Store: Ready to use
func NewStore(maxHistory int) *Store {
	if maxHistory < 0 {
		maxHistory = 0
	}
	return &Store{
		records:    make(map[string]*Record),
		history:    make(map[string][]HistoryEntry),
		maxHistory: maxHistory,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

// Apply records an accepted reading.
// See Upsert for the merge rules.
func (s *Store) Apply(r Reading) (Record, error) {
	return s.Upsert(r.DeviceID, r.Attributes, r.ReceivedAt)
}

// Upsert merges attrs into the record for id and appends a history entry.
//
// Merge rules:
//   - A new device starts with a copy of attrs and MessageCount 1
//   - Existing attributes are overwritten by the incoming values
//   - BatteryPercentage is only overwritten when attrs carries a non-null value
//   - MessageCount increments by one
//
// Parameters:
//   - id: Device identifier (must not be empty)
//   - attrs: The reading's attributes; copied, never retained
//   - at: Time the reading was accepted
//
// Returns:
//   - Record: Copy of the record after the merge
//   - error: ErrInvalidReading if id is empty
func (s *Store) Upsert(id string, attrs Attributes, at time.Time) (Record, error) {
	if id == "" {
		return Record{}, fmt.Errorf("%w: empty device id", ErrInvalidReading)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		rec = &Record{ID: id, Attributes: make(Attributes, len(attrs))}
		s.records[id] = rec
		s.order = append(s.order, id)
		s.logger.Info("device discovered", "device", id)
	}

	for k, v := range attrs {
		if k == AttrBattery && v == nil {
			continue
		}
		rec.Attributes[k] = deepCopyValue(v)
	}
	rec.MessageCount++
	rec.Timestamp = at
	s.accepted++

	entry := HistoryEntry{
		Timestamp: at,
		Data: Reading{
			DeviceID:   id,
			Attributes: attrs.DeepCopy(),
			ReceivedAt: at,
		},
	}
	h := append(s.history[id], entry)
	if s.maxHistory > 0 && len(h) > s.maxHistory {
		h = slices.Delete(h, 0, len(h)-s.maxHistory)
	}
	s.history[id] = h

	return rec.DeepCopy(), nil
}

// Get returns the record for id.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return rec.DeepCopy(), true
}

// Snapshot returns a copy of every record keyed by device id.
func (s *Store) Snapshot() map[string]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Record, len(s.records))
	for id, rec := range s.records {
		out[id] = rec.DeepCopy()
	}
	return out
}

// List returns a copy of every record in first-seen order.
// The result is never nil.
func (s *Store) List() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].DeepCopy())
	}
	return out
}

// History returns the entries for id, newest first.
// Unknown ids yield an empty, non-nil slice.
func (s *Store) History(id string) []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return newestFirst(s.history[id])
}

// AllHistory returns the history of every device, newest first per device.
func (s *Store) AllHistory() map[string][]HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]HistoryEntry, len(s.history))
	for id, h := range s.history {
		out[id] = newestFirst(h)
	}
	return out
}

// View returns the records and full history from a single consistent state.
func (s *Store) View() (map[string]Record, map[string][]HistoryEntry) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make(map[string]Record, len(s.records))
	for id, rec := range s.records {
		records[id] = rec.DeepCopy()
	}
	history := make(map[string][]HistoryEntry, len(s.history))
	for id, h := range s.history {
		history[id] = newestFirst(h)
	}
	return records, history
}

// Count returns the number of known devices.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Stats returns device, message and history totals.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Devices: len(s.records), Messages: s.accepted}
	for _, h := range s.history {
		st.HistoryEntries += len(h)
	}
	return st
}

// newestFirst copies h in reverse order.
func newestFirst(h []HistoryEntry) []HistoryEntry {
	out := make([]HistoryEntry, len(h))
	for i, e := range h {
		e.Data.Attributes = e.Data.Attributes.DeepCopy()
		out[len(h)-1-i] = e
	}
	return out
}
