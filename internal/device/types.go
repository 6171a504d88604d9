package device

import (
	"encoding/json"
	"time"
)

// Well-known reading attributes.
const (
	// AttrDevice carries the device identifier inside a reading.
	AttrDevice = "Device"

	// AttrBattery is retained across readings that omit it.
	AttrBattery = "BatteryPercentage"
)

// TimestampLayout is the wire format for record and history timestamps (local time).
const TimestampLayout = "2006-01-02 15:04:05"

// FormatTimestamp renders t in TimestampLayout using the local time zone.
func FormatTimestamp(t time.Time) string {
	return t.Local().Format(TimestampLayout)
}

// Attributes holds whatever sensor fields the bridge reported for a device.
// The schema is not fixed; values are the decoded JSON types.
type Attributes map[string]any

// DeepCopy returns a copy that shares no maps or slices with a.
func (a Attributes) DeepCopy() Attributes {
	if a == nil {
		return nil
	}
	return Attributes(deepCopyMap(a))
}

// Reading is a single normalised sensor event for one device.
type Reading struct {
	// DeviceID is the value of the Device attribute.
	DeviceID string

	// Attributes is the full reading as received, including Device.
	Attributes Attributes

	// ReceivedAt is the ingest time stamped on the reading.
	ReceivedAt time.Time
}

// MarshalJSON renders the reading the way it appears in history and deltas:
// the received attributes plus the formatted timestamp.
func (r Reading) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Attributes)+1)
	for k, v := range r.Attributes {
		out[k] = v
	}
	out["timestamp"] = FormatTimestamp(r.ReceivedAt)
	return json.Marshal(out)
}

// Record is the current state of one device.
//
// Attributes are shallow-merged on every accepted reading with new values
// winning, except BatteryPercentage which is kept when a reading omits it.
type Record struct {
	// ID is the unique device identifier.
	ID string

	// Attributes is the merged attribute set.
	Attributes Attributes

	// MessageCount is the number of accepted readings for this device.
	MessageCount int

	// Timestamp is when the last reading was accepted.
	Timestamp time.Time
}

// Battery returns the retained battery percentage, if one was ever reported.
func (r Record) Battery() (any, bool) {
	v, ok := r.Attributes[AttrBattery]
	return v, ok
}

// MarshalJSON flattens the record into a single object: every attribute,
// plus Device, messageCount and timestamp.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Attributes)+3)
	for k, v := range r.Attributes {
		out[k] = v
	}
	out[AttrDevice] = r.ID
	out["messageCount"] = r.MessageCount
	out["timestamp"] = FormatTimestamp(r.Timestamp)
	return json.Marshal(out)
}

// DeepCopy returns a copy whose attributes can be modified freely.
func (r Record) DeepCopy() Record {
	r.Attributes = r.Attributes.DeepCopy()
	return r
}

// HistoryEntry is one accepted reading as it was observed.
// Entries are never modified after they are appended.
type HistoryEntry struct {
	Timestamp time.Time
	Data      Reading
}

// MarshalJSON renders {"timestamp": "...", "data": {...}}.
func (e HistoryEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Timestamp string  `json:"timestamp"`
		Data      Reading `json:"data"`
	}{
		Timestamp: FormatTimestamp(e.Timestamp),
		Data:      e.Data,
	})
}

// Stats summarises the store for metrics.
type Stats struct {
	Devices        int    `json:"devices"`
	Messages       uint64 `json:"messages"`
	HistoryEntries int    `json:"history_entries"`
}

// deepCopyMap recursively copies a map, handling nested maps and slices.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case Attributes:
		return Attributes(deepCopyMap(val))
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		// Primitives (string, bool, float64, json.Number) are safe to copy by value
		return v
	}
}
