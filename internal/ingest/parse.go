package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/buger/jsonparser"

	"github.com/nerrad567/zigbee-explorer/internal/device"
)

// Extracted is the first device reading found in a bridge payload.
type Extracted struct {
	// DeviceID is the reading's Device attribute.
	DeviceID string

	// Attributes is the decoded reading object.
	Attributes device.Attributes

	// Dropped counts further readings in the same container that were ignored.
	Dropped int
}

// ParsePayload extracts the first reading from a bridge payload.
//
// The payload must be a JSON object whose containerField holds an object of
// per-device readings, for example:
//
//	{"ZbReceived": {"0x5A1C": {"Device": "0x5A1C", "Temperature": 21.5}}}
//
// Only the first reading in document order is returned; the rest are counted
// in Dropped. Parsing never panics.
//
// Parameters:
//   - payload: Raw MQTT message body
//   - containerField: Name of the field holding the readings (ZbReceived)
//
// Returns:
//   - Extracted: The first reading
//   - error: ErrMalformedPayload, ErrNoReading or ErrMissingDeviceID
func ParsePayload(payload []byte, containerField string) (Extracted, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return Extracted{}, fmt.Errorf("%w: empty payload", ErrNoReading)
	}
	if !json.Valid(payload) {
		return Extracted{}, ErrMalformedPayload
	}
	// The raw payload is relayed in WebSocket text frames, which must be UTF-8.
	if !utf8.Valid(payload) {
		return Extracted{}, fmt.Errorf("%w: invalid UTF-8", ErrMalformedPayload)
	}

	container, dataType, _, err := jsonparser.Get(payload, containerField)
	if err != nil {
		if errors.Is(err, jsonparser.KeyPathNotFoundError) {
			return Extracted{}, fmt.Errorf("%w: no %s field", ErrNoReading, containerField)
		}
		return Extracted{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if dataType != jsonparser.Object {
		return Extracted{}, fmt.Errorf("%w: %s is %s, not an object", ErrNoReading, containerField, dataType)
	}

	var (
		first     []byte
		firstType jsonparser.ValueType
		count     int
	)
	err = jsonparser.ObjectEach(container, func(_ []byte, value []byte, dt jsonparser.ValueType, _ int) error {
		if count == 0 {
			first = value
			firstType = dt
		}
		count++
		return nil
	})
	if err != nil {
		return Extracted{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if count == 0 {
		return Extracted{}, fmt.Errorf("%w: %s is empty", ErrNoReading, containerField)
	}
	if firstType != jsonparser.Object {
		return Extracted{}, fmt.Errorf("%w: first reading is %s, not an object", ErrNoReading, firstType)
	}

	var attrs device.Attributes
	if err := json.Unmarshal(first, &attrs); err != nil {
		return Extracted{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	id, _ := attrs[device.AttrDevice].(string)
	if id == "" {
		return Extracted{}, ErrMissingDeviceID
	}

	return Extracted{
		DeviceID:   id,
		Attributes: attrs,
		Dropped:    count - 1,
	}, nil
}
