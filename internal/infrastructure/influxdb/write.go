package influxdb

import (
	"sort"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/zigbee-explorer/internal/device"
)

// DefaultMeasurement is used when influxdb.measurement is empty.
const DefaultMeasurement = "zigbee_readings"

// deviceTag is the tag key carrying the device identifier.
const deviceTag = "device"

// WriteReading exports the numeric attributes of one reading.
//
// Numbers become float fields and booleans become 0 or 1. Strings, nested
// objects and arrays have no useful time-series form and are skipped, as
// are readings with no numeric attribute at all. The write is non-blocking;
// failures are reported through the SetOnError callback.
//
// Parameters:
//   - r: An accepted reading
func (c *Client) WriteReading(r device.Reading) {
	if !c.IsConnected() {
		return
	}

	point := ReadingPoint(c.measurement, r)
	if point == nil {
		return
	}
	c.writeAPI.WritePoint(point)
}

// ReadingPoint converts a reading into a point tagged with its device id.
// It returns nil when the reading has no exportable field.
func ReadingPoint(measurement string, r device.Reading) *write.Point {
	fields := make(map[string]any, len(r.Attributes))
	for key, v := range r.Attributes {
		if key == device.AttrDevice {
			continue
		}
		if f, ok := numericField(v); ok {
			fields[key] = f
		}
	}
	if len(fields) == 0 {
		return nil
	}

	point := write.NewPointWithMeasurement(measurement).
		AddTag(deviceTag, r.DeviceID).
		SetTime(r.ReceivedAt)

	// Stable field order keeps the line protocol deterministic.
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		point.AddField(k, fields[k])
	}
	return point
}

// numericField maps a decoded JSON value onto a float field.
func numericField(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
