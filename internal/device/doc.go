// Package device holds the live state of every Zigbee device seen on the bridge.
//
// A single Store keeps two views that always move together:
//
//   - Records: the latest merged attributes per device, with a message count
//   - History: every accepted reading per device, newest first
//
// # Merge Rules
//
// Each accepted reading overwrites the attributes it carries. The one
// exception is BatteryPercentage: sleepy end devices only report it now and
// then, so a reading without it (or with a JSON null) keeps the last value.
// MessageCount increments instead of being overwritten.
//
// # History Growth
//
// History is unbounded unless NewStore is given a cap. With a cap the
// oldest entries are dropped, and the history length of a busy device will
// then be smaller than its MessageCount.
//
// # Usage
//
//	store := device.NewStore(cfg.History.MaxEntries)
//	store.SetLogger(log)
//
//	rec, err := store.Apply(device.Reading{
//	    DeviceID:   "0x5A1C",
//	    Attributes: device.Attributes{"Device": "0x5A1C", "Temperature": 21.5},
//	    ReceivedAt: time.Now(),
//	})
//
//	history := store.History("0x5A1C") // newest first, never nil
//
// # Thread Safety
//
// All Store methods are safe for concurrent use. Writers are expected to be
// a single ingest goroutine; readers (HTTP handlers, the broadcast hub) take
// a read lock and always see a fully applied reading.
package device
