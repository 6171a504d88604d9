// Package ingest turns Zigbee bridge messages into device state.
//
// The Ingestor registers connection callbacks on the MQTT client,
// subscribes to the bridge topic on every connect, and feeds each message
// through a single goroutine:
//
//	MQTT handler ──▶ queue ──▶ Run ──▶ ParsePayload ──▶ Store.Apply ──▶ Updates()
//
// # Payloads
//
// Tasmota publishes readings under a container field:
//
//	{"ZbReceived": {"0x5A1C": {"Device": "0x5A1C", "Temperature": 21.5, "BatteryPercentage": 87}}}
//
// Only the first reading is used. Payloads that are not JSON, have no
// container, or whose first reading lacks a Device id are logged and
// discarded; they never reach the Store.
//
// # Lifecycle
//
// The first broker connection triggers Signaler.BrokerConnected, once, after
// the subscribe attempt. A failed subscribe is logged and tried again on the
// next reconnect; it never counts against the connect deadline.
package ingest
