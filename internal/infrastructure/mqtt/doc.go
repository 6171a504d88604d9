// Package mqtt provides MQTT client connectivity for the Zigbee Explorer core.
//
// This package manages:
//   - Broker URL normalisation (mqtt://, tcp://, mqtts://, ws://, bare host:port)
//   - Non-blocking connection with fixed-interval retry and auto-reconnect
//   - Topic subscriptions, restored automatically after a reconnect
//   - Panic recovery around message handlers
//   - Connection state for status reporting
//
// # Connection Policy
//
// Connect returns immediately. paho retries the first connection and every
// reconnect at mqtt.reconnect.interval (5s by default); each attempt is
// bounded by mqtt.connect_timeout (30s by default). The shorter readiness
// deadline enforced by the lifecycle package is independent of both.
//
// # Usage
//
//	client, err := mqtt.New(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	client.SetOnConnect(func() {
//	    _ = client.Subscribe(cfg.MQTT.Topic, 0, handler)
//	})
//	client.Connect()
//	defer client.Close()
package mqtt
