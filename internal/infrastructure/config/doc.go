// Package config handles loading and validating Zigbee Explorer configuration.
//
// This package manages:
//   - Default values matching the launcher's expectations
//   - Optional YAML configuration files
//   - .env files and environment variable overrides
//   - Validation of required fields
//
// The launching collaborator normally passes MQTT_SERVER, MQTT_TOPIC and
// LISTEN_PORT in the environment; a YAML file is only needed for tuning.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Topic)
package config
