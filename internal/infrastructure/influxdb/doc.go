// Package influxdb exports accepted Zigbee readings to InfluxDB.
//
// The export is optional and off by default. When enabled, every reading
// the ingestor accepts is written as one point:
//
//	zigbee_readings,device=0x1A2B BatteryPercentage=87,Temperature=21.5 <received-at>
//
// Numeric attributes become float fields and booleans become 0 or 1.
// Strings and nested values are left out.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteReading(reading)
//
// # Error Handling
//
// Writes are non-blocking and batched (batch_size, flush_interval). Write
// failures are delivered to the SetOnError callback; connection and health
// check errors are returned directly.
package influxdb
