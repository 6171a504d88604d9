package influxdb_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/zigbee-explorer/internal/device"
	"github.com/nerrad567/zigbee-explorer/internal/infrastructure/config"
	"github.com/nerrad567/zigbee-explorer/internal/infrastructure/influxdb"
)

// testConfig returns a configuration for a local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "zbexplorer-dev-token",
		Org:           "zbexplorer",
		Bucket:        "zigbee",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// connectOrSkip connects to the local InfluxDB or skips the test.
func connectOrSkip(t *testing.T) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(context.Background(), testConfig())
	if err != nil {
		t.Skip("InfluxDB not available, skipping integration test")
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func testReading(attrs device.Attributes) device.Reading {
	attrs[device.AttrDevice] = "0x1A2B"
	return device.Reading{
		DeviceID:   "0x1A2B",
		Attributes: attrs,
		ReceivedAt: time.Unix(1700000000, 0),
	}
}

// =============================================================================
// Point Conversion Tests
// =============================================================================

func TestReadingPoint(t *testing.T) {
	tests := []struct {
		name  string
		attrs device.Attributes
		want  string
	}{
		{
			name:  "numeric fields sorted",
			attrs: device.Attributes{"Temperature": 21.5, "Humidity": 40.0},
			want:  "zigbee_readings,device=0x1A2B Humidity=40,Temperature=21.5 1700000000000000000\n",
		},
		{
			name:  "bool becomes 0 or 1",
			attrs: device.Attributes{"Occupancy": true, "Contact": false},
			want:  "zigbee_readings,device=0x1A2B Contact=0,Occupancy=1 1700000000000000000\n",
		},
		{
			name: "strings and objects skipped",
			attrs: device.Attributes{
				"Name":              "kitchen",
				"Endpoint":          map[string]any{"1": 2.0},
				"BatteryPercentage": 87.0,
			},
			want: "zigbee_readings,device=0x1A2B BatteryPercentage=87 1700000000000000000\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			point := influxdb.ReadingPoint(influxdb.DefaultMeasurement, testReading(tt.attrs))
			if point == nil {
				t.Fatal("ReadingPoint() = nil")
			}
			if got := write.PointToLineProtocol(point, time.Nanosecond); got != tt.want {
				t.Errorf("line protocol = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadingPoint_NoNumericFields(t *testing.T) {
	point := influxdb.ReadingPoint(influxdb.DefaultMeasurement, testReading(device.Attributes{"Name": "x"}))
	if point != nil {
		t.Errorf("ReadingPoint() = %v, want nil", point)
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	client := connectOrSkip(t)

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	_, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

// =============================================================================
// Health Check Tests
// =============================================================================

func TestHealthCheck(t *testing.T) {
	client := connectOrSkip(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestHealthCheck_Cancelled(t *testing.T) {
	client := connectOrSkip(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() should return error for cancelled context")
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWriteReading(t *testing.T) {
	cfg := testConfig()
	cfg.Measurement = "zigbee_readings_test"
	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Skip("InfluxDB not available, skipping integration test")
	}
	t.Cleanup(func() { client.Close() })

	var writeErr error
	var mu sync.Mutex
	client.SetOnError(func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})

	client.WriteReading(testReading(device.Attributes{"Temperature": 21.5, "Occupancy": true}))
	client.Flush()

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if writeErr != nil {
		t.Errorf("Write error = %v", writeErr)
	}
}

func TestClose(t *testing.T) {
	client, err := influxdb.Connect(context.Background(), testConfig())
	if err != nil {
		t.Skip("InfluxDB not available, skipping integration test")
	}

	client.WriteReading(testReading(device.Attributes{"Temperature": 19.0}))

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close = %v, want ErrNotConnected", err)
	}

	// Writes after close are dropped silently.
	client.WriteReading(testReading(device.Attributes{"Temperature": 19.0}))
	client.Flush()
}
