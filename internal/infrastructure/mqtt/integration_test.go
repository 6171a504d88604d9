//go:build integration

package mqtt

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/zigbee-explorer/internal/infrastructure/config"
)

// Integration tests against a real broker.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

const integrationBroker = "tcp://127.0.0.1:1883"

func integrationConfig() config.MQTTConfig {
	return config.MQTTConfig{
		URL:            integrationBroker,
		Topic:          "zbexplorer/test/SENSOR",
		ClientID:       "zbexplorer-integration-test",
		QoS:            0,
		ConnectTimeout: 5 * time.Second,
		Reconnect: config.MQTTReconnectConfig{
			Interval: time.Second,
		},
	}
}

// connectClient builds a Client, connects it and waits for the first connection.
func connectClient(t *testing.T) *Client {
	t.Helper()

	client, err := New(integrationConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	connected := make(chan struct{}, 1)
	client.SetOnConnect(func() {
		select {
		case connected <- struct{}{}:
		default:
		}
	})

	if err := client.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		client.Close()
		t.Skip("MQTT broker not available at 127.0.0.1:1883")
	}

	t.Cleanup(func() { client.Close() })
	return client
}

// publisher returns a plain paho client used to play the Zigbee bridge.
func publisher(t *testing.T) pahomqtt.Client {
	t.Helper()

	opts := pahomqtt.NewClientOptions().
		AddBroker(integrationBroker).
		SetClientID(uniqueClientID("zbexplorer-publisher"))
	pub := pahomqtt.NewClient(opts)

	token := pub.Connect()
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Skipf("publisher could not connect: %v", token.Error())
	}

	t.Cleanup(func() { pub.Disconnect(defaultDisconnectQuiesce) })
	return pub
}

func TestIntegration_SubscribeReceivesInOrder(t *testing.T) {
	client := connectClient(t)
	pub := publisher(t)

	const total = 20
	var mu sync.Mutex
	var received []string
	done := make(chan struct{})

	topic := "zbexplorer/test/order"
	err := client.Subscribe(topic, 1, func(_ string, payload []byte) error {
		mu.Lock()
		received = append(received, string(payload))
		n := len(received)
		mu.Unlock()
		if n == total {
			close(done)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription(topic) {
		t.Fatal("HasSubscription() = false after Subscribe")
	}

	want := make([]string, total)
	for i := 0; i < total; i++ {
		want[i] = time.Duration(i).String()
		pub.Publish(topic, 1, false, want[i]).Wait()
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("received %d of %d messages", len(received), total)
	}

	mu.Lock()
	defer mu.Unlock()
	for i := range want {
		if received[i] != want[i] {
			t.Fatalf("message %d = %q, want %q", i, received[i], want[i])
		}
	}
}

func TestIntegration_OnConnectFiresOnce(t *testing.T) {
	client, err := New(integrationConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	var count atomic.Int32
	client.SetOnConnect(func() { count.Add(1) })

	if err := client.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for count.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if count.Load() == 0 {
		t.Skip("MQTT broker not available at 127.0.0.1:1883")
	}

	time.Sleep(500 * time.Millisecond)
	if got := count.Load(); got != 1 {
		t.Errorf("OnConnect fired %d times, want 1", got)
	}
	if err := client.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
