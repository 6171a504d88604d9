package mqtt

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/zigbee-explorer/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultSubscribeTimeout is the maximum time to wait for a SUBACK.
	defaultSubscribeTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12

	// clientIDSuffixLen is the number of uuid characters appended to the client ID.
	clientIDSuffixLen = 8
)

// Default broker ports by transport.
const (
	defaultPlainPort = "1883"
	defaultTLSPort   = "8883"
	defaultWSPort    = "80"
	defaultWSSPort   = "443"
)

// NormalizeBrokerURL turns a user-supplied broker address into a URL paho can dial.
//
// Accepted forms:
//   - mqtt://host[:port], tcp://host[:port]   plain TCP (default port 1883)
//   - mqtts://, ssl://, tls://                 TLS (default port 8883)
//   - ws://, wss://                            WebSocket transports
//   - host[:port]                              treated as tcp://
//
// Returns:
//   - string: Normalised URL including an explicit port
//   - error: ErrInvalidBrokerURL if the address cannot be used
func NormalizeBrokerURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty address", ErrInvalidBrokerURL)
	}
	if !strings.Contains(raw, "://") {
		raw = "tcp://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidBrokerURL, err)
	}

	var defaultPort string
	switch strings.ToLower(u.Scheme) {
	case "mqtt", "tcp":
		defaultPort = defaultPlainPort
	case "mqtts", "ssl", "tls", "tcps":
		defaultPort = defaultTLSPort
	case "ws":
		defaultPort = defaultWSPort
	case "wss":
		defaultPort = defaultWSSPort
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidBrokerURL, u.Scheme)
	}

	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidBrokerURL)
	}
	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), defaultPort)
	}

	return u.String(), nil
}

// isTLSScheme reports whether the normalised broker URL needs a TLS config.
func isTLSScheme(brokerURL string) bool {
	for _, prefix := range []string{"mqtts://", "ssl://", "tls://", "tcps://", "wss://"} {
		if strings.HasPrefix(brokerURL, prefix) {
			return true
		}
	}
	return false
}

// uniqueClientID appends a short random suffix so that several cores started
// against the same broker do not take over each other's sessions.
func uniqueClientID(base string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:clientIDSuffixLen]
	if base == "" {
		return "zbexplorer-" + suffix
	}
	return base + "-" + suffix
}

// buildClientOptions creates paho MQTT options from config.
//
// This configures:
//   - Broker URL (already normalised)
//   - Unique client ID
//   - Authentication credentials (if provided)
//   - Fixed-interval connect retry and auto-reconnect
//   - Per-attempt connect timeout
//   - TLS for secure schemes
//   - Clean session mode and in-order message delivery
func buildClientOptions(cfg config.MQTTConfig, brokerURL string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(brokerURL)
	opts.SetClientID(uniqueClientID(cfg.ClientID))

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)

	// Handlers run one at a time in broker delivery order.
	opts.SetOrderMatters(true)

	// Retry the first connection as well as later reconnects, always at the
	// same interval.
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(cfg.Reconnect.Interval)
	opts.SetMaxReconnectInterval(cfg.Reconnect.Interval)

	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if isTLSScheme(brokerURL) {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}
