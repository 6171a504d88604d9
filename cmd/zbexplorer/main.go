// Zigbee Explorer relays Zigbee sensor telemetry from an MQTT broker to
// browser dashboards.
//
// It subscribes to one broker topic, keeps the latest state and the full
// reading history of every device in memory, and serves them over a
// WebSocket push channel and a small REST API. Lifecycle events are printed
// as JSON lines so a launching process can tell when the relay is usable.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/zigbee-explorer/internal/api"
	"github.com/nerrad567/zigbee-explorer/internal/device"
	"github.com/nerrad567/zigbee-explorer/internal/infrastructure/config"
	"github.com/nerrad567/zigbee-explorer/internal/infrastructure/influxdb"
	"github.com/nerrad567/zigbee-explorer/internal/infrastructure/logging"
	"github.com/nerrad567/zigbee-explorer/internal/infrastructure/mqtt"
	"github.com/nerrad567/zigbee-explorer/internal/ingest"
	"github.com/nerrad567/zigbee-explorer/internal/lifecycle"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run loads configuration, wires the relay and blocks until shutdown.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Zigbee Explorer",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	notifier, err := lifecycle.NewNotifier(cfg.Lifecycle.Notify, os.Stdout, os.Stderr)
	if err != nil {
		return fmt.Errorf("creating lifecycle notifier: %w", err)
	}
	var notifiers []lifecycle.Notifier
	if notifier != nil {
		notifiers = append(notifiers, notifier)
	}
	signaler := lifecycle.NewSignaler(log, notifiers...)

	if err := serve(ctx, cfg, log, signaler); err != nil {
		signaler.Fatal(err)
		return err
	}

	log.Info("Zigbee Explorer stopped")
	return nil
}

// serve wires every component and runs them until ctx is cancelled or one
// of them fails.
func serve(ctx context.Context, cfg *config.Config, log *logging.Logger, signaler *lifecycle.Signaler) error {
	mqttClient, err := mqtt.New(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("creating MQTT client: %w", err)
	}
	mqttClient.SetLogger(log)
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()

	store := device.NewStore(cfg.History.MaxEntries)
	store.SetLogger(log)

	sink, closeSink, err := openSink(ctx, cfg.InfluxDB, log)
	if err != nil {
		return err
	}
	defer closeSink()

	ingestor, err := ingest.New(ingest.Config{
		Topic:          cfg.MQTT.Topic,
		QoS:            byte(cfg.MQTT.QoS), //nolint:gosec // validated 0-2
		ContainerField: cfg.Ingest.ContainerField,
		QueueSize:      cfg.Ingest.QueueSize,
	}, ingest.Deps{
		Broker:   mqttClient,
		Store:    store,
		Signaler: signaler,
		Sink:     sink,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("creating ingestor: %w", err)
	}

	session := api.Session{
		BrokerURL: cfg.MQTT.URL,
		Topic:     cfg.MQTT.Topic,
		Version:   version,
	}
	hub := api.NewHub(store, session, log)

	checks := map[string]api.HealthChecker{"mqtt": mqttClient}
	if hc, ok := sink.(api.HealthChecker); ok {
		checks["influxdb"] = hc
	}

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log,
		Store:    store,
		Hub:      hub,
		Ingest:   ingestor,
		Signaler: signaler,
		Session:  session,
		Checks:   checks,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Bind first so a port conflict fails fast and listener-ready is only
	// reported once connections can be accepted.
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := mqttClient.Connect(); err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	log.Info("connecting to MQTT broker",
		"broker", mqttClient.BrokerURL(),
		"topic", cfg.MQTT.Topic,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ingestor.Run(gctx)
	})
	g.Go(func() error {
		hub.Run(gctx, ingestor.Updates())
		return nil
	})

	g.Go(func() error {
		return signaler.WatchConnectDeadline(gctx, cfg.Lifecycle.ConnectDeadline)
	})

	log.Info("initialisation complete, waiting for shutdown signal")

	// The hub runs until gctx is done, so Wait blocks until shutdown is
	// requested or a component fails.
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// openSink connects the optional InfluxDB export.
//
// Returns:
//   - ingest.Sink: nil when the export is disabled
//   - func(): Closes the export; always safe to call
//   - error: If the export is enabled but unreachable
func openSink(ctx context.Context, cfg config.InfluxDBConfig, log *logging.Logger) (ingest.Sink, func(), error) {
	if !cfg.Enabled {
		log.Info("InfluxDB export disabled")
		return nil, func() {}, nil
	}

	client, err := influxdb.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)

	return client, func() {
		log.Info("closing InfluxDB connection")
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing InfluxDB", "error", closeErr)
		}
	}, nil
}

// getConfigPath returns the configuration file path.
// Uses ZBEXPLORER_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ZBEXPLORER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
