package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/zigbee-explorer/internal/device"
	"github.com/nerrad567/zigbee-explorer/internal/infrastructure/mqtt"
)

// defaultQueueSize is used when Config.QueueSize is not positive.
const defaultQueueSize = 1024

// Broker is the subset of the MQTT client the Ingestor depends on.
type Broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	HasSubscription(topic string) bool
	IsConnected() bool
	SetOnConnect(callback func())
	SetOnDisconnect(callback func(err error))
}

// Signaler receives the one-shot broker-connected notification.
type Signaler interface {
	BrokerConnected()
}

// Sink receives every accepted reading, e.g. for time-series export.
type Sink interface {
	WriteReading(r device.Reading)
}

// Logger defines the logging interface used by the Ingestor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the ingest settings.
type Config struct {
	Topic          string
	QoS            byte
	ContainerField string
	QueueSize      int
}

// Deps holds the Ingestor's collaborators.
type Deps struct {
	Broker   Broker        // required
	Store    *device.Store // required
	Signaler Signaler      // optional
	Sink     Sink          // optional
	Logger   Logger        // optional

	// Clock stamps accepted readings; defaults to time.Now.
	Clock func() time.Time
}

// LatestMessage describes the broker message behind an Update.
type LatestMessage struct {
	Topic      string          `json:"topic"`
	Reading    device.Reading  `json:"reading"`
	RawPayload json.RawMessage `json:"rawPayload"`
}

// Update is emitted once per accepted reading, in broker delivery order.
type Update struct {
	// Record is the device's state after the reading was merged.
	Record device.Record

	// Devices is a snapshot of every record taken right after the merge.
	Devices map[string]device.Record

	// Latest is the message that caused the update.
	Latest LatestMessage
}

// Stats counts processed messages.
type Stats struct {
	Accepted uint64 `json:"accepted"`
	Rejected uint64 `json:"rejected"`
}

type message struct {
	topic   string
	payload []byte
}

// Ingestor subscribes to the bridge topic, turns each message into a
// device reading, applies it to the Store and emits an Update.
//
// Messages are queued by the MQTT handler and processed by a single
// goroutine (Run), so the Store sees them in broker delivery order.
type Ingestor struct {
	cfg      Config
	broker   Broker
	store    *device.Store
	signaler Signaler
	sink     Sink
	logger   Logger
	clock    func() time.Time

	queue   chan message
	updates chan Update
	done    chan struct{}

	accepted atomic.Uint64
	rejected atomic.Uint64

	connectedOnce sync.Once
}

// New creates an Ingestor and registers its connection callbacks on the broker.
// Call this before the broker connects so the first connection is not missed.
//
// Parameters:
//   - cfg: Topic, QoS, container field and queue size
//   - deps: Broker and Store are required
//
// Returns:
//   - *Ingestor: Ready to Run
//   - error: If a required dependency or setting is missing
func New(cfg Config, deps Deps) (*Ingestor, error) {
	if deps.Broker == nil {
		return nil, errors.New("ingest: broker is required")
	}
	if deps.Store == nil {
		return nil, errors.New("ingest: store is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("ingest: topic is required")
	}
	if cfg.ContainerField == "" {
		return nil, errors.New("ingest: container field is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}

	i := &Ingestor{
		cfg:      cfg,
		broker:   deps.Broker,
		store:    deps.Store,
		signaler: deps.Signaler,
		sink:     deps.Sink,
		logger:   deps.Logger,
		clock:    deps.Clock,
		queue:    make(chan message, cfg.QueueSize),
		updates:  make(chan Update, cfg.QueueSize),
		done:     make(chan struct{}),
	}
	if i.logger == nil {
		i.logger = noopLogger{}
	}
	if i.clock == nil {
		i.clock = time.Now
	}

	deps.Broker.SetOnConnect(i.handleConnect)
	deps.Broker.SetOnDisconnect(i.handleDisconnect)
	return i, nil
}

// Updates returns the channel of accepted updates. It is closed when Run returns.
func (i *Ingestor) Updates() <-chan Update {
	return i.updates
}

// Connected reports whether the broker connection is currently up.
func (i *Ingestor) Connected() bool {
	return i.broker.IsConnected()
}

// Topic returns the subscribed topic.
func (i *Ingestor) Topic() string {
	return i.cfg.Topic
}

// Stats returns accepted and rejected message counts.
func (i *Ingestor) Stats() Stats {
	return Stats{
		Accepted: i.accepted.Load(),
		Rejected: i.rejected.Load(),
	}
}

// Run processes queued messages until ctx is cancelled.
func (i *Ingestor) Run(ctx context.Context) error {
	defer close(i.updates)
	defer close(i.done)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-i.queue:
			update, err := i.safeIngest(msg.topic, msg.payload)
			if err != nil {
				continue
			}
			select {
			case i.updates <- update:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Ingest parses one message and applies it to the Store.
// Run calls this for every queued message; rejected messages leave the
// Store untouched.
//
// Returns:
//   - Update: The resulting update, valid only when err is nil
//   - error: A payload error (ErrMalformedPayload, ErrNoReading, ErrMissingDeviceID)
func (i *Ingestor) Ingest(topic string, payload []byte) (Update, error) {
	ex, err := ParsePayload(payload, i.cfg.ContainerField)
	if err != nil {
		i.rejected.Add(1)
		i.logger.Warn("discarding MQTT message",
			"topic", topic,
			"error", err,
		)
		return Update{}, err
	}
	if ex.Dropped > 0 {
		i.logger.Debug("ignoring extra readings in payload",
			"topic", topic,
			"device", ex.DeviceID,
			"dropped", ex.Dropped,
		)
	}

	reading := device.Reading{
		DeviceID:   ex.DeviceID,
		Attributes: ex.Attributes,
		ReceivedAt: i.clock(),
	}
	i.logger.Debug("received reading", "device", reading.DeviceID, "reading", reading.Attributes)

	rec, err := i.store.Apply(reading)
	if err != nil {
		i.rejected.Add(1)
		return Update{}, fmt.Errorf("applying reading: %w", err)
	}
	i.accepted.Add(1)

	if i.sink != nil {
		i.sink.WriteReading(reading)
	}

	return Update{
		Record:  rec,
		Devices: i.store.Snapshot(),
		Latest: LatestMessage{
			Topic:      topic,
			Reading:    reading,
			RawPayload: json.RawMessage(payload),
		},
	}, nil
}

// safeIngest runs Ingest and turns a panic into an error.
func (i *Ingestor) safeIngest(topic string, payload []byte) (update Update, err error) {
	defer func() {
		if r := recover(); r != nil {
			i.rejected.Add(1)
			i.logger.Error("ingest panic recovered", "topic", topic, "panic", r)
			err = fmt.Errorf("%w: panic: %v", ErrMalformedPayload, r)
		}
	}()
	return i.Ingest(topic, payload)
}

// handleMessage is the MQTT handler. It queues a copy of the payload and
// blocks while the queue is full so no message is lost or reordered.
func (i *Ingestor) handleMessage(topic string, payload []byte) error {
	msg := message{topic: topic, payload: append([]byte(nil), payload...)}
	select {
	case i.queue <- msg:
		return nil
	case <-i.done:
		return ErrStopped
	}
}

// handleConnect subscribes on every (re)connect unless the client already
// restored the subscription. A failed subscribe is logged and retried on
// the next reconnect; the broker connection itself still counts as
// established, so the connect deadline does not fire.
func (i *Ingestor) handleConnect() {
	i.logger.Info("connected to MQTT broker")
	defer i.connectedOnce.Do(func() {
		if i.signaler != nil {
			i.signaler.BrokerConnected()
		}
	})

	if i.broker.HasSubscription(i.cfg.Topic) {
		return
	}

	if err := i.broker.Subscribe(i.cfg.Topic, i.cfg.QoS, i.handleMessage); err != nil {
		i.logger.Error("failed to subscribe to topic",
			"topic", i.cfg.Topic,
			"error", err,
		)
		return
	}
	i.logger.Info("subscribed to topic", "topic", i.cfg.Topic)
}

func (i *Ingestor) handleDisconnect(err error) {
	i.logger.Warn("MQTT connection lost, reconnecting", "error", err)
}
