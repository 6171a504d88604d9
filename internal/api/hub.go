package api

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/nerrad567/zigbee-explorer/internal/device"
	"github.com/nerrad567/zigbee-explorer/internal/infrastructure/logging"
	"github.com/nerrad567/zigbee-explorer/internal/ingest"
)

// Push message types.
const (
	MsgTypeSnapshot = "snapshot"
	MsgTypeMetadata = "metadata"
	MsgTypeUpdate   = "update"
)

// SnapshotMessage is the first message a new observer receives.
type SnapshotMessage struct {
	Type    string                           `json:"type"`
	Devices map[string]device.Record         `json:"devices"`
	History map[string][]device.HistoryEntry `json:"history"`
}

// MetadataMessage is the second message a new observer receives.
type MetadataMessage struct {
	Type      string `json:"type"`
	BrokerURL string `json:"brokerURL"`
	Topic     string `json:"topic"`
	Version   string `json:"version"`
}

// UpdateMessage is broadcast for every accepted reading.
type UpdateMessage struct {
	Type          string                   `json:"type"`
	Devices       map[string]device.Record `json:"devices"`
	LatestMessage ingest.LatestMessage     `json:"latestMessage"`
}

// Session describes the broker connection reported to observers.
type Session struct {
	BrokerURL string
	Topic     string
	Version   string
}

// Observer is a connected push client.
type Observer interface {
	// Send queues data for delivery. It returns false if the observer can
	// no longer accept messages.
	Send(data []byte) bool

	// Close releases the observer. It must be safe to call more than once.
	Close()
}

// membership is a register or unregister request handled by Run.
type membership struct {
	observer Observer
	done     chan struct{}
}

// Hub fans updates out to every connected observer.
//
// The observer set is owned by the Run goroutine. Register, Unregister and
// updates all arrive on channels, so a new observer's snapshot and every
// delta are sent from the same goroutine in a single order.
type Hub struct {
	store   *device.Store
	session Session
	logger  *logging.Logger

	register   chan membership
	unregister chan membership
	done       chan struct{}

	clients atomic.Int64
}

// NewHub creates a hub that snapshots store for new observers.
func NewHub(store *device.Store, session Session, logger *logging.Logger) *Hub {
	return &Hub{
		store:      store,
		session:    session,
		logger:     logger,
		register:   make(chan membership),
		unregister: make(chan membership),
		done:       make(chan struct{}),
	}
}

// Run owns the observer set until ctx is cancelled, then closes every
// observer. A closed updates channel stops broadcasting but keeps the hub
// serving snapshots.
func (h *Hub) Run(ctx context.Context, updates <-chan ingest.Update) {
	clients := make(map[Observer]struct{})
	defer func() {
		close(h.done)
		for o := range clients {
			o.Close()
		}
		h.clients.Store(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case req := <-h.register:
			if h.greet(req.observer) {
				clients[req.observer] = struct{}{}
			} else {
				req.observer.Close()
			}
			h.clients.Store(int64(len(clients)))
			close(req.done)
			h.logger.Debug("websocket client connected", "clients", len(clients))

		case req := <-h.unregister:
			if _, ok := clients[req.observer]; ok {
				delete(clients, req.observer)
				req.observer.Close()
			}
			h.clients.Store(int64(len(clients)))
			close(req.done)
			h.logger.Debug("websocket client disconnected", "clients", len(clients))

		case update, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			h.broadcast(clients, update)
		}
	}
}

// Register adds an observer and returns once its snapshot and metadata
// messages have been queued. After Run has stopped the observer is closed.
func (h *Hub) Register(o Observer) {
	req := membership{observer: o, done: make(chan struct{})}
	select {
	case h.register <- req:
		<-req.done
	case <-h.done:
		o.Close()
	}
}

// Unregister removes and closes an observer. Unknown observers are ignored.
func (h *Hub) Unregister(o Observer) {
	req := membership{observer: o, done: make(chan struct{})}
	select {
	case h.unregister <- req:
		<-req.done
	case <-h.done:
	}
}

// ClientCount returns the number of connected observers.
func (h *Hub) ClientCount() int {
	return int(h.clients.Load())
}

// greet sends the snapshot and session metadata, in that order.
func (h *Hub) greet(o Observer) bool {
	devices, history := h.store.View()

	snapshot, err := json.Marshal(SnapshotMessage{
		Type:    MsgTypeSnapshot,
		Devices: devices,
		History: history,
	})
	if err != nil {
		h.logger.Error("failed to marshal snapshot message", "error", err)
		return false
	}
	metadata, err := json.Marshal(MetadataMessage{
		Type:      MsgTypeMetadata,
		BrokerURL: h.session.BrokerURL,
		Topic:     h.session.Topic,
		Version:   h.session.Version,
	})
	if err != nil {
		h.logger.Error("failed to marshal metadata message", "error", err)
		return false
	}

	return o.Send(snapshot) && o.Send(metadata)
}

// broadcast sends one delta to every observer, dropping those that fail.
func (h *Hub) broadcast(clients map[Observer]struct{}, update ingest.Update) {
	data, err := json.Marshal(UpdateMessage{
		Type:          MsgTypeUpdate,
		Devices:       update.Devices,
		LatestMessage: update.Latest,
	})
	if err != nil {
		h.logger.Error("failed to marshal update message", "error", err)
		return
	}

	dropped := 0
	for o := range clients {
		if !o.Send(data) {
			delete(clients, o)
			o.Close()
			dropped++
		}
	}
	h.clients.Store(int64(len(clients)))

	if dropped > 0 {
		h.logger.Info("dropped unresponsive websocket clients", "dropped", dropped, "clients", len(clients))
	}
	h.logger.Debug("broadcast sent", "device", update.Record.ID, "recipients", len(clients))
}
