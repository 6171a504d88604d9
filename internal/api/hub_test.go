package api

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/zigbee-explorer/internal/device"
	"github.com/nerrad567/zigbee-explorer/internal/ingest"
)

// fakeObserver records every message it accepts.
type fakeObserver struct {
	mu     sync.Mutex
	msgs   [][]byte
	fail   bool
	closed int
}

func (f *fakeObserver) Send(data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return false
	}
	f.msgs = append(f.msgs, data)
	return true
}

func (f *fakeObserver) Close() {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
}

func (f *fakeObserver) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *fakeObserver) types(t *testing.T) []string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.msgs))
	for _, m := range f.msgs {
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(m, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		out = append(out, env.Type)
	}
	return out
}

func (f *fakeObserver) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func testUpdate(t *testing.T, store *device.Store, id string) ingest.Update {
	t.Helper()
	rec, err := store.Apply(device.Reading{
		DeviceID:   id,
		Attributes: device.Attributes{device.AttrDevice: id, "Temperature": 21.5},
		ReceivedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	return ingest.Update{
		Record:  rec,
		Devices: store.Snapshot(),
		Latest: ingest.LatestMessage{
			Topic:      testSession.Topic,
			RawPayload: json.RawMessage(`{"ZbReceived":{}}`),
		},
	}
}

func TestHub_GreetsWithSnapshotThenMetadata(t *testing.T) {
	env := testServer(t)
	applyReading(t, env.store, "A1", time.Now(), device.Attributes{"Temperature": 20.0})

	obs := &fakeObserver{}
	env.hub.Register(obs)

	got := obs.types(t)
	if len(got) != 2 || got[0] != MsgTypeSnapshot || got[1] != MsgTypeMetadata {
		t.Fatalf("greeting = %v, want [snapshot metadata]", got)
	}

	var snap SnapshotMessage
	if err := json.Unmarshal(obs.msgs[0], &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if _, ok := snap.Devices["A1"]; !ok {
		t.Errorf("snapshot devices = %v, want A1", snap.Devices)
	}
	if len(snap.History["A1"]) != 1 {
		t.Errorf("snapshot history[A1] = %d entries, want 1", len(snap.History["A1"]))
	}

	var meta MetadataMessage
	if err := json.Unmarshal(obs.msgs[1], &meta); err != nil {
		t.Fatalf("unmarshal metadata: %v", err)
	}
	if meta.BrokerURL != testSession.BrokerURL || meta.Topic != testSession.Topic || meta.Version != "test" {
		t.Errorf("metadata = %+v", meta)
	}

	if env.hub.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", env.hub.ClientCount())
	}
}

func TestHub_FailedGreetingDropsObserver(t *testing.T) {
	env := testServer(t)

	obs := &fakeObserver{fail: true}
	env.hub.Register(obs)

	if env.hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", env.hub.ClientCount())
	}
	if obs.closeCount() != 1 {
		t.Errorf("Close called %d times, want 1", obs.closeCount())
	}
}

// A failing observer is removed and the others each get exactly one delta.
func TestHub_BroadcastDropsFailingObserver(t *testing.T) {
	env := testServer(t)

	good1, good2, bad := &fakeObserver{}, &fakeObserver{}, &fakeObserver{}
	env.hub.Register(good1)
	env.hub.Register(good2)
	env.hub.Register(bad)
	if env.hub.ClientCount() != 3 {
		t.Fatalf("ClientCount() = %d, want 3", env.hub.ClientCount())
	}

	bad.setFail(true)
	env.updates <- testUpdate(t, env.store, "A1")

	waitFor(t, "failing observer to be dropped", func() bool { return env.hub.ClientCount() == 2 })

	for i, obs := range []*fakeObserver{good1, good2} {
		got := obs.types(t)
		if len(got) != 3 || got[2] != MsgTypeUpdate {
			t.Errorf("observer %d messages = %v, want [snapshot metadata update]", i, got)
		}
	}
	if bad.closeCount() != 1 {
		t.Errorf("failing observer closed %d times, want 1", bad.closeCount())
	}

	// The dropped observer receives nothing further.
	bad.setFail(false)
	env.updates <- testUpdate(t, env.store, "A1")
	waitFor(t, "second delta", func() bool { return len(good1.types(t)) == 4 })
	if n := len(bad.types(t)); n != 2 {
		t.Errorf("dropped observer got %d messages, want 2", n)
	}
}

func TestHub_UpdateMessageShape(t *testing.T) {
	env := testServer(t)

	obs := &fakeObserver{}
	env.hub.Register(obs)
	env.updates <- testUpdate(t, env.store, "A1")
	waitFor(t, "delta", func() bool { return len(obs.types(t)) == 3 })

	obs.mu.Lock()
	raw := obs.msgs[2]
	obs.mu.Unlock()

	var msg map[string]json.RawMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"type", "devices", "latestMessage"} {
		if _, ok := msg[key]; !ok {
			t.Errorf("update message missing %q", key)
		}
	}

	var latest map[string]json.RawMessage
	if err := json.Unmarshal(msg["latestMessage"], &latest); err != nil {
		t.Fatalf("unmarshal latestMessage: %v", err)
	}
	if string(latest["rawPayload"]) != `{"ZbReceived":{}}` {
		t.Errorf("rawPayload = %s", latest["rawPayload"])
	}
}

func TestHub_Unregister(t *testing.T) {
	env := testServer(t)

	obs := &fakeObserver{}
	env.hub.Register(obs)
	env.hub.Unregister(obs)

	if env.hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", env.hub.ClientCount())
	}
	if obs.closeCount() != 1 {
		t.Errorf("Close called %d times, want 1", obs.closeCount())
	}

	// Unknown observers are ignored.
	env.hub.Unregister(&fakeObserver{})
}

func TestHub_StopClosesObservers(t *testing.T) {
	store := device.NewStore(0)
	hub := NewHub(store, testSession, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx, nil)
		close(done)
	}()

	obs := &fakeObserver{}
	hub.Register(obs)
	cancel()
	<-done

	if obs.closeCount() != 1 {
		t.Errorf("Close called %d times, want 1", obs.closeCount())
	}

	// Registering after stop closes the observer instead of blocking.
	late := &fakeObserver{}
	hub.Register(late)
	if late.closeCount() != 1 {
		t.Errorf("late observer closed %d times, want 1", late.closeCount())
	}
}

func TestHub_ClosedUpdatesKeepsServing(t *testing.T) {
	env := testServer(t)
	close(env.updates)

	obs := &fakeObserver{}
	env.hub.Register(obs)
	if got := obs.types(t); len(got) != 2 {
		t.Errorf("greeting after updates closed = %v", got)
	}
}

// ─── WebSocket Tests ───────────────────────────────────────────────

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(v); err != nil {
		t.Fatalf("read: %v", err)
	}
}

// Scenario C: an observer connecting before any reading gets an empty
// snapshot followed by metadata.
func TestWebSocket_SnapshotOnConnect(t *testing.T) {
	env := testServer(t)
	ts := newHTTPTestServer(t, env)

	conn := dialWS(t, wsURL(ts, "/ws"))

	var snap SnapshotMessage
	readJSON(t, conn, &snap)
	if snap.Type != MsgTypeSnapshot {
		t.Fatalf("first message type = %q, want snapshot", snap.Type)
	}
	if len(snap.Devices) != 0 || len(snap.History) != 0 {
		t.Errorf("snapshot = %+v, want empty", snap)
	}

	var meta MetadataMessage
	readJSON(t, conn, &meta)
	if meta.Type != MsgTypeMetadata || meta.Topic != testSession.Topic {
		t.Errorf("second message = %+v, want metadata", meta)
	}
}

func TestWebSocket_ReceivesUpdates(t *testing.T) {
	env := testServer(t)
	ts := newHTTPTestServer(t, env)

	conn := dialWS(t, wsURL(ts, "/"))

	var skip map[string]any
	readJSON(t, conn, &skip)
	readJSON(t, conn, &skip)

	env.updates <- testUpdate(t, env.store, "A1")

	var upd struct {
		Type    string                    `json:"type"`
		Devices map[string]map[string]any `json:"devices"`
	}
	readJSON(t, conn, &upd)
	if upd.Type != MsgTypeUpdate {
		t.Fatalf("type = %q, want update", upd.Type)
	}
	if upd.Devices["A1"]["Temperature"] != 21.5 {
		t.Errorf("devices = %v", upd.Devices)
	}
}

func TestWebSocket_DisconnectUnregisters(t *testing.T) {
	env := testServer(t)
	ts := newHTTPTestServer(t, env)

	conn := dialWS(t, wsURL(ts, "/ws"))
	var skip map[string]any
	readJSON(t, conn, &skip)

	waitFor(t, "client registered", func() bool { return env.hub.ClientCount() == 1 })
	conn.Close()
	waitFor(t, "client unregistered", func() bool { return env.hub.ClientCount() == 0 })
}
