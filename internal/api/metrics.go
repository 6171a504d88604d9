package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	MQTT          MQTTMetrics    `json:"mqtt"`
	Devices       DeviceMetrics  `json:"devices"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains broker and ingest statistics.
type MQTTMetrics struct {
	Connected        bool   `json:"connected"`
	Topic            string `json:"topic"`
	MessagesAccepted uint64 `json:"messages_accepted"`
	MessagesRejected uint64 `json:"messages_rejected"`
}

// DeviceMetrics contains device store statistics.
type DeviceMetrics struct {
	Total          int    `json:"total"`
	Readings       uint64 `json:"readings"`
	HistoryEntries int    `json:"history_entries"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	// Collect runtime stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.session.Version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		MQTT: MQTTMetrics{
			Topic: s.session.Topic,
		},
	}

	if s.ingest != nil {
		st := s.ingest.Stats()
		metrics.MQTT.Connected = s.ingest.Connected()
		metrics.MQTT.MessagesAccepted = st.Accepted
		metrics.MQTT.MessagesRejected = st.Rejected
	}

	storeStats := s.store.Stats()
	metrics.Devices = DeviceMetrics{
		Total:          storeStats.Devices,
		Readings:       storeStats.Messages,
		HistoryEntries: storeStats.HistoryEntries,
	}

	writeJSON(w, http.StatusOK, metrics)
}
