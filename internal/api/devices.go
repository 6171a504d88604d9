package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// StatusResponse reports the broker session and its live connection state.
type StatusResponse struct {
	BrokerURL string `json:"brokerURL"`
	Topic     string `json:"topic"`
	Connected bool   `json:"connected"`
}

// handleListDevices returns every device record in first-seen order.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.List())
}

// handleGetDevice returns a single device record.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, ok := s.store.Get(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleGetHistory returns a device's readings, newest first.
// Unknown devices have an empty history rather than a 404.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, s.store.History(id))
}

// handleStatus returns the broker URL, topic and connection state.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		BrokerURL: s.session.BrokerURL,
		Topic:     s.session.Topic,
	}
	if s.ingest != nil {
		resp.Connected = s.ingest.Connected()
	}
	writeJSON(w, http.StatusOK, resp)
}
