// Package api is the HTTP surface of the telemetry server: sensor
// ingestion, live-state and history queries, alarms, the flow gate and
// server status.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/smartclass/telemetry-server/internal/alarms"
	"github.com/smartclass/telemetry-server/internal/derived"
	"github.com/smartclass/telemetry-server/internal/flow"
	"github.com/smartclass/telemetry-server/internal/health"
	"github.com/smartclass/telemetry-server/internal/models"
	"github.com/smartclass/telemetry-server/internal/storage"
)

// Notifier pushes new-data events to connected observers.
type Notifier interface {
	BroadcastNewData(room string)
}

// ObserverCounter reports how many observers are connected, for the
// status endpoint.
type ObserverCounter interface {
	ObserverCount() int
}

// Handler serves the telemetry API.
type Handler struct {
	gateway          storage.Gateway
	alarms           *alarms.Registry
	gate             *flow.Gate
	notifier         Notifier
	observers        ObserverCounter
	health           *health.Registry
	offlineThreshold time.Duration
	requireCO2       bool
	startedAt        time.Time
	logger           zerolog.Logger
}

// NewHandler wires the API handler to its collaborators.
func NewHandler(gateway storage.Gateway, alarmRegistry *alarms.Registry, gate *flow.Gate,
	notifier Notifier, observers ObserverCounter, healthRegistry *health.Registry,
	offlineThreshold time.Duration, requireCO2 bool, logger zerolog.Logger) *Handler {

	return &Handler{
		gateway:          gateway,
		alarms:           alarmRegistry,
		gate:             gate,
		notifier:         notifier,
		observers:        observers,
		health:           healthRegistry,
		offlineThreshold: offlineThreshold,
		requireCO2:       requireCO2,
		startedAt:        time.Now(),
		logger:           logger,
	}
}

// RegisterRoutes maps the API paths onto the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/data", h.handleIngest)
	mux.HandleFunc("GET /api/getdata", h.handleLatest)
	mux.HandleFunc("GET /api/history", h.handleHistory)
	mux.HandleFunc("POST /api/alarm", h.handleRaiseAlarm)
	mux.HandleFunc("GET /api/alarm", h.handleGetAlarm)
	mux.HandleFunc("POST /api/flow", h.handleSetFlow)
	mux.HandleFunc("GET /api/flow", h.handleGetFlow)
	mux.HandleFunc("GET /api/status", h.handleStatus)
}

// handleIngest accepts one sensor reading. Sensors are fire-and-forget
// devices: the response is 200 even when the store is down, so a
// transient server hiccup never turns into a sensor retry storm. The
// gateway's reconnect owns durability recovery.
func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var payload models.ReadingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := payload.Validate(h.requireCO2); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reading := payload.Reading(time.Now())
	if err := h.gateway.Insert(r.Context(), reading); err != nil {
		h.logger.Error().Err(err).Str("room", reading.Room).
			Msg("Reading not persisted, acking sensor anyway")
		h.writeJSON(w, map[string]string{"status": "OK"})
		return
	}

	h.logger.Debug().
		Str("room", reading.Room).
		Float64("temperature", reading.Temperature).
		Float64("humidity", reading.Humidity).
		Msg("Reading ingested")

	h.notifier.BroadcastNewData(reading.Room)
	h.writeJSON(w, map[string]string{"status": "OK"})
}

// handleLatest returns the derived live state of every room, ordered
// by room identifier. A store outage degrades to an empty list.
func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	readings, err := h.gateway.LatestPerRoom(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Latest query failed, returning empty state")
		h.writeJSON(w, []models.RoomState{})
		return
	}

	now := time.Now()
	states := make([]models.RoomState, 0, len(readings))
	for _, reading := range readings {
		states = append(states, models.RoomState{
			Room:        reading.Room,
			Temperature: reading.Temperature,
			Humidity:    reading.Humidity,
			CO2:         reading.CO2,
			FeelsLike:   derived.FeelsLike(reading.Temperature, reading.Humidity),
			LastSeen:    reading.Timestamp,
			Online:      derived.IsOnline(reading.Timestamp, now, h.offlineThreshold),
		})
	}
	h.writeJSON(w, states)
}

// handleHistory returns the chronological raw readings for one room.
// Unknown rooms yield an empty array; charting enrichment is a UI
// concern.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		http.Error(w, "missing room parameter", http.StatusBadRequest)
		return
	}

	readings, err := h.gateway.History(r.Context(), room)
	if err != nil {
		h.logger.Error().Err(err).Str("room", room).
			Msg("History query failed, returning empty history")
		h.writeJSON(w, []models.HistoryPoint{})
		return
	}

	points := make([]models.HistoryPoint, 0, len(readings))
	for _, reading := range readings {
		points = append(points, models.HistoryPoint{
			Temperature: reading.Temperature,
			Humidity:    reading.Humidity,
			CO2:         reading.CO2,
			Timestamp:   reading.Timestamp,
		})
	}
	h.writeJSON(w, points)
}

// handleRaiseAlarm records a sensor-originated alarm for one room and
// returns the stored state.
func (h *Handler) handleRaiseAlarm(w http.ResponseWriter, r *http.Request) {
	var payload models.AlarmPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if payload.Room == "" || payload.Message == "" {
		http.Error(w, "missing room or message", http.StatusBadRequest)
		return
	}

	state := h.alarms.Raise(payload.Room, payload.Message)
	h.writeJSON(w, state)
}

// handleGetAlarm returns the current alarm state for one room, the
// inactive default when it never raised one.
func (h *Handler) handleGetAlarm(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	h.writeJSON(w, h.alarms.Get(room))
}

// handleSetFlow sets the global flow gate and echoes the new value.
func (h *Handler) handleSetFlow(w http.ResponseWriter, r *http.Request) {
	var payload models.FlowPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if payload.Enabled == nil {
		http.Error(w, "missing enabled field", http.StatusBadRequest)
		return
	}

	h.gate.Set(*payload.Enabled)
	h.logger.Info().Bool("enabled", h.gate.Enabled()).Msg("Flow gate updated")
	h.writeJSON(w, models.FlowPayload{Enabled: boolPtr(h.gate.Enabled())})
}

// handleGetFlow returns the gate value actuator devices poll for.
func (h *Handler) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, models.FlowPayload{Enabled: boolPtr(h.gate.Enabled())})
}

// handleStatus reports uptime, store connectivity and self-metrics.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	report := models.StatusReport{
		UptimeSeconds:    time.Since(h.startedAt).Seconds(),
		StorageConnected: h.gateway.Connected(),
		Observers:        h.observers.ObserverCount(),
		Metrics:          h.health.Snapshot(r.Context()),
	}
	h.writeJSON(w, report)
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func boolPtr(b bool) *bool {
	return &b
}
