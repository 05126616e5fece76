package models

import (
	"errors"
	"time"
)

// Reading is a single environmental sample reported by a room sensor.
// Readings are immutable once persisted; only the retention sweeper
// removes them.
type Reading struct {
	Room        string    `json:"room"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	CO2         *float64  `json:"co2,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// RoomState is the derived live view of a room, recomputed on every
// query and never persisted.
type RoomState struct {
	Room        string    `json:"room"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	CO2         *float64  `json:"co2,omitempty"`
	FeelsLike   float64   `json:"feelsLike"`
	LastSeen    time.Time `json:"lastSeen"`
	Online      bool      `json:"online"`
}

// HistoryPoint is one chronological sample in a room's history
// response. The room itself is implied by the query.
type HistoryPoint struct {
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	CO2         *float64  `json:"co2,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// AlarmState is the current alarm for a room. The zero value is the
// inactive default returned for rooms that never raised one.
type AlarmState struct {
	Active   bool      `json:"active"`
	Message  string    `json:"message,omitempty"`
	RaisedAt time.Time `json:"raisedAt,omitzero"`
}

// Validation errors for incoming sensor payloads.
var (
	ErrMissingRoom        = errors.New("missing room identifier")
	ErrMissingTemperature = errors.New("missing or non-numeric temperature")
	ErrMissingHumidity    = errors.New("missing or non-numeric humidity")
	ErrMissingCO2         = errors.New("missing or non-numeric co2")
)

// ReadingPayload is an incoming reading as sent by a sensor, over HTTP
// or MQTT. Pointer fields distinguish absent values from zero values.
type ReadingPayload struct {
	Room        string     `json:"room"`
	Temperature *float64   `json:"temperature"`
	Humidity    *float64   `json:"humidity"`
	CO2         *float64   `json:"co2"`
	Timestamp   *time.Time `json:"timestamp"`
}

// Validate checks the payload for required fields. CO2 is only
// required when the deployment profile says the sensors carry a CO2
// probe.
func (p *ReadingPayload) Validate(requireCO2 bool) error {
	if p.Room == "" {
		return ErrMissingRoom
	}
	if p.Temperature == nil {
		return ErrMissingTemperature
	}
	if p.Humidity == nil {
		return ErrMissingHumidity
	}
	if requireCO2 && p.CO2 == nil {
		return ErrMissingCO2
	}
	return nil
}

// Reading converts a validated payload into a Reading, assigning now
// as the timestamp when the sensor did not supply one.
func (p *ReadingPayload) Reading(now time.Time) Reading {
	ts := now
	if p.Timestamp != nil {
		ts = *p.Timestamp
	}
	return Reading{
		Room:        p.Room,
		Temperature: *p.Temperature,
		Humidity:    *p.Humidity,
		CO2:         p.CO2,
		Timestamp:   ts,
	}
}

// AlarmPayload is an incoming alarm event from a sensor.
type AlarmPayload struct {
	Room    string `json:"room"`
	Message string `json:"message"`
}

// FlowPayload sets the global flow gate.
type FlowPayload struct {
	Enabled *bool `json:"enabled"`
}

// StatusReport is the server self-diagnostics returned by the status
// endpoint.
type StatusReport struct {
	UptimeSeconds    float64            `json:"uptimeSeconds"`
	StorageConnected bool               `json:"storageConnected"`
	Observers        int                `json:"observers"`
	Metrics          map[string]float64 `json:"metrics,omitempty"`
}
