// Package alarms tracks the current alarm state per room. State is
// in-memory only: alarms are operational signals, not historical
// record, and are lost on restart.
package alarms

import (
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/smartclass/telemetry-server/internal/models"
)

// Notifier pushes alarm events to connected observers.
type Notifier interface {
	BroadcastAlarm(room, message string)
}

// Registry holds the latest alarm raised for each room. An alarm stays
// active until a new raise for the same room overwrites it; ordinary
// readings never clear it.
type Registry struct {
	states   cmap.ConcurrentMap[string, models.AlarmState]
	notifier Notifier
	logger   zerolog.Logger
}

// NewRegistry creates an empty alarm registry.
func NewRegistry(notifier Notifier, logger zerolog.Logger) *Registry {
	return &Registry{
		states:   cmap.New[models.AlarmState](),
		notifier: notifier,
		logger:   logger,
	}
}

// Raise overwrites the alarm state for the room, stamps it, and
// notifies observers. The notification names only the affected room.
func (r *Registry) Raise(room, message string) models.AlarmState {
	state := models.AlarmState{
		Active:   true,
		Message:  message,
		RaisedAt: time.Now(),
	}
	r.states.Set(room, state)

	r.logger.Warn().Str("room", room).Str("message", message).Msg("Alarm raised")
	r.notifier.BroadcastAlarm(room, message)

	return state
}

// Get returns the current alarm state for the room. Rooms that never
// raised an alarm get the inactive zero state.
func (r *Registry) Get(room string) models.AlarmState {
	if state, ok := r.states.Get(room); ok {
		return state
	}
	return models.AlarmState{}
}
