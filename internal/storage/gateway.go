// Package storage owns the single logical connection to the readings
// store and the reconnect state machine around it. Store failures are
// always returned as soft errors; recovery happens in the background.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/smartclass/telemetry-server/internal/models"
)

// ErrUnavailable is the soft error returned while the store connection
// is down. Callers degrade to an empty or best-effort response; the
// reconnect already in progress will self-heal.
var ErrUnavailable = errors.New("readings store unavailable")

// Gateway is the narrow query contract to the readings store.
type Gateway interface {
	// Insert persists one reading.
	Insert(ctx context.Context, reading models.Reading) error

	// LatestPerRoom returns the most recent reading for every room,
	// ordered by room identifier.
	LatestPerRoom(ctx context.Context) ([]models.Reading, error)

	// History returns all readings for one room in chronological
	// order. An unknown room yields an empty slice, not an error.
	History(ctx context.Context, room string) ([]models.Reading, error)

	// DeleteOlderThan removes readings older than age and reports how
	// many rows were removed.
	DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error)

	// Connected reports whether the store connection is currently up.
	Connected() bool

	// Close tears the connection down and stops any reconnect attempt.
	Close()
}
