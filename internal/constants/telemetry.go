package constants

import "time"

// Defaults applied when the configuration leaves a value unset.
const (
	// DefaultOfflineThreshold is how long a room may stay silent
	// before it is classified as offline.
	DefaultOfflineThreshold = 5 * time.Minute

	// DefaultRetentionHorizon is the maximum age of a stored reading.
	DefaultRetentionHorizon = 6 * time.Hour

	// DefaultRetentionInterval is how often the retention sweeper runs.
	DefaultRetentionInterval = 15 * time.Minute

	// DefaultQueryTimeout bounds every store operation.
	DefaultQueryTimeout = 3 * time.Second

	// DefaultConnectTimeout bounds a single store connection attempt.
	DefaultConnectTimeout = 8 * time.Second

	// DefaultReconnectBackoff is the delay between failed store
	// connection attempts.
	DefaultReconnectBackoff = 5 * time.Second

	// DefaultHubSendBuffer is the per-observer outbound event buffer.
	DefaultHubSendBuffer = 16

	// DefaultHubWorkers is the size of the broadcast worker pool.
	DefaultHubWorkers = 4

	// DefaultServerPort is the HTTP listen port.
	DefaultServerPort = 3000
)
