// Package flow holds the global advisory flow gate polled by actuator
// devices. The server itself never acts on the value.
package flow

import "sync/atomic"

// Gate is a process-wide boolean toggle. Disabled at start, reset on
// restart, last writer wins under concurrent access.
type Gate struct {
	enabled atomic.Bool
}

// NewGate returns a gate in its disabled default state.
func NewGate() *Gate {
	return &Gate{}
}

// Set stores the gate value.
func (g *Gate) Set(enabled bool) {
	g.enabled.Store(enabled)
}

// Enabled returns the current gate value.
func (g *Gate) Enabled() bool {
	return g.enabled.Load()
}
