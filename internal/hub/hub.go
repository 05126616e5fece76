// Package hub fans out change notifications to connected observers
// over websockets. Events are cache-invalidation signals: observers
// re-pull the read APIs themselves, delivery is best-effort.
package hub

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/smartclass/telemetry-server/internal/utils"
)

const writeTimeout = 5 * time.Second

// Event is one push notification. NewData names the room whose state
// changed; Alarm additionally carries the alarm message. Observers
// filter for the rooms they care about.
type Event struct {
	Event   string `json:"event"`
	Room    string `json:"room"`
	Message string `json:"message,omitempty"`
}

// Event kinds.
const (
	EventNewData = "newData"
	EventAlarm   = "alarm"
)

// Hub tracks connected observers and broadcasts events to them.
// Observers connect and disconnect at any time; a send to a dead or
// slow observer drops that observer, never errors.
type Hub struct {
	upgrader   websocket.Upgrader
	observers  cmap.ConcurrentMap[string, *observer]
	pool       *utils.WorkerPool
	sendBuffer int
	logger     zerolog.Logger
}

type observer struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
	send   chan Event
}

// trySend queues an event without blocking. It reports false when the
// observer is gone or its buffer is full.
func (o *observer) trySend(event Event) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	select {
	case o.send <- event:
		return true
	default:
		return false
	}
}

// close tears down an observer exactly once. The writer goroutine
// exits when the send channel closes.
func (o *observer) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	close(o.send)
	_ = o.conn.Close()
}

// NewHub creates a hub whose fan-out runs on the given worker pool.
func NewHub(pool *utils.WorkerPool, sendBuffer int, logger zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		observers:  cmap.New[*observer](),
		pool:       pool,
		sendBuffer: sendBuffer,
		logger:     logger,
	}
}

// HandleWS upgrades the request to a websocket and registers the
// observer until it disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Observer websocket upgrade failed")
		return
	}

	obs := &observer{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan Event, h.sendBuffer),
	}
	h.observers.Set(obs.id, obs)
	h.logger.Info().Str("observer_id", obs.id).Msg("Observer connected")

	go h.writePump(obs)
	h.readPump(obs)
}

// writePump drains the observer's send channel onto the wire.
func (h *Hub) writePump(obs *observer) {
	for event := range obs.send {
		_ = obs.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := obs.conn.WriteJSON(event); err != nil {
			h.drop(obs)
			return
		}
	}
}

// readPump blocks until the observer goes away. Inbound frames carry
// no meaning; the channel is push-only.
func (h *Hub) readPump(obs *observer) {
	defer h.drop(obs)
	for {
		if _, _, err := obs.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// drop unregisters and closes an observer. Safe to call from both
// pumps and from broadcast workers.
func (h *Hub) drop(obs *observer) {
	if h.observers.Has(obs.id) {
		h.observers.Remove(obs.id)
		h.logger.Info().Str("observer_id", obs.id).Msg("Observer disconnected")
	}
	obs.close()
}

// BroadcastNewData tells every observer that the room has a new
// reading to pull.
func (h *Hub) BroadcastNewData(room string) {
	h.broadcast(Event{Event: EventNewData, Room: room})
}

// BroadcastAlarm pushes an alarm event for the room to every observer.
func (h *Hub) BroadcastAlarm(room, message string) {
	h.broadcast(Event{Event: EventAlarm, Room: room, Message: message})
}

func (h *Hub) broadcast(event Event) {
	for item := range h.observers.IterBuffered() {
		obs := item.Val
		h.pool.Submit(func() {
			if !obs.trySend(event) {
				// Observer is gone or not draining its buffer; cut it
				// loose rather than block the fan-out.
				h.drop(obs)
			}
		})
	}
}

// ObserverCount returns the number of currently connected observers.
func (h *Hub) ObserverCount() int {
	return h.observers.Count()
}

// Close disconnects every observer and stops the broadcast pool.
func (h *Hub) Close() {
	for item := range h.observers.IterBuffered() {
		h.drop(item.Val)
	}
	h.pool.Shutdown()
}
