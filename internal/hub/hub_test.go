package hub_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartclass/telemetry-server/internal/hub"
	"github.com/smartclass/telemetry-server/internal/utils"
)

func newTestHub(t *testing.T) (*hub.Hub, string) {
	t.Helper()

	pool := utils.NewWorkerPool(2)
	h := hub.NewHub(pool, 4, zerolog.Nop())

	server := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(server.Close)
	t.Cleanup(h.Close)

	return h, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dialObserver(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitObservers(t *testing.T, h *hub.Hub, want int) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if h.ObserverCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("observer count never reached %d", want)
}

// TestHub_BroadcastNewData verifies every connected observer receives
// the room-scoped invalidation event.
func TestHub_BroadcastNewData(t *testing.T) {
	h, url := newTestHub(t)

	first := dialObserver(t, url)
	second := dialObserver(t, url)
	waitObservers(t, h, 2)

	h.BroadcastNewData("ClassA")

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

		var event hub.Event
		require.NoError(t, conn.ReadJSON(&event))
		assert.Equal(t, hub.EventNewData, event.Event)
		assert.Equal(t, "ClassA", event.Room)
		assert.Empty(t, event.Message)
	}
}

// TestHub_BroadcastAlarm verifies alarm events carry room and message.
func TestHub_BroadcastAlarm(t *testing.T) {
	h, url := newTestHub(t)

	conn := dialObserver(t, url)
	waitObservers(t, h, 1)

	h.BroadcastAlarm("ClassB", "CO2 high")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var event hub.Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, hub.EventAlarm, event.Event)
	assert.Equal(t, "ClassB", event.Room)
	assert.Equal(t, "CO2 high", event.Message)
}

// TestHub_DisconnectedObserverIsDropped verifies broadcasting after an
// observer goes away neither errors nor leaks the observer.
func TestHub_DisconnectedObserverIsDropped(t *testing.T) {
	h, url := newTestHub(t)

	conn := dialObserver(t, url)
	survivor := dialObserver(t, url)
	waitObservers(t, h, 2)

	require.NoError(t, conn.Close())
	waitObservers(t, h, 1)

	h.BroadcastNewData("ClassA")

	require.NoError(t, survivor.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event hub.Event
	require.NoError(t, survivor.ReadJSON(&event))
	assert.Equal(t, "ClassA", event.Room)
}
