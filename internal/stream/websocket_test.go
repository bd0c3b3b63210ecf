package stream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/birdhouse/internal/events"
)

func TestHandleEventsStreamsJSON(t *testing.T) {
	hub := events.NewHub(8)
	srv := httptest.NewServer(http.HandlerFunc(NewServer(hub).HandleEvents))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(events.Event{Type: events.Action, RunID: "r1", Action: "scroll", Remaining: 90})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got events.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, events.Action, got.Type)
	assert.Equal(t, "r1", got.RunID)
	assert.Equal(t, "scroll", got.Action)
	assert.Equal(t, 90, got.Remaining)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}
