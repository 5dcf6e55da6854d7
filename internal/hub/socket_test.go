package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialSocket(t *testing.T, h *SocketHub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

func TestSocketSendsStateOnConnect(t *testing.T) {
	h := NewSocketHub(func() any { return map[string]string{"currentToken": "0xabc"} }, nil)
	go h.Run()

	conn := dialSocket(t, h)
	ev := readEvent(t, conn)
	assert.Equal(t, "state", ev.Event)

	var data map[string]string
	require.NoError(t, json.Unmarshal(ev.Data, &data))
	assert.Equal(t, "0xabc", data["currentToken"])
}

func TestSocketBroadcastReachesSubscriber(t *testing.T) {
	h := NewSocketHub(func() any { return nil }, nil)
	go h.Run()

	conn := dialSocket(t, h)
	readEvent(t, conn) // state frame

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	h.Broadcast("signal", map[string]string{"agentName": "trading-agent"})
	ev := readEvent(t, conn)
	assert.Equal(t, "signal", ev.Event)
	assert.NotZero(t, ev.Timestamp)
}

// Registration and fan-out run on the same loop, so a subscriber always
// receives the snapshot before any event broadcast after it joined.
func TestSnapshotDeliveredBeforeSubsequentBroadcasts(t *testing.T) {
	h := NewSocketHub(func() any { return map[string]string{"phase": "snap"} }, nil)
	go h.Run()

	client := &SocketClient{id: "t", hub: h, send: make(chan []byte, sendQueueSize)}
	h.register <- client
	h.Broadcast("signal", map[string]string{"agentName": "trading-agent"})

	decode := func(raw []byte) Event {
		var ev Event
		require.NoError(t, json.Unmarshal(raw, &ev))
		return ev
	}
	readFrame := func() Event {
		select {
		case raw := <-client.send:
			return decode(raw)
		case <-time.After(2 * time.Second):
			t.Fatal("frame never arrived")
			return Event{}
		}
	}

	assert.Equal(t, "state", readFrame().Event)
	assert.Equal(t, "signal", readFrame().Event)
}

func TestSocketTokenAnalyzeRouting(t *testing.T) {
	got := make(chan string, 1)
	h := NewSocketHub(func() any { return nil }, func(addr string) { got <- addr })
	go h.Run()

	conn := dialSocket(t, h)
	readEvent(t, conn) // state frame

	msg := `{"event":"token:analyze","data":{"tokenAddress":"0xDEADbeefDEADbeef"}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))

	select {
	case addr := <-got:
		assert.Equal(t, "0xdeadbeefdeadbeef", addr)
	case <-time.After(2 * time.Second):
		t.Fatal("token:analyze never reached the handler")
	}
}

func TestSocketTokenAnalyzeRejectsShortAddress(t *testing.T) {
	h := NewSocketHub(func() any { return nil }, func(string) { t.Fatal("handler must not run") })
	go h.Run()

	conn := dialSocket(t, h)
	readEvent(t, conn) // state frame

	msg := `{"event":"token:analyze","data":"0xshort"}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))

	ev := readEvent(t, conn)
	assert.Equal(t, "error", ev.Event)
}

func TestParseAnalyzeTarget(t *testing.T) {
	addr, ok := parseAnalyzeTarget(json.RawMessage(`{"tokenAddress":"0xAbCdEf123456"}`))
	require.True(t, ok)
	assert.Equal(t, "0xabcdef123456", addr)

	addr, ok = parseAnalyzeTarget(json.RawMessage(`"0xAbCdEf123456"`))
	require.True(t, ok)
	assert.Equal(t, "0xabcdef123456", addr)

	_, ok = parseAnalyzeTarget(json.RawMessage(`"0x123"`))
	assert.False(t, ok)

	_, ok = parseAnalyzeTarget(json.RawMessage(`{"tokenAddress":""}`))
	assert.False(t, ok)

	_, ok = parseAnalyzeTarget(json.RawMessage(`42`))
	assert.False(t, ok)
}
