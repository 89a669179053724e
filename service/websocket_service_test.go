package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/memory-be/adapter"
	"github.com/tieubaoca/memory-be/types"
)

func dialSearchSocket(t *testing.T, ws *WebSocketService) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(ws.HandleSearch))
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHandleSearchStreamsProgressAndResult(t *testing.T) {
	ai := &stubAI{responses: []string{
		`{"primary_keywords": ["notes"]}`,
		`[]`,
		"Report body citing [1].",
	}}
	adapters := []adapter.SourceAdapter{
		&fakeAdapter{source: types.SourceDrive, docs: []types.Document{doc(types.SourceDrive, "d1", time.Now())}},
	}
	ws := NewWebSocketService(newTestPipeline(ai, adapters, nil))
	conn := dialSearchSocket(t, ws)

	require.NoError(t, conn.WriteJSON(types.QueryRequest{Query: "what did i read"}))

	var progress int
	for {
		var frame types.WebSocketFrame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Event == types.EventSearchProgress {
			progress++
			continue
		}
		require.Equal(t, types.EventSearchComplete, frame.Event)
		break
	}
	assert.GreaterOrEqual(t, progress, 5)
}

// A run that outlasts the read deadline must survive as long as the client
// answers the server's pings.
func TestHandleSearchOutlivesReadDeadline(t *testing.T) {
	ai := &stubAI{responses: []string{
		`{"primary_keywords": ["notes"]}`,
		`[]`,
		"body",
	}}
	adapters := []adapter.SourceAdapter{
		&fakeAdapter{
			source: types.SourceDrive,
			docs:   []types.Document{doc(types.SourceDrive, "d1", time.Now())},
			delay:  300 * time.Millisecond,
		},
	}
	ws := NewWebSocketService(newTestPipeline(ai, adapters, nil))
	ws.pingPeriod = 20 * time.Millisecond
	ws.pongWait = 100 * time.Millisecond
	conn := dialSearchSocket(t, ws)

	var pings int32
	conn.SetPingHandler(func(data string) error {
		atomic.AddInt32(&pings, 1)
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	require.NoError(t, conn.WriteJSON(types.QueryRequest{Query: "what did i read"}))

	sawComplete := false
	for {
		var frame types.WebSocketFrame
		if err := conn.ReadJSON(&frame); err != nil {
			break
		}
		if frame.Event == types.EventError {
			t.Fatalf("run failed: %s", frame.Message)
		}
		if frame.Event == types.EventSearchComplete {
			sawComplete = true
			break
		}
	}

	assert.True(t, sawComplete, "pipeline should finish despite running past the read deadline")
	assert.Greater(t, atomic.LoadInt32(&pings), int32(0), "server should have pinged")
}

func TestHandleSearchRejectsEmptyQuery(t *testing.T) {
	ws := NewWebSocketService(newTestPipeline(&stubAI{}, nil, nil))
	conn := dialSearchSocket(t, ws)

	require.NoError(t, conn.WriteJSON(types.QueryRequest{}))

	var frame types.WebSocketFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, types.EventError, frame.Event)
	assert.Equal(t, "query is required", frame.Message)
}
