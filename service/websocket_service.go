package service

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tieubaoca/memory-be/types"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

// WebSocketService runs searches over a websocket, streaming a progress
// frame per pipeline stage and a final result frame. One search per
// connection; the peer disconnecting cancels the run. The server pings the
// client so long-running pipelines outlive the read deadline.
type WebSocketService struct {
	pipeline *PipelineService
	upgrader websocket.Upgrader

	pingPeriod time.Duration
	pongWait   time.Duration
}

func NewWebSocketService(pipeline *PipelineService) *WebSocketService {
	return &WebSocketService{
		pipeline: pipeline,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins (adjust for production)
			},
		},
		pingPeriod: wsPingPeriod,
		pongWait:   wsPongWait,
	}
}

func (s *WebSocketService) HandleSearch(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(512 * 1024) // 512KB max message size
	conn.SetReadDeadline(time.Now().Add(s.pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.pongWait))
		return nil
	})

	_, p, err := conn.ReadMessage()
	if err != nil {
		return
	}
	var req types.QueryRequest
	if err := json.Unmarshal(p, &req); err != nil {
		s.writeError(conn, "invalid request payload")
		return
	}
	if req.Query == "" {
		s.writeError(conn, "query is required")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var writeMu sync.Mutex
	writeFrame := func(frame types.WebSocketFrame) {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(frame); err != nil {
			log.Println("Write error:", err)
		}
	}

	// The read pump only watches for the peer going away; the pipeline run
	// is the writer. Cancel the run the moment the connection drops. Every
	// read (data or pong) pushes the deadline out.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
					log.Printf("WebSocket read error: %v", err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.pongWait))
		}
	}()

	// Keep-alive: a pipeline run can take minutes, so the server pings and
	// the pong handler extends the read deadline.
	go func() {
		ticker := time.NewTicker(s.pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				writeMu.Lock()
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	cfg := types.PipelineConfig{ExcludedSourceIDs: req.ExcludedFolderIDs}
	result, err := s.pipeline.Run(ctx, req.Query, cfg, func(event types.ProgressEvent) {
		frame := types.WebSocketFrame{Event: types.EventSearchProgress, Data: event}
		if event.Stage == types.StageError {
			frame.Event = types.EventError
			frame.Message = event.Message
		}
		writeFrame(frame)
	})
	if err != nil {
		// The error event was already emitted as a progress frame.
		return
	}

	writeFrame(types.WebSocketFrame{Event: types.EventSearchComplete, Data: result})
}

func (s *WebSocketService) writeError(conn *websocket.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(types.WebSocketFrame{Event: types.EventError, Message: message}); err != nil {
		log.Println("Write error:", err)
	}
}

func (s *WebSocketService) Health() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}
