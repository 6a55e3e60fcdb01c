package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"thread-sync/internal/models"
	"thread-sync/internal/observability"
)

type roomKey struct {
	Model    string
	ThreadID int
}

// Hub maintains active websocket subscriber rooms, one per thread view.
type Hub struct {
	rooms map[roomKey]map[*websocket.Conn]ConnInfo
	mu    sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms: make(map[roomKey]map[*websocket.Conn]ConnInfo),
	}
}

// AddClient registers a websocket connection as a subscriber of a thread.
func (h *Hub) AddClient(model string, threadID int, conn *websocket.Conn, info ConnInfo) {
	key := roomKey{Model: model, ThreadID: threadID}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[key]; !ok {
		h.rooms[key] = make(map[*websocket.Conn]ConnInfo)
	}
	h.rooms[key][conn] = info
}

// RemoveClient removes a subscriber connection.
func (h *Hub) RemoveClient(model string, threadID int, conn *websocket.Conn) {
	key := roomKey{Model: model, ThreadID: threadID}
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[key]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, key)
		}
	}
}

// PublishWindowEvent sends a window change to every subscriber of the thread.
// It satisfies the engine's notifier contract.
func (h *Hub) PublishWindowEvent(event models.WindowEvent) {
	key := roomKey{Model: event.ThreadModel, ThreadID: event.ThreadID}
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.rooms[key]))
	for conn := range h.rooms[key] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	payload, _ := json.Marshal(event)
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("websocket write error: %v", err)
			conn.Close()
			h.publishWSError(event.ThreadModel, event.ThreadID, conn, err)
			h.RemoveClient(event.ThreadModel, event.ThreadID, conn)
		}
	}
}

func (h *Hub) publishWSError(model string, threadID int, conn *websocket.Conn, err error) {
	info, ok := h.getConnInfo(model, threadID, conn)
	if !ok {
		return
	}

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"thread_model": model,
			"thread_id":    threadID,
			"event":        "ws_error",
			"conn_id":      info.ConnID,
			"duration_ms":  time.Since(info.ConnectedAt).Milliseconds(),
			"reason":       err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.threads", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("ws_error")
}

func (h *Hub) getConnInfo(model string, threadID int, conn *websocket.Conn) (ConnInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if infos, ok := h.rooms[roomKey{Model: model, ThreadID: threadID}]; ok {
		info, exists := infos[conn]
		return info, exists
	}
	return ConnInfo{}, false
}
