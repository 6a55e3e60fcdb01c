package ws

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"thread-sync/internal/observability"
	"thread-sync/internal/thread"
)

// ThreadWebSocketHandler streams window events for one thread view.
type ThreadWebSocketHandler struct {
	hub   *Hub
	store *thread.Store
}

// NewThreadWebSocketHandler constructs a ThreadWebSocketHandler.
func NewThreadWebSocketHandler(hub *Hub, store *thread.Store) *ThreadWebSocketHandler {
	return &ThreadWebSocketHandler{hub: hub, store: store}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and registers the client as a subscriber.
func (h *ThreadWebSocketHandler) Handle(c *gin.Context) {
	threadID, err := strconv.Atoi(c.Param("thread_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid thread id"})
		return
	}
	model := c.DefaultQuery("model", thread.ModelThread)

	ctx, span := otel.Tracer("thread-sync/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := userIDFromRequest(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return
	}

	// Materialize the view up front so push deliveries start reconciling
	// even before the client issues its first fetch.
	h.store.Thread(model, threadID, userID)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(model, threadID, conn, info)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	_ = observability.PublishEvent(ctx, "ws_events.threads", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   connPayload(model, threadID, info, "ws_connect", 0, ""),
	}, observability.BuildHeaders(requestID, traceID))

	// Keep connection alive and clean on close
	go func() {
		var closeReason string
		defer func() {
			h.hub.RemoveClient(model, threadID, conn)
			observability.DecWSActive()
			observability.IncWSEvent("ws_disconnect")
			_ = observability.PublishEvent(ctx, "ws_events.threads", observability.EventEnvelope{
				EventType: "ws_events",
				EventName: "ws_disconnect",
				Payload:   connPayload(model, threadID, info, "ws_disconnect", time.Since(info.ConnectedAt).Milliseconds(), closeReason),
			}, observability.BuildHeaders(requestID, traceID))
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("ws_error")
				}
				return
			}
		}
	}()
}

func userIDFromRequest(c *gin.Context) (int, error) {
	raw := c.GetHeader("X-User-ID")
	if raw == "" {
		raw = c.Query("user_id")
	}
	return strconv.Atoi(raw)
}

func connPayload(model string, threadID int, info ConnInfo, event string, durationMS int64, reason string) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"thread_model": model,
			"thread_id":    threadID,
			"event":        event,
			"conn_id":      info.ConnID,
			"duration_ms":  durationMS,
			"reason":       reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
}
