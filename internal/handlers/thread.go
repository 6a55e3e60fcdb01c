package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"thread-sync/internal/telemetry"
	"thread-sync/internal/thread"
)

// ThreadHandler exposes the sync engine operations over HTTP.
type ThreadHandler struct {
	store   *thread.Store
	emitter *telemetry.AuditEmitter
}

// NewThreadHandler builds a ThreadHandler.
func NewThreadHandler(store *thread.Store, emitter *telemetry.AuditEmitter) *ThreadHandler {
	return &ThreadHandler{store: store, emitter: emitter}
}

// GetWindow returns the caller's materialized window for a thread.
func (h *ThreadHandler) GetWindow(c *gin.Context) {
	t, ok := h.threadFromRequest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, t.Snapshot())
}

// Fetch extends or refreshes the window. Direction "older"/"newer" continues
// past an edge; "new" catches up to the newest messages.
func (h *ThreadHandler) Fetch(c *gin.Context) {
	t, ok := h.threadFromRequest(c)
	if !ok {
		return
	}

	var req struct {
		Direction string `json:"direction" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var err error
	switch req.Direction {
	case "older":
		err = t.FetchMoreMessages(c.Request.Context(), thread.DirectionOlder)
	case "newer":
		err = t.FetchMoreMessages(c.Request.Context(), thread.DirectionNewer)
	case "new":
		err = t.FetchNewMessages(c.Request.Context())
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid direction"})
		return
	}
	if err != nil {
		h.audit(c, "ERROR", "fetch failed: "+err.Error())
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch messages"})
		return
	}

	c.JSON(http.StatusOK, t.Snapshot())
}

// LoadAround jumps the window to the page surrounding a message, or to the
// newest page when no target is given.
func (h *ThreadHandler) LoadAround(c *gin.Context) {
	t, ok := h.threadFromRequest(c)
	if !ok {
		return
	}

	var req struct {
		Around *int `json:"around"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := t.LoadAround(c.Request.Context(), req.Around); err != nil {
		h.audit(c, "ERROR", "load around failed: "+err.Error())
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, t.Snapshot())
}

// PostMessage submits a message optimistically. On transport failure the
// placeholder is returned with its temporary id so the caller can retry or
// discard it.
func (h *ThreadHandler) PostMessage(c *gin.Context) {
	t, ok := h.threadFromRequest(c)
	if !ok {
		return
	}

	var req struct {
		Body       string `json:"body" binding:"required"`
		ParentID   *int   `json:"parent_id"`
		MentionIDs []int  `json:"mention_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := t.Post(c.Request.Context(), req.Body, thread.PostOptions{
		ParentID:   req.ParentID,
		MentionIDs: req.MentionIDs,
	})
	if err != nil {
		h.audit(c, "ERROR", "post failed: "+err.Error())
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to store message", "message": msg})
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// MarkAsRead acknowledges the newest window message as seen.
func (h *ThreadHandler) MarkAsRead(c *gin.Context) {
	t, ok := h.threadFromRequest(c)
	if !ok {
		return
	}

	if err := t.MarkAsRead(c.Request.Context()); err != nil {
		h.audit(c, "ERROR", "mark as read failed: "+err.Error())
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to mark as read"})
		return
	}

	c.Status(http.StatusNoContent)
}

// EvictThread drops the caller's materialized view.
func (h *ThreadHandler) EvictThread(c *gin.Context) {
	threadID, err := strconv.Atoi(c.Param("thread_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid thread id"})
		return
	}
	h.store.Evict(threadModel(c), threadID, c.GetInt("userID"))
	c.Status(http.StatusNoContent)
}

func (h *ThreadHandler) threadFromRequest(c *gin.Context) (*thread.Thread, bool) {
	threadID, err := strconv.Atoi(c.Param("thread_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid thread id"})
		return nil, false
	}
	return h.store.Thread(threadModel(c), threadID, c.GetInt("userID")), true
}

func threadModel(c *gin.Context) string {
	model := c.DefaultQuery("model", thread.ModelThread)
	if model != thread.ModelThread && model != thread.ModelChannel {
		return thread.ModelThread
	}
	return model
}

func (h *ThreadHandler) audit(c *gin.Context, level, text string) {
	if h.emitter == nil {
		return
	}
	h.emitter.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
