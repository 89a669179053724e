package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tieubaoca/memory-be/adapter"
	"github.com/tieubaoca/memory-be/types"
)

// BridgeHandler receives chat conversation exports pushed by the browser
// extension and loads them into the matching chat-archive adapter.
type BridgeHandler struct {
	archives map[types.SourceType]*adapter.ChatArchiveAdapter
}

func NewBridgeHandler(archives ...*adapter.ChatArchiveAdapter) *BridgeHandler {
	h := &BridgeHandler{archives: make(map[types.SourceType]*adapter.ChatArchiveAdapter)}
	for _, a := range archives {
		if a != nil {
			h.archives[a.Type()] = a
		}
	}
	return h
}

func (h *BridgeHandler) HandlePushConversations(c *gin.Context) {
	var payload types.ConversationPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, types.DataResponse{
			Status:  "error",
			Message: "Invalid request body",
		})
		return
	}

	archive, ok := h.archives[types.SourceType(payload.Source)]
	if !ok {
		c.JSON(http.StatusBadRequest, types.DataResponse{
			Status:  "error",
			Message: "unknown chat source: " + payload.Source,
		})
		return
	}

	count, err := archive.Ingest(payload.Conversations)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, types.DataResponse{
			Status:  "error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, types.DataResponse{
		Status: "success",
		Data: map[string]any{
			"ingested": count,
			"total":    archive.Len(),
		},
	})
}

// HandleArchiveStatus reports how many conversations each archive holds so
// the extension can tell whether a push landed.
func (h *BridgeHandler) HandleArchiveStatus(c *gin.Context) {
	status := make(map[string]int, len(h.archives))
	for source, archive := range h.archives {
		status[string(source)] = archive.Len()
	}
	c.JSON(http.StatusOK, types.DataResponse{
		Status: "success",
		Data:   status,
	})
}
