package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tieubaoca/memory-be/service"
	"github.com/tieubaoca/memory-be/types"
)

// SearchHandler serves the synchronous search endpoints. The websocket
// variant with live progress lives in service.WebSocketService; this one
// blocks until the pipeline finishes.
type SearchHandler struct {
	pipeline *service.PipelineService
	history  service.SearchHistoryLister
}

func NewSearchHandler(pipeline *service.PipelineService, history service.SearchHistoryLister) *SearchHandler {
	return &SearchHandler{
		pipeline: pipeline,
		history:  history,
	}
}

func (h *SearchHandler) HandleSearch(c *gin.Context) {
	var req types.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.DataResponse{
			Status:  "error",
			Message: "Invalid request body",
		})
		return
	}
	if req.Query == "" {
		c.JSON(http.StatusBadRequest, types.DataResponse{
			Status:  "error",
			Message: "query is required",
		})
		return
	}

	cfg := types.PipelineConfig{ExcludedSourceIDs: req.ExcludedFolderIDs}
	result, err := h.pipeline.Run(c.Request.Context(), req.Query, cfg, nil)
	if err != nil {
		status := http.StatusInternalServerError
		var fatal *types.FatalPipelineError
		if !errors.As(err, &fatal) && c.Request.Context().Err() != nil {
			status = http.StatusRequestTimeout
		}
		c.JSON(status, types.DataResponse{
			Status:  "error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, types.DataResponse{
		Status: "success",
		Data:   result,
	})
}

func (h *SearchHandler) HandleSearchHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotImplemented, types.DataResponse{
			Status:  "error",
			Message: "search history is not configured",
		})
		return
	}
	limit := intQuery(c, "limit", 20)
	offset := intQuery(c, "offset", 0)
	records, err := h.history.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.DataResponse{
			Status:  "error",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, types.DataResponse{
		Status: "success",
		Data:   records,
	})
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
