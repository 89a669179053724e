package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tieubaoca/memory-be/repository"
	"github.com/tieubaoca/memory-be/types"
)

// ConfigHandler exposes the excluded-folder settings the frontend edits.
type ConfigHandler struct {
	excluded *repository.ExcludedFoldersRepo
}

func NewConfigHandler(excluded *repository.ExcludedFoldersRepo) *ConfigHandler {
	return &ConfigHandler{excluded: excluded}
}

func (h *ConfigHandler) HandleListExcludedFolders(c *gin.Context) {
	c.JSON(http.StatusOK, types.DataResponse{
		Status: "success",
		Data: map[string]any{
			"excluded_folders": h.excluded.List(),
		},
	})
}

func (h *ConfigHandler) HandleAddExcludedFolder(c *gin.Context) {
	var req types.ExcludedFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.DataResponse{
			Status:  "error",
			Message: "Invalid request body",
		})
		return
	}
	if err := h.excluded.Add(req.FolderID, req.Name, req.Description); err != nil {
		c.JSON(http.StatusBadRequest, types.DataResponse{
			Status:  "error",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, types.DataResponse{Status: "success"})
}

func (h *ConfigHandler) HandleRemoveExcludedFolder(c *gin.Context) {
	folderID := c.Param("folder_id")
	if err := h.excluded.Remove(folderID); err != nil {
		c.JSON(http.StatusNotFound, types.DataResponse{
			Status:  "error",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, types.DataResponse{Status: "success"})
}

func (h *ConfigHandler) HandleToggleExcludedFolder(c *gin.Context) {
	folderID := c.Param("folder_id")
	var req types.ExcludedFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.DataResponse{
			Status:  "error",
			Message: "Invalid request body",
		})
		return
	}
	if err := h.excluded.SetEnabled(folderID, req.Enabled); err != nil {
		c.JSON(http.StatusNotFound, types.DataResponse{
			Status:  "error",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, types.DataResponse{Status: "success"})
}

func (h *ConfigHandler) HandleReloadExcludedFolders(c *gin.Context) {
	if err := h.excluded.Reload(); err != nil {
		c.JSON(http.StatusInternalServerError, types.DataResponse{
			Status:  "error",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, types.DataResponse{Status: "success"})
}
