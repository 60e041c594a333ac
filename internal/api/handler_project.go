package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hirepipe/internal/pipeline"
)

type ProjectHandler struct {
	service *pipeline.Service
}

func NewProjectHandler(service *pipeline.Service) *ProjectHandler {
	return &ProjectHandler{service: service}
}

// Board handles GET /projects/:id/kanban
func (h *ProjectHandler) Board(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	board, err := h.service.Board(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBoard(board))
}

// Reorder handles POST /projects/:id/kanban/reorder
func (h *ProjectHandler) Reorder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		StageID               int64   `json:"stage_id" binding:"required"`
		OrderedApplicationIDs []int64 `json:"ordered_application_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "stage_id is required and ordered_application_ids must be a list of integers")
		return
	}

	final, err := h.service.ReorderColumn(c.Request.Context(), actorFrom(c), id, req.StageID, req.OrderedApplicationIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	if final == nil {
		final = []int64{}
	}
	c.JSON(http.StatusOK, gin.H{
		"stage_id":                req.StageID,
		"ordered_application_ids": final,
	})
}

// Summary handles GET /projects/:id/summary
func (h *ProjectHandler) Summary(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	summary, err := h.service.Summary(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSummary(summary))
}

// Stages handles GET /projects/:id/stages
func (h *ProjectHandler) Stages(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	stages, err := h.service.Stages(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]stageResponse, 0, len(stages))
	for _, s := range stages {
		out = append(out, toStage(s))
	}
	c.JSON(http.StatusOK, gin.H{
		"project_id": id,
		"stages":     out,
	})
}
