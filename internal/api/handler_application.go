package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hirepipe/internal/pipeline"
)

type ApplicationHandler struct {
	service *pipeline.Service
}

func NewApplicationHandler(service *pipeline.Service) *ApplicationHandler {
	return &ApplicationHandler{service: service}
}

// Create handles POST /applications
func (h *ApplicationHandler) Create(c *gin.Context) {
	var req struct {
		ProjectID      int64  `json:"project_id" binding:"required"`
		CandidateID    int64  `json:"candidate_id" binding:"required"`
		StageID        *int64 `json:"stage_id"`
		StageSystemKey string `json:"stage_system_key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "project_id and candidate_id are required")
		return
	}

	card, err := h.service.CreateApplication(c.Request.Context(), actorFrom(c), pipeline.CreateInput{
		ProjectID:   req.ProjectID,
		CandidateID: req.CandidateID,
		Stage:       pipeline.StageRef{ID: req.StageID, SystemKey: req.StageSystemKey},
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toCard(*card))
}

// Move handles POST /applications/:id/move
func (h *ApplicationHandler) Move(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		ToStageID int64 `json:"to_stage_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "to_stage_id is required")
		return
	}

	card, err := h.service.MoveApplication(c.Request.Context(), actorFrom(c), id, req.ToStageID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCard(*card))
}

// Archive handles DELETE /applications/:id
func (h *ApplicationHandler) Archive(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.service.ArchiveApplication(c.Request.Context(), actorFrom(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Get handles GET /applications/:id?is_archived=true
func (h *ApplicationHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	archived, ok := queryBool(c, "is_archived")
	if !ok {
		return
	}

	card, err := h.service.GetApplication(c.Request.Context(), actorFrom(c), id, archived != nil && *archived)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCard(*card))
}

// List handles GET /applications?project_id=&candidate_id=&stage_id=&is_archived=
func (h *ApplicationHandler) List(c *gin.Context) {
	var (
		f  pipeline.ApplicationFilter
		ok bool
	)
	if f.ProjectID, ok = queryID(c, "project_id"); !ok {
		return
	}
	if f.CandidateID, ok = queryID(c, "candidate_id"); !ok {
		return
	}
	if f.StageID, ok = queryID(c, "stage_id"); !ok {
		return
	}
	if f.IsArchived, ok = queryBool(c, "is_archived"); !ok {
		return
	}

	cards, err := h.service.ListApplications(c.Request.Context(), actorFrom(c), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"applications": toCards(cards),
		"count":        len(cards),
	})
}

// History handles GET /applications/:id/history
func (h *ApplicationHandler) History(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	events, err := h.service.History(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"application_id": id,
		"events":         toEvents(events),
	})
}
