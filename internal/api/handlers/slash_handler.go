package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/theblitlabs/parity-stake/internal/api/middleware"
	apimodels "github.com/theblitlabs/parity-stake/internal/api/models"
	"github.com/theblitlabs/parity-stake/internal/core/models"
	"github.com/theblitlabs/parity-stake/internal/core/services"
)

type SlashHandler struct {
	engine *services.SlashingEngine
}

func NewSlashHandler(engine *services.SlashingEngine) *SlashHandler {
	return &SlashHandler{engine: engine}
}

func (h *SlashHandler) SlashWorker(c *gin.Context) {
	id, err := workerIDParam(c)
	if err != nil {
		respondError(c, "slash_handler", err)
		return
	}
	var req apimodels.SlashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "slash_handler", badRequest("%v", err))
		return
	}
	reason, err := models.ParseSlashReason(req.Reason)
	if err != nil {
		respondError(c, "slash_handler", badRequest("%v", err))
		return
	}
	evidence, err := parseHash(req.EvidenceHash)
	if err != nil {
		respondError(c, "slash_handler", err)
		return
	}

	record, err := h.engine.Slash(c.Request.Context(), middleware.Caller(c), services.SlashRequest{
		WorkerID:     id,
		Reason:       reason,
		EvidenceHash: evidence,
		JobID:        req.JobID,
	})
	if err != nil {
		respondError(c, "slash_handler", err)
		return
	}
	c.JSON(http.StatusOK, apimodels.NewSlashView(*record))
}

func (h *SlashHandler) SlashHistory(c *gin.Context) {
	id, err := workerIDParam(c)
	if err != nil {
		respondError(c, "slash_handler", err)
		return
	}
	records, err := h.engine.SlashHistory(c.Request.Context(), id)
	if err != nil {
		respondError(c, "slash_handler", err)
		return
	}
	views := make([]apimodels.SlashView, 0, len(records))
	for _, r := range records {
		views = append(views, apimodels.NewSlashView(r))
	}
	c.JSON(http.StatusOK, gin.H{"worker_id": id, "slashes": views})
}
