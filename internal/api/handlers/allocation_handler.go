package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apimodels "github.com/theblitlabs/parity-stake/internal/api/models"
	"github.com/theblitlabs/parity-stake/internal/core/models"
	"github.com/theblitlabs/parity-stake/internal/core/services"
)

type AllocationHandler struct {
	scorer *services.AllocationScorer
}

func NewAllocationHandler(scorer *services.AllocationScorer) *AllocationHandler {
	return &AllocationHandler{scorer: scorer}
}

func parseRequirements(p apimodels.JobRequirementsPayload) (models.JobRequirements, error) {
	flags, err := models.ParseCapabilities(p.Flags)
	if err != nil {
		return models.JobRequirements{}, badRequest("%v", err)
	}
	return models.JobRequirements{Flags: flags, MinSpecs: p.MinSpecs}, nil
}

func (h *AllocationHandler) ScoreWorker(c *gin.Context) {
	var req apimodels.ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "allocation_handler", badRequest("%v", err))
		return
	}
	requirements, err := parseRequirements(req.Requirements)
	if err != nil {
		respondError(c, "allocation_handler", err)
		return
	}

	b, err := h.scorer.Explain(c.Request.Context(), req.WorkerID, requirements)
	if err != nil {
		respondError(c, "allocation_handler", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"worker_id": req.WorkerID,
		"score":     b.Score,
		"breakdown": gin.H{
			"capability": b.Capability,
			"tier":       b.Tier,
			"reputation": b.Reputation,
		},
		"tier":   b.TierName,
		"reason": b.Reason,
	})
}

func (h *AllocationHandler) EligibleWorkers(c *gin.Context) {
	var req apimodels.EligibleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "allocation_handler", badRequest("%v", err))
		return
	}
	requirements, err := parseRequirements(req.Requirements)
	if err != nil {
		respondError(c, "allocation_handler", err)
		return
	}

	set := h.scorer.EligibleWorkers(c.Request.Context(), requirements)
	workers := make([]gin.H, 0)
	for _, w := range set.Top(req.Limit) {
		workers = append(workers, gin.H{
			"worker_id":     w.WorkerID,
			"owner":         w.Owner.Hex(),
			"score":         w.Score,
			"tier":          w.Tier,
			"reputation":    w.Reputation,
			"registered_at": w.RegisteredAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"workers": workers, "total": set.Len()})
}
