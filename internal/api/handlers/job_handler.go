package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/theblitlabs/parity-stake/internal/api/middleware"
	apimodels "github.com/theblitlabs/parity-stake/internal/api/models"
	"github.com/theblitlabs/parity-stake/internal/core/models"
	"github.com/theblitlabs/parity-stake/internal/core/services"
)

// JobHandler serves the job manager: completion reports and reward payouts.
type JobHandler struct {
	tracker *services.ReputationTracker
	rewards *services.RewardService
}

func NewJobHandler(tracker *services.ReputationTracker, rewards *services.RewardService) *JobHandler {
	return &JobHandler{tracker: tracker, rewards: rewards}
}

func (h *JobHandler) RecordCompletion(c *gin.Context) {
	var req apimodels.JobCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "job_handler", badRequest("%v", err))
		return
	}
	outcome := models.JobOutcome{
		WorkerID:     req.WorkerID,
		JobID:        req.JobID,
		Success:      req.Success,
		ResponseTime: time.Duration(req.ResponseTimeMs) * time.Millisecond,
	}
	if req.Quality != nil {
		outcome.Quality = *req.Quality
		outcome.Rated = true
	}

	rep, err := h.tracker.RecordJobOutcome(c.Request.Context(), middleware.Caller(c), outcome)
	if err != nil {
		respondError(c, "job_handler", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"worker_id": req.WorkerID, "reputation": apimodels.NewReputationView(*rep)})
}

func (h *JobHandler) DistributeReward(c *gin.Context) {
	var req apimodels.RewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "job_handler", badRequest("%v", err))
		return
	}
	base, err := apimodels.ParseAmount(req.Base)
	if err != nil {
		respondError(c, "job_handler", badRequest("invalid base %q", req.Base))
		return
	}
	bonus, err := apimodels.ParseAmount(req.Bonus)
	if err != nil {
		respondError(c, "job_handler", badRequest("invalid bonus %q", req.Bonus))
		return
	}

	reward, err := h.rewards.DistributeReward(c.Request.Context(), middleware.Caller(c), req.WorkerID, base, bonus)
	if err != nil {
		respondError(c, "job_handler", err)
		return
	}
	c.JSON(http.StatusOK, apimodels.RewardView{
		WorkerID:  req.WorkerID,
		Tier:      reward.Tier,
		Base:      reward.Base.Dec(),
		TierBonus: reward.TierBonus.Dec(),
		Bonus:     reward.Bonus.Dec(),
		Total:     reward.Total.Dec(),
	})
}
