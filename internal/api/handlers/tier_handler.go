package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apimodels "github.com/theblitlabs/parity-stake/internal/api/models"
	"github.com/theblitlabs/parity-stake/internal/core/services"
)

type TierHandler struct {
	classifier *services.TierClassifier
}

func NewTierHandler(classifier *services.TierClassifier) *TierHandler {
	return &TierHandler{classifier: classifier}
}

func (h *TierHandler) GetWorkerTier(c *gin.Context) {
	id, err := workerIDParam(c)
	if err != nil {
		respondError(c, "tier_handler", err)
		return
	}
	report, err := h.classifier.Classify(c.Request.Context(), id)
	if err != nil {
		respondError(c, "tier_handler", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"worker_id":  id,
		"tier":       apimodels.NewTierView(report.Tier),
		"usd_value":  report.USD.String(),
		"reputation": report.Reputation,
		"benefits":   h.classifier.GetTierBenefits(report.Tier),
	})
}

func (h *TierHandler) ListTiers(c *gin.Context) {
	ladder := h.classifier.Ladder()
	views := make([]apimodels.TierView, 0, len(ladder))
	for _, t := range ladder {
		views = append(views, apimodels.NewTierView(t))
	}
	c.JSON(http.StatusOK, gin.H{"tiers": views})
}
