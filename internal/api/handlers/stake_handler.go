package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/theblitlabs/parity-stake/internal/api/middleware"
	apimodels "github.com/theblitlabs/parity-stake/internal/api/models"
	"github.com/theblitlabs/parity-stake/internal/core/services"
)

type StakeHandler struct {
	ledger *services.StakeLedger
}

func NewStakeHandler(ledger *services.StakeLedger) *StakeHandler {
	return &StakeHandler{ledger: ledger}
}

func (h *StakeHandler) Stake(c *gin.Context) {
	id, err := workerIDParam(c)
	if err != nil {
		respondError(c, "stake_handler", err)
		return
	}
	var req apimodels.StakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "stake_handler", badRequest("%v", err))
		return
	}
	amount, err := apimodels.ParseAmount(req.Amount)
	if err != nil {
		respondError(c, "stake_handler", badRequest("invalid amount %q", req.Amount))
		return
	}
	var lock time.Duration
	if req.LockPeriod != "" {
		if lock, err = time.ParseDuration(req.LockPeriod); err != nil {
			respondError(c, "stake_handler", badRequest("invalid lock_period %q", req.LockPeriod))
			return
		}
	}

	ctx := c.Request.Context()
	stake, err := h.ledger.Stake(ctx, middleware.Caller(c), id, amount, lock)
	if err != nil {
		respondError(c, "stake_handler", err)
		return
	}
	usd, err := h.ledger.USDValue(ctx, id)
	if err != nil {
		respondError(c, "stake_handler", err)
		return
	}
	c.JSON(http.StatusOK, apimodels.NewStakeView(*stake, usd))
}

func (h *StakeHandler) GetStake(c *gin.Context) {
	id, err := workerIDParam(c)
	if err != nil {
		respondError(c, "stake_handler", err)
		return
	}
	ctx := c.Request.Context()
	stake, err := h.ledger.GetStake(ctx, id)
	if err != nil {
		respondError(c, "stake_handler", err)
		return
	}
	usd, err := h.ledger.USDValue(ctx, id)
	if err != nil {
		respondError(c, "stake_handler", err)
		return
	}
	c.JSON(http.StatusOK, apimodels.NewStakeView(*stake, usd))
}

func (h *StakeHandler) RequestUnstake(c *gin.Context) {
	id, err := workerIDParam(c)
	if err != nil {
		respondError(c, "stake_handler", err)
		return
	}
	var req apimodels.UnstakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "stake_handler", badRequest("%v", err))
		return
	}
	amount, err := apimodels.ParseAmount(req.Amount)
	if err != nil {
		respondError(c, "stake_handler", badRequest("invalid amount %q", req.Amount))
		return
	}

	pending, err := h.ledger.RequestUnstake(c.Request.Context(), middleware.Caller(c), id, amount)
	if err != nil {
		respondError(c, "stake_handler", err)
		return
	}
	c.JSON(http.StatusAccepted, apimodels.NewUnstakeRequestView(*pending))
}

func (h *StakeHandler) CompleteUnstake(c *gin.Context) {
	id, err := workerIDParam(c)
	if err != nil {
		respondError(c, "stake_handler", err)
		return
	}
	released, err := h.ledger.CompleteUnstake(c.Request.Context(), middleware.Caller(c), id)
	if err != nil {
		respondError(c, "stake_handler", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"worker_id": id, "released": released.Dec()})
}
