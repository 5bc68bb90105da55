package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/theblitlabs/parity-stake/internal/api/middleware"
	apimodels "github.com/theblitlabs/parity-stake/internal/api/models"
	"github.com/theblitlabs/parity-stake/internal/core/models"
	"github.com/theblitlabs/parity-stake/internal/core/services"
)

type WorkerHandler struct {
	registry *services.RegistryService
	valuer   *services.StakeValuer
}

func NewWorkerHandler(registry *services.RegistryService, valuer *services.StakeValuer) *WorkerHandler {
	return &WorkerHandler{registry: registry, valuer: valuer}
}

func parseCapabilities(p apimodels.CapabilitiesPayload) (models.WorkerCapabilities, [][]byte, error) {
	flags, err := models.ParseCapabilities(p.Flags)
	if err != nil {
		return models.WorkerCapabilities{}, nil, badRequest("%v", err)
	}
	proof := make([][]byte, 0, len(p.Proof))
	for _, raw := range p.Proof {
		b, err := decodeHex(raw)
		if err != nil {
			return models.WorkerCapabilities{}, nil, badRequest("invalid proof element %q", raw)
		}
		proof = append(proof, b)
	}
	caps := models.WorkerCapabilities{
		Flags:    flags,
		Specs:    p.Specs,
		GPUModel: p.GPUModel,
		CPUModel: p.CPUModel,
	}
	return caps, proof, nil
}

func (h *WorkerHandler) RegisterWorker(c *gin.Context) {
	var req apimodels.RegisterWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "worker_handler", badRequest("%v", err))
		return
	}
	caps, proof, err := parseCapabilities(req.CapabilitiesPayload)
	if err != nil {
		respondError(c, "worker_handler", err)
		return
	}

	id, err := h.registry.Register(c.Request.Context(), middleware.Caller(c), caps, proof)
	if err != nil {
		respondError(c, "worker_handler", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"worker_id": id})
}

func (h *WorkerHandler) GetWorker(c *gin.Context) {
	id, err := workerIDParam(c)
	if err != nil {
		respondError(c, "worker_handler", err)
		return
	}
	w, err := h.registry.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, "worker_handler", err)
		return
	}
	c.JSON(http.StatusOK, apimodels.NewWorkerView(w, h.valuer.Value(c.Request.Context(), w.Stake.Staked)))
}

func (h *WorkerHandler) ListWorkers(c *gin.Context) {
	workers := h.registry.List(c.Request.Context())
	price := h.valuer.Price(c.Request.Context())
	views := make([]apimodels.WorkerView, 0, len(workers))
	for _, w := range workers {
		views = append(views, apimodels.NewWorkerView(w, services.USDAt(w.Stake.Staked, price)))
	}
	c.JSON(http.StatusOK, gin.H{"workers": views, "count": len(views)})
}

func (h *WorkerHandler) UpdateCapabilities(c *gin.Context) {
	id, err := workerIDParam(c)
	if err != nil {
		respondError(c, "worker_handler", err)
		return
	}
	var req apimodels.CapabilitiesPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "worker_handler", badRequest("%v", err))
		return
	}
	caps, proof, err := parseCapabilities(req)
	if err != nil {
		respondError(c, "worker_handler", err)
		return
	}
	if err := h.registry.UpdateCapabilities(c.Request.Context(), middleware.Caller(c), id, caps, proof); err != nil {
		respondError(c, "worker_handler", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"worker_id": id, "flags": caps.Flags.Names()})
}

func (h *WorkerHandler) DeactivateWorker(c *gin.Context) {
	id, err := workerIDParam(c)
	if err != nil {
		respondError(c, "worker_handler", err)
		return
	}
	if err := h.registry.Deactivate(c.Request.Context(), middleware.Caller(c), id); err != nil {
		respondError(c, "worker_handler", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"worker_id": id, "status": models.WorkerStatusInactive.String()})
}
