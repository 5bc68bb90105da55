package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/theblitlabs/parity-stake/internal/api/handlers"
)

type Handlers struct {
	Worker     *handlers.WorkerHandler
	Stake      *handlers.StakeHandler
	Tier       *handlers.TierHandler
	Slash      *handlers.SlashHandler
	Allocation *handlers.AllocationHandler
	Job        *handlers.JobHandler
}

func registerWorkerRoutes(router *gin.RouterGroup, h Handlers) {
	workers := router.Group("/workers")
	{
		workers.POST("", h.Worker.RegisterWorker)
		workers.GET("", h.Worker.ListWorkers)
		workers.GET("/:id", h.Worker.GetWorker)
		workers.PUT("/:id/capabilities", h.Worker.UpdateCapabilities)
		workers.POST("/:id/deactivate", h.Worker.DeactivateWorker)

		workers.GET("/:id/stake", h.Stake.GetStake)
		workers.POST("/:id/stake", h.Stake.Stake)
		workers.POST("/:id/unstake", h.Stake.RequestUnstake)
		workers.POST("/:id/unstake/complete", h.Stake.CompleteUnstake)

		workers.GET("/:id/tier", h.Tier.GetWorkerTier)

		workers.POST("/:id/slash", h.Slash.SlashWorker)
		workers.GET("/:id/slashes", h.Slash.SlashHistory)
	}
}

func registerJobRoutes(router *gin.RouterGroup, h Handlers) {
	allocation := router.Group("/allocation")
	{
		allocation.POST("/score", h.Allocation.ScoreWorker)
		allocation.POST("/eligible", h.Allocation.EligibleWorkers)
	}

	router.POST("/jobs/completions", h.Job.RecordCompletion)
	router.POST("/rewards", h.Job.DistributeReward)
}

func RegisterRoutes(api *gin.RouterGroup, h Handlers) {
	api.GET("/tiers", h.Tier.ListTiers)
	registerWorkerRoutes(api, h)
	registerJobRoutes(api, h)
}
