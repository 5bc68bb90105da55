package models

import (
	"time"

	"github.com/holiman/uint256"

	coremodels "github.com/theblitlabs/parity-stake/internal/core/models"
)

// Token amounts travel as base-unit decimal strings.

type CapabilitiesPayload struct {
	Flags    []string                 `json:"flags"`
	Specs    coremodels.HardwareSpecs `json:"specs"`
	GPUModel string                   `json:"gpu_model,omitempty"`
	CPUModel string                   `json:"cpu_model,omitempty"`
	// Proof elements are hex encoded.
	Proof []string `json:"proof" binding:"required"`
}

type RegisterWorkerRequest struct {
	CapabilitiesPayload
}

type StakeRequest struct {
	Amount     string `json:"amount" binding:"required"`
	LockPeriod string `json:"lock_period,omitempty"`
}

type UnstakeRequest struct {
	Amount string `json:"amount" binding:"required"`
}

type SlashRequest struct {
	Reason       string `json:"reason" binding:"required"`
	EvidenceHash string `json:"evidence_hash" binding:"required"`
	JobID        string `json:"job_id,omitempty"`
}

type JobRequirementsPayload struct {
	Flags    []string                 `json:"flags"`
	MinSpecs coremodels.HardwareSpecs `json:"min_specs"`
}

type ScoreRequest struct {
	WorkerID     uint64                 `json:"worker_id" binding:"required"`
	Requirements JobRequirementsPayload `json:"requirements"`
}

type EligibleRequest struct {
	Requirements JobRequirementsPayload `json:"requirements"`
	Limit        int                    `json:"limit,omitempty"`
}

type JobCompletionRequest struct {
	WorkerID uint64 `json:"worker_id" binding:"required"`
	JobID    string `json:"job_id"`
	Success  bool   `json:"success"`
	// ResponseTimeMs is the job's wall clock completion time.
	ResponseTimeMs int64  `json:"response_time_ms"`
	Quality        *uint8 `json:"quality,omitempty"`
}

type RewardRequest struct {
	WorkerID uint64 `json:"worker_id" binding:"required"`
	Base     string `json:"base" binding:"required"`
	Bonus    string `json:"bonus,omitempty"`
}

type UnstakeRequestView struct {
	Seq         uint64    `json:"seq"`
	Amount      string    `json:"amount"`
	RequestedAt time.Time `json:"requested_at"`
	AvailableAt time.Time `json:"available_at"`
}

type StakeView struct {
	Staked           string               `json:"staked"`
	USDValue         string               `json:"usd_value"`
	LockUntil        time.Time            `json:"lock_until"`
	SlashCount       uint8                `json:"slash_count"`
	LastSlashTime    *time.Time           `json:"last_slash_time,omitempty"`
	BaselineEligible bool                 `json:"baseline_eligible"`
	Pending          []UnstakeRequestView `json:"pending_unstakes"`
}

type ReputationView struct {
	Score               int       `json:"score"`
	AvgCompletionTimeMs int64     `json:"avg_completion_time_ms"`
	Completed           uint64    `json:"completed_jobs"`
	Failed              uint64    `json:"failed_jobs"`
	LastUpdate          time.Time `json:"last_update"`
}

type WorkerView struct {
	ID            uint64                   `json:"id"`
	Owner         string                   `json:"owner"`
	Flags         []string                 `json:"flags"`
	Specs         coremodels.HardwareSpecs `json:"specs"`
	GPUModel      string                   `json:"gpu_model,omitempty"`
	CPUModel      string                   `json:"cpu_model,omitempty"`
	ProofHash     string                   `json:"proof_hash"`
	Status        string                   `json:"status"`
	TotalEarnings string                   `json:"total_earnings"`
	RegisteredAt  time.Time                `json:"registered_at"`
	LastActivity  time.Time                `json:"last_activity"`
	Stake         StakeView                `json:"stake"`
	Reputation    ReputationView           `json:"reputation"`
}

type TierView struct {
	Rank                  int    `json:"rank"`
	Name                  string `json:"name"`
	USDThreshold          string `json:"usd_threshold"`
	ReputationRequirement int    `json:"reputation_requirement"`
	BonusBps              uint64 `json:"bonus_bps"`
	PriorityMultiplier    uint64 `json:"allocation_priority_multiplier"`
}

type SlashView struct {
	ID                uint64    `json:"id"`
	WorkerID          uint64    `json:"worker_id"`
	Reason            string    `json:"reason"`
	Amount            string    `json:"amount"`
	ReputationPenalty int       `json:"reputation_penalty"`
	EvidenceHash      string    `json:"evidence_hash"`
	JobID             string    `json:"job_id,omitempty"`
	Slasher           string    `json:"slasher"`
	Timestamp         time.Time `json:"timestamp"`
}

type RewardView struct {
	WorkerID  uint64 `json:"worker_id"`
	Tier      string `json:"tier"`
	Base      string `json:"base"`
	TierBonus string `json:"tier_bonus"`
	Bonus     string `json:"bonus"`
	Total     string `json:"total"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func NewUnstakeRequestView(r coremodels.UnstakeRequest) UnstakeRequestView {
	return UnstakeRequestView{Seq: r.Seq, Amount: r.Amount.Dec(), RequestedAt: r.RequestedAt, AvailableAt: r.AvailableAt}
}

func NewStakeView(s coremodels.StakeRecord, usd coremodels.USDValue) StakeView {
	view := StakeView{
		Staked:           s.Staked.Dec(),
		USDValue:         usd.String(),
		LockUntil:        s.LockUntil,
		SlashCount:       s.SlashCount,
		BaselineEligible: s.BaselineEligible,
		Pending:          make([]UnstakeRequestView, 0, len(s.Pending)),
	}
	if !s.LastSlashTime.IsZero() {
		t := s.LastSlashTime
		view.LastSlashTime = &t
	}
	for _, r := range s.Pending {
		view.Pending = append(view.Pending, NewUnstakeRequestView(r))
	}
	return view
}

func NewReputationView(r coremodels.ReputationState) ReputationView {
	return ReputationView{
		Score:               r.Score,
		AvgCompletionTimeMs: r.AvgCompletionTime.Milliseconds(),
		Completed:           r.Completed,
		Failed:              r.Failed,
		LastUpdate:          r.LastUpdate,
	}
}

func NewWorkerView(w *coremodels.Worker, usd coremodels.USDValue) WorkerView {
	p := w.Profile
	return WorkerView{
		ID:            p.ID,
		Owner:         p.Owner.Hex(),
		Flags:         p.Capabilities.Flags.Names(),
		Specs:         p.Capabilities.Specs,
		GPUModel:      p.Capabilities.GPUModel,
		CPUModel:      p.Capabilities.CPUModel,
		ProofHash:     p.ProofHash.Hex(),
		Status:        p.Status.String(),
		TotalEarnings: p.TotalEarnings.Dec(),
		RegisteredAt:  p.RegisteredAt,
		LastActivity:  p.LastActivity,
		Stake:         NewStakeView(w.Stake, usd),
		Reputation:    NewReputationView(w.Reputation),
	}
}

func NewTierView(t coremodels.Tier) TierView {
	view := TierView{
		Rank:                  t.Rank,
		Name:                  t.Name,
		ReputationRequirement: t.ReputationRequirement,
		BonusBps:              t.BonusBps,
		PriorityMultiplier:    t.PriorityMultiplier,
	}
	if t.USDThreshold.Known {
		view.USDThreshold = t.USDThreshold.String()
	}
	return view
}

func NewSlashView(r coremodels.SlashRecord) SlashView {
	return SlashView{
		ID:                r.ID,
		WorkerID:          r.WorkerID,
		Reason:            string(r.Reason),
		Amount:            r.Amount.Dec(),
		ReputationPenalty: r.ReputationPenalty,
		EvidenceHash:      r.EvidenceHash.Hex(),
		JobID:             r.JobID,
		Slasher:           r.Slasher.Hex(),
		Timestamp:         r.Timestamp,
	}
}

// ParseAmount reads a base-unit decimal amount. Empty strings are zero.
func ParseAmount(raw string) (*uint256.Int, error) {
	if raw == "" {
		return new(uint256.Int), nil
	}
	return uint256.FromDecimal(raw)
}
