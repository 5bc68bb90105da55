package models

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// WorkerState is the persisted form of a Worker. Amounts are stored as
// decimal strings to keep full 256-bit precision.
type WorkerState struct {
	WorkerID      uint64    `gorm:"primaryKey;autoIncrement:false"`
	Owner         string    `gorm:"type:varchar(42);uniqueIndex;not null"`
	Capabilities  uint64    `gorm:"not null"`
	GPUMemoryGB   uint64    `gorm:"not null;default:0"`
	CPUCores      uint64    `gorm:"not null;default:0"`
	RAMGB         uint64    `gorm:"not null;default:0"`
	StorageGB     uint64    `gorm:"not null;default:0"`
	BandwidthMbps uint64    `gorm:"not null;default:0"`
	GPUModel      string    `gorm:"type:varchar(255)"`
	CPUModel      string    `gorm:"type:varchar(255)"`
	ProofHash     string    `gorm:"type:varchar(66)"`
	Status        uint8     `gorm:"not null"`
	TotalEarnings string    `gorm:"type:numeric(78,0);not null;default:0"`
	RegisteredAt  time.Time `gorm:"type:timestamp"`
	LastActivity  time.Time `gorm:"type:timestamp"`

	StakedAmount     string        `gorm:"type:numeric(78,0);not null;default:0"`
	LockUntil        time.Time     `gorm:"type:timestamp"`
	LockDuration     time.Duration `gorm:"not null;default:0"`
	SlashCount       uint8         `gorm:"not null;default:0"`
	LastSlashTime    time.Time     `gorm:"type:timestamp"`
	BaselineEligible bool          `gorm:"not null;default:false"`
	NextRequestSeq   uint64        `gorm:"not null;default:1"`

	Reputation        int           `gorm:"not null;default:500"`
	AvgCompletionTime time.Duration `gorm:"not null;default:0"`
	Completed         uint64        `gorm:"not null;default:0"`
	Failed            uint64        `gorm:"not null;default:0"`
	ReputationUpdated time.Time     `gorm:"type:timestamp"`

	PendingUnstakes []PendingUnstake `gorm:"foreignKey:WorkerID;references:WorkerID;constraint:OnDelete:CASCADE"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime"`
}

type PendingUnstake struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	WorkerID    uint64    `gorm:"index;not null"`
	Seq         uint64    `gorm:"not null"`
	Amount      string    `gorm:"type:numeric(78,0);not null"`
	RequestedAt time.Time `gorm:"type:timestamp"`
	AvailableAt time.Time `gorm:"type:timestamp;index"`
}

type SlashEntry struct {
	ID                uint64    `gorm:"primaryKey;autoIncrement:false"`
	WorkerID          uint64    `gorm:"index;not null"`
	Reason            string    `gorm:"type:varchar(16);not null"`
	Amount            string    `gorm:"type:numeric(78,0);not null"`
	ReputationPenalty int       `gorm:"not null"`
	EvidenceHash      string    `gorm:"type:varchar(66)"`
	JobID             string    `gorm:"type:varchar(255)"`
	Slasher           string    `gorm:"type:varchar(42)"`
	Timestamp         time.Time `gorm:"type:timestamp;index"`
}

func NewWorkerState(w *Worker) *WorkerState {
	p, s, r := w.Profile, w.Stake, w.Reputation
	state := &WorkerState{
		WorkerID:          p.ID,
		Owner:             p.Owner.Hex(),
		Capabilities:      uint64(p.Capabilities.Flags),
		GPUMemoryGB:       p.Capabilities.Specs.GPUMemoryGB,
		CPUCores:          p.Capabilities.Specs.CPUCores,
		RAMGB:             p.Capabilities.Specs.RAMGB,
		StorageGB:         p.Capabilities.Specs.StorageGB,
		BandwidthMbps:     p.Capabilities.Specs.BandwidthMbps,
		GPUModel:          p.Capabilities.GPUModel,
		CPUModel:          p.Capabilities.CPUModel,
		ProofHash:         p.ProofHash.Hex(),
		Status:            uint8(p.Status),
		TotalEarnings:     cloneAmount(p.TotalEarnings).Dec(),
		RegisteredAt:      p.RegisteredAt,
		LastActivity:      p.LastActivity,
		StakedAmount:      cloneAmount(s.Staked).Dec(),
		LockUntil:         s.LockUntil,
		LockDuration:      s.LockDuration,
		SlashCount:        s.SlashCount,
		LastSlashTime:     s.LastSlashTime,
		BaselineEligible:  s.BaselineEligible,
		NextRequestSeq:    s.NextRequestSeq,
		Reputation:        r.Score,
		AvgCompletionTime: r.AvgCompletionTime,
		Completed:         r.Completed,
		Failed:            r.Failed,
		ReputationUpdated: r.LastUpdate,
	}
	for _, req := range s.Pending {
		state.PendingUnstakes = append(state.PendingUnstakes, PendingUnstake{
			WorkerID:    p.ID,
			Seq:         req.Seq,
			Amount:      cloneAmount(req.Amount).Dec(),
			RequestedAt: req.RequestedAt,
			AvailableAt: req.AvailableAt,
		})
	}
	return state
}

// ToWorker rebuilds the in-memory worker from its persisted form.
func (ws *WorkerState) ToWorker() (*Worker, error) {
	earnings, err := uint256.FromDecimal(ws.TotalEarnings)
	if err != nil {
		return nil, fmt.Errorf("worker %d: invalid total earnings: %w", ws.WorkerID, err)
	}
	staked, err := uint256.FromDecimal(ws.StakedAmount)
	if err != nil {
		return nil, fmt.Errorf("worker %d: invalid staked amount: %w", ws.WorkerID, err)
	}
	w := &Worker{
		Profile: WorkerProfile{
			ID:    ws.WorkerID,
			Owner: common.HexToAddress(ws.Owner),
			Capabilities: WorkerCapabilities{
				Flags: CapabilitySet(ws.Capabilities),
				Specs: HardwareSpecs{
					GPUMemoryGB:   ws.GPUMemoryGB,
					CPUCores:      ws.CPUCores,
					RAMGB:         ws.RAMGB,
					StorageGB:     ws.StorageGB,
					BandwidthMbps: ws.BandwidthMbps,
				},
				GPUModel: ws.GPUModel,
				CPUModel: ws.CPUModel,
			},
			ProofHash:     common.HexToHash(ws.ProofHash),
			Status:        WorkerStatus(ws.Status),
			TotalEarnings: earnings,
			RegisteredAt:  ws.RegisteredAt,
			LastActivity:  ws.LastActivity,
		},
		Stake: StakeRecord{
			Staked:           staked,
			LockUntil:        ws.LockUntil,
			LockDuration:     ws.LockDuration,
			SlashCount:       ws.SlashCount,
			LastSlashTime:    ws.LastSlashTime,
			BaselineEligible: ws.BaselineEligible,
			NextRequestSeq:   ws.NextRequestSeq,
		},
		Reputation: ReputationState{
			Score:             ws.Reputation,
			AvgCompletionTime: ws.AvgCompletionTime,
			Completed:         ws.Completed,
			Failed:            ws.Failed,
			LastUpdate:        ws.ReputationUpdated,
		},
	}
	for _, row := range ws.PendingUnstakes {
		amount, err := uint256.FromDecimal(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("worker %d: invalid unstake amount: %w", ws.WorkerID, err)
		}
		w.Stake.Pending = append(w.Stake.Pending, UnstakeRequest{
			Seq:         row.Seq,
			WorkerID:    ws.WorkerID,
			Amount:      amount,
			RequestedAt: row.RequestedAt,
			AvailableAt: row.AvailableAt,
		})
	}
	return w, nil
}

func NewSlashEntry(r SlashRecord) *SlashEntry {
	return &SlashEntry{
		ID:                r.ID,
		WorkerID:          r.WorkerID,
		Reason:            string(r.Reason),
		Amount:            cloneAmount(r.Amount).Dec(),
		ReputationPenalty: r.ReputationPenalty,
		EvidenceHash:      r.EvidenceHash.Hex(),
		JobID:             r.JobID,
		Slasher:           r.Slasher.Hex(),
		Timestamp:         r.Timestamp,
	}
}

func (e *SlashEntry) ToRecord() (SlashRecord, error) {
	amount, err := uint256.FromDecimal(e.Amount)
	if err != nil {
		return SlashRecord{}, fmt.Errorf("slash %d: invalid amount: %w", e.ID, err)
	}
	return SlashRecord{
		ID:                e.ID,
		WorkerID:          e.WorkerID,
		Reason:            SlashReason(e.Reason),
		Amount:            amount,
		ReputationPenalty: e.ReputationPenalty,
		EvidenceHash:      common.HexToHash(e.EvidenceHash),
		JobID:             e.JobID,
		Slasher:           common.HexToAddress(e.Slasher),
		Timestamp:         e.Timestamp,
	}, nil
}
