package models

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type WorkerStatus uint8

const (
	WorkerStatusActive   WorkerStatus = 0x01
	WorkerStatusInactive WorkerStatus = 0x02
	WorkerStatusSlashed  WorkerStatus = 0x04
	WorkerStatusExiting  WorkerStatus = 0x08
	WorkerStatusBanned   WorkerStatus = 0x10
)

var workerStatusNames = []struct {
	Flag WorkerStatus
	Name string
}{
	{WorkerStatusActive, "active"},
	{WorkerStatusInactive, "inactive"},
	{WorkerStatusSlashed, "slashed"},
	{WorkerStatusExiting, "exiting"},
	{WorkerStatusBanned, "banned"},
}

func (s WorkerStatus) Has(flag WorkerStatus) bool {
	return s&flag == flag
}

func (s WorkerStatus) String() string {
	var names []string
	for _, n := range workerStatusNames {
		if s.Has(n.Flag) {
			names = append(names, n.Name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Schedulable reports whether a worker with this status may receive jobs.
func (s WorkerStatus) Schedulable() bool {
	return s.Has(WorkerStatusActive) && !s.Has(WorkerStatusBanned) && !s.Has(WorkerStatusExiting)
}

type WorkerProfile struct {
	ID            uint64
	Owner         common.Address
	Capabilities  WorkerCapabilities
	ProofHash     common.Hash
	Status        WorkerStatus
	TotalEarnings *uint256.Int
	RegisteredAt  time.Time
	LastActivity  time.Time
}

type UnstakeRequest struct {
	Seq         uint64
	WorkerID    uint64
	Amount      *uint256.Int
	RequestedAt time.Time
	AvailableAt time.Time
}

type StakeRecord struct {
	Staked        *uint256.Int
	LockUntil     time.Time
	LockDuration  time.Duration
	SlashCount    uint8
	LastSlashTime time.Time
	// BaselineEligible is set once the worker has classified at the lowest
	// tier on a live price and survives oracle outages.
	BaselineEligible bool
	Pending          []UnstakeRequest
	NextRequestSeq   uint64
}

// Unlocked returns the stake a worker may request to withdraw at now.
func (s StakeRecord) Unlocked(now time.Time) *uint256.Int {
	if now.Before(s.LockUntil) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(s.Staked)
}

func (s StakeRecord) PendingTotal() *uint256.Int {
	total := new(uint256.Int)
	for _, req := range s.Pending {
		total.Add(total, req.Amount)
	}
	return total
}

const (
	ReputationMin     = 0
	ReputationMax     = 1000
	ReputationNeutral = 500
)

type ReputationState struct {
	Score             int
	AvgCompletionTime time.Duration
	Completed         uint64
	Failed            uint64
	LastUpdate        time.Time
}

func ClampReputation(score int) int {
	if score < ReputationMin {
		return ReputationMin
	}
	if score > ReputationMax {
		return ReputationMax
	}
	return score
}

// Worker is the unit of single-writer mutation: the profile, the stake and
// the reputation of one worker always change together.
type Worker struct {
	Profile    WorkerProfile
	Stake      StakeRecord
	Reputation ReputationState
}

func NewWorker(id uint64, owner common.Address, caps WorkerCapabilities, proof common.Hash, now time.Time) *Worker {
	return &Worker{
		Profile: WorkerProfile{
			ID:            id,
			Owner:         owner,
			Capabilities:  caps,
			ProofHash:     proof,
			Status:        WorkerStatusActive,
			TotalEarnings: new(uint256.Int),
			RegisteredAt:  now,
			LastActivity:  now,
		},
		Stake: StakeRecord{
			Staked:         new(uint256.Int),
			NextRequestSeq: 1,
		},
		Reputation: ReputationState{
			Score:      ReputationNeutral,
			LastUpdate: now,
		},
	}
}

// Clone returns a deep copy safe to mutate without affecting w.
func (w *Worker) Clone() *Worker {
	if w == nil {
		return nil
	}
	c := *w
	c.Profile.TotalEarnings = cloneAmount(w.Profile.TotalEarnings)
	c.Stake.Staked = cloneAmount(w.Stake.Staked)
	if w.Stake.Pending != nil {
		c.Stake.Pending = make([]UnstakeRequest, len(w.Stake.Pending))
		for i, req := range w.Stake.Pending {
			req.Amount = cloneAmount(req.Amount)
			c.Stake.Pending[i] = req
		}
	}
	return &c
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
