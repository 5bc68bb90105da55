package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type SlashReason string

const (
	SlashReasonMinor  SlashReason = "minor"
	SlashReasonMajor  SlashReason = "major"
	SlashReasonSevere SlashReason = "severe"
)

// BasisPoints is the denominator for bps amounts.
const BasisPoints = 10_000

type SlashPolicy struct {
	Bps               uint64
	ReputationPenalty int
}

var SlashPolicies = map[SlashReason]SlashPolicy{
	SlashReasonMinor:  {Bps: 500, ReputationPenalty: 50},
	SlashReasonMajor:  {Bps: 2500, ReputationPenalty: 200},
	SlashReasonSevere: {Bps: 5000, ReputationPenalty: 500},
}

func ParseSlashReason(s string) (SlashReason, error) {
	reason := SlashReason(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := SlashPolicies[reason]; !ok {
		return "", fmt.Errorf("unknown slash reason %q", s)
	}
	return reason, nil
}

// SlashAmount is staked * bps / 10000, rounded down. The product is taken at
// 512 bits; ok is false when the quotient does not fit in 256 bits.
func (p SlashPolicy) SlashAmount(staked *uint256.Int) (amount *uint256.Int, ok bool) {
	amount, overflow := new(uint256.Int).MulDivOverflow(staked, uint256.NewInt(p.Bps), uint256.NewInt(BasisPoints))
	return amount, !overflow
}

type SlashRecord struct {
	ID                uint64         `json:"id"`
	WorkerID          uint64         `json:"worker_id"`
	Reason            SlashReason    `json:"reason"`
	Amount            *uint256.Int   `json:"amount"`
	ReputationPenalty int            `json:"reputation_penalty"`
	EvidenceHash      common.Hash    `json:"evidence_hash"`
	JobID             string         `json:"job_id,omitempty"`
	Slasher           common.Address `json:"slasher"`
	Timestamp         time.Time      `json:"timestamp"`
}

// JobOutcome is reported by the job manager once a job finishes.
type JobOutcome struct {
	WorkerID     uint64
	JobID        string
	Success      bool
	ResponseTime time.Duration
	// Quality is a 0-100 assessment of the result, applied only when Rated.
	Quality uint8
	Rated   bool
}
