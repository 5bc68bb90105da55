package services

import (
	"context"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/theblitlabs/parity-stake/internal/core/models"
	"github.com/theblitlabs/parity-stake/internal/core/ports"
	"github.com/theblitlabs/parity-stake/pkg/logger"
)

const DefaultMaxSlashCount = 3

type SlashingConfig struct {
	Vault    common.Address
	Treasury common.Address
	// MaxSlashCount bans a worker once it has been slashed this many times.
	MaxSlashCount  uint8
	ArchiveTimeout time.Duration
}

// SlashingEngine applies slash penalties and records their history.
type SlashingEngine struct {
	core    *Core
	token   ports.Token
	valuer  *StakeValuer
	ladder  models.TierLadder
	archive ports.AuditArchive
	cfg     SlashingConfig
}

// NewSlashingEngine creates a new slashing engine. archive may be nil.
func NewSlashingEngine(core *Core, token ports.Token, valuer *StakeValuer, ladder models.TierLadder, archive ports.AuditArchive, cfg SlashingConfig) *SlashingEngine {
	if cfg.MaxSlashCount == 0 {
		cfg.MaxSlashCount = DefaultMaxSlashCount
	}
	if cfg.ArchiveTimeout <= 0 {
		cfg.ArchiveTimeout = 30 * time.Second
	}
	return &SlashingEngine{core: core, token: token, valuer: valuer, ladder: ladder, archive: archive, cfg: cfg}
}

type SlashRequest struct {
	WorkerID     uint64
	Reason       models.SlashReason
	EvidenceHash common.Hash
	JobID        string
}

// Slash confiscates a share of the worker's current stake. Pending unstake
// requests remain slashable and are clipped to what is left.
func (e *SlashingEngine) Slash(ctx context.Context, caller common.Address, req SlashRequest) (*models.SlashRecord, error) {
	log := logger.WithWorker("slashing_engine", req.WorkerID)

	if err := e.core.requireRole(ctx, caller, ports.RoleSlasher); err != nil {
		return nil, err
	}
	policy, ok := models.SlashPolicies[req.Reason]
	if !ok {
		return nil, wrap(ErrInvalidReason, "%q", req.Reason)
	}

	price := e.valuer.Price(ctx)
	var record models.SlashRecord
	w, err := e.core.mutate(ctx, req.WorkerID, func(w *models.Worker) (*effect, error) {
		if w.Stake.Staked.IsZero() {
			return nil, wrap(ErrInsufficientStake, "worker %d", req.WorkerID)
		}
		amount, ok := policy.SlashAmount(w.Stake.Staked)
		if !ok {
			return nil, wrap(ErrSlashExceedsStake, "slash of %s at %d bps overflows", w.Stake.Staked.Dec(), policy.Bps)
		}
		if amount.Gt(w.Stake.Staked) {
			return nil, wrap(ErrSlashExceedsStake, "slash %s of %s", amount.Dec(), w.Stake.Staked.Dec())
		}

		now := e.core.Clock.Now()
		w.Stake.Staked.Sub(w.Stake.Staked, amount)
		if w.Stake.SlashCount < math.MaxUint8 {
			w.Stake.SlashCount++
		}
		w.Stake.LastSlashTime = now
		clipPending(&w.Stake)
		applyDelta(&w.Reputation, -policy.ReputationPenalty, now)

		w.Profile.Status |= models.WorkerStatusSlashed
		if w.Stake.SlashCount >= e.cfg.MaxSlashCount {
			w.Profile.Status = (w.Profile.Status | models.WorkerStatusBanned) &^ models.WorkerStatusActive
		}
		refreshBaseline(w, e.ladder, price)

		record = models.SlashRecord{
			ID:                e.core.Store.NextSlashID(),
			WorkerID:          req.WorkerID,
			Reason:            req.Reason,
			Amount:            amount,
			ReputationPenalty: policy.ReputationPenalty,
			EvidenceHash:      req.EvidenceHash,
			JobID:             req.JobID,
			Slasher:           caller,
			Timestamp:         now,
		}
		eff := &effect{slash: &record}
		if !amount.IsZero() {
			confiscated := new(uint256.Int).Set(amount)
			eff.transfer = func(ctx context.Context) error {
				return e.token.Transfer(ctx, e.cfg.Vault, e.cfg.Treasury, confiscated)
			}
		}
		return eff, nil
	})
	e.core.Metrics.StakeOperation("slash", err)
	if err != nil {
		log.Error().Err(err).Str("reason", string(req.Reason)).Msg("Slash failed")
		return nil, err
	}
	e.core.Metrics.Slashed(string(req.Reason), record.Amount)

	log.Warn().
		Uint64("slash_id", record.ID).
		Str("reason", string(req.Reason)).
		Str("amount", record.Amount.Dec()).
		Str("remaining", w.Stake.Staked.Dec()).
		Uint8("slash_count", w.Stake.SlashCount).
		Str("status", w.Profile.Status.String()).
		Msg("Worker slashed")

	e.archiveRecord(ctx, record)
	return &record, nil
}

// archiveRecord exports the committed record. Failures are logged only: the
// slash itself is already durable.
func (e *SlashingEngine) archiveRecord(ctx context.Context, record models.SlashRecord) {
	if e.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.ArchiveTimeout)
	defer cancel()
	if err := e.archive.ArchiveSlash(ctx, record); err != nil {
		log := logger.WithWorker("slashing_engine", record.WorkerID)
		log.Error().Err(err).Uint64("slash_id", record.ID).Msg("Failed to archive slash record")
	}
}

func (e *SlashingEngine) SlashHistory(ctx context.Context, workerID uint64) ([]models.SlashRecord, error) {
	snap := e.core.Store.Snapshot()
	if snap.Worker(workerID) == nil {
		return nil, wrap(ErrWorkerNotFound, "worker %d", workerID)
	}
	return snap.Slashes(workerID), nil
}
