package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/theblitlabs/parity-stake/internal/core/models"
	"github.com/theblitlabs/parity-stake/internal/core/ports"
	"github.com/theblitlabs/parity-stake/internal/metrics"
	"github.com/theblitlabs/parity-stake/internal/storage/memstate"
	"github.com/theblitlabs/parity-stake/pkg/logger"
)

const DefaultUnstakeDelay = 7 * 24 * time.Hour

type LedgerConfig struct {
	// Vault holds staked tokens on behalf of workers.
	Vault        common.Address
	Treasury     common.Address
	Asset        string
	UnstakeDelay time.Duration
}

// StakeValuer converts staked token amounts to USD using the live oracle
// price. Prices are never cached.
type StakeValuer struct {
	oracle  ports.PriceOracle
	asset   string
	metrics *metrics.Metrics
}

// NewStakeValuer creates a valuer for asset priced by oracle.
func NewStakeValuer(oracle ports.PriceOracle, asset string, m *metrics.Metrics) *StakeValuer {
	return &StakeValuer{oracle: oracle, asset: asset, metrics: m}
}

// Price returns the current price, or nil when it is unavailable.
func (v *StakeValuer) Price(ctx context.Context) *uint256.Int {
	if v == nil || v.oracle == nil {
		return nil
	}
	price, err := v.oracle.Price(ctx, v.asset)
	if err != nil || price == nil || price.IsZero() {
		log := logger.WithComponent("stake_valuer")
		log.Warn().Err(err).Str("asset", v.asset).Msg("Oracle price unavailable")
		v.metrics.OracleFailure()
		return nil
	}
	return price
}

// USDAt values staked at the given price; a nil price yields an unknown value.
func USDAt(staked, price *uint256.Int) models.USDValue {
	if price == nil || price.IsZero() {
		return models.UnknownUSD()
	}
	usd, overflow := new(uint256.Int).MulDivOverflow(staked, price, models.PriceScale)
	if overflow {
		return models.UnknownUSD()
	}
	return models.USDValue{Amount: usd, Known: true}
}

func (v *StakeValuer) Value(ctx context.Context, staked *uint256.Int) models.USDValue {
	return USDAt(staked, v.Price(ctx))
}

// StakeLedger moves tokens between owners and the vault.
type StakeLedger struct {
	core   *Core
	token  ports.Token
	valuer *StakeValuer
	ladder models.TierLadder
	cfg    LedgerConfig
}

// NewStakeLedger creates a new stake ledger.
func NewStakeLedger(core *Core, token ports.Token, valuer *StakeValuer, ladder models.TierLadder, cfg LedgerConfig) *StakeLedger {
	if cfg.UnstakeDelay <= 0 {
		cfg.UnstakeDelay = DefaultUnstakeDelay
	}
	return &StakeLedger{core: core, token: token, valuer: valuer, ladder: ladder, cfg: cfg}
}

func (l *StakeLedger) Stake(ctx context.Context, caller common.Address, workerID uint64, amount *uint256.Int, lockPeriod time.Duration) (*models.StakeRecord, error) {
	log := logger.WithWorker("stake_ledger", workerID)

	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	if lockPeriod < 0 {
		return nil, wrap(ErrInvalidAmount, "negative lock period")
	}

	supply, err := l.token.TotalSupply(ctx)
	if err != nil {
		return nil, err
	}
	release, err := l.core.Store.ReserveStake(amount, supply)
	if err != nil {
		if errors.Is(err, memstate.ErrSupplyExceeded) {
			log.Error().Str("amount", amount.Dec()).Str("supply", supply.Dec()).Msg("Stake would exceed token supply")
			return nil, wrap(ErrSupplyExceeded, "staking %s", amount.Dec())
		}
		return nil, err
	}
	defer release()

	price := l.valuer.Price(ctx)
	w, err := l.core.mutate(ctx, workerID, func(w *models.Worker) (*effect, error) {
		if err := requireOwner(w, caller); err != nil {
			return nil, err
		}
		if w.Profile.Status.Has(models.WorkerStatusBanned) {
			return nil, wrap(ErrWorkerInactive, "worker %d is banned", workerID)
		}
		now := l.core.Clock.Now()
		staked, overflow := new(uint256.Int).AddOverflow(w.Stake.Staked, amount)
		if overflow {
			return nil, wrap(ErrSupplyExceeded, "stake overflow")
		}
		w.Stake.Staked = staked
		if until := now.Add(lockPeriod); until.After(w.Stake.LockUntil) {
			w.Stake.LockUntil = until
			w.Stake.LockDuration = lockPeriod
		}
		w.Profile.LastActivity = now
		refreshBaseline(w, l.ladder, price)

		owner := w.Profile.Owner
		return &effect{transfer: func(ctx context.Context) error {
			return l.token.Transfer(ctx, owner, l.cfg.Vault, amount)
		}}, nil
	})
	l.core.Metrics.StakeOperation("stake", err)
	if err != nil {
		return nil, err
	}
	l.core.Metrics.Moved("stake", amount)

	log.Info().
		Str("amount", amount.Dec()).
		Str("staked", w.Stake.Staked.Dec()).
		Time("lock_until", w.Stake.LockUntil).
		Msg("Stake deposited")
	return &w.Stake, nil
}

func (l *StakeLedger) USDValue(ctx context.Context, workerID uint64) (models.USDValue, error) {
	w, err := l.core.worker(workerID)
	if err != nil {
		return models.UnknownUSD(), err
	}
	return l.valuer.Value(ctx, w.Stake.Staked), nil
}

func (l *StakeLedger) GetStake(ctx context.Context, workerID uint64) (*models.StakeRecord, error) {
	w, err := l.core.worker(workerID)
	if err != nil {
		return nil, err
	}
	stake := w.Clone().Stake
	return &stake, nil
}

func (l *StakeLedger) PendingUnstakes(ctx context.Context, workerID uint64) ([]models.UnstakeRequest, error) {
	stake, err := l.GetStake(ctx, workerID)
	if err != nil {
		return nil, err
	}
	return stake.Pending, nil
}

func (l *StakeLedger) RequestUnstake(ctx context.Context, caller common.Address, workerID uint64, amount *uint256.Int) (*models.UnstakeRequest, error) {
	log := logger.WithWorker("stake_ledger", workerID)

	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}

	var req models.UnstakeRequest
	_, err := l.core.mutate(ctx, workerID, func(w *models.Worker) (*effect, error) {
		if err := requireOwner(w, caller); err != nil {
			return nil, err
		}
		now := l.core.Clock.Now()
		unlocked := w.Stake.Unlocked(now)
		pending := w.Stake.PendingTotal()
		available := new(uint256.Int)
		if unlocked.Gt(pending) {
			available.Sub(unlocked, pending)
		}
		if amount.Gt(available) {
			return nil, wrap(ErrInsufficientUnlocked, "requested %s, available %s", amount.Dec(), available.Dec())
		}

		req = models.UnstakeRequest{
			Seq:         w.Stake.NextRequestSeq,
			WorkerID:    workerID,
			Amount:      new(uint256.Int).Set(amount),
			RequestedAt: now,
			AvailableAt: now.Add(l.cfg.UnstakeDelay),
		}
		w.Stake.NextRequestSeq++
		w.Stake.Pending = append(w.Stake.Pending, req)
		w.Profile.LastActivity = now
		return nil, nil
	})
	l.core.Metrics.StakeOperation("request_unstake", err)
	if err != nil {
		return nil, err
	}

	log.Info().
		Uint64("seq", req.Seq).
		Str("amount", amount.Dec()).
		Time("available_at", req.AvailableAt).
		Msg("Unstake requested")
	return &req, nil
}

// CompleteUnstake settles every matured request. It never waits: callers
// poll until the delay has passed.
func (l *StakeLedger) CompleteUnstake(ctx context.Context, caller common.Address, workerID uint64) (*uint256.Int, error) {
	log := logger.WithWorker("stake_ledger", workerID)

	price := l.valuer.Price(ctx)
	total := new(uint256.Int)
	_, err := l.core.mutate(ctx, workerID, func(w *models.Worker) (*effect, error) {
		if err := requireOwner(w, caller); err != nil {
			return nil, err
		}
		now := l.core.Clock.Now()
		var remaining []models.UnstakeRequest
		for _, req := range w.Stake.Pending {
			if req.AvailableAt.After(now) {
				remaining = append(remaining, req)
				continue
			}
			total.Add(total, req.Amount)
		}
		if total.IsZero() {
			return nil, ErrNotReady
		}
		if total.Gt(w.Stake.Staked) {
			return nil, wrap(ErrPendingExceedStake, "settling %s of %s", total.Dec(), w.Stake.Staked.Dec())
		}
		w.Stake.Staked.Sub(w.Stake.Staked, total)
		w.Stake.Pending = remaining
		w.Profile.LastActivity = now
		refreshBaseline(w, l.ladder, price)

		owner := w.Profile.Owner
		amount := new(uint256.Int).Set(total)
		return &effect{transfer: func(ctx context.Context) error {
			return l.token.Transfer(ctx, l.cfg.Vault, owner, amount)
		}}, nil
	})
	l.core.Metrics.StakeOperation("complete_unstake", err)
	if err != nil {
		return nil, err
	}
	l.core.Metrics.Moved("unstake", total)

	log.Info().Str("amount", total.Dec()).Msg("Unstake completed")
	return total, nil
}

// clipPending shrinks pending requests, oldest sequence first, so that their
// sum never exceeds the staked amount. Requests clipped to zero are removed.
func clipPending(stake *models.StakeRecord) {
	sort.SliceStable(stake.Pending, func(i, j int) bool {
		return stake.Pending[i].Seq < stake.Pending[j].Seq
	})
	remaining := new(uint256.Int).Set(stake.Staked)
	kept := stake.Pending[:0]
	for _, req := range stake.Pending {
		if remaining.IsZero() {
			continue
		}
		if req.Amount.Gt(remaining) {
			req.Amount = new(uint256.Int).Set(remaining)
		}
		remaining.Sub(remaining, req.Amount)
		kept = append(kept, req)
	}
	if len(kept) == 0 {
		kept = nil
	}
	stake.Pending = kept
}

// refreshBaseline records whether the worker qualifies for the lowest tier
// on a live price. Without a price the previous grant is kept.
func refreshBaseline(w *models.Worker, ladder models.TierLadder, price *uint256.Int) {
	if price == nil {
		return
	}
	w.Stake.BaselineEligible = qualifiesForBaseline(w, ladder, price)
}

func qualifiesForBaseline(w *models.Worker, ladder models.TierLadder, price *uint256.Int) bool {
	return ladder.Classify(USDAt(w.Stake.Staked, price), w.Reputation.Score).IsRanked()
}
