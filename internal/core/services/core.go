package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"k8s.io/utils/clock"

	"github.com/theblitlabs/parity-stake/internal/core/models"
	"github.com/theblitlabs/parity-stake/internal/core/ports"
	"github.com/theblitlabs/parity-stake/internal/metrics"
	"github.com/theblitlabs/parity-stake/internal/storage/memstate"
	"github.com/theblitlabs/parity-stake/pkg/logger"
)

// Core carries the state and collaborators shared by every component that
// reads or writes workers.
type Core struct {
	Store   *memstate.Store
	Journal ports.LedgerJournal
	Access  ports.AccessControl
	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// NewCore creates the shared state core. journal may be nil.
func NewCore(store *memstate.Store, journal ports.LedgerJournal, access ports.AccessControl, clk clock.Clock, m *metrics.Metrics) *Core {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Core{Store: store, Journal: journal, Access: access, Clock: clk, Metrics: m}
}

// effect describes what a mutation does beyond replacing the worker row.
type effect struct {
	slash *models.SlashRecord
	// transfer runs inside the journal transaction; failure aborts the
	// whole mutation.
	transfer func(ctx context.Context) error
}

type mutateFunc func(w *models.Worker) (*effect, error)

// errSkip lets a mutateFunc abandon a mutation without reporting failure.
var errSkip = errors.New("mutation skipped")

func (c *Core) worker(id uint64) (*models.Worker, error) {
	w := c.Store.Snapshot().Worker(id)
	if w == nil {
		return nil, wrap(ErrWorkerNotFound, "worker %d", id)
	}
	return w, nil
}

// mutate applies fn to a private copy of worker id under the worker's lock
// and commits the result only if every step succeeds.
func (c *Core) mutate(ctx context.Context, id uint64, fn mutateFunc) (*models.Worker, error) {
	unlock := c.Store.LockWorker(id)
	defer unlock()

	current, err := c.worker(id)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	eff, err := fn(next)
	if err != nil {
		return nil, err
	}
	if err := c.commit(ctx, next, eff); err != nil {
		return nil, err
	}
	return next, nil
}

func (c *Core) commit(ctx context.Context, next *models.Worker, eff *effect) error {
	if eff == nil {
		eff = &effect{}
	}
	if err := checkInvariants(next); err != nil {
		log := logger.WithWorker("ledger_core", next.Profile.ID)
		log.Error().Err(err).Msg("Economic invariant violated, aborting mutation")
		return err
	}

	apply := func(ctx context.Context) error {
		if eff.transfer == nil {
			return nil
		}
		if err := eff.transfer(ctx); err != nil {
			return fmt.Errorf("token transfer failed: %w", err)
		}
		return nil
	}

	if c.Journal != nil {
		if err := c.Journal.Commit(ctx, next, eff.slash, apply); err != nil {
			return err
		}
	} else if err := apply(ctx); err != nil {
		return err
	}

	if err := c.Store.Apply(memstate.Change{Worker: next, Slash: eff.slash}); err != nil {
		log := logger.WithWorker("ledger_core", next.Profile.ID)
		log.Error().Err(err).Msg("Committed state could not be applied in memory")
		return fmt.Errorf("failed to apply worker state: %w", err)
	}
	c.Metrics.SetTotalStaked(c.Store.Snapshot().TotalStaked())
	return nil
}

func checkInvariants(w *models.Worker) error {
	if w.Reputation.Score < models.ReputationMin || w.Reputation.Score > models.ReputationMax {
		return wrap(ErrReputationRange, "reputation %d out of range", w.Reputation.Score)
	}
	if pending := w.Stake.PendingTotal(); pending.Gt(w.Stake.Staked) {
		return wrap(ErrPendingExceedStake, "pending %s exceeds staked %s", pending.Dec(), w.Stake.Staked.Dec())
	}
	return nil
}

func (c *Core) requireRole(ctx context.Context, caller common.Address, role ports.Role) error {
	if c.Access == nil {
		return nil
	}
	ok, err := c.Access.HasRole(ctx, caller, role)
	if err != nil {
		return fmt.Errorf("failed to check role %s: %w", role, err)
	}
	if !ok {
		return wrap(ErrMissingRole, "%s requires role %s", caller.Hex(), role)
	}
	return nil
}

func requireOwner(w *models.Worker, caller common.Address) error {
	if w.Profile.Owner != caller {
		return wrap(ErrNotOwner, "worker %d", w.Profile.ID)
	}
	return nil
}
