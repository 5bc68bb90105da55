package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/theblitlabs/parity-stake/internal/core/models"
	"github.com/theblitlabs/parity-stake/internal/storage/memstate"
)

// fakeJournal keeps committed rows in memory and discards them when the
// transfer fails, like a rolled back transaction.
type fakeJournal struct {
	workers map[uint64]*models.Worker
	slashes []models.SlashRecord
	err     error
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{workers: make(map[uint64]*models.Worker)}
}

func (j *fakeJournal) Commit(ctx context.Context, worker *models.Worker, slash *models.SlashRecord, apply func(ctx context.Context) error) error {
	if j.err != nil {
		return j.err
	}
	if err := apply(ctx); err != nil {
		return err
	}
	j.workers[worker.Profile.ID] = worker.Clone()
	if slash != nil {
		j.slashes = append(j.slashes, *slash)
	}
	return nil
}

func (j *fakeJournal) LoadWorkers(ctx context.Context) ([]*models.Worker, error) {
	out := make([]*models.Worker, 0, len(j.workers))
	for _, w := range j.workers {
		out = append(out, w.Clone())
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Profile.ID < out[b].Profile.ID })
	return out, nil
}

func (j *fakeJournal) LoadSlashes(ctx context.Context) ([]models.SlashRecord, error) {
	return append([]models.SlashRecord(nil), j.slashes...), nil
}

func TestJournalReceivesCommittedState(t *testing.T) {
	e := newTestEnv(t)
	journal := newFakeJournal()
	e.core.Journal = journal

	id := e.stakedWorker(t, aliceAddr, 1000)
	_, err := e.slashing.Slash(e.ctx, slasherAddr, slashRequest(id, models.SlashReasonMajor))
	require.NoError(t, err)

	require.Equal(t, e.worker(t, id), journal.workers[id])
	require.Len(t, journal.slashes, 1)

	// A transfer failure rolls the journal back with the rest.
	_, err = e.ledger.Stake(e.ctx, aliceAddr, id, tokens(200_000), 0)
	require.Error(t, err)
	requireAmount(t, tokens(750), journal.workers[id].Stake.Staked)
}

func TestJournalFailureAbortsMutation(t *testing.T) {
	e := newTestEnv(t)
	journal := newFakeJournal()
	e.core.Journal = journal
	id := e.stakedWorker(t, aliceAddr, 1000)

	journal.err = errors.New("connection reset")
	_, err := e.ledger.Stake(e.ctx, aliceAddr, id, tokens(10), 0)
	require.ErrorContains(t, err, "connection reset")

	requireAmount(t, tokens(1000), e.worker(t, id).Stake.Staked)
	requireAmount(t, tokens(1000), e.token.BalanceOf(vaultAddr))
}

func TestRestoreFromJournal(t *testing.T) {
	e := newTestEnv(t)
	journal := newFakeJournal()
	e.core.Journal = journal

	first := e.stakedWorker(t, aliceAddr, 1000)
	e.stakedWorker(t, bobAddr, 600)
	_, err := e.slashing.Slash(e.ctx, slasherAddr, slashRequest(first, models.SlashReasonMinor))
	require.NoError(t, err)

	workers, err := journal.LoadWorkers(e.ctx)
	require.NoError(t, err)
	slashes, err := journal.LoadSlashes(e.ctx)
	require.NoError(t, err)

	restored, err := memstate.New()
	require.NoError(t, err)
	require.NoError(t, restored.Load(workers, slashes))

	snap := restored.Snapshot()
	requireAmount(t, tokens(1550), snap.TotalStaked())
	require.Len(t, snap.Workers(), 2)
	require.Len(t, snap.Slashes(first), 1)
	require.Equal(t, uint64(3), restored.NextWorkerID())
	require.Equal(t, uint64(2), restored.NextSlashID())
}

func TestInvariantViolationAbortsCommit(t *testing.T) {
	e := newTestEnv(t)
	id := e.stakedWorker(t, aliceAddr, 100)

	_, err := e.core.mutate(e.ctx, id, func(w *models.Worker) (*effect, error) {
		w.Reputation.Score = models.ReputationMax + 1
		return nil, nil
	})
	require.ErrorIs(t, err, ErrReputationRange)

	_, err = e.core.mutate(e.ctx, id, func(w *models.Worker) (*effect, error) {
		w.Stake.Pending = append(w.Stake.Pending, models.UnstakeRequest{Seq: 9, Amount: tokens(101)})
		return nil, nil
	})
	require.ErrorIs(t, err, ErrPendingExceedStake)
	require.Equal(t, KindEconomicInvariant, KindOf(err))

	w := e.worker(t, id)
	require.Equal(t, models.ReputationNeutral, w.Reputation.Score)
	require.Empty(t, w.Stake.Pending)
}

func TestErrorClassification(t *testing.T) {
	err := wrap(ErrNotReady, "worker %d", 4)
	require.ErrorIs(t, err, ErrNotReady)
	require.Equal(t, KindState, KindOf(err))
	require.Equal(t, "not_ready", CodeOf(err))
	require.Equal(t, "no unstake request is ready: worker 4", err.Error())

	outer := fmt.Errorf("handler: %w", err)
	require.Equal(t, KindState, KindOf(outer))

	plain := errors.New("boom")
	require.Equal(t, KindUnknown, KindOf(plain))
	require.Equal(t, "internal", CodeOf(plain))
	require.Equal(t, "economic_invariant", KindEconomicInvariant.String())
	require.Equal(t, "unknown", KindUnknown.String())
}
