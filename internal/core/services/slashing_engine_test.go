package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/theblitlabs/parity-stake/internal/core/models"
)

var testEvidence = crypto.Keccak256Hash([]byte("evidence"))

func slashRequest(id uint64, reason models.SlashReason) SlashRequest {
	return SlashRequest{WorkerID: id, Reason: reason, EvidenceHash: testEvidence, JobID: "job-1"}
}

func TestMajorSlashClipsPendingUnstake(t *testing.T) {
	e := newTestEnv(t)
	id := e.stakedWorker(t, aliceAddr, 1000)
	_, err := e.ledger.RequestUnstake(e.ctx, aliceAddr, id, tokens(800))
	require.NoError(t, err)

	record, err := e.slashing.Slash(e.ctx, slasherAddr, slashRequest(id, models.SlashReasonMajor))
	require.NoError(t, err)
	require.Equal(t, uint64(1), record.ID)
	requireAmount(t, tokens(250), record.Amount)
	require.Equal(t, 200, record.ReputationPenalty)
	require.Equal(t, slasherAddr, record.Slasher)
	require.Equal(t, testEvidence, record.EvidenceHash)

	w := e.worker(t, id)
	requireAmount(t, tokens(750), w.Stake.Staked)
	require.Len(t, w.Stake.Pending, 1)
	requireAmount(t, tokens(750), w.Stake.Pending[0].Amount)
	require.Equal(t, uint8(1), w.Stake.SlashCount)
	require.Equal(t, testStart, w.Stake.LastSlashTime)
	require.Equal(t, models.ReputationNeutral-200, w.Reputation.Score)
	require.True(t, w.Profile.Status.Has(models.WorkerStatusSlashed))
	require.True(t, w.Profile.Status.Schedulable())

	requireAmount(t, tokens(250), e.token.BalanceOf(treasuryAddr))
	requireAmount(t, tokens(750), e.token.BalanceOf(vaultAddr))
	requireAmount(t, tokens(750), e.store.Snapshot().TotalStaked())

	history, err := e.slashing.SlashHistory(e.ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, record.ID, history[0].ID)

	archived := e.archive.archived()
	require.Len(t, archived, 1)
	require.Equal(t, record.ID, archived[0].ID)

	// The clipped request still settles in full after the delay.
	e.clock.Step(testUnstakeDelay)
	released, err := e.ledger.CompleteUnstake(e.ctx, aliceAddr, id)
	require.NoError(t, err)
	requireAmount(t, tokens(750), released)
}

func TestSlashPolicies(t *testing.T) {
	tests := []struct {
		reason     models.SlashReason
		amount     uint64
		reputation int
	}{
		{models.SlashReasonMinor, 50, 450},
		{models.SlashReasonMajor, 250, 300},
		{models.SlashReasonSevere, 500, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			e := newTestEnv(t)
			id := e.stakedWorker(t, aliceAddr, 1000)

			record, err := e.slashing.Slash(e.ctx, slasherAddr, slashRequest(id, tt.reason))
			require.NoError(t, err)
			requireAmount(t, tokens(tt.amount), record.Amount)
			require.Equal(t, tt.reputation, e.worker(t, id).Reputation.Score)
		})
	}
}

func TestSlashRejections(t *testing.T) {
	e := newTestEnv(t)
	unstaked := e.register(t, bobAddr, gpuCapabilities(24))
	id := e.stakedWorker(t, aliceAddr, 1000)

	_, err := e.slashing.Slash(e.ctx, aliceAddr, slashRequest(id, models.SlashReasonMinor))
	require.ErrorIs(t, err, ErrMissingRole)

	_, err = e.slashing.Slash(e.ctx, slasherAddr, slashRequest(id, "catastrophic"))
	require.ErrorIs(t, err, ErrInvalidReason)

	_, err = e.slashing.Slash(e.ctx, slasherAddr, slashRequest(unstaked, models.SlashReasonMinor))
	require.ErrorIs(t, err, ErrInsufficientStake)

	_, err = e.slashing.Slash(e.ctx, slasherAddr, slashRequest(99, models.SlashReasonMinor))
	require.ErrorIs(t, err, ErrWorkerNotFound)

	_, err = e.slashing.SlashHistory(e.ctx, 99)
	require.ErrorIs(t, err, ErrWorkerNotFound)

	w := e.worker(t, id)
	requireAmount(t, tokens(1000), w.Stake.Staked)
	require.Zero(t, w.Stake.SlashCount)
	require.Empty(t, e.archive.archived())
}

func TestSlashRejectsPolicyAboveStake(t *testing.T) {
	const overdraw models.SlashReason = "overdraw"
	models.SlashPolicies[overdraw] = models.SlashPolicy{Bps: 2 * models.BasisPoints}
	t.Cleanup(func() { delete(models.SlashPolicies, overdraw) })

	e := newTestEnv(t)
	id := e.stakedWorker(t, aliceAddr, 1000)

	_, err := e.slashing.Slash(e.ctx, slasherAddr, slashRequest(id, overdraw))
	require.ErrorIs(t, err, ErrSlashExceedsStake)

	w := e.worker(t, id)
	requireAmount(t, tokens(1000), w.Stake.Staked)
	require.Zero(t, w.Stake.SlashCount)
	require.True(t, e.token.BalanceOf(treasuryAddr).IsZero())
}

func TestRepeatedSlashesBanWorker(t *testing.T) {
	e := newTestEnv(t)
	id := e.stakedWorker(t, aliceAddr, 1000)

	for i := 0; i < DefaultMaxSlashCount; i++ {
		_, err := e.slashing.Slash(e.ctx, slasherAddr, slashRequest(id, models.SlashReasonMinor))
		require.NoError(t, err)
	}

	w := e.worker(t, id)
	require.Equal(t, uint8(3), w.Stake.SlashCount)
	require.True(t, w.Profile.Status.Has(models.WorkerStatusBanned))
	require.False(t, w.Profile.Status.Has(models.WorkerStatusActive))
	// 1000 * 0.95^3, each step rounded down in base units.
	requireAmount(t, new(uint256.Int).Div(tokens(857_375), uint256.NewInt(1000)), w.Stake.Staked)

	_, err := e.ledger.Stake(e.ctx, aliceAddr, id, tokens(1), 0)
	require.ErrorIs(t, err, ErrWorkerInactive)

	b, err := e.scorer.Explain(e.ctx, id, models.JobRequirements{})
	require.NoError(t, err)
	require.Zero(t, b.Score)
	require.Contains(t, b.Reason, "banned")

	history, err := e.slashing.SlashHistory(e.ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, []uint64{1, 2, 3}, []uint64{history[0].ID, history[1].ID, history[2].ID})

	// Banned workers can still withdraw what is left.
	_, err = e.ledger.RequestUnstake(e.ctx, aliceAddr, id, w.Stake.Staked)
	require.NoError(t, err)
}

func TestSlashTransferFailureLeavesStateUntouched(t *testing.T) {
	e := newTestEnv(t)
	id := e.stakedWorker(t, aliceAddr, 1000)
	before := e.worker(t, id)

	// Drain the vault so the confiscation transfer fails.
	require.NoError(t, e.token.Transfer(e.ctx, vaultAddr, bobAddr, tokens(1000)))

	_, err := e.slashing.Slash(e.ctx, slasherAddr, slashRequest(id, models.SlashReasonSevere))
	require.Error(t, err)

	require.Equal(t, before, e.worker(t, id))
	require.Empty(t, e.store.Snapshot().Slashes(id))
	require.True(t, e.token.BalanceOf(treasuryAddr).IsZero())
	require.Empty(t, e.archive.archived())
}

func TestSlashSucceedsWhenArchiveFails(t *testing.T) {
	e := newTestEnv(t)
	e.archive.err = errors.New("bucket unavailable")
	id := e.stakedWorker(t, aliceAddr, 1000)

	_, err := e.slashing.Slash(e.ctx, slasherAddr, slashRequest(id, models.SlashReasonMinor))
	require.NoError(t, err)
	requireAmount(t, tokens(950), e.worker(t, id).Stake.Staked)
}

// Slashing and completing an unstake race on the same worker. Whichever
// wins, no tokens are lost or double counted.
func TestConcurrentSlashAndCompleteUnstake(t *testing.T) {
	for i := 0; i < 50; i++ {
		e := newTestEnv(t)
		id := e.stakedWorker(t, aliceAddr, 1000)
		_, err := e.ledger.RequestUnstake(e.ctx, aliceAddr, id, tokens(1000))
		require.NoError(t, err)
		e.clock.Step(testUnstakeDelay)

		var (
			wg         sync.WaitGroup
			slashErr   error
			released   *uint256.Int
			releaseErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, slashErr = e.slashing.Slash(e.ctx, slasherAddr, slashRequest(id, models.SlashReasonMajor))
		}()
		go func() {
			defer wg.Done()
			released, releaseErr = e.ledger.CompleteUnstake(e.ctx, aliceAddr, id)
		}()
		wg.Wait()

		require.NoError(t, releaseErr)
		w := e.worker(t, id)
		require.True(t, w.Stake.Staked.IsZero())
		require.Empty(t, w.Stake.Pending)
		require.True(t, e.token.BalanceOf(vaultAddr).IsZero())
		require.True(t, e.store.Snapshot().TotalStaked().IsZero())

		if slashErr == nil {
			requireAmount(t, tokens(750), released)
			requireAmount(t, tokens(250), e.token.BalanceOf(treasuryAddr))
		} else {
			require.ErrorIs(t, slashErr, ErrInsufficientStake)
			requireAmount(t, tokens(1000), released)
			require.True(t, e.token.BalanceOf(treasuryAddr).IsZero())
		}
		requireAmount(t, tokens(200_000), new(uint256.Int).Add(e.token.BalanceOf(aliceAddr), e.token.BalanceOf(treasuryAddr)))
	}
}

func TestSlashAmountProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		staked := uint256.NewInt(rapid.Uint64().Draw(t, "staked"))
		reason := rapid.SampledFrom([]models.SlashReason{
			models.SlashReasonMinor, models.SlashReasonMajor, models.SlashReasonSevere,
		}).Draw(t, "reason")

		amount, ok := models.SlashPolicies[reason].SlashAmount(staked)
		if !ok || amount.Gt(staked) {
			t.Fatalf("slash %s exceeds stake %s", amount.Dec(), staked.Dec())
		}

		n := rapid.IntRange(0, 5).Draw(t, "pending")
		stake := models.StakeRecord{Staked: new(uint256.Int).Set(staked)}
		original := map[uint64]uint64{}
		for i := 0; i < n; i++ {
			v := rapid.Uint64Range(1, staked.Uint64()/uint64(n)+1).Draw(t, "amount")
			seq := uint64(i + 1)
			original[seq] = v
			stake.Pending = append(stake.Pending, models.UnstakeRequest{Seq: seq, Amount: uint256.NewInt(v)})
		}

		stake.Staked.Sub(stake.Staked, amount)
		clipPending(&stake)

		if stake.PendingTotal().Gt(stake.Staked) {
			t.Fatalf("pending %s exceeds staked %s", stake.PendingTotal().Dec(), stake.Staked.Dec())
		}
		var prev uint64
		for _, req := range stake.Pending {
			if req.Seq <= prev {
				t.Fatalf("pending requests out of order")
			}
			prev = req.Seq
			if req.Amount.IsZero() || req.Amount.Uint64() > original[req.Seq] {
				t.Fatalf("request %d clipped to %s from %d", req.Seq, req.Amount.Dec(), original[req.Seq])
			}
		}
	})
}

func TestSlashingUsesConfiguredBanThreshold(t *testing.T) {
	e := newTestEnv(t)
	e.slashing = NewSlashingEngine(e.core, e.token, e.ledger.valuer, models.DefaultTierLadder(), nil, SlashingConfig{
		Vault:          vaultAddr,
		Treasury:       treasuryAddr,
		MaxSlashCount:  1,
		ArchiveTimeout: time.Second,
	})
	id := e.stakedWorker(t, aliceAddr, 100)

	_, err := e.slashing.Slash(e.ctx, slasherAddr, slashRequest(id, models.SlashReasonMinor))
	require.NoError(t, err)
	require.True(t, e.worker(t, id).Profile.Status.Has(models.WorkerStatusBanned))
}
