package memstate

import (
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/theblitlabs/parity-stake/internal/core/models"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	now   = time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
)

func newWorker(id uint64, owner common.Address, staked uint64) *models.Worker {
	w := models.NewWorker(id, owner, models.WorkerCapabilities{Specs: models.HardwareSpecs{CPUCores: 4}}, common.Hash{}, now)
	w.Stake.Staked = uint256.NewInt(staked)
	return w
}

func TestApplyTracksTotalStaked(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	require.NoError(t, s.Apply(Change{Worker: newWorker(1, alice, 100)}))
	require.NoError(t, s.Apply(Change{Worker: newWorker(2, bob, 50)}))
	require.Equal(t, uint64(150), s.Snapshot().TotalStaked().Uint64())

	require.NoError(t, s.Apply(Change{Worker: newWorker(1, alice, 30)}))
	require.Equal(t, uint64(80), s.Snapshot().TotalStaked().Uint64())

	grown := newWorker(2, bob, 70)
	record := models.SlashRecord{ID: 1, WorkerID: 2, Reason: models.SlashReasonMinor, Amount: uint256.NewInt(5)}
	require.NoError(t, s.Apply(Change{Worker: grown, Slash: &record}))
	require.Equal(t, uint64(100), s.Snapshot().TotalStaked().Uint64())

	snap := s.Snapshot()
	require.Equal(t, uint64(70), snap.Worker(2).Stake.Staked.Uint64())
	require.Equal(t, uint64(2), snap.WorkerByOwner(bob).Profile.ID)
	require.Nil(t, snap.Worker(3))
	require.Nil(t, snap.WorkerByOwner(common.Address{}))
	require.Len(t, snap.Slashes(2), 1)
	require.Empty(t, snap.Slashes(1))
}

func TestSnapshotIsolation(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	require.NoError(t, s.Apply(Change{Worker: newWorker(1, alice, 100)}))

	snap := s.Snapshot()
	require.NoError(t, s.Apply(Change{Worker: newWorker(1, alice, 5)}))
	require.NoError(t, s.Apply(Change{Worker: newWorker(2, bob, 5)}))

	require.Equal(t, uint64(100), snap.Worker(1).Stake.Staked.Uint64())
	require.Len(t, snap.Workers(), 1)
	require.Equal(t, uint64(100), snap.TotalStaked().Uint64())

	total := snap.TotalStaked()
	total.SetUint64(0)
	require.Equal(t, uint64(100), snap.TotalStaked().Uint64())
}

func TestWorkersSortedByID(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	for _, id := range []uint64{300, 2, 129, 1, 128} {
		owner := common.BigToAddress(uint256.NewInt(id).ToBig())
		require.NoError(t, s.Apply(Change{Worker: newWorker(id, owner, 0)}))
	}

	var ids []uint64
	for _, w := range s.Snapshot().Workers() {
		ids = append(ids, w.Profile.ID)
	}
	require.Equal(t, []uint64{1, 2, 128, 129, 300}, ids)
}

func TestLoadSeedsCounters(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	require.Equal(t, uint64(1), s.NextWorkerID())
	require.Equal(t, uint64(2), s.NextWorkerID())

	restored, err := New()
	require.NoError(t, err)
	slashes := []models.SlashRecord{
		{ID: 4, WorkerID: 7, Amount: uint256.NewInt(1)},
		{ID: 9, WorkerID: 7, Amount: uint256.NewInt(2)},
	}
	require.NoError(t, restored.Load([]*models.Worker{newWorker(7, alice, 40), newWorker(3, bob, 2)}, slashes))

	require.Equal(t, uint64(8), restored.NextWorkerID())
	require.Equal(t, uint64(10), restored.NextSlashID())
	require.Equal(t, uint64(42), restored.Snapshot().TotalStaked().Uint64())

	history := restored.Snapshot().Slashes(7)
	require.Len(t, history, 2)
	require.Equal(t, uint64(4), history[0].ID)
}

func TestReserveStake(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	require.NoError(t, s.Apply(Change{Worker: newWorker(1, alice, 60)}))
	supply := uint256.NewInt(100)

	release, err := s.ReserveStake(uint256.NewInt(30), supply)
	require.NoError(t, err)

	_, err = s.ReserveStake(uint256.NewInt(11), supply)
	require.ErrorIs(t, err, ErrSupplyExceeded)

	release()
	release()

	second, err := s.ReserveStake(uint256.NewInt(40), supply)
	require.NoError(t, err)
	second()

	_, err = s.ReserveStake(new(uint256.Int).SetAllOne(), supply)
	require.ErrorIs(t, err, ErrSupplyExceeded)
}

func TestLockWorkerSerializes(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.LockWorker(1)
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxSeen)
	require.Empty(t, s.locks.locks)

	// Different workers do not block each other.
	unlockA := s.LockWorker(1)
	unlockB := s.LockWorker(2)
	unlockB()
	unlockA()
}
