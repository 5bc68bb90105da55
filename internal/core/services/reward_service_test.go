package services

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/theblitlabs/parity-stake/internal/core/models"
)

func TestCalculateReward(t *testing.T) {
	ladder := models.DefaultTierLadder()
	premium, _ := ladder.ByName("Premium")
	institutional, _ := ladder.ByName("Institutional")

	b, ok := CalculateReward(uint256.NewInt(1000), uint256.NewInt(7), premium)
	require.True(t, ok)
	require.Equal(t, uint64(20), b.TierBonus.Uint64())
	require.Equal(t, uint64(1027), b.Total.Uint64())
	require.Equal(t, "Premium", b.Tier)

	b, ok = CalculateReward(uint256.NewInt(999), nil, institutional)
	require.True(t, ok)
	require.Equal(t, uint64(149), b.TierBonus.Uint64())
	require.Equal(t, uint64(1148), b.Total.Uint64())

	b, ok = CalculateReward(uint256.NewInt(1000), nil, models.Unranked)
	require.True(t, ok)
	require.True(t, b.TierBonus.IsZero())
	require.Equal(t, uint64(1000), b.Total.Uint64())

	maxAmount := new(uint256.Int).SetAllOne()
	_, ok = CalculateReward(maxAmount, uint256.NewInt(1), models.Unranked)
	require.False(t, ok)
}

func TestDistributeReward(t *testing.T) {
	e := newTestEnv(t)
	id := e.stakedWorker(t, aliceAddr, 600)
	before := e.token.BalanceOf(aliceAddr)

	b, err := e.rewards.DistributeReward(e.ctx, managerAddr, id, tokens(100), tokens(5))
	require.NoError(t, err)
	require.Equal(t, "Premium", b.Tier)
	requireAmount(t, tokens(2), b.TierBonus)
	requireAmount(t, tokens(107), b.Total)

	requireAmount(t, new(uint256.Int).Add(before, tokens(107)), e.token.BalanceOf(aliceAddr))
	requireAmount(t, tokens(10_000-107), e.token.BalanceOf(poolAddr))
	requireAmount(t, tokens(107), e.worker(t, id).Profile.TotalEarnings)

	_, err = e.rewards.DistributeReward(e.ctx, managerAddr, id, tokens(100), nil)
	require.NoError(t, err)
	requireAmount(t, tokens(209), e.worker(t, id).Profile.TotalEarnings)
}

func TestDistributeRewardRejections(t *testing.T) {
	e := newTestEnv(t)
	id := e.stakedWorker(t, aliceAddr, 600)

	_, err := e.rewards.DistributeReward(e.ctx, aliceAddr, id, tokens(1), nil)
	require.ErrorIs(t, err, ErrMissingRole)

	_, err = e.rewards.DistributeReward(e.ctx, managerAddr, id, new(uint256.Int), nil)
	require.ErrorIs(t, err, ErrInvalidAmount)

	// The pool only holds 10000 tokens.
	_, err = e.rewards.DistributeReward(e.ctx, managerAddr, id, tokens(20_000), nil)
	require.Error(t, err)
	require.True(t, e.worker(t, id).Profile.TotalEarnings.IsZero())
	requireAmount(t, tokens(10_000), e.token.BalanceOf(poolAddr))
}
