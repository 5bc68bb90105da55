package services

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/theblitlabs/parity-stake/internal/core/models"
)

func TestClassifyByStakeAndReputation(t *testing.T) {
	e := newTestEnv(t)
	id := e.stakedWorker(t, aliceAddr, 600)

	report, err := e.tiers.Classify(e.ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Premium", report.Tier.Name)
	require.Equal(t, "600.00", report.USD.String())
	require.Equal(t, models.ReputationNeutral, report.Reputation)
	require.Equal(t, models.TierBenefits{BonusBps: 200, PriorityMultiplier: 120}, report.Benefits)

	// Premium needs 200 reputation.
	_, err = e.tracker.UpdateReputation(e.ctx, id, -350)
	require.NoError(t, err)
	tier, err := e.tiers.GetTier(e.ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Basic", tier.Name)

	// A higher price upgrades the tier immediately.
	_, err = e.tracker.UpdateReputation(e.ctx, id, 350)
	require.NoError(t, err)
	e.oracle.set("5")
	tier, err = e.tiers.GetTier(e.ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Enterprise", tier.Name)
}

func TestZeroPriceIsUnranked(t *testing.T) {
	e := newTestEnv(t)
	id := e.stakedWorker(t, aliceAddr, 100_000)

	e.oracle.set("0")
	report, err := e.tiers.Classify(e.ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.Unranked, report.Tier)
	require.False(t, report.USD.Known)
	require.Equal(t, "unknown", report.USD.String())

	_, err = e.tiers.GetTier(e.ctx, 99)
	require.ErrorIs(t, err, ErrWorkerNotFound)
}

func TestTierIsLivePostSlash(t *testing.T) {
	e := newTestEnv(t)
	id := e.stakedWorker(t, aliceAddr, 600)

	_, err := e.slashing.Slash(e.ctx, slasherAddr, slashRequest(id, models.SlashReasonMinor))
	require.NoError(t, err)

	// 570 tokens and 450 reputation.
	tier, err := e.tiers.GetTier(e.ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Premium", tier.Name)

	_, err = e.slashing.Slash(e.ctx, slasherAddr, slashRequest(id, models.SlashReasonMajor))
	require.NoError(t, err)
	tier, err = e.tiers.GetTier(e.ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Basic", tier.Name)
}

func TestLadderAccessors(t *testing.T) {
	e := newTestEnv(t)

	ladder := e.tiers.Ladder()
	require.Len(t, ladder, 8)
	ladder[0].Name = "changed"
	require.Equal(t, "Basic", e.tiers.Ladder()[0].Name)

	require.Equal(t, uint64(300), e.tiers.MaxMultiplier())
	institutional, ok := ladder.ByName("Institutional")
	require.True(t, ok)
	require.Equal(t, models.TierBenefits{BonusBps: 1500, PriorityMultiplier: 300}, e.tiers.GetTierBenefits(institutional))
}

func TestClassifyIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	next := uint64(0x1000)

	rapid.Check(t, func(rt *rapid.T) {
		whole := rapid.Uint64Range(1, 2_000_000).Draw(rt, "tokens")
		delta := rapid.IntRange(-500, 500).Draw(rt, "reputation_delta")
		stakePrice := rapid.SampledFrom([]string{"", "0.1", "1", "3.75"}).Draw(rt, "stake_price")
		price := rapid.SampledFrom([]string{"", "0", "0.25", "1", "2.5", "40"}).Draw(rt, "price")

		next++
		owner := common.BigToAddress(new(uint256.Int).SetUint64(next).ToBig())
		e.token.Mint(owner, tokens(whole))
		id, err := e.registry.Register(e.ctx, owner, gpuCapabilities(24, models.CapabilityCUDA), testProof)
		if err != nil {
			rt.Fatalf("register: %v", err)
		}
		e.oracle.set(stakePrice)
		if _, err := e.ledger.Stake(e.ctx, owner, id, tokens(whole), 0); err != nil {
			rt.Fatalf("stake: %v", err)
		}
		if _, err := e.tracker.UpdateReputation(e.ctx, id, delta); err != nil {
			rt.Fatalf("update reputation: %v", err)
		}

		e.oracle.set(price)
		first, err := e.tiers.Classify(e.ctx, id)
		if err != nil {
			rt.Fatalf("classify: %v", err)
		}
		for range 3 {
			again, err := e.tiers.Classify(e.ctx, id)
			if err != nil {
				rt.Fatalf("classify: %v", err)
			}
			if again.Tier.Name != first.Tier.Name || again.USD.String() != first.USD.String() || again.Reputation != first.Reputation {
				rt.Fatalf("classification changed from %s (%s) to %s (%s)", first.Tier.Name, first.USD, again.Tier.Name, again.USD)
			}
			tier, err := e.tiers.GetTier(e.ctx, id)
			if err != nil {
				rt.Fatalf("get tier: %v", err)
			}
			if tier.Name != first.Tier.Name {
				rt.Fatalf("GetTier returned %s, Classify returned %s", tier.Name, first.Tier.Name)
			}
		}
	})
}
