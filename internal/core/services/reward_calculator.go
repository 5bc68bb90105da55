package services

import (
	"github.com/holiman/uint256"

	"github.com/theblitlabs/parity-stake/internal/core/models"
)

type RewardBreakdown struct {
	Base      *uint256.Int
	TierBonus *uint256.Int
	Bonus     *uint256.Int
	Total     *uint256.Int
	Tier      string
}

// CalculateReward adds the tier bonus, base * bonus_bps / 10000 rounded
// down, and the job manager's discretionary bonus to the base reward.
func CalculateReward(base, bonus *uint256.Int, tier models.Tier) (RewardBreakdown, bool) {
	if base == nil {
		base = new(uint256.Int)
	}
	if bonus == nil {
		bonus = new(uint256.Int)
	}
	tierBonus, overflow := new(uint256.Int).MulDivOverflow(base, uint256.NewInt(tier.BonusBps), uint256.NewInt(models.BasisPoints))
	if overflow {
		return RewardBreakdown{}, false
	}
	total, overflow := new(uint256.Int).AddOverflow(base, tierBonus)
	if overflow {
		return RewardBreakdown{}, false
	}
	if _, overflow = total.AddOverflow(total, bonus); overflow {
		return RewardBreakdown{}, false
	}
	return RewardBreakdown{
		Base:      new(uint256.Int).Set(base),
		TierBonus: tierBonus,
		Bonus:     new(uint256.Int).Set(bonus),
		Total:     total,
		Tier:      tier.Name,
	}, true
}
