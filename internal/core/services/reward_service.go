package services

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/theblitlabs/parity-stake/internal/core/models"
	"github.com/theblitlabs/parity-stake/internal/core/ports"
	"github.com/theblitlabs/parity-stake/pkg/logger"
)

// RewardService pays job rewards from the reward pool, boosted by the
// worker's live tier.
type RewardService struct {
	core       *Core
	token      ports.Token
	classifier *TierClassifier
	valuer     *StakeValuer
	pool       common.Address
}

// NewRewardService pays rewards out of pool.
func NewRewardService(core *Core, token ports.Token, classifier *TierClassifier, valuer *StakeValuer, pool common.Address) *RewardService {
	return &RewardService{core: core, token: token, classifier: classifier, valuer: valuer, pool: pool}
}

func (s *RewardService) DistributeReward(ctx context.Context, caller common.Address, workerID uint64, base, bonus *uint256.Int) (*RewardBreakdown, error) {
	log := logger.WithWorker("reward_service", workerID)

	if err := s.core.requireRole(ctx, caller, ports.RoleJobManager); err != nil {
		return nil, err
	}

	price := s.valuer.Price(ctx)
	var breakdown RewardBreakdown
	_, err := s.core.mutate(ctx, workerID, func(w *models.Worker) (*effect, error) {
		tier := s.classifier.effectiveTier(w, price)
		b, ok := CalculateReward(base, bonus, tier)
		if !ok {
			return nil, wrap(ErrInvalidAmount, "reward overflow")
		}
		if b.Total.IsZero() {
			return nil, ErrInvalidAmount
		}
		earnings, overflow := new(uint256.Int).AddOverflow(w.Profile.TotalEarnings, b.Total)
		if overflow {
			return nil, wrap(ErrInvalidAmount, "earnings overflow")
		}
		w.Profile.TotalEarnings = earnings
		w.Profile.LastActivity = s.core.Clock.Now()
		breakdown = b

		owner := w.Profile.Owner
		total := new(uint256.Int).Set(b.Total)
		return &effect{transfer: func(ctx context.Context) error {
			return s.token.Transfer(ctx, s.pool, owner, total)
		}}, nil
	})
	s.core.Metrics.StakeOperation("reward", err)
	if err != nil {
		log.Error().Err(err).Msg("Reward distribution failed")
		return nil, err
	}
	s.core.Metrics.RewardPaid(breakdown.Total)

	log.Info().
		Str("base", breakdown.Base.Dec()).
		Str("tier_bonus", breakdown.TierBonus.Dec()).
		Str("bonus", breakdown.Bonus.Dec()).
		Str("total", breakdown.Total.Dec()).
		Str("tier", breakdown.Tier).
		Msg("Reward distributed")
	return &breakdown, nil
}
