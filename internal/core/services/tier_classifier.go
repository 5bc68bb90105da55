package services

import (
	"context"
	"errors"

	"github.com/holiman/uint256"

	"github.com/theblitlabs/parity-stake/internal/core/models"
	"github.com/theblitlabs/parity-stake/pkg/logger"
)

// TierClassifier derives tiers from live stake value and reputation. Tiers
// are never stored.
type TierClassifier struct {
	core   *Core
	valuer *StakeValuer
	ladder models.TierLadder
}

// NewTierClassifier creates a classifier over a sorted copy of ladder.
func NewTierClassifier(core *Core, valuer *StakeValuer, ladder models.TierLadder) *TierClassifier {
	return &TierClassifier{core: core, valuer: valuer, ladder: ladder.Sorted()}
}

// TierReport is a worker's tier together with the inputs it was derived from.
type TierReport struct {
	Tier       models.Tier
	USD        models.USDValue
	Reputation int
	Benefits   models.TierBenefits
}

func (c *TierClassifier) GetTier(ctx context.Context, workerID uint64) (models.Tier, error) {
	report, err := c.Classify(ctx, workerID)
	if err != nil {
		return models.Unranked, err
	}
	return report.Tier, nil
}

func (c *TierClassifier) Classify(ctx context.Context, workerID uint64) (*TierReport, error) {
	w, err := c.core.worker(workerID)
	if err != nil {
		return nil, err
	}
	usd := c.valuer.Value(ctx, w.Stake.Staked)
	tier := c.ladder.Classify(usd, w.Reputation.Score)
	return &TierReport{
		Tier:       tier,
		USD:        usd,
		Reputation: w.Reputation.Score,
		Benefits:   tier.Benefits(),
	}, nil
}

func (c *TierClassifier) GetTierBenefits(tier models.Tier) models.TierBenefits {
	return tier.Benefits()
}

func (c *TierClassifier) Ladder() models.TierLadder {
	return append(models.TierLadder(nil), c.ladder...)
}

func (c *TierClassifier) MaxMultiplier() uint64 {
	return c.ladder.MaxMultiplier()
}

// effectiveTier is the tier used for job eligibility at the given price.
// While the price is unavailable a worker keeps the lowest tier if it was
// granted earlier, so an oracle outage never revokes baseline eligibility.
func (c *TierClassifier) effectiveTier(w *models.Worker, price *uint256.Int) models.Tier {
	usd := USDAt(w.Stake.Staked, price)
	if !usd.Known {
		lowest := c.ladder.Lowest()
		if w.Stake.BaselineEligible && !w.Stake.Staked.IsZero() && w.Reputation.Score >= lowest.ReputationRequirement {
			return lowest
		}
		return models.Unranked
	}
	return c.ladder.Classify(usd, w.Reputation.Score)
}

// syncBaseline stores the live-price baseline verdict for w when the stored
// flag disagrees with it. It reports whether the flag changed.
func (c *TierClassifier) syncBaseline(ctx context.Context, w *models.Worker, price *uint256.Int) bool {
	if price == nil || w.Stake.BaselineEligible == qualifiesForBaseline(w, c.ladder, price) {
		return false
	}
	_, err := c.core.mutate(ctx, w.Profile.ID, func(next *models.Worker) (*effect, error) {
		before := next.Stake.BaselineEligible
		refreshBaseline(next, c.ladder, price)
		if next.Stake.BaselineEligible == before {
			return nil, errSkip
		}
		return nil, nil
	})
	switch {
	case err == nil:
		return true
	case errors.Is(err, errSkip):
		return false
	default:
		log := logger.WithWorker("tier_classifier", w.Profile.ID)
		log.Warn().Err(err).Msg("Failed to record baseline eligibility")
		return false
	}
}

// RefreshBaselines records baseline eligibility for every worker at the
// current price and returns how many flags changed. It does nothing while
// the price is unavailable.
func (c *TierClassifier) RefreshBaselines(ctx context.Context) (int, error) {
	price := c.valuer.Price(ctx)
	if price == nil {
		return 0, nil
	}
	changed := 0
	for _, w := range c.core.Store.Snapshot().Workers() {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		if c.syncBaseline(ctx, w, price) {
			changed++
		}
	}
	return changed, nil
}
