package services

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/theblitlabs/parity-stake/internal/core/models"
	"github.com/theblitlabs/parity-stake/internal/core/ports"
	"github.com/theblitlabs/parity-stake/pkg/logger"
)

const (
	COMPLETION_BONUS     = 10
	TIMEOUT_PENALTY      = 15
	HIGH_QUALITY_BONUS   = 15
	POOR_QUALITY_PENALTY = 20

	HIGH_QUALITY_THRESHOLD = 90
	POOR_QUALITY_THRESHOLD = 50

	// Idle workers drift toward neutral by this share per day.
	DECAY_PERCENT        = 1
	DECAY_IDLE_PERIOD    = 24 * time.Hour
	MIN_JOBS_FOR_DECAY   = 5
	DECAY_MIN_ADJUSTMENT = 1
)

// ReputationTracker scores workers on job outcomes. Every reputation change
// also refreshes baseline eligibility when a live price is available.
type ReputationTracker struct {
	core       *Core
	classifier *TierClassifier
}

// NewReputationTracker creates a tracker that classifies against the
// classifier's ladder and price.
func NewReputationTracker(core *Core, classifier *TierClassifier) *ReputationTracker {
	return &ReputationTracker{core: core, classifier: classifier}
}

func (t *ReputationTracker) price(ctx context.Context) *uint256.Int {
	if t.classifier == nil {
		return nil
	}
	return t.classifier.valuer.Price(ctx)
}

func (t *ReputationTracker) refreshBaseline(w *models.Worker, price *uint256.Int) {
	if t.classifier == nil {
		return
	}
	refreshBaseline(w, t.classifier.ladder, price)
}

// applyDelta is the single clamped update used by job outcomes, decay and
// slashing.
func applyDelta(r *models.ReputationState, delta int, now time.Time) {
	r.Score = models.ClampReputation(r.Score + delta)
	r.LastUpdate = now
}

func applyCompletion(r *models.ReputationState, success bool, completionTime time.Duration, now time.Time) {
	if !success {
		r.Failed++
		applyDelta(r, -TIMEOUT_PENALTY, now)
		return
	}
	r.Completed++
	n := time.Duration(r.Completed)
	r.AvgCompletionTime = (r.AvgCompletionTime*(n-1) + completionTime) / n
	applyDelta(r, COMPLETION_BONUS, now)
}

func qualityAdjustment(quality uint8) int {
	switch {
	case quality >= HIGH_QUALITY_THRESHOLD:
		return HIGH_QUALITY_BONUS
	case quality < POOR_QUALITY_THRESHOLD:
		return -POOR_QUALITY_PENALTY
	default:
		return 0
	}
}

func (t *ReputationTracker) RecordJobCompletion(ctx context.Context, workerID uint64, success bool, completionTime time.Duration) (*models.ReputationState, error) {
	if completionTime < 0 {
		completionTime = 0
	}
	price := t.price(ctx)
	w, err := t.core.mutate(ctx, workerID, func(w *models.Worker) (*effect, error) {
		now := t.core.Clock.Now()
		applyCompletion(&w.Reputation, success, completionTime, now)
		w.Profile.LastActivity = now
		t.refreshBaseline(w, price)
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	t.core.Metrics.JobOutcome(success)
	return &w.Reputation, nil
}

// RecordJobOutcome is the job manager entry point. Besides the completion
// itself it rewards or penalizes the reported result quality.
func (t *ReputationTracker) RecordJobOutcome(ctx context.Context, caller common.Address, outcome models.JobOutcome) (*models.ReputationState, error) {
	log := logger.WithWorker("reputation_tracker", outcome.WorkerID)

	if err := t.core.requireRole(ctx, caller, ports.RoleJobManager); err != nil {
		return nil, err
	}
	if outcome.Quality > 100 {
		return nil, wrap(ErrInvalidAmount, "quality %d exceeds 100", outcome.Quality)
	}

	responseTime := outcome.ResponseTime
	if responseTime < 0 {
		responseTime = 0
	}
	price := t.price(ctx)
	w, err := t.core.mutate(ctx, outcome.WorkerID, func(w *models.Worker) (*effect, error) {
		now := t.core.Clock.Now()
		applyCompletion(&w.Reputation, outcome.Success, responseTime, now)
		if outcome.Success && outcome.Rated {
			applyDelta(&w.Reputation, qualityAdjustment(outcome.Quality), now)
		}
		w.Profile.LastActivity = now
		t.refreshBaseline(w, price)
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	t.core.Metrics.JobOutcome(outcome.Success)

	log.Info().
		Str("job_id", outcome.JobID).
		Bool("success", outcome.Success).
		Uint8("quality", outcome.Quality).
		Int("reputation", w.Reputation.Score).
		Msg("Job outcome recorded")
	return &w.Reputation, nil
}

func (t *ReputationTracker) UpdateReputation(ctx context.Context, workerID uint64, delta int) (int, error) {
	price := t.price(ctx)
	w, err := t.core.mutate(ctx, workerID, func(w *models.Worker) (*effect, error) {
		applyDelta(&w.Reputation, delta, t.core.Clock.Now())
		t.refreshBaseline(w, price)
		return nil, nil
	})
	if err != nil {
		return 0, err
	}
	return w.Reputation.Score, nil
}

func (t *ReputationTracker) GetReputation(ctx context.Context, workerID uint64) (*models.ReputationState, error) {
	w, err := t.core.worker(workerID)
	if err != nil {
		return nil, err
	}
	r := w.Reputation
	return &r, nil
}

func decayAdjustment(score int) int {
	distance := score - models.ReputationNeutral
	if distance == 0 {
		return 0
	}
	step := distance * DECAY_PERCENT / 100
	if step == 0 {
		step = DECAY_MIN_ADJUSTMENT
		if distance < 0 {
			step = -DECAY_MIN_ADJUSTMENT
		}
	}
	return -step
}

func decayDue(r models.ReputationState, now time.Time) bool {
	if r.Completed+r.Failed < MIN_JOBS_FOR_DECAY {
		return false
	}
	return !now.Before(r.LastUpdate.Add(DECAY_IDLE_PERIOD))
}

// DecayIdle moves idle reputations toward neutral and returns how many
// workers changed.
func (t *ReputationTracker) DecayIdle(ctx context.Context) (int, error) {
	log := logger.WithComponent("reputation_tracker")

	decayed := 0
	price := t.price(ctx)
	for _, candidate := range t.core.Store.Snapshot().Workers() {
		if err := ctx.Err(); err != nil {
			return decayed, err
		}
		if !decayDue(candidate.Reputation, t.core.Clock.Now()) || decayAdjustment(candidate.Reputation.Score) == 0 {
			continue
		}
		_, err := t.core.mutate(ctx, candidate.Profile.ID, func(w *models.Worker) (*effect, error) {
			now := t.core.Clock.Now()
			// Re-check under the lock; the worker may have been active since the scan.
			if !decayDue(w.Reputation, now) {
				return nil, errSkip
			}
			adj := decayAdjustment(w.Reputation.Score)
			if adj == 0 {
				return nil, errSkip
			}
			applyDelta(&w.Reputation, adj, now)
			t.refreshBaseline(w, price)
			return nil, nil
		})
		switch {
		case err == nil:
			decayed++
		case !errors.Is(err, errSkip):
			log.Error().Err(err).Uint64("worker_id", candidate.Profile.ID).Msg("Failed to decay reputation")
		}
	}
	t.core.Metrics.Decayed(decayed)
	return decayed, nil
}

// RefreshBaselines records baseline eligibility for every worker at the
// current price.
func (t *ReputationTracker) RefreshBaselines(ctx context.Context) (int, error) {
	if t.classifier == nil {
		return 0, nil
	}
	return t.classifier.RefreshBaselines(ctx)
}
