package services

import (
	"context"
	"iter"
	"math/bits"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/theblitlabs/parity-stake/internal/core/models"
	"github.com/theblitlabs/parity-stake/pkg/logger"
)

const (
	CAPABILITY_WEIGHT = 60
	TIER_WEIGHT       = 25
	REPUTATION_WEIGHT = 15

	// Components are computed in millionths and floored once at the end.
	scoreScale = 1_000_000
)

// AllocationScorer ranks workers for a job. A live price observed while
// scoring also records baseline eligibility.
type AllocationScorer struct {
	core       *Core
	classifier *TierClassifier
	valuer     *StakeValuer
}

// NewAllocationScorer creates a scorer weighted against classifier's ladder.
func NewAllocationScorer(core *Core, classifier *TierClassifier, valuer *StakeValuer) *AllocationScorer {
	return &AllocationScorer{core: core, classifier: classifier, valuer: valuer}
}

// ScoreBreakdown explains how a score was reached. Reason is set when the
// worker failed a hard requirement.
type ScoreBreakdown struct {
	Score      uint64
	Capability uint64
	Tier       uint64
	Reputation uint64
	TierName   string
	Reason     string
}

func (s *AllocationScorer) Score(ctx context.Context, workerID uint64, req models.JobRequirements) (uint64, error) {
	b, err := s.Explain(ctx, workerID, req)
	if err != nil {
		return 0, err
	}
	return b.Score, nil
}

func (s *AllocationScorer) Explain(ctx context.Context, workerID uint64, req models.JobRequirements) (*ScoreBreakdown, error) {
	w, err := s.core.worker(workerID)
	if err != nil {
		return nil, err
	}
	price := s.valuer.Price(ctx)
	s.classifier.syncBaseline(ctx, w, price)
	b := s.score(w, req, price)
	return &b, nil
}

func (s *AllocationScorer) score(w *models.Worker, req models.JobRequirements, price *uint256.Int) ScoreBreakdown {
	if !w.Profile.Status.Schedulable() {
		return ScoreBreakdown{Reason: "worker is " + w.Profile.Status.String()}
	}
	if missing := w.Profile.Capabilities.Flags.Missing(req.Flags); len(missing) > 0 {
		return ScoreBreakdown{Reason: "missing capability " + missing[0].String()}
	}
	if dim, ok := req.MeetsMinimums(w.Profile.Capabilities.Specs); !ok {
		return ScoreBreakdown{Reason: "insufficient " + dim}
	}
	tier := s.classifier.effectiveTier(w, price)
	if !tier.IsRanked() {
		return ScoreBreakdown{TierName: tier.Name, Reason: "unranked"}
	}

	capability := CAPABILITY_WEIGHT * capabilityRatio(w.Profile.Capabilities.Specs, req.MinSpecs)
	tierPart := TIER_WEIGHT * scoreScale * tier.PriorityMultiplier / s.classifier.MaxMultiplier()
	reputation := REPUTATION_WEIGHT * scoreScale * uint64(w.Reputation.Score) / models.ReputationMax

	return ScoreBreakdown{
		Score:      (capability + tierPart + reputation) / scoreScale,
		Capability: capability / scoreScale,
		Tier:       tierPart / scoreScale,
		Reputation: reputation / scoreScale,
		TierName:   tier.Name,
	}
}

// capabilityRatio returns min over required dimensions of have/need, capped
// at one, in millionths.
func capabilityRatio(have, need models.HardwareSpecs) uint64 {
	ratio := uint64(scoreScale)
	for _, dim := range models.SpecDimensions {
		n := dim.Value(need)
		if n == 0 {
			continue
		}
		h := dim.Value(have)
		if h >= n {
			continue
		}
		hi, lo := bits.Mul64(h, scoreScale)
		r, _ := bits.Div64(hi, lo, n)
		if r < ratio {
			ratio = r
		}
	}
	return ratio
}

// EligibleWorker is one ranked entry of an EligibleSet.
type EligibleWorker struct {
	WorkerID     uint64
	Owner        common.Address
	Score        uint64
	Tier         string
	Reputation   int
	RegisteredAt time.Time
}

// EligibleSet is a ranked view of the workers that can run a job. It is
// taken from a single snapshot, scored on first use and can be iterated any
// number of times.
type EligibleSet struct {
	once       sync.Once
	candidates []*models.Worker
	rank       func(w *models.Worker) ScoreBreakdown
	ranked     []EligibleWorker
	onRanked   func()
}

// EligibleWorkers returns the ranked set of workers that can run req.
func (s *AllocationScorer) EligibleWorkers(ctx context.Context, req models.JobRequirements) *EligibleSet {
	start := time.Now()
	price := s.valuer.Price(ctx)
	candidates := s.core.Store.Snapshot().Workers()
	if price != nil {
		for _, w := range candidates {
			s.classifier.syncBaseline(ctx, w, price)
		}
	}
	return &EligibleSet{
		candidates: candidates,
		rank: func(w *models.Worker) ScoreBreakdown {
			return s.score(w, req, price)
		},
		onRanked: func() {
			s.core.Metrics.ObserveEligible(start)
			log := logger.WithComponent("allocation_scorer")
			log.Debug().Int("candidates", len(candidates)).Dur("duration", time.Since(start)).Msg("Ranked eligible workers")
		},
	}
}

func (e *EligibleSet) ensureRanked() {
	e.once.Do(func() {
		for _, w := range e.candidates {
			b := e.rank(w)
			if b.Score == 0 {
				continue
			}
			e.ranked = append(e.ranked, EligibleWorker{
				WorkerID:     w.Profile.ID,
				Owner:        w.Profile.Owner,
				Score:        b.Score,
				Tier:         b.TierName,
				Reputation:   w.Reputation.Score,
				RegisteredAt: w.Profile.RegisteredAt,
			})
		}
		sort.SliceStable(e.ranked, func(i, j int) bool {
			a, b := e.ranked[i], e.ranked[j]
			if a.Score != b.Score {
				return a.Score > b.Score
			}
			if !a.RegisteredAt.Equal(b.RegisteredAt) {
				return a.RegisteredAt.Before(b.RegisteredAt)
			}
			return a.WorkerID < b.WorkerID
		})
		e.candidates = nil
		if e.onRanked != nil {
			e.onRanked()
		}
	})
}

// All yields eligible workers in rank order. Each call restarts from the
// best worker.
func (e *EligibleSet) All() iter.Seq[EligibleWorker] {
	return func(yield func(EligibleWorker) bool) {
		e.ensureRanked()
		for _, w := range e.ranked {
			if !yield(w) {
				return
			}
		}
	}
}

func (e *EligibleSet) Len() int {
	e.ensureRanked()
	return len(e.ranked)
}

// Top returns at most n workers; n <= 0 returns all of them.
func (e *EligibleSet) Top(n int) []EligibleWorker {
	e.ensureRanked()
	if n <= 0 || n > len(e.ranked) {
		n = len(e.ranked)
	}
	return append([]EligibleWorker(nil), e.ranked[:n]...)
}
