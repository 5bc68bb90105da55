package services

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/theblitlabs/parity-stake/pkg/logger"
)

// ReputationDecayService periodically moves idle reputations toward neutral
// and records baseline eligibility at the current price.
type ReputationDecayService struct {
	tracker   *ReputationTracker
	scheduler *gocron.Scheduler
	mutex     sync.Mutex
	interval  time.Duration
	isRunning bool
	stopCh    chan struct{}
}

// NewReputationDecayService creates a service that sweeps every interval,
// hourly when interval is not positive.
func NewReputationDecayService(tracker *ReputationTracker, interval time.Duration) *ReputationDecayService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ReputationDecayService{
		tracker:  tracker,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (s *ReputationDecayService) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.isRunning {
		return nil
	}

	log := logger.WithComponent("reputation_decay")
	log.Info().Dur("interval", s.interval).Msg("Starting reputation decay service")

	s.scheduler = gocron.NewScheduler(time.UTC)
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh

	job, err := s.scheduler.Every(s.interval).Do(func() {
		select {
		case <-stopCh:
			return
		default:
		}
		start := time.Now()
		decayed, err := s.tracker.DecayIdle(context.Background())
		if err != nil {
			log.Error().Err(err).Msg("Reputation decay sweep failed")
			return
		}
		refreshed, err := s.tracker.RefreshBaselines(context.Background())
		if err != nil {
			log.Error().Err(err).Msg("Baseline eligibility refresh failed")
			return
		}
		log.Debug().
			Int("decayed", decayed).
			Int("baselines_refreshed", refreshed).
			Dur("duration", time.Since(start)).
			Msg("Completed reputation decay sweep")
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to schedule reputation decay")
		return err
	}

	s.scheduler.StartAsync()
	s.isRunning = true

	log.Info().Str("next_run", job.NextRun().String()).Msg("Reputation decay service started")
	return nil
}

func (s *ReputationDecayService) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isRunning {
		return
	}
	close(s.stopCh)
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	s.isRunning = false

	log := logger.WithComponent("reputation_decay")
	log.Info().Msg("Reputation decay service stopped")
}

func (s *ReputationDecayService) IsRunning() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.isRunning
}
