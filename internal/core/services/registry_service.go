package services

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/theblitlabs/parity-stake/internal/core/models"
	"github.com/theblitlabs/parity-stake/internal/core/ports"
	"github.com/theblitlabs/parity-stake/pkg/logger"
)

// RegistryService owns worker registration and capability updates.
type RegistryService struct {
	core *Core
}

// NewRegistryService creates a new registry service.
func NewRegistryService(core *Core) *RegistryService {
	return &RegistryService{core: core}
}

// ProofHash commits to the registration proof elements.
func ProofHash(proof [][]byte) (common.Hash, error) {
	nonEmpty := false
	for _, p := range proof {
		if len(p) > 0 {
			nonEmpty = true
			break
		}
	}
	if !nonEmpty {
		return common.Hash{}, ErrMissingProof
	}
	return crypto.Keccak256Hash(proof...), nil
}

func validateCapabilities(caps models.WorkerCapabilities) error {
	if caps.Specs.IsZero() {
		return ErrInvalidCapabilities
	}
	if !caps.Flags.Valid() {
		return wrap(ErrInvalidCapabilities, "unknown capability bits %#x", uint64(caps.Flags))
	}
	return nil
}

func (s *RegistryService) Register(ctx context.Context, caller common.Address, caps models.WorkerCapabilities, proof [][]byte) (uint64, error) {
	log := logger.WithComponent("worker_registry")

	if caller == (common.Address{}) {
		return 0, ErrInvalidAddress
	}
	if err := s.core.requireRole(ctx, caller, ports.RoleWorker); err != nil {
		return 0, err
	}
	if err := validateCapabilities(caps); err != nil {
		return 0, err
	}
	proofHash, err := ProofHash(proof)
	if err != nil {
		return 0, err
	}

	unlock := s.core.Store.LockRegistration()
	defer unlock()

	if existing := s.core.Store.Snapshot().WorkerByOwner(caller); existing != nil {
		return 0, wrap(ErrAlreadyRegistered, "%s owns worker %d", caller.Hex(), existing.Profile.ID)
	}

	id := s.core.Store.NextWorkerID()
	w := models.NewWorker(id, caller, caps, proofHash, s.core.Clock.Now())

	unlockWorker := s.core.Store.LockWorker(id)
	defer unlockWorker()
	if err := s.core.commit(ctx, w, nil); err != nil {
		log.Error().Err(err).Str("owner", caller.Hex()).Msg("Failed to register worker")
		return 0, err
	}
	s.core.Metrics.WorkerRegistered()

	log.Info().
		Uint64("worker_id", id).
		Str("owner", caller.Hex()).
		Str("capabilities", caps.Flags.String()).
		Msg("Worker registered")
	return id, nil
}

func (s *RegistryService) UpdateCapabilities(ctx context.Context, caller common.Address, workerID uint64, caps models.WorkerCapabilities, proof [][]byte) error {
	if err := validateCapabilities(caps); err != nil {
		return err
	}
	proofHash, err := ProofHash(proof)
	if err != nil {
		return err
	}
	_, err = s.core.mutate(ctx, workerID, func(w *models.Worker) (*effect, error) {
		if err := requireOwner(w, caller); err != nil {
			return nil, err
		}
		w.Profile.Capabilities = caps
		w.Profile.ProofHash = proofHash
		w.Profile.LastActivity = s.core.Clock.Now()
		return nil, nil
	})
	if err != nil {
		return err
	}
	log := logger.WithWorker("worker_registry", workerID)
	log.Info().Str("capabilities", caps.Flags.String()).Msg("Worker capabilities updated")
	return nil
}

// Deactivate takes a worker out of scheduling. Workers are never deleted.
func (s *RegistryService) Deactivate(ctx context.Context, caller common.Address, workerID uint64) error {
	_, err := s.core.mutate(ctx, workerID, func(w *models.Worker) (*effect, error) {
		if err := requireOwner(w, caller); err != nil {
			return nil, err
		}
		w.Profile.Status = (w.Profile.Status | models.WorkerStatusInactive) &^ models.WorkerStatusActive
		w.Profile.LastActivity = s.core.Clock.Now()
		return nil, nil
	})
	if err != nil {
		return err
	}
	log := logger.WithWorker("worker_registry", workerID)
	log.Info().Msg("Worker deactivated")
	return nil
}

// Get returns a copy of the worker.
func (s *RegistryService) Get(ctx context.Context, workerID uint64) (*models.Worker, error) {
	w, err := s.core.worker(workerID)
	if err != nil {
		return nil, err
	}
	return w.Clone(), nil
}

func (s *RegistryService) GetByOwner(ctx context.Context, owner common.Address) (*models.Worker, error) {
	w := s.core.Store.Snapshot().WorkerByOwner(owner)
	if w == nil {
		return nil, wrap(ErrWorkerNotFound, "owner %s", owner.Hex())
	}
	return w.Clone(), nil
}

func (s *RegistryService) List(ctx context.Context) []*models.Worker {
	workers := s.core.Store.Snapshot().Workers()
	out := make([]*models.Worker, 0, len(workers))
	for _, w := range workers {
		out = append(out, w.Clone())
	}
	return out
}
