package repositories

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/theblitlabs/parity-stake/internal/core/models"
)

// WorkerRepository journals committed worker state. It implements
// ports.LedgerJournal.
type WorkerRepository struct {
	db *gorm.DB
}

func NewWorkerRepository(db *gorm.DB) *WorkerRepository {
	return &WorkerRepository{db: db}
}

// Commit writes the worker, its pending unstakes and an optional slash
// record, then runs apply inside the same transaction. An error from apply
// rolls everything back.
func (r *WorkerRepository) Commit(ctx context.Context, worker *models.Worker, slash *models.SlashRecord, apply func(ctx context.Context) error) error {
	state := models.NewWorkerState(worker)
	pending := state.PendingUnstakes
	state.PendingUnstakes = nil

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(state).Error; err != nil {
			return fmt.Errorf("failed to save worker %d: %w", worker.Profile.ID, err)
		}

		if err := tx.Where("worker_id = ?", state.WorkerID).Delete(&models.PendingUnstake{}).Error; err != nil {
			return fmt.Errorf("failed to clear unstake requests: %w", err)
		}
		if len(pending) > 0 {
			if err := tx.Create(&pending).Error; err != nil {
				return fmt.Errorf("failed to save unstake requests: %w", err)
			}
		}

		if slash != nil {
			if err := tx.Create(models.NewSlashEntry(*slash)).Error; err != nil {
				return fmt.Errorf("failed to save slash record: %w", err)
			}
		}

		if apply != nil {
			return apply(ctx)
		}
		return nil
	})
}

func (r *WorkerRepository) LoadWorkers(ctx context.Context) ([]*models.Worker, error) {
	var states []models.WorkerState
	err := r.db.WithContext(ctx).
		Preload("PendingUnstakes", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Order("worker_id ASC").
		Find(&states).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load workers: %w", err)
	}

	workers := make([]*models.Worker, 0, len(states))
	for i := range states {
		w, err := states[i].ToWorker()
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	return workers, nil
}

func (r *WorkerRepository) LoadSlashes(ctx context.Context) ([]models.SlashRecord, error) {
	var entries []models.SlashEntry
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load slash records: %w", err)
	}

	records := make([]models.SlashRecord, 0, len(entries))
	for i := range entries {
		record, err := entries[i].ToRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}
