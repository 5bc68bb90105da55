package db

import (
	"gorm.io/gorm"

	"github.com/theblitlabs/parity-stake/internal/database/repositories"
)

// RepositoryFactory hands out repositories that share one database handle.
type RepositoryFactory struct {
	db *gorm.DB
}

// NewRepositoryFactory wraps an open gorm handle.
func NewRepositoryFactory(db *gorm.DB) *RepositoryFactory {
	return &RepositoryFactory{
		db: db,
	}
}

// NewRepositoryFactoryFromManager uses the manager's connection.
func NewRepositoryFactoryFromManager(manager *DBManager) *RepositoryFactory {
	return &RepositoryFactory{
		db: manager.GetDB(),
	}
}

// WorkerRepository returns the repository that journals worker state.
func (f *RepositoryFactory) WorkerRepository() *repositories.WorkerRepository {
	return repositories.NewWorkerRepository(f.db)
}
