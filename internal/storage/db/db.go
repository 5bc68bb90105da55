package db

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/theblitlabs/parity-stake/internal/core/models"
)

// DBManager provides centralized database connection management
type DBManager struct {
	db   *gorm.DB
	lock sync.RWMutex
}

// NewDBManager returns an unconnected manager; call Connect before use.
func NewDBManager() *DBManager {
	return &DBManager{}
}

// Connect opens the database and migrates the ledger tables.
func (m *DBManager) Connect(ctx context.Context, dbURL string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	db, err := gorm.Open(postgres.Open(dbURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}

	if err := Migrate(db.WithContext(ctx)); err != nil {
		return err
	}

	m.db = db
	return nil
}

// Migrate creates or updates the ledger journal tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.WorkerState{}, &models.PendingUnstake{}, &models.SlashEntry{}); err != nil {
		return fmt.Errorf("error migrating database: %w", err)
	}
	return nil
}

// GetDB returns the underlying gorm handle, or nil before Connect.
func (m *DBManager) GetDB() *gorm.DB {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.db
}

// Close releases the connection pool.
func (m *DBManager) Close() error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.db == nil {
		return nil
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("error getting SQL DB: %w", err)
	}

	return sqlDB.Close()
}

var (
	instance *DBManager
	once     sync.Once
)

// GetDBManager returns the singleton database manager instance
func GetDBManager() *DBManager {
	once.Do(func() {
		instance = NewDBManager()
	})
	return instance
}
