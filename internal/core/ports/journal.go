package ports

import (
	"context"

	"github.com/theblitlabs/parity-stake/internal/core/models"
)

// LedgerJournal persists committed worker state. Commit runs apply inside
// the same transaction as the write and rolls back if apply fails.
type LedgerJournal interface {
	Commit(ctx context.Context, worker *models.Worker, slash *models.SlashRecord, apply func(ctx context.Context) error) error
	LoadWorkers(ctx context.Context) ([]*models.Worker, error)
	LoadSlashes(ctx context.Context) ([]models.SlashRecord, error)
}

// AuditArchive exports slash records for off-site audit.
type AuditArchive interface {
	ArchiveSlash(ctx context.Context, record models.SlashRecord) error
}
