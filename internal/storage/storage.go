package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/joblens/job-import-service/internal/config"
	"github.com/joblens/job-import-service/internal/models"
)

// Storage interface defines the contract for the job and import-log store
type Storage interface {
	// UpsertJob inserts the posting if its identity key is absent, otherwise
	// updates the existing posting, in a single atomic store operation.
	// Reports whether a new posting was created.
	UpsertJob(ctx context.Context, job models.Job) (created bool, err error)

	// MergeImportLog folds delta additively into the import-log entry for
	// source whose timestamp falls within the trailing log window, creating
	// the entry when none exists. The entry's timestamp advances to now.
	MergeImportLog(ctx context.Context, source string, now time.Time, delta models.ImportDelta) error

	CountImportLogs(ctx context.Context) (int64, error)

	// ListImportLogs returns entries sorted by timestamp descending.
	ListImportLogs(ctx context.Context, limit, offset int) ([]models.ImportLog, error)

	Close() error
}

// NewStorage creates a new storage instance based on configuration
func NewStorage(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "mongodb":
		return NewMongoDBStorage(cfg)
	case "dynamodb":
		return NewDynamoDBStorage(cfg)
	case "postgresql":
		return NewPostgreSQLStorage(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
