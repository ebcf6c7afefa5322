package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/joblens/job-import-service/internal/config"
	"github.com/joblens/job-import-service/internal/models"
)

// MongoDBStorage implements Storage interface using MongoDB
type MongoDBStorage struct {
	client *mongo.Client
	jobs   *mongo.Collection
	logs   *mongo.Collection
	window time.Duration
}

// NewMongoDBStorage creates a new MongoDB storage instance
func NewMongoDBStorage(cfg config.StorageConfig) (*MongoDBStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDBURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(cfg.MongoDatabase)
	storage := &MongoDBStorage{
		client: client,
		jobs:   db.Collection("jobs"),
		logs:   db.Collection("import_logs"),
		window: cfg.LogWindow,
	}

	if err := storage.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}

	return storage, nil
}

// ensureIndexes creates the identity and log-lookup indexes
func (m *MongoDBStorage) ensureIndexes(ctx context.Context) error {
	_, err := m.jobs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "identityKey", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	_, err = m.logs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "fileName", Value: 1}, {Key: "timestamp", Value: -1}},
	})
	return err
}

// UpsertJob inserts or updates a posting in one atomic operation keyed on the
// identity key, so concurrent workers racing on the same posting cannot
// double-insert.
func (m *MongoDBStorage) UpsertJob(ctx context.Context, job models.Job) (bool, error) {
	filter := bson.M{"identityKey": job.IdentityKey()}
	update := bson.M{
		"$set": bson.M{
			"jobId":       job.JobID,
			"title":       job.Title,
			"company":     job.Company,
			"location":    job.Location,
			"url":         job.URL,
			"description": job.Description,
			"source":      job.Source,
			"updatedAt":   job.UpdatedAt,
		},
	}

	result, err := m.jobs.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("failed to upsert job: %w", err)
	}

	return result.UpsertedCount > 0, nil
}

// MergeImportLog adds delta counts into the entry for source within the
// trailing window, appending failure reasons, creating the entry when absent.
func (m *MongoDBStorage) MergeImportLog(ctx context.Context, source string, now time.Time, delta models.ImportDelta) error {
	filter := bson.M{
		"fileName":  source,
		"timestamp": bson.M{"$gte": now.Add(-m.window)},
	}
	update := bson.M{
		"$inc": bson.M{
			"totalFetched": delta.TotalFetched,
			"newJobs":      delta.NewJobs,
			"updatedJobs":  delta.UpdatedJobs,
			"failedJobs":   delta.FailedJobs,
		},
		"$set": bson.M{
			"fileName":  source,
			"timestamp": now,
		},
	}
	if len(delta.FailureReasons) > 0 {
		update["$push"] = bson.M{
			"failureReasons": bson.M{"$each": delta.FailureReasons},
		}
	}

	_, err := m.logs.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to merge import log: %w", err)
	}
	return nil
}

// CountImportLogs returns the total number of import-log entries
func (m *MongoDBStorage) CountImportLogs(ctx context.Context) (int64, error) {
	total, err := m.logs.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count import logs: %w", err)
	}
	return total, nil
}

// ListImportLogs returns one page of entries sorted by timestamp descending
func (m *MongoDBStorage) ListImportLogs(ctx context.Context, limit, offset int) ([]models.ImportLog, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := m.logs.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query import logs: %w", err)
	}
	defer cursor.Close(ctx)

	var logs []models.ImportLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("failed to decode import logs: %w", err)
	}

	return logs, nil
}

// Close closes the MongoDB connection
func (m *MongoDBStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
