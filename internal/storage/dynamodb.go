package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"

	"github.com/joblens/job-import-service/internal/config"
	"github.com/joblens/job-import-service/internal/models"
)

// DynamoDBStorage implements Storage interface using AWS DynamoDB
type DynamoDBStorage struct {
	client    *dynamodb.DynamoDB
	jobsTable string
	logsTable string
	window    time.Duration
}

// dynamoImportLog is the import-log item shape; windowStart is the range key
// assigned when the entry is first created.
type dynamoImportLog struct {
	FileName       string   `json:"fileName"`
	WindowStart    int64    `json:"windowStart"`
	Timestamp      int64    `json:"timestamp"`
	TotalFetched   int      `json:"totalFetched"`
	NewJobs        int      `json:"newJobs"`
	UpdatedJobs    int      `json:"updatedJobs"`
	FailedJobs     int      `json:"failedJobs"`
	FailureReasons []string `json:"failureReasons"`
}

// NewDynamoDBStorage creates a new DynamoDB storage instance
func NewDynamoDBStorage(cfg config.StorageConfig) (*DynamoDBStorage, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}

	// For local testing with DynamoDB Local
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	client := dynamodb.New(sess)
	storage := &DynamoDBStorage{
		client:    client,
		jobsTable: cfg.TableName,
		logsTable: cfg.TableName + "_import_logs",
		window:    cfg.LogWindow,
	}

	// Create tables if they don't exist (for local testing)
	if err := storage.ensureTables(); err != nil {
		return nil, fmt.Errorf("failed to ensure tables exist: %w", err)
	}

	return storage, nil
}

// ensureTables creates the DynamoDB tables if they don't exist
func (d *DynamoDBStorage) ensureTables() error {
	jobsInput := &dynamodb.CreateTableInput{
		TableName: aws.String(d.jobsTable),
		KeySchema: []*dynamodb.KeySchemaElement{
			{AttributeName: aws.String("identityKey"), KeyType: aws.String("HASH")},
		},
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{AttributeName: aws.String("identityKey"), AttributeType: aws.String("S")},
		},
		BillingMode: aws.String("PAY_PER_REQUEST"),
	}

	logsInput := &dynamodb.CreateTableInput{
		TableName: aws.String(d.logsTable),
		KeySchema: []*dynamodb.KeySchemaElement{
			{AttributeName: aws.String("fileName"), KeyType: aws.String("HASH")},
			{AttributeName: aws.String("windowStart"), KeyType: aws.String("RANGE")},
		},
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{AttributeName: aws.String("fileName"), AttributeType: aws.String("S")},
			{AttributeName: aws.String("windowStart"), AttributeType: aws.String("N")},
		},
		BillingMode: aws.String("PAY_PER_REQUEST"),
	}

	for _, input := range []*dynamodb.CreateTableInput{jobsInput, logsInput} {
		_, err := d.client.DescribeTable(&dynamodb.DescribeTableInput{
			TableName: input.TableName,
		})
		if err == nil {
			continue // Table already exists
		}

		if _, err := d.client.CreateTable(input); err != nil {
			return fmt.Errorf("failed to create table %s: %w", *input.TableName, err)
		}

		err = d.client.WaitUntilTableExists(&dynamodb.DescribeTableInput{
			TableName: input.TableName,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// UpsertJob stores the posting under its identity key; a PutItem on the hash
// key replaces the previous version atomically.
func (d *DynamoDBStorage) UpsertJob(ctx context.Context, job models.Job) (bool, error) {
	item, err := dynamodbattribute.MarshalMap(job)
	if err != nil {
		return false, fmt.Errorf("failed to marshal job: %w", err)
	}
	item["identityKey"] = &dynamodb.AttributeValue{S: aws.String(job.IdentityKey())}

	out, err := d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:    aws.String(d.jobsTable),
		Item:         item,
		ReturnValues: aws.String("ALL_OLD"),
	})
	if err != nil {
		return false, fmt.Errorf("failed to upsert job: %w", err)
	}

	return len(out.Attributes) == 0, nil
}

// MergeImportLog adds delta counts into the source's latest entry when its
// timestamp is still inside the window, otherwise starts a new entry.
func (d *DynamoDBStorage) MergeImportLog(ctx context.Context, source string, now time.Time, delta models.ImportDelta) error {
	latest, err := d.latestLog(ctx, source)
	if err != nil {
		return err
	}

	if latest == nil || latest.Timestamp < now.Add(-d.window).Unix() {
		entry := dynamoImportLog{
			FileName:       source,
			WindowStart:    now.Unix(),
			Timestamp:      now.Unix(),
			TotalFetched:   delta.TotalFetched,
			NewJobs:        delta.NewJobs,
			UpdatedJobs:    delta.UpdatedJobs,
			FailedJobs:     delta.FailedJobs,
			FailureReasons: delta.FailureReasons,
		}
		item, err := dynamodbattribute.MarshalMap(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal import log: %w", err)
		}
		_, err = d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(d.logsTable),
			Item:      item,
		})
		if err != nil {
			return fmt.Errorf("failed to create import log: %w", err)
		}
		return nil
	}

	reasons, err := dynamodbattribute.Marshal(append([]string{}, delta.FailureReasons...))
	if err != nil {
		return fmt.Errorf("failed to marshal failure reasons: %w", err)
	}

	_, err = d.client.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.logsTable),
		Key: map[string]*dynamodb.AttributeValue{
			"fileName":    {S: aws.String(source)},
			"windowStart": {N: aws.String(strconv.FormatInt(latest.WindowStart, 10))},
		},
		UpdateExpression: aws.String(
			"ADD totalFetched :t, newJobs :n, updatedJobs :u, failedJobs :f " +
				"SET #ts = :now, failureReasons = list_append(if_not_exists(failureReasons, :empty), :reasons)"),
		ExpressionAttributeNames: map[string]*string{
			"#ts": aws.String("timestamp"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":t":       {N: aws.String(strconv.Itoa(delta.TotalFetched))},
			":n":       {N: aws.String(strconv.Itoa(delta.NewJobs))},
			":u":       {N: aws.String(strconv.Itoa(delta.UpdatedJobs))},
			":f":       {N: aws.String(strconv.Itoa(delta.FailedJobs))},
			":now":     {N: aws.String(strconv.FormatInt(now.Unix(), 10))},
			":empty":   {L: []*dynamodb.AttributeValue{}},
			":reasons": reasons,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to merge import log: %w", err)
	}
	return nil
}

// latestLog returns the most recent import-log entry for source, or nil
func (d *DynamoDBStorage) latestLog(ctx context.Context, source string) (*dynamoImportLog, error) {
	out, err := d.client.QueryWithContext(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.logsTable),
		KeyConditionExpression: aws.String("fileName = :src"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":src": {S: aws.String(source)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int64(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query import logs: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}

	var entry dynamoImportLog
	if err := dynamodbattribute.UnmarshalMap(out.Items[0], &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal import log: %w", err)
	}
	return &entry, nil
}

// CountImportLogs returns the total number of import-log entries
func (d *DynamoDBStorage) CountImportLogs(ctx context.Context) (int64, error) {
	out, err := d.client.ScanWithContext(ctx, &dynamodb.ScanInput{
		TableName: aws.String(d.logsTable),
		Select:    aws.String("COUNT"),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count import logs: %w", err)
	}
	return aws.Int64Value(out.Count), nil
}

// ListImportLogs scans all entries and pages through them sorted by
// timestamp descending. Acceptable for the log volumes this table holds.
func (d *DynamoDBStorage) ListImportLogs(ctx context.Context, limit, offset int) ([]models.ImportLog, error) {
	out, err := d.client.ScanWithContext(ctx, &dynamodb.ScanInput{
		TableName: aws.String(d.logsTable),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan import logs: %w", err)
	}

	var entries []dynamoImportLog
	if err := dynamodbattribute.UnmarshalListOfMaps(out.Items, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal import logs: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp > entries[j].Timestamp
	})

	if offset >= len(entries) {
		return nil, nil
	}
	entries = entries[offset:]
	if limit < len(entries) {
		entries = entries[:limit]
	}

	logs := make([]models.ImportLog, len(entries))
	for i, e := range entries {
		logs[i] = models.ImportLog{
			FileName:       e.FileName,
			Timestamp:      time.Unix(e.Timestamp, 0).UTC(),
			TotalFetched:   e.TotalFetched,
			NewJobs:        e.NewJobs,
			UpdatedJobs:    e.UpdatedJobs,
			FailedJobs:     e.FailedJobs,
			FailureReasons: e.FailureReasons,
		}
	}

	return logs, nil
}

// Close closes the DynamoDB connection
func (d *DynamoDBStorage) Close() error {
	// DynamoDB client doesn't need explicit closing
	return nil
}
