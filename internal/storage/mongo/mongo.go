// Package mongo stores report records, import jobs and saved reports in
// MongoDB and runs report plans as aggregation pipelines.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fdg312/adreport/internal/schema"
	"github.com/fdg312/adreport/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names
const (
	RecordsCollection      = "ad_reports"
	JobsCollection         = "import_jobs"
	SavedReportsCollection = "saved_reports"
	StateCollection        = "dataset_state"

	DefaultDatabase = "adtech_reports"

	currentStateID = "current"
)

// MongoStorage - MongoDB реализация storage.Storage
type MongoStorage struct {
	client  *mongo.Client
	records *mongo.Collection
	jobs    *mongo.Collection
	saved   *mongo.Collection
	state   *mongo.Collection
}

// Connect открывает клиент и проверяет соединение
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongodb connection URI is empty")
	}

	clientOptions := options.Client().ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetConnectTimeout(5 * time.Second)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
	defer cancelPing()

	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client, nil
}

// New подключается к MongoDB и создаёт индексы
func New(ctx context.Context, uri, database string) (*MongoStorage, error) {
	if database == "" {
		database = DefaultDatabase
	}

	client, err := Connect(ctx, uri)
	if err != nil {
		return nil, err
	}

	db := client.Database(database)
	ms := &MongoStorage{
		client:  client,
		records: db.Collection(RecordsCollection),
		jobs:    db.Collection(JobsCollection),
		saved:   db.Collection(SavedReportsCollection),
		state:   db.Collection(StateCollection),
	}

	if err := ms.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return ms, nil
}

func (m *MongoStorage) ensureIndexes(ctx context.Context) error {
	_, err := m.records.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: schema.FieldDate, Value: 1}}},
		{Keys: bson.D{{Key: schema.FieldDate, Value: 1}, {Key: schema.FieldAppName, Value: 1}}},
		{Keys: bson.D{{Key: schema.FieldReportID, Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create record indexes: %w", err)
	}

	_, err = m.jobs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create job indexes: %w", err)
	}

	return nil
}

func (m *MongoStorage) Name() string {
	return "mongo"
}

func (m *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// ImportJobsStorage

func (m *MongoStorage) CreateJob(ctx context.Context, job *storage.ImportJob) error {
	if _, err := m.jobs.InsertOne(ctx, job); err != nil {
		return fmt.Errorf("failed to create import job: %w", err)
	}
	return nil
}

func (m *MongoStorage) UpdateJob(ctx context.Context, job *storage.ImportJob) error {
	res, err := m.jobs.ReplaceOne(ctx, bson.M{"_id": job.ID}, job)
	if err != nil {
		return fmt.Errorf("failed to update import job: %w", err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (m *MongoStorage) GetJob(ctx context.Context, id string) (*storage.ImportJob, error) {
	var job storage.ImportJob
	err := m.jobs.FindOne(ctx, bson.M{"_id": id}).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get import job: %w", err)
	}
	return &job, nil
}

func (m *MongoStorage) ListJobs(ctx context.Context, limit int) ([]storage.ImportJob, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := m.jobs.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list import jobs: %w", err)
	}

	jobs := []storage.ImportJob{}
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, fmt.Errorf("failed to decode import jobs: %w", err)
	}
	return jobs, nil
}

// SavedReportsStorage

func (m *MongoStorage) CreateSavedReport(ctx context.Context, report *storage.SavedReport) error {
	if _, err := m.saved.InsertOne(ctx, report); err != nil {
		return fmt.Errorf("failed to create saved report: %w", err)
	}
	return nil
}

func (m *MongoStorage) ListSavedReports(ctx context.Context) ([]storage.SavedReport, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := m.saved.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved reports: %w", err)
	}

	reports := []storage.SavedReport{}
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, fmt.Errorf("failed to decode saved reports: %w", err)
	}
	return reports, nil
}

func (m *MongoStorage) DeleteSavedReport(ctx context.Context, id string) error {
	res, err := m.saved.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete saved report: %w", err)
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

var _ storage.Storage = (*MongoStorage)(nil)
