package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/fulfillment-engine/internal/domain"
)

// WorkerRepository persists workers keyed by badge
type WorkerRepository struct {
	collection *mongo.Collection
}

// NewWorkerRepository creates the repository and ensures indexes
func NewWorkerRepository(db *mongo.Database) *WorkerRepository {
	repo := &WorkerRepository{collection: db.Collection("workers")}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *WorkerRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "badge", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "workerId", Value: 1}}},
	}
	_, _ = r.collection.Indexes().CreateMany(ctx, indexes)
}

// FindByBadge resolves a badge, domain.ErrWorkerNotFound when unknown
func (r *WorkerRepository) FindByBadge(ctx context.Context, badge string) (*domain.Worker, error) {
	var worker domain.Worker
	err := r.collection.FindOne(ctx, bson.M{"badge": badge}).Decode(&worker)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrWorkerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find worker: %w", err)
	}
	return &worker, nil
}

// Save upserts a worker by badge
func (r *WorkerRepository) Save(ctx context.Context, worker *domain.Worker) error {
	filter := bson.M{"badge": worker.Badge}
	update := bson.M{"$set": worker}
	opts := options.Update().SetUpsert(true)

	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save worker: %w", err)
	}
	return nil
}
