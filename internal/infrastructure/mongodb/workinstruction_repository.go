package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/fulfillment-engine/internal/domain"
)

// WorkInstructionRepository persists work instructions and implements the
// compare-and-set device claim.
type WorkInstructionRepository struct {
	collection *mongo.Collection
}

// NewWorkInstructionRepository creates the repository and ensures indexes
func NewWorkInstructionRepository(db *mongo.Database) *WorkInstructionRepository {
	repo := &WorkInstructionRepository{collection: db.Collection("work_instructions")}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *WorkInstructionRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "instructionId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "orderId", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "detailKeys", Value: 1}}},
		{Keys: bson.D{{Key: "claimedBy", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "updatedAt", Value: 1}}},
	}
	_, _ = r.collection.Indexes().CreateMany(ctx, indexes)
}

// Save upserts by business id
func (r *WorkInstructionRepository) Save(ctx context.Context, wi *domain.WorkInstruction) error {
	wi.UpdatedAt = time.Now()
	filter := bson.M{"instructionId": wi.InstructionID}
	update := bson.M{"$set": wi}
	opts := options.Update().SetUpsert(true)

	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save work instruction: %w", err)
	}
	return nil
}

// SaveAll upserts a batch in one bulk write
func (r *WorkInstructionRepository) SaveAll(ctx context.Context, wis []*domain.WorkInstruction) error {
	if len(wis) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(wis))
	now := time.Now()
	for _, wi := range wis {
		wi.UpdatedAt = now
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"instructionId": wi.InstructionID}).
			SetUpdate(bson.M{"$set": wi}).
			SetUpsert(true))
	}
	if _, err := r.collection.BulkWrite(ctx, models); err != nil {
		return fmt.Errorf("failed to save work instructions: %w", err)
	}
	return nil
}

// FindByInstructionID returns nil without error for a purged instruction
func (r *WorkInstructionRepository) FindByInstructionID(ctx context.Context, instructionID string) (*domain.WorkInstruction, error) {
	var wi domain.WorkInstruction
	err := r.collection.FindOne(ctx, bson.M{"instructionId": instructionID}).Decode(&wi)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find work instruction: %w", err)
	}
	return &wi, nil
}

// FindActiveForOrders returns workable instructions covering the orders
func (r *WorkInstructionRepository) FindActiveForOrders(ctx context.Context, orderIDs []string) ([]*domain.WorkInstruction, error) {
	return r.findForOrders(ctx, orderIDs, true)
}

// FindForOrders returns all instructions covering the orders
func (r *WorkInstructionRepository) FindForOrders(ctx context.Context, orderIDs []string) ([]*domain.WorkInstruction, error) {
	return r.findForOrders(ctx, orderIDs, false)
}

func (r *WorkInstructionRepository) findForOrders(ctx context.Context, orderIDs []string, activeOnly bool) ([]*domain.WorkInstruction, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}

	// Consolidated instructions carry their orders inside detailKeys, so
	// match either the direct order id or any covering detail key suffix.
	var keyPatterns []bson.M
	for _, id := range orderIDs {
		keyPatterns = append(keyPatterns, bson.M{"detailKeys": bson.M{"$regex": fmt.Sprintf("-%s$", id)}})
	}
	filter := bson.M{"$or": append([]bson.M{
		{"orderId": bson.M{"$in": orderIDs}},
	}, keyPatterns...)}
	if activeOnly {
		filter = bson.M{"$and": []bson.M{filter, {"status": bson.M{"$in": []string{
			string(domain.WIStatusNew),
			string(domain.WIStatusInProgress),
		}}}}}
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find work instructions: %w", err)
	}
	defer cursor.Close(ctx)

	var wis []*domain.WorkInstruction
	if err := cursor.All(ctx, &wis); err != nil {
		return nil, fmt.Errorf("failed to decode work instructions: %w", err)
	}
	return wis, nil
}

// ClaimForDevice takes the claim with one atomic compare-and-set: the
// filter matches only an unclaimed instruction (or this device's own
// claim) at the expected version, so exactly one device wins.
func (r *WorkInstructionRepository) ClaimForDevice(ctx context.Context, instructionID, deviceID string, version int64) error {
	filter := bson.M{
		"instructionId": instructionID,
		"version":       version,
		"$or": []bson.M{
			{"claimedBy": ""},
			{"claimedBy": bson.M{"$exists": false}},
			{"claimedBy": deviceID},
		},
	}
	update := bson.M{"$set": bson.M{"claimedBy": deviceID, "updatedAt": time.Now()}}

	result := r.collection.FindOneAndUpdate(ctx, filter, update)
	if result.Err() == mongo.ErrNoDocuments {
		return domain.ErrClaimConflict
	}
	if result.Err() != nil {
		return fmt.Errorf("failed to claim work instruction: %w", result.Err())
	}
	return nil
}

// ReleaseDeviceClaims frees every active claim the device holds
func (r *WorkInstructionRepository) ReleaseDeviceClaims(ctx context.Context, deviceID string) error {
	filter := bson.M{
		"claimedBy": deviceID,
		"status": bson.M{"$in": []string{
			string(domain.WIStatusNew),
			string(domain.WIStatusInProgress),
		}},
	}
	update := bson.M{"$set": bson.M{"claimedBy": "", "updatedAt": time.Now()}}
	if _, err := r.collection.UpdateMany(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to release claims: %w", err)
	}
	return nil
}

// PurgeOlderThan deletes terminal instructions outside the window
func (r *WorkInstructionRepository) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age)
	filter := bson.M{
		"status": bson.M{"$in": []string{
			string(domain.WIStatusComplete),
			string(domain.WIStatusShort),
		}},
		"updatedAt": bson.M{"$lt": cutoff},
	}
	result, err := r.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to purge work instructions: %w", err)
	}
	return result.DeletedCount, nil
}
