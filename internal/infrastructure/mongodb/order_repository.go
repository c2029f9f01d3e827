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

// OrderRepository persists order aggregates in the orders collection
type OrderRepository struct {
	collection *mongo.Collection
}

// NewOrderRepository creates the repository and ensures its indexes
func NewOrderRepository(db *mongo.Database) *OrderRepository {
	repo := &OrderRepository{collection: db.Collection("orders")}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *OrderRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "orderId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "orderType", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "details.detailKey", Value: 1}}},
		{Keys: bson.D{{Key: "licensePlate", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "updatedAt", Value: 1}}},
	}
	_, _ = r.collection.Indexes().CreateMany(ctx, indexes)
}

// Save upserts the aggregate by its business id
func (r *OrderRepository) Save(ctx context.Context, order *domain.OrderHeader) error {
	order.UpdatedAt = time.Now()
	filter := bson.M{"orderId": order.OrderID}
	update := bson.M{"$set": order}
	opts := options.Update().SetUpsert(true)

	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// FindByID returns nil without error when the order is absent
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (*domain.OrderHeader, error) {
	var order domain.OrderHeader
	err := r.collection.FindOne(ctx, bson.M{"orderId": orderID}).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	return &order, nil
}

// FindByLicensePlate returns nil without error when no order carries
// the plate
func (r *OrderRepository) FindByLicensePlate(ctx context.Context, plate string) (*domain.OrderHeader, error) {
	if plate == "" {
		return nil, nil
	}
	var order domain.OrderHeader
	err := r.collection.FindOne(ctx, bson.M{"licensePlate": plate}).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order by license plate: %w", err)
	}
	return &order, nil
}

// FindByIDs returns the orders that exist, skipping absent ids
func (r *OrderRepository) FindByIDs(ctx context.Context, orderIDs []string) ([]*domain.OrderHeader, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	cursor, err := r.collection.Find(ctx, bson.M{"orderId": bson.M{"$in": orderIDs}})
	if err != nil {
		return nil, fmt.Errorf("failed to find orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []*domain.OrderHeader
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

// FindActive returns orders still being worked
func (r *OrderRepository) FindActive(ctx context.Context) ([]*domain.OrderHeader, error) {
	filter := bson.M{"status": bson.M{"$in": []string{
		string(domain.OrderStatusReleased),
		string(domain.OrderStatusInProgress),
	}}}
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find active orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []*domain.OrderHeader
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

// PurgeOlderThan deletes terminal orders not touched within the window
func (r *OrderRepository) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age)
	filter := bson.M{
		"status": bson.M{"$in": []string{
			string(domain.OrderStatusComplete),
			string(domain.OrderStatusShort),
		}},
		"updatedAt": bson.M{"$lt": cutoff},
	}
	result, err := r.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to purge orders: %w", err)
	}
	return result.DeletedCount, nil
}
