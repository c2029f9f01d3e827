package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/fulfillment-engine/internal/domain"
)

// InventoryRepository persists the item catalog and stock placements in
// two collections and materializes them into one Inventory view.
type InventoryRepository struct {
	items *mongo.Collection
	stock *mongo.Collection
}

// NewInventoryRepository creates the repository and ensures indexes
func NewInventoryRepository(db *mongo.Database) *InventoryRepository {
	repo := &InventoryRepository{
		items: db.Collection("items"),
		stock: db.Collection("stock_locations"),
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *InventoryRepository) ensureIndexes(ctx context.Context) {
	_, _ = r.items.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sku", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "gtin", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	_, _ = r.stock.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sku", Value: 1}, {Key: "locationAlias", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "locationAlias", Value: 1}}},
	})
}

// Load materializes the full item/stock view
func (r *InventoryRepository) Load(ctx context.Context) (*domain.Inventory, error) {
	inv := domain.NewInventory()

	cursor, err := r.items.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	var items []domain.Item
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	for _, item := range items {
		inv.AddItem(item)
	}

	cursor, err = r.stock.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to load stock: %w", err)
	}
	var stocks []domain.StockLocation
	if err := cursor.All(ctx, &stocks); err != nil {
		return nil, fmt.Errorf("failed to decode stock: %w", err)
	}
	for _, st := range stocks {
		inv.AddStock(st)
	}

	return inv, nil
}

// SaveItem upserts a catalog item by sku
func (r *InventoryRepository) SaveItem(ctx context.Context, item domain.Item) error {
	filter := bson.M{"sku": item.SKU}
	update := bson.M{"$set": item}
	opts := options.Update().SetUpsert(true)

	if _, err := r.items.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}
	return nil
}

// ReplaceStock replaces one item's stock placements wholesale
func (r *InventoryRepository) ReplaceStock(ctx context.Context, sku string, stock []domain.StockLocation) error {
	if _, err := r.stock.DeleteMany(ctx, bson.M{"sku": sku}); err != nil {
		return fmt.Errorf("failed to clear stock: %w", err)
	}
	if len(stock) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(stock))
	for _, st := range stock {
		docs = append(docs, st)
	}
	if _, err := r.stock.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert stock: %w", err)
	}
	return nil
}
