package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/fulfillment-engine/internal/domain"
)

// FacilityRepository persists the single facility document for the site
type FacilityRepository struct {
	collection *mongo.Collection
	facilityID string
	defaults   *domain.Facility
}

// NewFacilityRepository creates the repository. The defaults document is
// returned until a layout import persists a real one.
func NewFacilityRepository(db *mongo.Database, defaults *domain.Facility) *FacilityRepository {
	repo := &FacilityRepository{
		collection: db.Collection("facilities"),
		facilityID: defaults.FacilityID,
		defaults:   defaults,
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *FacilityRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "facilityId", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	_, _ = r.collection.Indexes().CreateMany(ctx, indexes)
}

// Get returns the facility snapshot, falling back to configured defaults
func (r *FacilityRepository) Get(ctx context.Context) (*domain.Facility, error) {
	var facility domain.Facility
	err := r.collection.FindOne(ctx, bson.M{"facilityId": r.facilityID}).Decode(&facility)
	if err == mongo.ErrNoDocuments {
		return r.defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find facility: %w", err)
	}
	return &facility, nil
}

// Save replaces the facility document wholesale
func (r *FacilityRepository) Save(ctx context.Context, facility *domain.Facility) error {
	if facility.FacilityID == "" {
		facility.FacilityID = r.facilityID
	}
	filter := bson.M{"facilityId": facility.FacilityID}
	update := bson.M{"$set": facility}
	opts := options.Update().SetUpsert(true)

	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save facility: %w", err)
	}
	return nil
}
