package memory

import (
	"context"
	"time"

	"github.com/wms-platform/fulfillment-engine/internal/domain"
)

// The repository interfaces overlap on method names, so each gets a thin
// view over the shared store.

// OrderRepository adapts the store to domain.OrderRepository
type OrderRepository struct{ store *Store }

// Orders returns the order repository view
func (s *Store) Orders() *OrderRepository { return &OrderRepository{store: s} }

func (r *OrderRepository) Save(ctx context.Context, order *domain.OrderHeader) error {
	return r.store.SaveOrder(ctx, order)
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (*domain.OrderHeader, error) {
	return r.store.FindOrderByID(ctx, orderID)
}

func (r *OrderRepository) FindByIDs(ctx context.Context, orderIDs []string) ([]*domain.OrderHeader, error) {
	return r.store.FindOrdersByIDs(ctx, orderIDs)
}

func (r *OrderRepository) FindByLicensePlate(ctx context.Context, plate string) (*domain.OrderHeader, error) {
	return r.store.FindOrderByLicensePlate(ctx, plate)
}

func (r *OrderRepository) FindActive(ctx context.Context) ([]*domain.OrderHeader, error) {
	return r.store.FindActiveOrders(ctx)
}

func (r *OrderRepository) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	return r.store.PurgeOrdersOlderThan(ctx, age)
}

// WorkInstructionRepository adapts the store to
// domain.WorkInstructionRepository
type WorkInstructionRepository struct{ store *Store }

// Instructions returns the work instruction repository view
func (s *Store) Instructions() *WorkInstructionRepository {
	return &WorkInstructionRepository{store: s}
}

func (r *WorkInstructionRepository) Save(ctx context.Context, wi *domain.WorkInstruction) error {
	return r.store.SaveInstruction(ctx, wi)
}

func (r *WorkInstructionRepository) SaveAll(ctx context.Context, wis []*domain.WorkInstruction) error {
	return r.store.SaveInstructions(ctx, wis)
}

func (r *WorkInstructionRepository) FindByInstructionID(ctx context.Context, instructionID string) (*domain.WorkInstruction, error) {
	return r.store.FindInstructionByID(ctx, instructionID)
}

func (r *WorkInstructionRepository) FindActiveForOrders(ctx context.Context, orderIDs []string) ([]*domain.WorkInstruction, error) {
	return r.store.FindActiveInstructionsForOrders(ctx, orderIDs)
}

func (r *WorkInstructionRepository) FindForOrders(ctx context.Context, orderIDs []string) ([]*domain.WorkInstruction, error) {
	return r.store.FindInstructionsForOrders(ctx, orderIDs)
}

func (r *WorkInstructionRepository) ClaimForDevice(ctx context.Context, instructionID, deviceID string, version int64) error {
	return r.store.ClaimInstructionForDevice(ctx, instructionID, deviceID, version)
}

func (r *WorkInstructionRepository) ReleaseDeviceClaims(ctx context.Context, deviceID string) error {
	return r.store.ReleaseDeviceClaims(ctx, deviceID)
}

func (r *WorkInstructionRepository) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	return r.store.PurgeInstructionsOlderThan(ctx, age)
}

// FacilityRepository adapts the store to domain.FacilityRepository
type FacilityRepository struct{ store *Store }

// Facilities returns the facility repository view
func (s *Store) Facilities() *FacilityRepository { return &FacilityRepository{store: s} }

func (r *FacilityRepository) Get(ctx context.Context) (*domain.Facility, error) {
	return r.store.GetFacility(ctx)
}

func (r *FacilityRepository) Save(ctx context.Context, facility *domain.Facility) error {
	return r.store.SaveFacility(ctx, facility)
}

// WorkerRepository adapts the store to domain.WorkerRepository
type WorkerRepository struct{ store *Store }

// Workers returns the worker repository view
func (s *Store) Workers() *WorkerRepository { return &WorkerRepository{store: s} }

func (r *WorkerRepository) FindByBadge(ctx context.Context, badge string) (*domain.Worker, error) {
	return r.store.FindWorkerByBadge(ctx, badge)
}

func (r *WorkerRepository) Save(ctx context.Context, worker *domain.Worker) error {
	return r.store.SaveWorker(ctx, worker)
}

// InventoryRepository adapts the store to domain.InventoryRepository
type InventoryRepository struct{ store *Store }

// Inventory returns the inventory repository view
func (s *Store) Inventory() *InventoryRepository { return &InventoryRepository{store: s} }

func (r *InventoryRepository) Load(ctx context.Context) (*domain.Inventory, error) {
	return r.store.LoadInventory(ctx)
}

func (r *InventoryRepository) SaveItem(ctx context.Context, item domain.Item) error {
	return r.store.SaveInventoryItem(ctx, item)
}

func (r *InventoryRepository) ReplaceStock(ctx context.Context, sku string, stock []domain.StockLocation) error {
	return r.store.ReplaceStockFor(ctx, sku, stock)
}
