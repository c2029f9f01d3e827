package domain

import (
	"context"
	"time"
)

// Transactor runs a function inside one bounded transaction with full
// rollback on error. Resolve, import, and purge each execute within one.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository provides transactional load/store for order aggregates.
// FindByLicensePlate returns nil without error when no order carries the
// plate.
type OrderRepository interface {
	Save(ctx context.Context, order *OrderHeader) error
	FindByID(ctx context.Context, orderID string) (*OrderHeader, error)
	FindByIDs(ctx context.Context, orderIDs []string) ([]*OrderHeader, error)
	FindByLicensePlate(ctx context.Context, plate string) (*OrderHeader, error)
	FindActive(ctx context.Context) ([]*OrderHeader, error)
	PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// WorkInstructionRepository provides load/store and claim semantics for
// work instructions. FindByInstructionID returns nil without error for a
// purged instruction so live sessions degrade instead of failing.
type WorkInstructionRepository interface {
	Save(ctx context.Context, wi *WorkInstruction) error
	SaveAll(ctx context.Context, wis []*WorkInstruction) error
	FindByInstructionID(ctx context.Context, instructionID string) (*WorkInstruction, error)
	FindActiveForOrders(ctx context.Context, orderIDs []string) ([]*WorkInstruction, error)
	FindForOrders(ctx context.Context, orderIDs []string) ([]*WorkInstruction, error)

	// ClaimForDevice performs a compare-and-set claim: it succeeds only if
	// the instruction is unclaimed (or already claimed by this device) at
	// the given version. Losers get ErrClaimConflict.
	ClaimForDevice(ctx context.Context, instructionID, deviceID string, version int64) error
	ReleaseDeviceClaims(ctx context.Context, deviceID string) error

	PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// FacilityRepository provides the read-mostly facility model
type FacilityRepository interface {
	Get(ctx context.Context) (*Facility, error)
	Save(ctx context.Context, facility *Facility) error
}

// WorkerRepository provides badge lookup and provisioning
type WorkerRepository interface {
	FindByBadge(ctx context.Context, badge string) (*Worker, error)
	Save(ctx context.Context, worker *Worker) error
}

// InventoryRepository provides the item/stock-location view
type InventoryRepository interface {
	Load(ctx context.Context) (*Inventory, error)
	SaveItem(ctx context.Context, item Item) error
	ReplaceStock(ctx context.Context, sku string, stock []StockLocation) error
}
