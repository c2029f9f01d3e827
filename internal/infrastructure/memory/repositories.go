package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/wms-platform/fulfillment-engine/internal/domain"
)

// Store is an in-memory implementation of every repository interface plus
// the transactor. It backs tests and single-node development runs. The
// transactor serializes writers with one mutex; rollback is not emulated,
// callers get the same claim semantics as the MongoDB store.
type Store struct {
	mu sync.RWMutex

	orders       map[string]*domain.OrderHeader
	instructions map[string]*domain.WorkInstruction
	facility     *domain.Facility
	workers      map[string]*domain.Worker
	items        map[string]domain.Item
	stock        map[string][]domain.StockLocation
}

// NewStore creates an empty in-memory store with a default facility
func NewStore() *Store {
	return &Store{
		orders:       make(map[string]*domain.OrderHeader),
		instructions: make(map[string]*domain.WorkInstruction),
		facility: &domain.Facility{
			FacilityID:                "DEFAULT",
			DropDoneCountOnPathChange: true,
			PalletizerPrefixLen:       domain.DefaultPalletizerPrefixLen,
		},
		workers: make(map[string]*domain.Worker),
		items:   make(map[string]domain.Item),
		stock:   make(map[string][]domain.StockLocation),
	}
}

// WithinTransaction runs fn under the store's write lock
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx)
}

// Repository methods are lock-free; WithinTransaction is the writer entry
// point. Tests that bypass it run single-goroutine.

// OrderRepository

// SaveOrder upserts an order by its business id
func (s *Store) SaveOrder(ctx context.Context, order *domain.OrderHeader) error {
	order.UpdatedAt = time.Now()
	s.orders[order.OrderID] = order
	return nil
}

// FindOrderByID returns nil without error when the order is absent
func (s *Store) FindOrderByID(ctx context.Context, orderID string) (*domain.OrderHeader, error) {
	return s.orders[orderID], nil
}

// FindOrdersByIDs returns the orders that exist, skipping absent ids
func (s *Store) FindOrdersByIDs(ctx context.Context, orderIDs []string) ([]*domain.OrderHeader, error) {
	var out []*domain.OrderHeader
	for _, id := range orderIDs {
		if o, ok := s.orders[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

// FindOrderByLicensePlate returns nil without error when no order
// carries the plate
func (s *Store) FindOrderByLicensePlate(ctx context.Context, plate string) (*domain.OrderHeader, error) {
	if plate == "" {
		return nil, nil
	}
	for _, o := range s.orders {
		if strings.EqualFold(o.LicensePlate, plate) {
			return o, nil
		}
	}
	return nil, nil
}

// FindActiveOrders returns orders that are not terminal
func (s *Store) FindActiveOrders(ctx context.Context) ([]*domain.OrderHeader, error) {
	var out []*domain.OrderHeader
	for _, o := range s.orders {
		if o.Status == domain.OrderStatusReleased || o.Status == domain.OrderStatusInProgress {
			out = append(out, o)
		}
	}
	return out, nil
}

// PurgeOrdersOlderThan removes terminal orders older than age
func (s *Store) PurgeOrdersOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age)
	var purged int64
	for id, o := range s.orders {
		terminal := o.Status == domain.OrderStatusComplete || o.Status == domain.OrderStatusShort
		if terminal && o.UpdatedAt.Before(cutoff) {
			delete(s.orders, id)
			purged++
		}
	}
	return purged, nil
}

// WorkInstructionRepository

// SaveInstruction upserts an instruction by its business id
func (s *Store) SaveInstruction(ctx context.Context, wi *domain.WorkInstruction) error {
	wi.UpdatedAt = time.Now()
	s.instructions[wi.InstructionID] = wi
	return nil
}

// SaveInstructions upserts a batch
func (s *Store) SaveInstructions(ctx context.Context, wis []*domain.WorkInstruction) error {
	for _, wi := range wis {
		if err := s.SaveInstruction(ctx, wi); err != nil {
			return err
		}
	}
	return nil
}

// FindInstructionByID returns nil without error for a purged instruction
func (s *Store) FindInstructionByID(ctx context.Context, instructionID string) (*domain.WorkInstruction, error) {
	return s.instructions[instructionID], nil
}

// FindActiveInstructionsForOrders returns workable instructions covering
// any of the given orders
func (s *Store) FindActiveInstructionsForOrders(ctx context.Context, orderIDs []string) ([]*domain.WorkInstruction, error) {
	wis, err := s.FindInstructionsForOrders(ctx, orderIDs)
	if err != nil {
		return nil, err
	}
	active := wis[:0]
	for _, wi := range wis {
		if wi.Active() {
			active = append(active, wi)
		}
	}
	return active, nil
}

// FindInstructionsForOrders returns all instructions covering the orders
func (s *Store) FindInstructionsForOrders(ctx context.Context, orderIDs []string) ([]*domain.WorkInstruction, error) {
	want := make(map[string]bool, len(orderIDs))
	for _, id := range orderIDs {
		want[id] = true
	}
	var out []*domain.WorkInstruction
	for _, wi := range s.instructions {
		if want[wi.OrderID] {
			out = append(out, wi)
			continue
		}
		for _, key := range wi.DetailKeys {
			idx := strings.LastIndex(key, "-")
			if idx >= 0 && want[key[idx+1:]] {
				out = append(out, wi)
				break
			}
		}
	}
	return out, nil
}

// ClaimInstructionForDevice performs the compare-and-set claim
func (s *Store) ClaimInstructionForDevice(ctx context.Context, instructionID, deviceID string, version int64) error {
	wi, ok := s.instructions[instructionID]
	if !ok {
		return domain.ErrClaimConflict
	}
	if wi.Version != version {
		return domain.ErrClaimConflict
	}
	if wi.ClaimedBy != "" && wi.ClaimedBy != deviceID {
		return domain.ErrClaimConflict
	}
	wi.ClaimedBy = deviceID
	return nil
}

// ReleaseDeviceClaims frees every claim the device holds on active work
func (s *Store) ReleaseDeviceClaims(ctx context.Context, deviceID string) error {
	for _, wi := range s.instructions {
		if wi.ClaimedBy == deviceID && wi.Active() {
			wi.ClaimedBy = ""
		}
	}
	return nil
}

// PurgeInstructionsOlderThan removes terminal instructions older than age
func (s *Store) PurgeInstructionsOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age)
	var purged int64
	for id, wi := range s.instructions {
		if wi.Status.Terminal() && wi.UpdatedAt.Before(cutoff) {
			delete(s.instructions, id)
			purged++
		}
	}
	return purged, nil
}

// FacilityRepository

// GetFacility returns the facility snapshot
func (s *Store) GetFacility(ctx context.Context) (*domain.Facility, error) {
	return s.facility, nil
}

// SaveFacility replaces the facility snapshot
func (s *Store) SaveFacility(ctx context.Context, facility *domain.Facility) error {
	s.facility = facility
	return nil
}

// WorkerRepository

// FindWorkerByBadge resolves a badge, ErrWorkerNotFound when unknown
func (s *Store) FindWorkerByBadge(ctx context.Context, badge string) (*domain.Worker, error) {
	w, ok := s.workers[badge]
	if !ok {
		return nil, domain.ErrWorkerNotFound
	}
	return w, nil
}

// SaveWorker upserts a worker by badge
func (s *Store) SaveWorker(ctx context.Context, worker *domain.Worker) error {
	s.workers[worker.Badge] = worker
	return nil
}

// InventoryRepository

// LoadInventory materializes the item/stock view
func (s *Store) LoadInventory(ctx context.Context) (*domain.Inventory, error) {
	inv := domain.NewInventory()
	for _, item := range s.items {
		inv.AddItem(item)
	}
	for _, stocks := range s.stock {
		for _, st := range stocks {
			inv.AddStock(st)
		}
	}
	return inv, nil
}

// SaveInventoryItem upserts a catalog item
func (s *Store) SaveInventoryItem(ctx context.Context, item domain.Item) error {
	s.items[item.SKU] = item
	return nil
}

// ReplaceStockFor replaces one item's stock placements
func (s *Store) ReplaceStockFor(ctx context.Context, sku string, stock []domain.StockLocation) error {
	if len(stock) == 0 {
		delete(s.stock, sku)
		return nil
	}
	s.stock[sku] = stock
	return nil
}
