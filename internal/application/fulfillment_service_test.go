package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/fulfillment-engine/internal/che"
	"github.com/wms-platform/fulfillment-engine/internal/domain"
	"github.com/wms-platform/fulfillment-engine/internal/infrastructure/memory"
	apperrors "github.com/wms-platform/fulfillment-engine/pkg/errors"
	"github.com/wms-platform/fulfillment-engine/pkg/kafka"
	"github.com/wms-platform/fulfillment-engine/pkg/logging"
)

// fakePublisher records every published event
type fakePublisher struct {
	mu     sync.Mutex
	topics []string
	events []*kafka.Event
}

func (p *fakePublisher) PublishEvent(ctx context.Context, topic string, event *kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) published(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.topics {
		if t == topic {
			n++
		}
	}
	return n
}

func newSeededStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	facility := &domain.Facility{
		FacilityID: "DC1",
		Paths: []domain.Path{
			{PathID: "PATH-1", Segments: []domain.PathSegment{{SegmentOrder: 0, StartCm: 0, EndCm: 1000}}},
		},
		Locations: []domain.Location{
			{LocationID: "L1", Alias: "A-01-01", Aisle: "A", Bay: "01", PathID: "PATH-1", PathDistanceCm: 100, TapeID: 11},
			{LocationID: "L2", Alias: "A-01-02", Aisle: "A", Bay: "01", PathID: "PATH-1", PathDistanceCm: 300, TapeID: 12},
			{LocationID: "L3", Alias: "A-01-03", Aisle: "A", Bay: "01", PathID: "PATH-1", PathDistanceCm: 500, TapeID: 13},
		},
	}
	require.NoError(t, store.SaveFacility(ctx, facility))

	require.NoError(t, store.SaveInventoryItem(ctx, domain.Item{SKU: "SKU-001", GTIN: "00000000000017", DefaultUOM: "each"}))
	require.NoError(t, store.SaveInventoryItem(ctx, domain.Item{SKU: "SKU-002", GTIN: "00000000000024", DefaultUOM: "each"}))
	require.NoError(t, store.ReplaceStockFor(ctx, "SKU-001", []domain.StockLocation{{SKU: "SKU-001", LocationAlias: "A-01-01", Qty: 100}}))
	require.NoError(t, store.ReplaceStockFor(ctx, "SKU-002", []domain.StockLocation{{SKU: "SKU-002", LocationAlias: "A-01-02", Qty: 100}}))
	return store
}

func newTestService(store *memory.Store, producer EventPublisher) *FulfillmentService {
	return NewFulfillmentService(
		store.Orders(),
		store.Instructions(),
		store.Facilities(),
		store.Workers(),
		store.Inventory(),
		store,
		producer,
		logging.New(logging.DefaultConfig("test")),
		nil,
	)
}

func seedOrder(t *testing.T, store *memory.Store, orderID string, lines map[string]int) *domain.OrderHeader {
	t.Helper()
	order := domain.NewOrderHeader(orderID, "DC1", domain.OrderTypeOutbound, time.Now())
	for sku, qty := range lines {
		_, err := order.AddDetail(sku, "each", "", qty, "")
		require.NoError(t, err)
	}
	require.NoError(t, store.SaveOrder(context.Background(), order))
	order.ClearDomainEvents()
	return order
}

func runParamsFor(deviceID string, orderIDs ...string) che.RunParams {
	containers := make([]*domain.Container, 0, len(orderIDs))
	for i, id := range orderIDs {
		c := domain.NewContainer(id, i+1, deviceID, "W1")
		c.BindOrder(id)
		containers = append(containers, c)
	}
	return che.RunParams{
		DeviceID:   deviceID,
		Containers: containers,
		Direction:  domain.DirectionForward,
	}
}

func TestAuthenticate_AutoProvisionsWorker(t *testing.T) {
	store := newSeededStore(t)
	svc := newTestService(store, nil)

	worker, err := svc.Authenticate(context.Background(), "4711")

	require.NoError(t, err)
	assert.Equal(t, "4711", worker.Badge)
	assert.True(t, worker.Active)
	assert.False(t, worker.LastLogin.IsZero())

	again, err := svc.Authenticate(context.Background(), "4711")
	require.NoError(t, err)
	assert.Equal(t, worker.WorkerID, again.WorkerID)
}

func TestAuthenticate_RequiredBadgeRejectsUnknown(t *testing.T) {
	store := newSeededStore(t)
	ctx := context.Background()
	facility, err := store.GetFacility(ctx)
	require.NoError(t, err)
	facility.RequireBadgeAuth = true
	svc := newTestService(store, nil)

	_, err = svc.Authenticate(ctx, "4711")

	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnknownBadge))
}

func TestAuthenticate_InactiveWorkerRejected(t *testing.T) {
	store := newSeededStore(t)
	ctx := context.Background()
	w := domain.NewWorker("W1", "100", "Pat")
	w.Active = false
	require.NoError(t, store.SaveWorker(ctx, w))
	svc := newTestService(store, nil)

	_, err := svc.Authenticate(ctx, "100")

	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnknownBadge))
}

func TestResolveRun_ClaimsAndPersistsRun(t *testing.T) {
	store := newSeededStore(t)
	seedOrder(t, store, "ORD-100", map[string]int{"SKU-001": 2, "SKU-002": 1})
	svc := newTestService(store, nil)
	ctx := context.Background()

	result, err := svc.ResolveRun(ctx, runParamsFor("CHE-1", "ORD-100"))

	require.NoError(t, err)
	require.Len(t, result.Instructions, 2)
	for _, wi := range result.Instructions {
		assert.Equal(t, "CHE-1", wi.ClaimedBy)
		stored, serr := store.FindInstructionByID(ctx, wi.InstructionID)
		require.NoError(t, serr)
		require.NotNil(t, stored)
		assert.Equal(t, "CHE-1", stored.ClaimedBy)
	}
}

func TestResolveRun_OrderTypeFilterScopesRun(t *testing.T) {
	store := newSeededStore(t)
	seedOrder(t, store, "ORD-100", map[string]int{"SKU-001": 2})

	repl := domain.NewOrderHeader("REPL-100", "DC1", domain.OrderTypeReplenishment, time.Now())
	_, err := repl.AddDetail("SKU-002", "each", "", 1, "")
	require.NoError(t, err)
	require.NoError(t, store.SaveOrder(context.Background(), repl))

	svc := newTestService(store, nil)
	ctx := context.Background()

	params := runParamsFor("CHE-1", "ORD-100", "REPL-100")
	params.OrderTypes = []domain.OrderType{domain.OrderTypeReplenishment}

	result, err := svc.ResolveRun(ctx, params)

	require.NoError(t, err)
	require.Len(t, result.Instructions, 1)
	assert.Equal(t, "REPL-100", result.Instructions[0].OrderID)
	assert.Equal(t, "SKU-002", result.Instructions[0].SKU)

	// The filtered-out outbound order is untouched, not shorted
	outbound, err := store.FindOrderByID(ctx, "ORD-100")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusReleased, outbound.Status)
}

func TestResolveRun_ReresolveKeepsIdentity(t *testing.T) {
	store := newSeededStore(t)
	seedOrder(t, store, "ORD-100", map[string]int{"SKU-001": 2, "SKU-002": 1})
	svc := newTestService(store, nil)
	ctx := context.Background()

	first, err := svc.ResolveRun(ctx, runParamsFor("CHE-1", "ORD-100"))
	require.NoError(t, err)
	second, err := svc.ResolveRun(ctx, runParamsFor("CHE-1", "ORD-100"))
	require.NoError(t, err)

	require.Len(t, second.Instructions, len(first.Instructions))
	for i := range first.Instructions {
		assert.Equal(t, first.Instructions[i].InstructionID, second.Instructions[i].InstructionID)
	}
}

func TestResolveRun_OtherDevicesClaimsDropOut(t *testing.T) {
	store := newSeededStore(t)
	seedOrder(t, store, "ORD-100", map[string]int{"SKU-001": 2, "SKU-002": 1})
	svc := newTestService(store, nil)
	ctx := context.Background()

	_, err := svc.ResolveRun(ctx, runParamsFor("CHE-1", "ORD-100"))
	require.NoError(t, err)

	result, err := svc.ResolveRun(ctx, runParamsFor("CHE-2", "ORD-100"))
	require.NoError(t, err)

	assert.Empty(t, result.Instructions)
}

func TestResolveRun_UnresolvableOrderGoesShort(t *testing.T) {
	store := newSeededStore(t)
	seedOrder(t, store, "ORD-200", map[string]int{"SKU-404": 1})
	svc := newTestService(store, nil)
	ctx := context.Background()

	result, err := svc.ResolveRun(ctx, runParamsFor("CHE-1", "ORD-200"))

	require.NoError(t, err)
	assert.Empty(t, result.Instructions)
	assert.Equal(t, []string{"ORD-200"}, result.ShortOrders)

	order, err := store.FindOrderByID(ctx, "ORD-200")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShort, order.Status)
}

func TestCompletePick_CreditsOrderAndPublishes(t *testing.T) {
	store := newSeededStore(t)
	seedOrder(t, store, "ORD-100", map[string]int{"SKU-001": 2})
	producer := &fakePublisher{}
	svc := newTestService(store, producer)
	ctx := context.Background()

	result, err := svc.ResolveRun(ctx, runParamsFor("CHE-1", "ORD-100"))
	require.NoError(t, err)
	require.Len(t, result.Instructions, 1)
	wi := result.Instructions[0]

	err = svc.CompletePick(ctx, "CHE-1", wi.InstructionID, wi.Version, 2)
	require.NoError(t, err)

	order, err := store.FindOrderByID(ctx, "ORD-100")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusComplete, order.Status)
	assert.Equal(t, 2, order.Details[0].PickedQty)

	assert.Greater(t, producer.published(kafka.Topics.WorkEvents), 0)
	assert.Greater(t, producer.published(kafka.Topics.OrderEvents), 0)
}

func TestCompletePick_StaleVersionConflicts(t *testing.T) {
	store := newSeededStore(t)
	seedOrder(t, store, "ORD-100", map[string]int{"SKU-001": 2})
	svc := newTestService(store, nil)
	ctx := context.Background()

	result, err := svc.ResolveRun(ctx, runParamsFor("CHE-1", "ORD-100"))
	require.NoError(t, err)
	wi := result.Instructions[0]

	err = svc.CompletePick(ctx, "CHE-1", wi.InstructionID, wi.Version+1, 2)

	assert.True(t, apperrors.IsCode(err, apperrors.CodeConcurrentClaimConflict))
}

func TestCompletePick_PurgedInstructionIsStale(t *testing.T) {
	store := newSeededStore(t)
	svc := newTestService(store, nil)

	err := svc.CompletePick(context.Background(), "CHE-1", "SKU-001-each-ORD-404", 1, 2)

	assert.True(t, apperrors.IsCode(err, apperrors.CodeStaleReference))
}

func TestShortPick_CascadesOverSameItem(t *testing.T) {
	store := newSeededStore(t)
	seedOrder(t, store, "ORD-100", map[string]int{"SKU-001": 5})
	seedOrder(t, store, "ORD-200", map[string]int{"SKU-001": 3})
	svc := newTestService(store, nil)
	ctx := context.Background()

	result, err := svc.ResolveRun(ctx, runParamsFor("CHE-1", "ORD-100", "ORD-200"))
	require.NoError(t, err)
	require.Len(t, result.Instructions, 2)
	first := result.Instructions[0]

	cascaded, err := svc.ShortPick(ctx, "CHE-1", first.InstructionID, first.Version, 1)
	require.NoError(t, err)

	require.Len(t, cascaded, 1)
	assert.Equal(t, result.Instructions[1].InstructionID, cascaded[0])

	for _, orderID := range []string{"ORD-100", "ORD-200"} {
		order, oerr := store.FindOrderByID(ctx, orderID)
		require.NoError(t, oerr)
		assert.Equal(t, domain.OrderStatusShort, order.Status, orderID)
	}
	// The partial quantity was still credited
	order, err := store.FindOrderByID(ctx, "ORD-100")
	require.NoError(t, err)
	assert.Equal(t, 1, order.Details[0].PickedQty)
}

func TestReleaseDevice_FreesClaims(t *testing.T) {
	store := newSeededStore(t)
	seedOrder(t, store, "ORD-100", map[string]int{"SKU-001": 2})
	svc := newTestService(store, nil)
	ctx := context.Background()

	result, err := svc.ResolveRun(ctx, runParamsFor("CHE-1", "ORD-100"))
	require.NoError(t, err)

	require.NoError(t, svc.ReleaseDevice(ctx, "CHE-1"))

	stored, err := store.FindInstructionByID(ctx, result.Instructions[0].InstructionID)
	require.NoError(t, err)
	assert.Empty(t, stored.ClaimedBy)
}

func TestLookup_Precedence(t *testing.T) {
	store := newSeededStore(t)
	order := seedOrder(t, store, "ORD-100", map[string]int{"SKU-001": 1})
	order.LicensePlate = "LP-7"
	require.NoError(t, store.SaveOrder(context.Background(), order))
	svc := newTestService(store, nil)
	ctx := context.Background()

	tests := []struct {
		token string
		kind  che.LookupKind
	}{
		{"SKU-001", che.LookupItem},
		{"00000000000017", che.LookupGTIN},
		{"ORD-100", che.LookupOrder},
		{"LP-7", che.LookupLicense},
		{"garbage", che.LookupUnknown},
	}
	for _, tt := range tests {
		result, err := svc.Lookup(ctx, tt.token)
		require.NoError(t, err, tt.token)
		assert.Equal(t, tt.kind, result.Kind, tt.token)
	}
}

func TestLookup_LicensePlateResolvesToOrder(t *testing.T) {
	store := newSeededStore(t)
	order := seedOrder(t, store, "ORD-300", map[string]int{"SKU-002": 1})
	order.LicensePlate = "LP-300"
	require.NoError(t, store.SaveOrder(context.Background(), order))
	svc := newTestService(store, nil)

	result, err := svc.Lookup(context.Background(), "LP-300")

	require.NoError(t, err)
	assert.Equal(t, che.LookupLicense, result.Kind)
	assert.Equal(t, "ORD-300", result.OrderID)
}

func TestWallSlotAssignment(t *testing.T) {
	store := newSeededStore(t)
	seedOrder(t, store, "ORD-100", map[string]int{"SKU-001": 2})
	svc := newTestService(store, nil)
	ctx := context.Background()

	require.NoError(t, svc.AssignOrderToWallSlot(ctx, "ORD-100", "WALL-01"))

	order, err := store.FindOrderByID(ctx, "ORD-100")
	require.NoError(t, err)
	assert.Equal(t, "WALL-01", order.Details[0].DestinationSlot)

	removed, err := svc.RemoveWallOrders(ctx, "WALL-01")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	order, err = store.FindOrderByID(ctx, "ORD-100")
	require.NoError(t, err)
	assert.Empty(t, order.Details[0].DestinationSlot)
}

func TestWallSlotAssignment_UnknownOrder(t *testing.T) {
	store := newSeededStore(t)
	svc := newTestService(store, nil)

	err := svc.AssignOrderToWallSlot(context.Background(), "ORD-404", "WALL-01")

	assert.True(t, apperrors.IsCode(err, apperrors.CodeStaleReference))
}

func TestRemoveInventory(t *testing.T) {
	store := newSeededStore(t)
	svc := newTestService(store, nil)
	ctx := context.Background()

	require.NoError(t, svc.RemoveInventory(ctx, "SKU-001", "A-01-01"))

	inv, err := store.LoadInventory(ctx)
	require.NoError(t, err)
	assert.Empty(t, inv.StockFor("SKU-001"))
}

func TestActiveInstructions(t *testing.T) {
	store := newSeededStore(t)
	seedOrder(t, store, "ORD-100", map[string]int{"SKU-001": 2})
	svc := newTestService(store, nil)
	ctx := context.Background()

	_, err := svc.ResolveRun(ctx, runParamsFor("CHE-1", "ORD-100"))
	require.NoError(t, err)

	dtos, err := svc.ActiveInstructions(ctx, []string{"ORD-100"})
	require.NoError(t, err)
	require.Len(t, dtos, 1)
	assert.Equal(t, "SKU-001", dtos[0].SKU)
	assert.Equal(t, "CHE-1", dtos[0].ClaimedBy)
}

func TestGetOrder_NotFound(t *testing.T) {
	store := newSeededStore(t)
	svc := newTestService(store, nil)

	_, err := svc.GetOrder(context.Background(), "ORD-404")

	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}
