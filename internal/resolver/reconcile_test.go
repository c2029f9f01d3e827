package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/fulfillment-engine/internal/domain"
	apperrors "github.com/wms-platform/fulfillment-engine/pkg/errors"
)

func importLine(orderID, sku string, qty int) ImportDetail {
	return ImportDetail{
		OrderID:  orderID,
		DetailID: "host-" + sku,
		SKU:      sku,
		UOM:      "each",
		Qty:      qty,
		Location: "A-01-01",
	}
}

func TestReconcile_LicensePlateApplied(t *testing.T) {
	r := NewReconciler()

	line := importLine("ORD-100", "Item7", 5)
	line.LicensePlate = "LP-100"
	changed, _, err := r.Reconcile(map[string]*domain.OrderHeader{}, []ImportDetail{line})
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, "LP-100", changed[0].LicensePlate)

	// Re-import can move the order to a different tote
	reline := importLine("ORD-100", "Item7", 5)
	reline.LicensePlate = "LP-200"
	changed, _, err = r.Reconcile(map[string]*domain.OrderHeader{"ORD-100": changed[0]}, []ImportDetail{reline})
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, "LP-200", changed[0].LicensePlate)
}

func TestReconcile_CreatesOrdersAndDetails(t *testing.T) {
	r := NewReconciler()

	changed, summary, err := r.Reconcile(map[string]*domain.OrderHeader{}, []ImportDetail{
		importLine("ORD-100", "Item7", 5),
		importLine("ORD-100", "Item8", 2),
		importLine("ORD-200", "Item7", 1),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.OrdersCreated)
	assert.Equal(t, 3, summary.DetailsCreated)
	require.Len(t, changed, 2)

	first := changed[0]
	assert.Equal(t, "ORD-100", first.OrderID)
	d, err := first.DetailByKey("Item7-each-ORD-100")
	require.NoError(t, err)
	assert.Equal(t, 5, d.PlanQty)
	assert.Len(t, first.GetDomainEvents(), 1)
}

func TestReconcile_ReimportKeepsIdentity(t *testing.T) {
	r := NewReconciler()

	batch := []ImportDetail{importLine("ORD-100", "Item7", 5)}
	changed, _, err := r.Reconcile(map[string]*domain.OrderHeader{}, batch)
	require.NoError(t, err)
	order := changed[0]
	order.ClearDomainEvents()

	// Same batch with a different host detail-id text: identity is
	// (order, item, uom), so the existing detail is updated in place.
	batch[0].DetailID = "host-renumbered"
	changed, summary, err := r.Reconcile(map[string]*domain.OrderHeader{"ORD-100": order}, batch)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.OrdersCreated)
	assert.Equal(t, 0, summary.DetailsCreated)
	assert.Equal(t, 1, summary.DetailsUpdated)
	require.Len(t, changed, 1)
	assert.Same(t, order, changed[0])
	assert.Len(t, order.Details, 1)
	assert.Equal(t, "Item7-each-ORD-100", order.Details[0].DetailKey)
}

func TestReconcile_DuplicateIdentityInBatch(t *testing.T) {
	r := NewReconciler()

	_, _, err := r.Reconcile(map[string]*domain.OrderHeader{}, []ImportDetail{
		importLine("ORD-100", "Item7", 5),
		importLine("ORD-100", "Item7", 3),
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeImportIdentityMismatch))
}

func TestReconcile_QtyShrinkBelowPickedGoesShort(t *testing.T) {
	r := NewReconciler()

	changed, _, err := r.Reconcile(map[string]*domain.OrderHeader{}, []ImportDetail{importLine("ORD-100", "Item7", 5)})
	require.NoError(t, err)
	order := changed[0]
	order.Details[0].RecordPick(4)

	_, summary, err := r.Reconcile(map[string]*domain.OrderHeader{"ORD-100": order}, []ImportDetail{importLine("ORD-100", "Item7", 3)})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.DetailsShorted)
	assert.Equal(t, []string{"Item7-each-ORD-100"}, summary.ShortedKeys)
	assert.Equal(t, domain.OrderStatusShort, order.Details[0].Status)
}

func TestReconcile_QtyShrinkToPickedCompletes(t *testing.T) {
	r := NewReconciler()

	changed, _, err := r.Reconcile(map[string]*domain.OrderHeader{}, []ImportDetail{importLine("ORD-100", "Item7", 5)})
	require.NoError(t, err)
	order := changed[0]
	order.Details[0].RecordPick(3)

	_, summary, err := r.Reconcile(map[string]*domain.OrderHeader{"ORD-100": order}, []ImportDetail{importLine("ORD-100", "Item7", 3)})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.DetailsShorted)
	assert.Equal(t, domain.OrderStatusComplete, order.Details[0].Status)
}

func TestReconcile_QtyGrowthReopensTerminalDetail(t *testing.T) {
	r := NewReconciler()

	changed, _, err := r.Reconcile(map[string]*domain.OrderHeader{}, []ImportDetail{importLine("ORD-100", "Item7", 3)})
	require.NoError(t, err)
	order := changed[0]
	order.Details[0].RecordPick(3)
	require.Equal(t, domain.OrderStatusComplete, order.Details[0].Status)
	order.ClearDomainEvents()

	_, summary, err := r.Reconcile(map[string]*domain.OrderHeader{"ORD-100": order}, []ImportDetail{importLine("ORD-100", "Item7", 5)})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.DetailsReopened)
	assert.Equal(t, domain.OrderStatusReleased, order.Details[0].Status)
	assert.Equal(t, 2, order.Details[0].Outstanding())

	var reopened bool
	for _, ev := range order.GetDomainEvents() {
		if _, ok := ev.(*domain.OrderDetailReopenedEvent); ok {
			reopened = true
		}
	}
	assert.True(t, reopened)
}

func TestReconcile_MissingLineDeactivatesDetail(t *testing.T) {
	r := NewReconciler()

	changed, _, err := r.Reconcile(map[string]*domain.OrderHeader{}, []ImportDetail{
		importLine("ORD-100", "Item7", 5),
		importLine("ORD-100", "Item8", 2),
	})
	require.NoError(t, err)
	order := changed[0]

	_, summary, err := r.Reconcile(map[string]*domain.OrderHeader{"ORD-100": order}, []ImportDetail{importLine("ORD-100", "Item7", 5)})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.DetailsDeactivated)
	assert.Equal(t, []string{"Item8-each-ORD-100"}, summary.DeactivatedKeys)

	d, err := order.DetailByKey("Item8-each-ORD-100")
	require.NoError(t, err)
	assert.False(t, d.Active)
}

func TestReconcile_ReimportIsIdempotent(t *testing.T) {
	r := NewReconciler()

	batch := []ImportDetail{
		importLine("ORD-100", "Item7", 5),
		importLine("ORD-100", "Item8", 2),
	}

	changed, _, err := r.Reconcile(map[string]*domain.OrderHeader{}, batch)
	require.NoError(t, err)
	order := changed[0]
	keysBefore := []string{order.Details[0].DetailKey, order.Details[1].DetailKey}

	for i := 0; i < 3; i++ {
		_, summary, err := r.Reconcile(map[string]*domain.OrderHeader{"ORD-100": order}, batch)
		require.NoError(t, err)
		assert.Equal(t, 0, summary.DetailsCreated)
		assert.Equal(t, 0, summary.DetailsDeactivated)
	}

	assert.Len(t, order.Details, 2)
	assert.Equal(t, keysBefore, []string{order.Details[0].DetailKey, order.Details[1].DetailKey})
}

func TestReconcile_DestinationSlotApplied(t *testing.T) {
	r := NewReconciler()

	line := importLine("ORD-100", "Item7", 5)
	line.DestinationSlot = "WALL-01"

	changed, _, err := r.Reconcile(map[string]*domain.OrderHeader{}, []ImportDetail{line})
	require.NoError(t, err)
	assert.Equal(t, "WALL-01", changed[0].Details[0].DestinationSlot)
}
