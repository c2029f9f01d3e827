package resolver

import (
	"time"

	apperrors "github.com/wms-platform/fulfillment-engine/pkg/errors"

	"github.com/wms-platform/fulfillment-engine/internal/domain"
)

// ImportDetail is one parsed order line delivered by the import service.
// DetailID is the imported detail-id text; it is carried for traceability
// but never used for identity.
type ImportDetail struct {
	OrderID         string
	DetailID        string
	SKU             string
	UOM             string
	Description     string
	Qty             int
	Location        string
	DestinationSlot string
	LicensePlate    string
	OrderType       domain.OrderType
	DueDate         time.Time
}

// ImportSummary reports what a reconcile pass changed
type ImportSummary struct {
	OrdersCreated      int
	DetailsCreated     int
	DetailsUpdated     int
	DetailsReopened    int
	DetailsShorted     int
	DetailsDeactivated int

	// ShortedKeys and DeactivatedKeys let the import service adjust any
	// live work instructions for those details.
	ShortedKeys     []string
	DeactivatedKeys []string
	UpdatedKeys     []string
}

// Reconciler matches incoming import lines to existing orders by the
// (order, item, uom) business identity
type Reconciler struct{}

// NewReconciler creates a Reconciler
func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// Reconcile applies an import batch against the existing order set. It
// mutates matched aggregates in place and returns newly created ones;
// callers persist everything in one transaction. Re-running the same batch
// is a no-op for identity: every detail and instruction keeps its key.
func (r *Reconciler) Reconcile(existing map[string]*domain.OrderHeader, incoming []ImportDetail) ([]*domain.OrderHeader, ImportSummary, error) {
	summary := ImportSummary{}

	// Reject duplicate business identities within one batch before any
	// mutation happens.
	seen := make(map[string]bool, len(incoming))
	for _, in := range incoming {
		key := domain.DetailKeyFor(in.OrderID, in.SKU, in.UOM)
		if seen[key] {
			return nil, ImportSummary{}, apperrors.ErrImportIdentityMismatch(key)
		}
		seen[key] = true
	}

	byOrder := make(map[string][]ImportDetail)
	var orderIDs []string
	for _, in := range incoming {
		if _, ok := byOrder[in.OrderID]; !ok {
			orderIDs = append(orderIDs, in.OrderID)
		}
		byOrder[in.OrderID] = append(byOrder[in.OrderID], in)
	}

	var changed []*domain.OrderHeader
	for _, orderID := range orderIDs {
		lines := byOrder[orderID]
		order, exists := existing[orderID]
		if !exists {
			orderType := lines[0].OrderType
			if orderType == "" {
				orderType = domain.OrderTypeOutbound
			}
			order = domain.NewOrderHeader(orderID, "", orderType, lines[0].DueDate)
			summary.OrdersCreated++
		}

		// The shipping tote/pallet plate is a mutable header field
		for _, in := range lines {
			if in.LicensePlate != "" {
				order.LicensePlate = in.LicensePlate
				break
			}
		}

		incomingKeys := make(map[string]bool, len(lines))
		for _, in := range lines {
			key := domain.DetailKeyFor(in.OrderID, in.SKU, in.UOM)
			incomingKeys[key] = true

			detail, err := order.DetailByKey(key)
			if err != nil {
				if _, err := order.AddDetail(in.SKU, in.UOM, in.Description, in.Qty, in.Location); err != nil {
					return nil, ImportSummary{}, err
				}
				if in.DestinationSlot != "" {
					d, _ := order.DetailByKey(key)
					d.DestinationSlot = in.DestinationSlot
				}
				summary.DetailsCreated++
				continue
			}

			// Existing identity: update mutable fields in place.
			r.applyLine(order, detail, in, &summary)
		}

		// Details absent from this import: a finished instruction stays
		// untouched, but the detail no longer participates.
		for _, detail := range order.Details {
			if detail.Active && !incomingKeys[detail.DetailKey] {
				detail.Active = false
				detail.UpdatedAt = time.Now()
				summary.DetailsDeactivated++
				summary.DeactivatedKeys = append(summary.DeactivatedKeys, detail.DetailKey)
			}
		}

		order.RecomputeStatus()
		order.AddDomainEvent(&domain.OrderImportedEvent{
			OrderID:     order.OrderID,
			DetailCount: len(lines),
			Reimport:    exists,
			ImportedAt:  time.Now(),
		})
		changed = append(changed, order)
	}

	return changed, summary, nil
}

// applyLine updates one matched detail from its import line
func (r *Reconciler) applyLine(order *domain.OrderHeader, detail *domain.OrderDetail, in ImportDetail, summary *ImportSummary) {
	now := time.Now()
	wasTerminal := detail.Status == domain.OrderStatusComplete || detail.Status == domain.OrderStatusShort

	detail.Description = in.Description
	detail.PreferredLocation = in.Location
	if in.DestinationSlot != "" {
		detail.DestinationSlot = in.DestinationSlot
	}
	detail.PlanQty = in.Qty
	detail.Active = true
	detail.UpdatedAt = now
	summary.DetailsUpdated++
	summary.UpdatedKeys = append(summary.UpdatedKeys, detail.DetailKey)

	switch {
	case detail.PickedQty > in.Qty:
		// Already picked more than the new plan allows: the detail can
		// never resolve complete again.
		detail.MarkShort()
		summary.DetailsShorted++
		summary.ShortedKeys = append(summary.ShortedKeys, detail.DetailKey)
	case detail.Satisfied():
		detail.Status = domain.OrderStatusComplete
	case wasTerminal && detail.Outstanding() > 0:
		// Quantity grew past what was already worked: reopen.
		detail.Status = domain.OrderStatusReleased
		summary.DetailsReopened++
		order.AddDomainEvent(&domain.OrderDetailReopenedEvent{
			DetailKey:  detail.DetailKey,
			OrderID:    detail.OrderID,
			PlanQty:    detail.PlanQty,
			ReopenedAt: now,
		})
	case detail.PickedQty > 0:
		detail.Status = domain.OrderStatusInProgress
	default:
		detail.Status = domain.OrderStatusReleased
	}
}
