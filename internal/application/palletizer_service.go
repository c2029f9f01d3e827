package application

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/wms-platform/fulfillment-engine/pkg/errors"

	"github.com/wms-platform/fulfillment-engine/internal/domain"
)

// palletOrderID names the synthesized order that accumulates one pallet's
// items. Pallets are keyed by item prefix, so every item sharing the
// prefix lands on the same order.
func palletOrderID(prefix string) string {
	return "PALLET-" + prefix
}

// PalletizerPut appends one unit of an item to the open pallet at a
// location, synthesizing the pallet order on first use. The returned
// instruction is already claimed by the device and awaits confirmation.
func (s *FulfillmentService) PalletizerPut(ctx context.Context, deviceID, sku, locationAlias string) (*domain.WorkInstruction, error) {
	var wi *domain.WorkInstruction
	err := s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		facility, err := s.facilities.Get(ctx)
		if err != nil {
			return fmt.Errorf("load facility: %w", err)
		}
		loc, err := facility.LocationByAlias(locationAlias)
		if err != nil {
			return apperrors.ErrStaleReference("location", locationAlias)
		}

		prefixLen := facility.PalletizerPrefixLen
		if prefixLen <= 0 {
			prefixLen = domain.DefaultPalletizerPrefixLen
		}
		prefix := sku
		if len(sku) > prefixLen {
			prefix = sku[:prefixLen]
		}

		orderID := palletOrderID(prefix)
		order, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return fmt.Errorf("load pallet order: %w", err)
		}
		if order == nil {
			order = domain.NewOrderHeader(orderID, facility.FacilityID, domain.OrderTypePalletizer, time.Time{})
		}

		uom := "each"
		description := sku
		inv, ierr := s.inventory.Load(ctx)
		if ierr == nil {
			if item, ok := inv.ItemBySKU(sku); ok {
				if item.DefaultUOM != "" {
					uom = item.DefaultUOM
				}
				if item.Description != "" {
					description = item.Description
				}
			}
		}

		key := domain.DetailKeyFor(orderID, sku, uom)
		detail, derr := order.DetailByKey(key)
		if derr != nil {
			detail, err = order.AddDetail(sku, uom, description, 1, loc.Alias)
			if err != nil {
				return err
			}
		} else {
			detail.PlanQty++
			detail.Status = domain.OrderStatusInProgress
			detail.UpdatedAt = time.Now()
		}
		order.RecomputeStatus()
		if err := s.orders.Save(ctx, order); err != nil {
			return fmt.Errorf("save pallet order: %w", err)
		}

		// Each physical put gets its own instruction; the sequence number
		// keeps the id stable for that put.
		wi = domain.NewWorkInstruction(domain.WIKindPut, detail, loc, 1)
		wi.InstructionID = fmt.Sprintf("%s#%d", detail.DetailKey, detail.PlanQty)
		wi.ClaimedBy = deviceID
		if err := s.instructions.Save(ctx, wi); err != nil {
			return fmt.Errorf("save pallet instruction: %w", err)
		}
		s.publishInstructionEvents(ctx, wi)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return wi, nil
}

// ClosePallet finishes every pallet order whose items were put at the
// location and frees the device's claims on them.
func (s *FulfillmentService) ClosePallet(ctx context.Context, deviceID, locationAlias string) error {
	return s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		active, err := s.orders.FindActive(ctx)
		if err != nil {
			return fmt.Errorf("load active orders: %w", err)
		}
		for _, order := range active {
			if order.OrderType != domain.OrderTypePalletizer {
				continue
			}
			closed := false
			for _, d := range order.Details {
				if d.Active && d.PreferredLocation == locationAlias {
					d.Active = false
					d.UpdatedAt = time.Now()
					closed = true
				}
			}
			if closed {
				order.RecomputeStatus()
				order.Status = domain.OrderStatusComplete
				if err := s.orders.Save(ctx, order); err != nil {
					return fmt.Errorf("save pallet order %s: %w", order.OrderID, err)
				}
				s.publishOrderEvents(ctx, order)
			}
		}
		return s.instructions.ReleaseDeviceClaims(ctx, deviceID)
	})
}
