package application

import (
	"context"
	"fmt"

	"github.com/wms-platform/fulfillment-engine/pkg/kafka"
	"github.com/wms-platform/fulfillment-engine/pkg/logging"
	"github.com/wms-platform/fulfillment-engine/pkg/metrics"

	"github.com/wms-platform/fulfillment-engine/internal/domain"
	"github.com/wms-platform/fulfillment-engine/internal/resolver"
)

// ImportService applies order, inventory, and layout import batches. Each
// batch runs in one transaction; identity reconciliation makes re-imports
// idempotent.
type ImportService struct {
	orders     domain.OrderRepository
	facilities domain.FacilityRepository
	inventory  domain.InventoryRepository
	transactor domain.Transactor
	reconciler *resolver.Reconciler
	producer   EventPublisher
	logger     *logging.Logger
	metrics    *metrics.Metrics
	facilityID string
}

// NewImportService creates an ImportService
func NewImportService(
	orders domain.OrderRepository,
	facilities domain.FacilityRepository,
	inventory domain.InventoryRepository,
	transactor domain.Transactor,
	producer EventPublisher,
	logger *logging.Logger,
	m *metrics.Metrics,
	facilityID string,
) *ImportService {
	return &ImportService{
		orders:     orders,
		facilities: facilities,
		inventory:  inventory,
		transactor: transactor,
		reconciler: resolver.NewReconciler(),
		producer:   producer,
		logger:     logger.WithComponent("import"),
		metrics:    m,
		facilityID: facilityID,
	}
}

// ImportOrders reconciles one import batch against the stored order set
func (s *ImportService) ImportOrders(ctx context.Context, cmd ImportOrdersCommand) (*ImportSummaryDTO, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}

	details := cmd.toImportDetails()
	orderIDs := make([]string, 0)
	seen := make(map[string]bool)
	for _, d := range details {
		if !seen[d.OrderID] {
			seen[d.OrderID] = true
			orderIDs = append(orderIDs, d.OrderID)
		}
	}

	var changed []*domain.OrderHeader
	var summary resolver.ImportSummary
	err := s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		existingList, err := s.orders.FindByIDs(ctx, orderIDs)
		if err != nil {
			return fmt.Errorf("load orders: %w", err)
		}
		existing := make(map[string]*domain.OrderHeader, len(existingList))
		for _, o := range existingList {
			existing[o.OrderID] = o
		}

		changed, summary, err = s.reconciler.Reconcile(existing, details)
		if err != nil {
			return err
		}

		for _, order := range changed {
			if order.FacilityID == "" {
				order.FacilityID = s.facilityID
			}
			if err := s.orders.Save(ctx, order); err != nil {
				return fmt.Errorf("save order %s: %w", order.OrderID, err)
			}
		}
		return nil
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordOrderImported("error")
		}
		return nil, err
	}

	// Events go out after the transaction commits
	for _, order := range changed {
		for _, de := range order.GetDomainEvents() {
			if s.producer == nil {
				break
			}
			event := kafka.NewEvent(de.EventType(), "/fulfillment-engine", order.OrderID, de)
			if perr := s.producer.PublishEvent(ctx, kafka.Topics.OrderEvents, event); perr != nil {
				s.logger.WithError(perr).Warn("Failed to publish import event", "orderId", order.OrderID)
			}
		}
		order.ClearDomainEvents()
	}

	if s.metrics != nil {
		s.metrics.RecordOrderImported("success")
	}
	s.logger.Info("Imported order batch",
		"orders", len(orderIDs),
		"created", summary.OrdersCreated,
		"detailsCreated", summary.DetailsCreated,
		"detailsShorted", summary.DetailsShorted,
		"detailsDeactivated", summary.DetailsDeactivated,
	)
	dto := toImportSummaryDTO(summary)
	return &dto, nil
}

// ImportInventory merges the item catalog and replaces stock placements
func (s *ImportService) ImportInventory(ctx context.Context, cmd ImportInventoryCommand) error {
	if err := Validate(cmd); err != nil {
		return err
	}

	return s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		for _, line := range cmd.Items {
			item := domain.Item{
				SKU:         line.SKU,
				GTIN:        line.GTIN,
				Description: line.Description,
				DefaultUOM:  line.DefaultUOM,
			}
			if err := s.inventory.SaveItem(ctx, item); err != nil {
				return fmt.Errorf("save item %s: %w", line.SKU, err)
			}
		}

		bySKU := make(map[string][]domain.StockLocation)
		for _, line := range cmd.Stock {
			bySKU[line.SKU] = append(bySKU[line.SKU], domain.StockLocation{
				SKU:           line.SKU,
				LocationAlias: line.Location,
				Qty:           line.Qty,
				OffsetCm:      line.OffsetCm,
			})
		}
		for sku, stock := range bySKU {
			if err := s.inventory.ReplaceStock(ctx, sku, stock); err != nil {
				return fmt.Errorf("replace stock for %s: %w", sku, err)
			}
		}

		s.logger.Info("Imported inventory", "items", len(cmd.Items), "stockLines", len(cmd.Stock))
		return nil
	})
}

// ImportLayout replaces the facility geometry wholesale. Policies on the
// stored facility survive the replacement.
func (s *ImportService) ImportLayout(ctx context.Context, cmd ImportLayoutCommand) error {
	if err := Validate(cmd); err != nil {
		return err
	}

	return s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		facility, err := s.facilities.Get(ctx)
		if err != nil {
			return fmt.Errorf("load facility: %w", err)
		}

		paths := make(map[string]*domain.Path)
		var pathOrder []string
		for _, line := range cmd.Paths {
			p, ok := paths[line.PathID]
			if !ok {
				p = &domain.Path{PathID: line.PathID}
				paths[line.PathID] = p
				pathOrder = append(pathOrder, line.PathID)
			}
			p.Segments = append(p.Segments, domain.PathSegment{
				SegmentOrder: line.SegmentOrder,
				StartCm:      line.StartCm,
				EndCm:        line.EndCm,
			})
		}
		facility.Paths = facility.Paths[:0]
		for _, id := range pathOrder {
			facility.Paths = append(facility.Paths, *paths[id])
		}

		facility.Locations = facility.Locations[:0]
		for _, line := range cmd.Locations {
			loc := domain.Location{
				LocationID:     line.LocationID,
				Alias:          line.Alias,
				Aisle:          line.Aisle,
				Bay:            line.Bay,
				Tier:           line.Tier,
				Slot:           line.Slot,
				PathID:         line.PathID,
				PathDistanceCm: line.PathDistanceCm,
				TapeID:         line.TapeID,
			}
			// Locations without light hardware keep a nil binding
			if line.LightChannel != 0 || line.LightIndex != 0 {
				loc.Light = &domain.LightBinding{
					Channel: line.LightChannel,
					Index:   line.LightIndex,
				}
			}
			facility.Locations = append(facility.Locations, loc)
		}

		if err := s.facilities.Save(ctx, facility); err != nil {
			return fmt.Errorf("save facility: %w", err)
		}
		s.logger.Info("Imported layout", "paths", len(facility.Paths), "locations", len(facility.Locations))
		return nil
	})
}
