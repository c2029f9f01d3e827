package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/wms-platform/fulfillment-engine/pkg/errors"
	"github.com/wms-platform/fulfillment-engine/pkg/kafka"
	"github.com/wms-platform/fulfillment-engine/pkg/logging"
	"github.com/wms-platform/fulfillment-engine/pkg/metrics"

	"github.com/wms-platform/fulfillment-engine/internal/che"
	"github.com/wms-platform/fulfillment-engine/internal/domain"
	"github.com/wms-platform/fulfillment-engine/internal/resolver"
)

// EventPublisher publishes integration events. Both the plain and the
// circuit-breaker wrapped Kafka producers satisfy it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event *kafka.Event) error
}

// FulfillmentService drives work derivation and execution for device
// sessions. It implements che.Backend.
type FulfillmentService struct {
	orders       domain.OrderRepository
	instructions domain.WorkInstructionRepository
	facilities   domain.FacilityRepository
	workers      domain.WorkerRepository
	inventory    domain.InventoryRepository
	transactor   domain.Transactor
	producer     EventPublisher
	logger       *logging.Logger
	metrics      *metrics.Metrics
}

// NewFulfillmentService creates a FulfillmentService
func NewFulfillmentService(
	orders domain.OrderRepository,
	instructions domain.WorkInstructionRepository,
	facilities domain.FacilityRepository,
	workers domain.WorkerRepository,
	inventory domain.InventoryRepository,
	transactor domain.Transactor,
	producer EventPublisher,
	logger *logging.Logger,
	m *metrics.Metrics,
) *FulfillmentService {
	return &FulfillmentService{
		orders:       orders,
		instructions: instructions,
		facilities:   facilities,
		workers:      workers,
		inventory:    inventory,
		transactor:   transactor,
		producer:     producer,
		logger:       logger.WithComponent("fulfillment"),
		metrics:      m,
	}
}

// Authenticate resolves a badge to a worker. When the facility does not
// require pre-provisioned badges, an unknown badge provisions a worker on
// first use.
func (s *FulfillmentService) Authenticate(ctx context.Context, badge string) (*domain.Worker, error) {
	worker, err := s.workers.FindByBadge(ctx, badge)
	if err != nil && !errors.Is(err, domain.ErrWorkerNotFound) {
		return nil, fmt.Errorf("find worker by badge: %w", err)
	}

	if worker == nil || errors.Is(err, domain.ErrWorkerNotFound) {
		facility, ferr := s.facilities.Get(ctx)
		if ferr != nil {
			return nil, fmt.Errorf("load facility: %w", ferr)
		}
		if facility.RequireBadgeAuth {
			return nil, apperrors.ErrUnknownBadge(badge)
		}
		worker = domain.NewWorker(badge, badge, badge)
		s.logger.Info("Auto-provisioned worker", "badge", badge)
	}

	if !worker.Active {
		return nil, apperrors.ErrUnknownBadge(badge)
	}

	worker.RecordLogin()
	if err := s.workers.Save(ctx, worker); err != nil {
		return nil, fmt.Errorf("save worker: %w", err)
	}
	return worker, nil
}

// Facility returns the facility snapshot
func (s *FulfillmentService) Facility(ctx context.Context) (*domain.Facility, error) {
	return s.facilities.Get(ctx)
}

// ResolveRun derives, orders, and claims the instruction run for a device.
// Re-resolving is idempotent for identity: instructions keep their
// business keys, and already-claimed work held by other devices drops out
// of the run instead of failing it.
func (s *FulfillmentService) ResolveRun(ctx context.Context, params che.RunParams) (*resolver.ResolveResult, error) {
	start := time.Now()

	var result *resolver.ResolveResult
	err := s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		facility, err := s.facilities.Get(ctx)
		if err != nil {
			return fmt.Errorf("load facility: %w", err)
		}
		inv, err := s.inventory.Load(ctx)
		if err != nil {
			return fmt.Errorf("load inventory: %w", err)
		}

		orderIDs := orderIDsOfContainers(params.Containers)
		orders, err := s.orders.FindByIDs(ctx, orderIDs)
		if err != nil {
			return fmt.Errorf("load orders: %w", err)
		}
		orders = filterOrderTypes(orders, params.OrderTypes)

		r := resolver.New(facility, inv)
		result, err = r.Resolve(resolver.ResolveRequest{
			DeviceID:        params.DeviceID,
			Containers:      params.Containers,
			Orders:          orders,
			Direction:       params.Direction,
			Anchor:          params.Anchor,
			LastKnownAnchor: params.LastKnownAnchor,
		})
		if err != nil {
			return err
		}

		// Shed this device's previous claims before taking new ones, so a
		// jump or direction change never strands instructions.
		if err := s.instructions.ReleaseDeviceClaims(ctx, params.DeviceID); err != nil {
			return fmt.Errorf("release claims: %w", err)
		}

		result.Instructions, err = s.claimRun(ctx, params.DeviceID, orderIDs, result.Instructions)
		if err != nil {
			return err
		}

		// Orders that resolved to nothing go short in full
		return s.shortUnresolvableOrders(ctx, result.ShortOrders, orders)
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordResolve(string(params.Direction), false, time.Since(start))
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordResolve(string(params.Direction), true, time.Since(start))
	}
	s.logger.Info("Resolved run",
		"deviceId", params.DeviceID,
		"direction", string(params.Direction),
		"instructions", len(result.Instructions),
		"unresolved", len(result.Unresolved),
	)
	return result, nil
}

// claimRun persists the device's instructions, preserving the state of any
// that already exist under the same business key, and drops the ones
// another device holds.
func (s *FulfillmentService) claimRun(ctx context.Context, deviceID string, orderIDs []string, run []*domain.WorkInstruction) ([]*domain.WorkInstruction, error) {
	existing, err := s.instructions.FindActiveForOrders(ctx, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("load active instructions: %w", err)
	}
	existingByID := make(map[string]*domain.WorkInstruction, len(existing))
	for _, wi := range existing {
		existingByID[wi.InstructionID] = wi
	}

	kept := run[:0]
	var toSave []*domain.WorkInstruction
	for _, wi := range run {
		if wi.Kind.IsHousekeeping() {
			// Housekeeping screens are ephemeral, never persisted
			kept = append(kept, wi)
			continue
		}

		if prior, ok := existingByID[wi.InstructionID]; ok {
			// Same identity resolved again: carry state, refresh geometry
			prior.LocationAlias = wi.LocationAlias
			prior.PathID = wi.PathID
			prior.PathDistanceCm = wi.PathDistanceCm
			prior.CartPosition = wi.CartPosition
			wi = prior
		}

		if wi.ClaimedBy != "" && wi.ClaimedBy != deviceID {
			if s.metrics != nil {
				s.metrics.RecordClaimConflict()
			}
			continue
		}
		wi.ClaimedBy = deviceID
		kept = append(kept, wi)
		toSave = append(toSave, wi)
	}

	if err := s.instructions.SaveAll(ctx, toSave); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}
	return kept, nil
}

// shortUnresolvableOrders marks every detail of the listed orders short
func (s *FulfillmentService) shortUnresolvableOrders(ctx context.Context, shortOrders []string, orders []*domain.OrderHeader) error {
	if len(shortOrders) == 0 {
		return nil
	}
	shortSet := make(map[string]bool, len(shortOrders))
	for _, id := range shortOrders {
		shortSet[id] = true
	}
	for _, order := range orders {
		if !shortSet[order.OrderID] {
			continue
		}
		for _, d := range order.UnsatisfiedDetails() {
			d.MarkShort()
		}
		order.RecomputeStatus()
		if err := s.orders.Save(ctx, order); err != nil {
			return fmt.Errorf("save shorted order %s: %w", order.OrderID, err)
		}
		if s.metrics != nil {
			s.metrics.RecordInstructionShorted("unresolvable")
		}
	}
	return nil
}

// ResolvePuts derives the consolidated put instructions for one item
// across every wall-destined order holding it.
func (s *FulfillmentService) ResolvePuts(ctx context.Context, deviceID, sku string) (*resolver.ResolveResult, error) {
	var result *resolver.ResolveResult
	err := s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		facility, err := s.facilities.Get(ctx)
		if err != nil {
			return fmt.Errorf("load facility: %w", err)
		}
		inv, err := s.inventory.Load(ctx)
		if err != nil {
			return fmt.Errorf("load inventory: %w", err)
		}

		active, err := s.orders.FindActive(ctx)
		if err != nil {
			return fmt.Errorf("load active orders: %w", err)
		}

		// Narrow each order to its wall-destined unsatisfied lines for
		// this item, so consolidation sees only put work.
		var putOrders []*domain.OrderHeader
		var orderIDs []string
		for _, order := range active {
			trimmed := *order
			trimmed.Details = nil
			for _, d := range order.Details {
				if d.Active && d.SKU == sku && d.DestinationSlot != "" && d.Outstanding() > 0 {
					trimmed.Details = append(trimmed.Details, d)
				}
			}
			if len(trimmed.Details) > 0 {
				putOrders = append(putOrders, &trimmed)
				orderIDs = append(orderIDs, order.OrderID)
			}
		}

		r := resolver.New(facility, inv)
		result, err = r.Resolve(resolver.ResolveRequest{
			DeviceID:  deviceID,
			Orders:    putOrders,
			Direction: domain.DirectionForward,
		})
		if err != nil {
			return err
		}

		result.Instructions, err = s.claimRun(ctx, deviceID, orderIDs, result.Instructions)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CompletePick finalizes one instruction and credits every order detail it
// covers. The claim check runs compare-and-set inside the transaction.
func (s *FulfillmentService) CompletePick(ctx context.Context, deviceID, instructionID string, version int64, qty int) error {
	err := s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		wi, err := s.loadClaimed(ctx, deviceID, instructionID, version)
		if err != nil {
			return err
		}
		if err := wi.CompletePick(qty); err != nil {
			return apperrors.MapDomainError(err)
		}
		if err := s.instructions.Save(ctx, wi); err != nil {
			return fmt.Errorf("save instruction: %w", err)
		}
		if err := s.creditDetails(ctx, wi, qty); err != nil {
			return err
		}
		s.publishInstructionEvents(ctx, wi)
		return nil
	})
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordInstructionCompleted("pick")
	}
	return nil
}

// ShortPick shorts one instruction and cascades over every later active
// same-item instruction this device holds, so the worker is not asked to
// pick an item the location just ran out of. Returns the cascaded ids.
func (s *FulfillmentService) ShortPick(ctx context.Context, deviceID, instructionID string, version int64, qty int) ([]string, error) {
	var cascaded []string
	err := s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		wi, err := s.loadClaimed(ctx, deviceID, instructionID, version)
		if err != nil {
			return err
		}
		if err := wi.MarkShort(qty, "worker short"); err != nil {
			return apperrors.MapDomainError(err)
		}
		if err := s.instructions.Save(ctx, wi); err != nil {
			return fmt.Errorf("save instruction: %w", err)
		}
		if err := s.shortDetails(ctx, wi, qty); err != nil {
			return err
		}
		s.publishInstructionEvents(ctx, wi)

		cascaded, err = s.cascadeShort(ctx, deviceID, wi)
		return err
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordInstructionShorted("worker")
	}
	return cascaded, nil
}

// cascadeShort shorts every other active instruction for the same item
// currently claimed by the device
func (s *FulfillmentService) cascadeShort(ctx context.Context, deviceID string, shorted *domain.WorkInstruction) ([]string, error) {
	siblings, err := s.instructions.FindActiveForOrders(ctx, ordersOfInstruction(shorted))
	if err != nil {
		return nil, fmt.Errorf("load sibling instructions: %w", err)
	}

	var cascaded []string
	for _, sib := range siblings {
		if sib.InstructionID == shorted.InstructionID {
			continue
		}
		if sib.ClaimedBy != deviceID || sib.SKU != shorted.SKU || !sib.Active() {
			continue
		}
		if err := sib.MarkShort(0, "cascade"); err != nil {
			continue
		}
		if err := s.instructions.Save(ctx, sib); err != nil {
			return nil, fmt.Errorf("save cascaded instruction: %w", err)
		}
		if err := s.shortDetails(ctx, sib, 0); err != nil {
			return nil, err
		}
		s.publishInstructionEvents(ctx, sib)
		if s.metrics != nil {
			s.metrics.RecordInstructionShorted("cascade")
		}
		cascaded = append(cascaded, sib.InstructionID)
	}
	return cascaded, nil
}

// loadClaimed fetches an instruction and asserts this device's claim. A
// purged instruction degrades to a stale-reference error rather than a
// crash, and a lost claim surfaces as a conflict.
func (s *FulfillmentService) loadClaimed(ctx context.Context, deviceID, instructionID string, version int64) (*domain.WorkInstruction, error) {
	wi, err := s.instructions.FindByInstructionID(ctx, instructionID)
	if err != nil {
		return nil, fmt.Errorf("load instruction: %w", err)
	}
	if wi == nil {
		return nil, apperrors.ErrStaleReference("work instruction", instructionID)
	}

	if err := s.instructions.ClaimForDevice(ctx, instructionID, deviceID, version); err != nil {
		if errors.Is(err, domain.ErrClaimConflict) {
			if s.metrics != nil {
				s.metrics.RecordClaimConflict()
			}
			return nil, apperrors.ErrConcurrentClaimConflict(instructionID)
		}
		return nil, fmt.Errorf("claim instruction: %w", err)
	}

	// Re-read after the claim so the version we mutate is current
	wi, err = s.instructions.FindByInstructionID(ctx, instructionID)
	if err != nil {
		return nil, fmt.Errorf("reload instruction: %w", err)
	}
	if wi == nil {
		return nil, apperrors.ErrStaleReference("work instruction", instructionID)
	}
	return wi, nil
}

// creditDetails distributes a picked quantity across the details an
// instruction covers, in detail-key order for consolidated instructions.
func (s *FulfillmentService) creditDetails(ctx context.Context, wi *domain.WorkInstruction, qty int) error {
	remaining := qty
	for _, orderID := range ordersOfInstruction(wi) {
		order, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return fmt.Errorf("load order %s: %w", orderID, err)
		}
		if order == nil {
			continue
		}
		changed := false
		for _, key := range wi.DetailKeys {
			detail, derr := order.DetailByKey(key)
			if derr != nil {
				continue
			}
			credit := detail.Outstanding()
			if credit > remaining {
				credit = remaining
			}
			if credit > 0 {
				detail.RecordPick(credit)
				remaining -= credit
				changed = true
			}
		}
		if changed {
			order.RecomputeStatus()
			if err := s.orders.Save(ctx, order); err != nil {
				return fmt.Errorf("save order %s: %w", orderID, err)
			}
			s.publishOrderEvents(ctx, order)
		}
	}
	return nil
}

// shortDetails credits any partial quantity and marks the rest short
func (s *FulfillmentService) shortDetails(ctx context.Context, wi *domain.WorkInstruction, qty int) error {
	remaining := qty
	for _, orderID := range ordersOfInstruction(wi) {
		order, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return fmt.Errorf("load order %s: %w", orderID, err)
		}
		if order == nil {
			continue
		}
		changed := false
		for _, key := range wi.DetailKeys {
			detail, derr := order.DetailByKey(key)
			if derr != nil {
				continue
			}
			credit := detail.Outstanding()
			if credit > remaining {
				credit = remaining
			}
			if credit > 0 {
				detail.RecordPick(credit)
				remaining -= credit
			}
			if !detail.Satisfied() {
				detail.MarkShort()
			}
			changed = true
		}
		if changed {
			order.RecomputeStatus()
			if err := s.orders.Save(ctx, order); err != nil {
				return fmt.Errorf("save order %s: %w", orderID, err)
			}
			s.publishOrderEvents(ctx, order)
		}
	}
	return nil
}

// Instruction returns one instruction, nil when it has been purged
func (s *FulfillmentService) Instruction(ctx context.Context, instructionID string) (*domain.WorkInstruction, error) {
	return s.instructions.FindByInstructionID(ctx, instructionID)
}

// Lookup classifies a raw scanned token: item id first, then GTIN, then
// order id, then license plate.
func (s *FulfillmentService) Lookup(ctx context.Context, token string) (*che.LookupResult, error) {
	inv, err := s.inventory.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}
	if item, ok := inv.ItemBySKU(token); ok {
		return &che.LookupResult{Kind: che.LookupItem, Item: &item}, nil
	}
	if item, ok := inv.ItemByGTIN(token); ok {
		return &che.LookupResult{Kind: che.LookupGTIN, Item: &item}, nil
	}
	order, err := s.orders.FindByID(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("lookup order: %w", err)
	}
	if order != nil {
		return &che.LookupResult{Kind: che.LookupOrder, OrderID: order.OrderID}, nil
	}
	order, err = s.orders.FindByLicensePlate(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("lookup license plate: %w", err)
	}
	if order != nil {
		return &che.LookupResult{Kind: che.LookupLicense, OrderID: order.OrderID}, nil
	}
	return &che.LookupResult{Kind: che.LookupUnknown}, nil
}

// AssignOrderToWallSlot routes every open line of an order to a wall slot
func (s *FulfillmentService) AssignOrderToWallSlot(ctx context.Context, orderID, slotAlias string) error {
	return s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		order, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return fmt.Errorf("load order: %w", err)
		}
		if order == nil {
			return apperrors.ErrStaleReference("order", orderID)
		}
		for _, d := range order.UnsatisfiedDetails() {
			d.DestinationSlot = slotAlias
			d.UpdatedAt = time.Now()
		}
		return s.orders.Save(ctx, order)
	})
}

// RemoveWallOrders clears every order routed to a wall slot and returns
// how many orders were detached.
func (s *FulfillmentService) RemoveWallOrders(ctx context.Context, slotAlias string) (int, error) {
	removed := 0
	err := s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		active, err := s.orders.FindActive(ctx)
		if err != nil {
			return fmt.Errorf("load active orders: %w", err)
		}
		for _, order := range active {
			changed := false
			for _, d := range order.Details {
				if d.DestinationSlot == slotAlias {
					d.DestinationSlot = ""
					d.UpdatedAt = time.Now()
					changed = true
				}
			}
			if changed {
				removed++
				if err := s.orders.Save(ctx, order); err != nil {
					return fmt.Errorf("save order %s: %w", order.OrderID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// RemoveInventory deletes one item's stock record at a location
func (s *FulfillmentService) RemoveInventory(ctx context.Context, sku, locationAlias string) error {
	inv, err := s.inventory.Load(ctx)
	if err != nil {
		return fmt.Errorf("load inventory: %w", err)
	}
	var kept []domain.StockLocation
	for _, stock := range inv.StockFor(sku) {
		if !strings.EqualFold(stock.LocationAlias, locationAlias) {
			kept = append(kept, stock)
		}
	}
	return s.inventory.ReplaceStock(ctx, sku, kept)
}

// ReleaseDevice frees every claim the device holds
func (s *FulfillmentService) ReleaseDevice(ctx context.Context, deviceID string) error {
	return s.instructions.ReleaseDeviceClaims(ctx, deviceID)
}

// ActiveInstructions lists the open instructions for the given orders
func (s *FulfillmentService) ActiveInstructions(ctx context.Context, orderIDs []string) ([]*WorkInstructionDTO, error) {
	wis, err := s.instructions.FindActiveForOrders(ctx, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("load instructions: %w", err)
	}
	dtos := make([]*WorkInstructionDTO, 0, len(wis))
	for _, wi := range wis {
		dtos = append(dtos, ToWorkInstructionDTO(wi))
	}
	return dtos, nil
}

// GetOrder returns one order read model
func (s *FulfillmentService) GetOrder(ctx context.Context, orderID string) (*OrderDTO, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order == nil {
		return nil, apperrors.NewAppError(apperrors.CodeNotFound, "order not found", 404).WithDetail("orderId", orderID)
	}
	return ToOrderDTO(order), nil
}

// publishInstructionEvents drains an instruction's domain events onto the
// work events topic. Publish failures are logged, never fatal: the
// circuit breaker around the producer sheds load when the broker is down.
func (s *FulfillmentService) publishInstructionEvents(ctx context.Context, wi *domain.WorkInstruction) {
	if s.producer == nil {
		return
	}
	for _, de := range wi.GetDomainEvents() {
		event := kafka.NewEvent(de.EventType(), "/fulfillment-engine", wi.InstructionID, de)
		if err := s.producer.PublishEvent(ctx, kafka.Topics.WorkEvents, event); err != nil {
			s.logger.WithError(err).Warn("Failed to publish work event", "eventType", de.EventType())
		}
	}
	wi.ClearDomainEvents()
}

// publishOrderEvents drains an order's domain events onto the order topic
func (s *FulfillmentService) publishOrderEvents(ctx context.Context, order *domain.OrderHeader) {
	if s.producer == nil {
		return
	}
	for _, de := range order.GetDomainEvents() {
		event := kafka.NewEvent(de.EventType(), "/fulfillment-engine", order.OrderID, de)
		if err := s.producer.PublishEvent(ctx, kafka.Topics.OrderEvents, event); err != nil {
			s.logger.WithError(err).Warn("Failed to publish order event", "eventType", de.EventType())
		}
	}
	order.ClearDomainEvents()
}

// ordersOfInstruction lists the distinct orders an instruction covers.
// Detail keys embed the order id as their last dash-separated field after
// sku and uom; the sku may itself contain dashes, the uom and order id do
// not by import contract, so the order id is recoverable from the detail
// keys of consolidated instructions.
func ordersOfInstruction(wi *domain.WorkInstruction) []string {
	if len(wi.DetailKeys) <= 1 && wi.OrderID != "" {
		return []string{wi.OrderID}
	}
	seen := make(map[string]bool)
	var orders []string
	for _, key := range wi.DetailKeys {
		idx := strings.LastIndex(key, "-")
		if idx < 0 || idx == len(key)-1 {
			continue
		}
		orderID := key[idx+1:]
		if !seen[orderID] {
			seen[orderID] = true
			orders = append(orders, orderID)
		}
	}
	return orders
}

func orderIDsOfContainers(containers []*domain.Container) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, c := range containers {
		for _, id := range c.OrderIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func filterOrderTypes(orders []*domain.OrderHeader, types []domain.OrderType) []*domain.OrderHeader {
	if len(types) == 0 {
		return orders
	}
	allowed := make(map[domain.OrderType]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	filtered := orders[:0]
	for _, o := range orders {
		if allowed[o.OrderType] {
			filtered = append(filtered, o)
		}
	}
	return filtered
}
