package resolver

import (
	"fmt"
	"sort"

	"github.com/wms-platform/fulfillment-engine/internal/domain"
)

// ResolveRequest carries everything a resolve call needs. Identical requests
// against unchanged backing data always yield the same ordered list and the
// same instruction identities.
type ResolveRequest struct {
	DeviceID   string
	Containers []*domain.Container
	Orders     []*domain.OrderHeader
	Direction  domain.Direction

	// Anchor is the location scanned to start or jump the run; nil means
	// start from the head of the path.
	Anchor *domain.Location

	// LastKnownAnchor is the previously committed anchor. When Anchor does
	// not resolve on the active path the resolver keeps this one in force
	// rather than failing (KeepLastKnownAnchor policy).
	LastKnownAnchor *domain.Location
}

// ResolveResult is the ordered, restartable instruction sequence plus the
// details that could not be resolved to a stock location.
type ResolveResult struct {
	Instructions []*domain.WorkInstruction
	Unresolved   []*domain.OrderDetail

	// ShortOrders lists orders for which zero details resolved; policy is
	// that all their details go short.
	ShortOrders []string

	// AnchorUsed reports which anchor actually governed the ordering.
	AnchorUsed *domain.Location
}

// Resolver derives ordered work instruction sequences from orders,
// inventory, and the facility path model
type Resolver struct {
	facility  *domain.Facility
	inventory *domain.Inventory
}

// New creates a Resolver over a facility snapshot and inventory view
func New(facility *domain.Facility, inventory *domain.Inventory) *Resolver {
	return &Resolver{facility: facility, inventory: inventory}
}

// candidate pairs a detail with its resolved target location before sorting
type candidate struct {
	detail       *domain.OrderDetail
	location     *domain.Location
	cartPosition int
}

// Resolve builds the ordered instruction sequence for one device run
func (r *Resolver) Resolve(req ResolveRequest) (*ResolveResult, error) {
	if !req.Direction.IsValid() {
		return nil, fmt.Errorf("invalid direction %q", req.Direction)
	}

	result := &ResolveResult{}

	positionByOrder := make(map[string]int)
	for _, c := range req.Containers {
		for _, orderID := range c.OrderIDs {
			positionByOrder[orderID] = c.CartPosition
		}
	}

	// Collect unsatisfied details and resolve each to a target location.
	var candidates []candidate
	resolvedPerOrder := make(map[string]int)
	for _, order := range req.Orders {
		if _, bound := positionByOrder[order.OrderID]; !bound {
			continue
		}
		for _, detail := range order.UnsatisfiedDetails() {
			loc := r.targetLocation(detail)
			if loc == nil || !loc.OnPath() {
				result.Unresolved = append(result.Unresolved, detail)
				continue
			}
			resolvedPerOrder[order.OrderID]++
			candidates = append(candidates, candidate{
				detail:       detail,
				location:     loc,
				cartPosition: positionByOrder[order.OrderID],
			})
		}
	}

	for _, order := range req.Orders {
		if _, bound := positionByOrder[order.OrderID]; !bound {
			continue
		}
		if len(order.UnsatisfiedDetails()) > 0 && resolvedPerOrder[order.OrderID] == 0 {
			result.ShortOrders = append(result.ShortOrders, order.OrderID)
		}
	}
	sort.Strings(result.ShortOrders)

	// Distance sort with a stable secondary key so re-imports never reorder
	// unchanged work.
	sort.Slice(candidates, func(i, j int) bool {
		di, dj := candidates[i].location.PathDistanceCm, candidates[j].location.PathDistanceCm
		if di != dj {
			if req.Direction == domain.DirectionForward {
				return di < dj
			}
			return di > dj
		}
		return candidates[i].detail.DetailKey < candidates[j].detail.DetailKey
	})

	// Anchor rotation: start at the first entry at-or-after (forward) or
	// at-or-before (reverse) the anchor distance; earlier entries wrap to
	// the end preserving relative order.
	anchor := r.effectiveAnchor(req)
	result.AnchorUsed = anchor
	wrapBoundary := -1 // first candidate index past the rotation wrap
	if anchor != nil && len(candidates) > 0 {
		idx := rotationIndex(candidates, anchor.PathDistanceCm, req.Direction)
		if idx > 0 && idx < len(candidates) {
			candidates = append(candidates[idx:], candidates[:idx]...)
			wrapBoundary = len(candidates) - idx
		}
	}

	// Consolidate details that target the same item and destination slot
	// into a single instruction with a summed plan. Required for put-wall
	// and slow-mover correctness.
	bySlot := make(map[string]*domain.WorkInstruction)
	var instructions []*domain.WorkInstruction
	wrapAt := -1
	for i, c := range candidates {
		if c.detail.DestinationSlot != "" {
			slotKey := fmt.Sprintf("%s-%s@%s", c.detail.SKU, c.detail.UOM, c.detail.DestinationSlot)
			if existing, ok := bySlot[slotKey]; ok {
				existing.Absorb(c.detail, c.detail.Outstanding())
				continue
			}
			wi := domain.NewWorkInstruction(domain.WIKindPut, c.detail, c.location, c.detail.Outstanding())
			wi.InstructionID = slotKey
			wi.CartPosition = 0
			bySlot[slotKey] = wi
			instructions = append(instructions, wi)
		} else {
			wi := domain.NewWorkInstruction(domain.WIKindPick, c.detail, c.location, c.detail.Outstanding())
			wi.CartPosition = c.cartPosition
			instructions = append(instructions, wi)
		}
		if wrapBoundary >= 0 && i >= wrapBoundary && wrapAt == -1 {
			wrapAt = len(instructions) - 1
		}
	}

	result.Instructions = insertHousekeeping(r.facility, instructions, wrapAt)
	return result, nil
}

// effectiveAnchor applies the KeepLastKnownAnchor policy: an anchor off the
// active path does not replace the one already in force
func (r *Resolver) effectiveAnchor(req ResolveRequest) *domain.Location {
	if req.Anchor != nil && req.Anchor.OnPath() {
		return req.Anchor
	}
	if req.LastKnownAnchor != nil && req.LastKnownAnchor.OnPath() {
		return req.LastKnownAnchor
	}
	return nil
}

// rotationIndex finds where the rotated list begins for the given anchor
func rotationIndex(candidates []candidate, anchorCm int, dir domain.Direction) int {
	for i, c := range candidates {
		if dir == domain.DirectionForward && c.location.PathDistanceCm >= anchorCm {
			return i
		}
		if dir == domain.DirectionReverse && c.location.PathDistanceCm <= anchorCm {
			return i
		}
	}
	return 0
}

// insertHousekeeping inserts synthetic instructions at the rotation wrap
// point (direction reversal) and at bay transitions
func insertHousekeeping(facility *domain.Facility, instructions []*domain.WorkInstruction, wrapAt int) []*domain.WorkInstruction {
	if len(instructions) == 0 {
		return instructions
	}

	out := make([]*domain.WorkInstruction, 0, len(instructions)+2)
	var prevLoc *domain.Location
	for i, wi := range instructions {
		if prevLoc != nil {
			cur, err := facility.LocationByAlias(wi.LocationAlias)
			if err == nil && !cur.SameBay(prevLoc) {
				out = append(out, domain.NewHousekeepingInstruction(domain.WIKindBayChange, wi.PathID, wi.PathDistanceCm))
			}
		}
		if wrapAt >= 0 && i == wrapAt {
			out = append(out, domain.NewHousekeepingInstruction(domain.WIKindReversal, wi.PathID, wi.PathDistanceCm))
		}
		out = append(out, wi)
		if loc, err := facility.LocationByAlias(wi.LocationAlias); err == nil {
			prevLoc = loc
		}
	}
	return out
}

// targetLocation resolves where an instruction for this detail happens.
// Put-wall details target their destination slot; otherwise the imported
// preferred location wins, falling back to the first on-path stock location.
func (r *Resolver) targetLocation(detail *domain.OrderDetail) *domain.Location {
	if detail.DestinationSlot != "" {
		if loc, err := r.facility.LocationByAlias(detail.DestinationSlot); err == nil {
			return loc
		}
		return nil
	}

	if detail.PreferredLocation != "" {
		if loc, err := r.facility.LocationByAlias(detail.PreferredLocation); err == nil && loc.OnPath() {
			return loc
		}
	}

	var best *domain.Location
	for _, stock := range r.inventory.StockFor(detail.SKU) {
		loc, err := r.facility.LocationByAlias(stock.LocationAlias)
		if err != nil || !loc.OnPath() {
			continue
		}
		if best == nil || loc.PathDistanceCm < best.PathDistanceCm {
			best = loc
		}
	}
	return best
}
