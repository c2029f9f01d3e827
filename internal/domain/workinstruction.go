package domain

import (
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Errors
var (
	ErrInstructionComplete   = errors.New("work instruction is already complete")
	ErrInstructionShort      = errors.New("work instruction is already short")
	ErrInstructionNotStarted = errors.New("work instruction has not been started")
	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrClaimConflict         = errors.New("work instruction is claimed by another device")
	ErrHousekeeping          = errors.New("operation not valid for a housekeeping instruction")
)

// WIStatus represents the status of a work instruction
type WIStatus string

const (
	WIStatusNew        WIStatus = "new"
	WIStatusInProgress WIStatus = "in_progress"
	WIStatusComplete   WIStatus = "complete"
	WIStatusShort      WIStatus = "short"
)

// IsValid reports whether the status is a known value
func (s WIStatus) IsValid() bool {
	switch s {
	case WIStatusNew, WIStatusInProgress, WIStatusComplete, WIStatusShort:
		return true
	}
	return false
}

// Terminal reports whether the status ends the instruction's life
func (s WIStatus) Terminal() bool {
	return s == WIStatusComplete || s == WIStatusShort
}

// WIKind distinguishes item work from synthetic housekeeping prompts
type WIKind string

const (
	WIKindPick          WIKind = "pick"
	WIKindPut           WIKind = "put"
	WIKindReversal      WIKind = "housekeep_reversal"
	WIKindBayChange     WIKind = "housekeep_bay_change"
	WIKindRepositioning WIKind = "housekeep_reposition"
)

// IsHousekeeping reports whether the kind is a synthetic non-item instruction
func (k WIKind) IsHousekeeping() bool {
	switch k {
	case WIKindReversal, WIKindBayChange, WIKindRepositioning:
		return true
	}
	return false
}

// WorkInstruction is one atomic directed pick/put action derived from an
// order detail. Consolidated instructions carry the business identities of
// every detail they satisfy; DetailKey is the primary one.
type WorkInstruction struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	InstructionID  string             `bson:"instructionId" json:"instructionId"`
	Kind           WIKind             `bson:"kind" json:"kind"`
	DetailKey      string             `bson:"detailKey,omitempty" json:"detailKey,omitempty"`
	DetailKeys     []string           `bson:"detailKeys,omitempty" json:"detailKeys,omitempty"`
	OrderID        string             `bson:"orderId,omitempty" json:"orderId,omitempty"`
	SKU            string             `bson:"sku,omitempty" json:"sku,omitempty"`
	UOM            string             `bson:"uom,omitempty" json:"uom,omitempty"`
	Description    string             `bson:"description,omitempty" json:"description,omitempty"`
	PlanQty        int                `bson:"planQty" json:"planQty"`
	ActualQty      int                `bson:"actualQty" json:"actualQty"`
	LocationAlias  string             `bson:"locationAlias,omitempty" json:"locationAlias,omitempty"`
	PathID         string             `bson:"pathId,omitempty" json:"pathId,omitempty"`
	PathDistanceCm int                `bson:"pathDistanceCm" json:"pathDistanceCm"`
	CartPosition   int                `bson:"cartPosition" json:"cartPosition"`
	WorkerID       string             `bson:"workerId,omitempty" json:"workerId,omitempty"`
	ClaimedBy      string             `bson:"claimedBy,omitempty" json:"claimedBy,omitempty"`
	Status         WIStatus           `bson:"status" json:"status"`
	Version        int64              `bson:"version" json:"version"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
	CompletedAt    *time.Time         `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	DomainEvents   []DomainEvent      `bson:"-" json:"-"`
}

// NewWorkInstruction creates an item work instruction for one order detail
func NewWorkInstruction(kind WIKind, detail *OrderDetail, loc *Location, planQty int) *WorkInstruction {
	now := time.Now()
	wi := &WorkInstruction{
		InstructionID:  detail.DetailKey,
		Kind:           kind,
		DetailKey:      detail.DetailKey,
		DetailKeys:     []string{detail.DetailKey},
		OrderID:        detail.OrderID,
		SKU:            detail.SKU,
		UOM:            detail.UOM,
		Description:    detail.Description,
		PlanQty:        planQty,
		Status:         WIStatusNew,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
		DomainEvents:   make([]DomainEvent, 0),
		PathDistanceCm: -1,
	}
	if loc != nil {
		wi.LocationAlias = loc.Alias
		wi.PathID = loc.PathID
		wi.PathDistanceCm = loc.PathDistanceCm
	}

	wi.AddDomainEvent(&WorkInstructionCreatedEvent{
		InstructionID: wi.InstructionID,
		OrderID:       wi.OrderID,
		SKU:           wi.SKU,
		PlanQty:       wi.PlanQty,
		LocationAlias: wi.LocationAlias,
		CreatedAt:     now,
	})

	return wi
}

// NewHousekeepingInstruction creates a synthetic non-item instruction that
// prompts a physical transition (direction reversal, bay change)
func NewHousekeepingInstruction(kind WIKind, pathID string, distanceCm int) *WorkInstruction {
	now := time.Now()
	return &WorkInstruction{
		InstructionID:  fmt.Sprintf("%s@%d", kind, distanceCm),
		Kind:           kind,
		PathID:         pathID,
		PathDistanceCm: distanceCm,
		Status:         WIStatusNew,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
		DomainEvents:   make([]DomainEvent, 0),
	}
}

// Absorb merges another detail targeting the same item and destination slot
// into this instruction, summing the planned quantity. Needed for put-wall
// and slow-mover flows where several orders route to one slot.
func (wi *WorkInstruction) Absorb(detail *OrderDetail, planQty int) {
	wi.PlanQty += planQty
	wi.DetailKeys = append(wi.DetailKeys, detail.DetailKey)
	wi.UpdatedAt = time.Now()
}

// Active reports whether the instruction is still workable
func (wi *WorkInstruction) Active() bool {
	return wi.Status == WIStatusNew || wi.Status == WIStatusInProgress
}

// Covers reports whether the instruction satisfies the given detail identity
func (wi *WorkInstruction) Covers(detailKey string) bool {
	for _, k := range wi.DetailKeys {
		if k == detailKey {
			return true
		}
	}
	return wi.DetailKey == detailKey
}

// Start marks the instruction in progress for a worker. Transitions are
// monotonic: a terminal instruction cannot restart.
func (wi *WorkInstruction) Start(workerID string) error {
	switch wi.Status {
	case WIStatusComplete:
		return ErrInstructionComplete
	case WIStatusShort:
		return ErrInstructionShort
	}

	wi.Status = WIStatusInProgress
	wi.WorkerID = workerID
	wi.UpdatedAt = time.Now()
	wi.Version++
	return nil
}

// CompletePick records a full or partial pick. A quantity covering the plan
// completes the instruction; zero is rejected here because shorting runs
// through its own confirmation flow.
func (wi *WorkInstruction) CompletePick(qty int) error {
	if wi.Kind.IsHousekeeping() {
		return ErrHousekeeping
	}
	if wi.Status.Terminal() {
		return ErrInstructionComplete
	}
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	now := time.Now()
	wi.ActualQty = qty
	wi.Status = WIStatusComplete
	wi.CompletedAt = &now
	wi.UpdatedAt = now
	wi.Version++

	wi.AddDomainEvent(&ItemPickedEvent{
		InstructionID: wi.InstructionID,
		OrderID:       wi.OrderID,
		SKU:           wi.SKU,
		Qty:           qty,
		WorkerID:      wi.WorkerID,
		LocationAlias: wi.LocationAlias,
		PickedAt:      now,
	})

	return nil
}

// MarkShort records that the instruction cannot be fulfilled
func (wi *WorkInstruction) MarkShort(actualQty int, reason string) error {
	if wi.Status == WIStatusComplete {
		return ErrInstructionComplete
	}
	if actualQty < 0 {
		return ErrInvalidQuantity
	}

	now := time.Now()
	wi.ActualQty = actualQty
	wi.Status = WIStatusShort
	wi.CompletedAt = &now
	wi.UpdatedAt = now
	wi.Version++

	wi.AddDomainEvent(&WorkInstructionShortedEvent{
		InstructionID: wi.InstructionID,
		OrderID:       wi.OrderID,
		SKU:           wi.SKU,
		ActualQty:     actualQty,
		Reason:        reason,
		ShortedAt:     now,
	})

	return nil
}

// Complete marks a housekeeping instruction done
func (wi *WorkInstruction) Complete() error {
	if wi.Status.Terminal() {
		return ErrInstructionComplete
	}

	now := time.Now()
	wi.Status = WIStatusComplete
	wi.CompletedAt = &now
	wi.UpdatedAt = now
	wi.Version++
	return nil
}

// AddDomainEvent adds a domain event
func (wi *WorkInstruction) AddDomainEvent(event DomainEvent) {
	wi.DomainEvents = append(wi.DomainEvents, event)
}

// ClearDomainEvents clears all domain events
func (wi *WorkInstruction) ClearDomainEvents() {
	wi.DomainEvents = make([]DomainEvent, 0)
}

// GetDomainEvents returns all domain events
func (wi *WorkInstruction) GetDomainEvents() []DomainEvent {
	return wi.DomainEvents
}
