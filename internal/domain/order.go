package domain

import (
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Errors
var (
	ErrOrderHasNoDetails = errors.New("order must have at least one detail")
	ErrDetailNotFound    = errors.New("order detail not found")
	ErrDuplicateDetail   = errors.New("order detail identity already exists")
)

// OrderStatus represents the status of a business order
type OrderStatus string

const (
	OrderStatusReleased   OrderStatus = "released"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusComplete   OrderStatus = "complete"
	OrderStatusShort      OrderStatus = "short"
)

// IsValid reports whether the status is a known value
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusReleased, OrderStatusInProgress, OrderStatusComplete, OrderStatusShort:
		return true
	}
	return false
}

// OrderType distinguishes the order's fulfillment process
type OrderType string

const (
	OrderTypeOutbound      OrderType = "outbound"
	OrderTypeReplenishment OrderType = "replenishment"
	OrderTypePalletizer    OrderType = "palletizer"
)

// DetailKeyFor builds the durable business identity of an order detail.
// Identity is keyed by (order, item, uom) and survives re-import; the
// imported detail-id text is never part of it.
func DetailKeyFor(orderID, sku, uom string) string {
	return fmt.Sprintf("%s-%s-%s", sku, uom, orderID)
}

// OrderDetail is one item/uom/quantity line of an order. Its status mirrors
// the completion of its work instructions.
type OrderDetail struct {
	DetailKey         string      `bson:"detailKey" json:"detailKey"`
	OrderID           string      `bson:"orderId" json:"orderId"`
	SKU               string      `bson:"sku" json:"sku"`
	UOM               string      `bson:"uom" json:"uom"`
	Description       string      `bson:"description,omitempty" json:"description,omitempty"`
	PlanQty           int         `bson:"planQty" json:"planQty"`
	PickedQty         int         `bson:"pickedQty" json:"pickedQty"`
	Status            OrderStatus `bson:"status" json:"status"`
	Active            bool        `bson:"active" json:"active"`
	PreferredLocation string      `bson:"preferredLocation,omitempty" json:"preferredLocation,omitempty"`
	DestinationSlot   string      `bson:"destinationSlot,omitempty" json:"destinationSlot,omitempty"`
	UpdatedAt         time.Time   `bson:"updatedAt" json:"updatedAt"`
}

// Outstanding returns the quantity still to be worked
func (d *OrderDetail) Outstanding() int {
	remaining := d.PlanQty - d.PickedQty
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Satisfied reports whether the picked quantity covers the plan
func (d *OrderDetail) Satisfied() bool {
	return d.PickedQty >= d.PlanQty
}

// RecordPick applies a picked quantity and derives the detail status
func (d *OrderDetail) RecordPick(qty int) {
	d.PickedQty += qty
	if d.Satisfied() {
		d.Status = OrderStatusComplete
	} else {
		d.Status = OrderStatusInProgress
	}
	d.UpdatedAt = time.Now()
}

// MarkShort records that remaining quantity cannot be fulfilled
func (d *OrderDetail) MarkShort() {
	d.Status = OrderStatusShort
	d.UpdatedAt = time.Now()
}

// OrderHeader is the aggregate root for a business order. LicensePlate
// is the identifier of the physical tote or pallet the order ships on;
// scanning it resolves back to the order.
type OrderHeader struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	OrderID      string             `bson:"orderId" json:"orderId"`
	FacilityID   string             `bson:"facilityId" json:"facilityId"`
	OrderType    OrderType          `bson:"orderType" json:"orderType"`
	Status       OrderStatus        `bson:"status" json:"status"`
	LicensePlate string             `bson:"licensePlate,omitempty" json:"licensePlate,omitempty"`
	DueDate      time.Time          `bson:"dueDate,omitempty" json:"dueDate,omitempty"`
	Details      []*OrderDetail     `bson:"details" json:"details"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
	DomainEvents []DomainEvent      `bson:"-" json:"-"`
}

// NewOrderHeader creates a new order aggregate
func NewOrderHeader(orderID, facilityID string, orderType OrderType, dueDate time.Time) *OrderHeader {
	now := time.Now()
	return &OrderHeader{
		OrderID:      orderID,
		FacilityID:   facilityID,
		OrderType:    orderType,
		Status:       OrderStatusReleased,
		DueDate:      dueDate,
		Details:      make([]*OrderDetail, 0),
		CreatedAt:    now,
		UpdatedAt:    now,
		DomainEvents: make([]DomainEvent, 0),
	}
}

// DetailByKey finds a detail by its business identity
func (o *OrderHeader) DetailByKey(detailKey string) (*OrderDetail, error) {
	for _, d := range o.Details {
		if d.DetailKey == detailKey {
			return d, nil
		}
	}
	return nil, ErrDetailNotFound
}

// AddDetail appends a new detail line, enforcing identity uniqueness
func (o *OrderHeader) AddDetail(sku, uom, description string, planQty int, preferredLocation string) (*OrderDetail, error) {
	key := DetailKeyFor(o.OrderID, sku, uom)
	if _, err := o.DetailByKey(key); err == nil {
		return nil, ErrDuplicateDetail
	}

	detail := &OrderDetail{
		DetailKey:         key,
		OrderID:           o.OrderID,
		SKU:               sku,
		UOM:               uom,
		Description:       description,
		PlanQty:           planQty,
		Status:            OrderStatusReleased,
		Active:            true,
		PreferredLocation: preferredLocation,
		UpdatedAt:         time.Now(),
	}
	o.Details = append(o.Details, detail)
	o.UpdatedAt = time.Now()
	return detail, nil
}

// ActiveDetails returns details still participating in fulfillment
func (o *OrderHeader) ActiveDetails() []*OrderDetail {
	out := make([]*OrderDetail, 0, len(o.Details))
	for _, d := range o.Details {
		if d.Active {
			out = append(out, d)
		}
	}
	return out
}

// UnsatisfiedDetails returns active details with outstanding quantity
func (o *OrderHeader) UnsatisfiedDetails() []*OrderDetail {
	out := make([]*OrderDetail, 0, len(o.Details))
	for _, d := range o.Details {
		if d.Active && d.Status != OrderStatusComplete && d.Outstanding() > 0 {
			out = append(out, d)
		}
	}
	return out
}

// RecomputeStatus derives the order status from its active details
func (o *OrderHeader) RecomputeStatus() {
	active := o.ActiveDetails()
	if len(active) == 0 {
		return
	}

	allComplete := true
	anyShort := false
	anyProgress := false
	for _, d := range active {
		switch d.Status {
		case OrderStatusShort:
			anyShort = true
			allComplete = false
		case OrderStatusComplete:
		case OrderStatusInProgress:
			anyProgress = true
			allComplete = false
		default:
			allComplete = false
		}
	}

	prior := o.Status
	switch {
	case allComplete:
		o.Status = OrderStatusComplete
	case anyShort:
		o.Status = OrderStatusShort
	case anyProgress:
		o.Status = OrderStatusInProgress
	default:
		o.Status = OrderStatusReleased
	}
	o.UpdatedAt = time.Now()

	if o.Status != prior {
		o.AddDomainEvent(&OrderStatusChangedEvent{
			OrderID:   o.OrderID,
			Status:    string(o.Status),
			ChangedAt: o.UpdatedAt,
		})
	}
}

// AddDomainEvent adds a domain event
func (o *OrderHeader) AddDomainEvent(event DomainEvent) {
	o.DomainEvents = append(o.DomainEvents, event)
}

// ClearDomainEvents clears all domain events
func (o *OrderHeader) ClearDomainEvents() {
	o.DomainEvents = make([]DomainEvent, 0)
}

// GetDomainEvents returns all domain events
func (o *OrderHeader) GetDomainEvents() []DomainEvent {
	return o.DomainEvents
}
