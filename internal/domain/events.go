package domain

import "time"

// DomainEvent represents a domain event
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// WorkInstructionCreatedEvent is emitted when the resolver materializes an instruction
type WorkInstructionCreatedEvent struct {
	InstructionID string    `json:"instructionId"`
	OrderID       string    `json:"orderId"`
	SKU           string    `json:"sku"`
	PlanQty       int       `json:"planQty"`
	LocationAlias string    `json:"locationAlias"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (e *WorkInstructionCreatedEvent) EventType() string     { return "wms.fulfillment.instruction-created" }
func (e *WorkInstructionCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }

// ItemPickedEvent is emitted when a pick completes
type ItemPickedEvent struct {
	InstructionID string    `json:"instructionId"`
	OrderID       string    `json:"orderId"`
	SKU           string    `json:"sku"`
	Qty           int       `json:"qty"`
	WorkerID      string    `json:"workerId"`
	LocationAlias string    `json:"locationAlias"`
	PickedAt      time.Time `json:"pickedAt"`
}

func (e *ItemPickedEvent) EventType() string     { return "wms.fulfillment.item-picked" }
func (e *ItemPickedEvent) OccurredAt() time.Time { return e.PickedAt }

// WorkInstructionShortedEvent is emitted when an instruction is marked short
type WorkInstructionShortedEvent struct {
	InstructionID string    `json:"instructionId"`
	OrderID       string    `json:"orderId"`
	SKU           string    `json:"sku"`
	ActualQty     int       `json:"actualQty"`
	Reason        string    `json:"reason"`
	ShortedAt     time.Time `json:"shortedAt"`
}

func (e *WorkInstructionShortedEvent) EventType() string     { return "wms.fulfillment.instruction-shorted" }
func (e *WorkInstructionShortedEvent) OccurredAt() time.Time { return e.ShortedAt }

// OrderImportedEvent is emitted when an order import batch commits
type OrderImportedEvent struct {
	OrderID      string    `json:"orderId"`
	DetailCount  int       `json:"detailCount"`
	Reimport     bool      `json:"reimport"`
	ImportedAt   time.Time `json:"importedAt"`
}

func (e *OrderImportedEvent) EventType() string     { return "wms.fulfillment.order-imported" }
func (e *OrderImportedEvent) OccurredAt() time.Time { return e.ImportedAt }

// OrderDetailReopenedEvent is emitted when a re-import reopens a finished detail
type OrderDetailReopenedEvent struct {
	DetailKey  string    `json:"detailKey"`
	OrderID    string    `json:"orderId"`
	PlanQty    int       `json:"planQty"`
	ReopenedAt time.Time `json:"reopenedAt"`
}

func (e *OrderDetailReopenedEvent) EventType() string     { return "wms.fulfillment.detail-reopened" }
func (e *OrderDetailReopenedEvent) OccurredAt() time.Time { return e.ReopenedAt }

// OrderStatusChangedEvent is emitted when an order reaches a new status
type OrderStatusChangedEvent struct {
	OrderID   string    `json:"orderId"`
	Status    string    `json:"status"`
	ChangedAt time.Time `json:"changedAt"`
}

func (e *OrderStatusChangedEvent) EventType() string     { return "wms.fulfillment.order-status-changed" }
func (e *OrderStatusChangedEvent) OccurredAt() time.Time { return e.ChangedAt }

// RecordsPurgedEvent is emitted when the retention purge removes records
type RecordsPurgedEvent struct {
	Kind     string    `json:"kind"`
	Count    int       `json:"count"`
	MaxAge   string    `json:"maxAge"`
	PurgedAt time.Time `json:"purgedAt"`
}

func (e *RecordsPurgedEvent) EventType() string     { return "wms.fulfillment.records-purged" }
func (e *RecordsPurgedEvent) OccurredAt() time.Time { return e.PurgedAt }
