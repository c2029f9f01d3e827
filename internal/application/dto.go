package application

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/wms-platform/fulfillment-engine/pkg/errors"

	"github.com/wms-platform/fulfillment-engine/internal/domain"
	"github.com/wms-platform/fulfillment-engine/internal/resolver"
)

var validate = validator.New()

// Validate checks a command's constraint tags and reports failures as
// field-level validation errors
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) {
		appErr := apperrors.ErrValidation("validation failed")
		for _, fe := range fieldErrors {
			appErr = appErr.WithDetail(fe.Field(), fe.Tag())
		}
		return appErr
	}
	return err
}

// ScanCommand delivers one scanned token to a device session
type ScanCommand struct {
	DeviceID string `json:"deviceId" validate:"required"`
	Token    string `json:"token" validate:"required"`
	Mode     string `json:"mode" validate:"omitempty,oneof=pick line_scan put_wall sku_wall palletizer replenishment"`
}

// ButtonCommand delivers one position button press to a device session
type ButtonCommand struct {
	DeviceID string `json:"deviceId" validate:"required"`
	Position int    `json:"position" validate:"required,min=1"`
	Quantity int    `json:"quantity" validate:"min=0"`
	Mode     string `json:"mode" validate:"omitempty,oneof=pick line_scan put_wall sku_wall palletizer replenishment"`
}

// ImportLine is one order detail line in an import batch
type ImportLine struct {
	OrderID         string    `json:"orderId" validate:"required"`
	DetailID        string    `json:"detailId"`
	SKU             string    `json:"sku" validate:"required"`
	UOM             string    `json:"uom" validate:"required"`
	Description     string    `json:"description"`
	Qty             int       `json:"qty" validate:"required,min=1"`
	Location        string    `json:"location"`
	DestinationSlot string    `json:"destinationSlot"`
	LicensePlate    string    `json:"licensePlate"`
	OrderType       string    `json:"orderType" validate:"omitempty,oneof=outbound replenishment palletizer"`
	DueDate         time.Time `json:"dueDate"`
}

// ImportOrdersCommand carries one outbound order import batch
type ImportOrdersCommand struct {
	Lines []ImportLine `json:"lines" validate:"required,min=1,dive"`
}

func (c ImportOrdersCommand) toImportDetails() []resolver.ImportDetail {
	details := make([]resolver.ImportDetail, 0, len(c.Lines))
	for _, l := range c.Lines {
		details = append(details, resolver.ImportDetail{
			OrderID:         l.OrderID,
			DetailID:        l.DetailID,
			SKU:             l.SKU,
			UOM:             l.UOM,
			Description:     l.Description,
			Qty:             l.Qty,
			Location:        l.Location,
			DestinationSlot: l.DestinationSlot,
			LicensePlate:    l.LicensePlate,
			OrderType:       domain.OrderType(l.OrderType),
			DueDate:         l.DueDate,
		})
	}
	return details
}

// ImportSummaryDTO reports what an import batch changed
type ImportSummaryDTO struct {
	OrdersCreated      int      `json:"ordersCreated"`
	DetailsCreated     int      `json:"detailsCreated"`
	DetailsUpdated     int      `json:"detailsUpdated"`
	DetailsReopened    int      `json:"detailsReopened"`
	DetailsShorted     int      `json:"detailsShorted"`
	DetailsDeactivated int      `json:"detailsDeactivated"`
	ShortedKeys        []string `json:"shortedKeys,omitempty"`
	DeactivatedKeys    []string `json:"deactivatedKeys,omitempty"`
}

func toImportSummaryDTO(s resolver.ImportSummary) ImportSummaryDTO {
	return ImportSummaryDTO{
		OrdersCreated:      s.OrdersCreated,
		DetailsCreated:     s.DetailsCreated,
		DetailsUpdated:     s.DetailsUpdated,
		DetailsReopened:    s.DetailsReopened,
		DetailsShorted:     s.DetailsShorted,
		DetailsDeactivated: s.DetailsDeactivated,
		ShortedKeys:        s.ShortedKeys,
		DeactivatedKeys:    s.DeactivatedKeys,
	}
}

// ImportItemLine is one catalog item in an inventory import
type ImportItemLine struct {
	SKU         string `json:"sku" validate:"required"`
	GTIN        string `json:"gtin"`
	Description string `json:"description"`
	DefaultUOM  string `json:"defaultUom" validate:"required"`
}

// ImportStockLine places quantity of one item at a location
type ImportStockLine struct {
	SKU      string `json:"sku" validate:"required"`
	Location string `json:"location" validate:"required"`
	Qty      int    `json:"qty" validate:"min=0"`
	OffsetCm int    `json:"offsetCm" validate:"min=0"`
}

// ImportInventoryCommand replaces the item catalog and stock placement
type ImportInventoryCommand struct {
	Items []ImportItemLine  `json:"items" validate:"dive"`
	Stock []ImportStockLine `json:"stock" validate:"dive"`
}

// ImportLocationLine is one location in a layout import
type ImportLocationLine struct {
	LocationID     string `json:"locationId" validate:"required"`
	Alias          string `json:"alias" validate:"required"`
	Aisle          string `json:"aisle"`
	Bay            string `json:"bay"`
	Tier           string `json:"tier"`
	Slot           string `json:"slot"`
	PathID         string `json:"pathId"`
	PathDistanceCm int    `json:"pathDistanceCm" validate:"min=0"`
	TapeID         int64  `json:"tapeId"`
	LightChannel   int    `json:"lightChannel"`
	LightIndex     int    `json:"lightIndex"`
}

// ImportPathLine is one path segment in a layout import
type ImportPathLine struct {
	PathID       string `json:"pathId" validate:"required"`
	SegmentOrder int    `json:"segmentOrder" validate:"min=0"`
	StartCm      int    `json:"startCm" validate:"min=0"`
	EndCm        int    `json:"endCm" validate:"min=0"`
}

// ImportLayoutCommand replaces the facility geometry wholesale
type ImportLayoutCommand struct {
	Paths     []ImportPathLine     `json:"paths" validate:"dive"`
	Locations []ImportLocationLine `json:"locations" validate:"required,min=1,dive"`
}

// WorkInstructionDTO is the read model for one work instruction
type WorkInstructionDTO struct {
	InstructionID  string     `json:"instructionId"`
	Kind           string     `json:"kind"`
	OrderID        string     `json:"orderId,omitempty"`
	DetailKeys     []string   `json:"detailKeys,omitempty"`
	SKU            string     `json:"sku,omitempty"`
	UOM            string     `json:"uom,omitempty"`
	Description    string     `json:"description,omitempty"`
	PlanQty        int        `json:"planQty"`
	ActualQty      int        `json:"actualQty"`
	LocationAlias  string     `json:"locationAlias,omitempty"`
	PathID         string     `json:"pathId,omitempty"`
	PathDistanceCm int        `json:"pathDistanceCm"`
	CartPosition   int        `json:"cartPosition"`
	Status         string     `json:"status"`
	ClaimedBy      string     `json:"claimedBy,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// ToWorkInstructionDTO maps a work instruction aggregate to its read model
func ToWorkInstructionDTO(wi *domain.WorkInstruction) *WorkInstructionDTO {
	return &WorkInstructionDTO{
		InstructionID:  wi.InstructionID,
		Kind:           string(wi.Kind),
		OrderID:        wi.OrderID,
		DetailKeys:     wi.DetailKeys,
		SKU:            wi.SKU,
		UOM:            wi.UOM,
		Description:    wi.Description,
		PlanQty:        wi.PlanQty,
		ActualQty:      wi.ActualQty,
		LocationAlias:  wi.LocationAlias,
		PathID:         wi.PathID,
		PathDistanceCm: wi.PathDistanceCm,
		CartPosition:   wi.CartPosition,
		Status:         string(wi.Status),
		ClaimedBy:      wi.ClaimedBy,
		CompletedAt:    wi.CompletedAt,
	}
}

// OrderDTO is the read model for one order aggregate
type OrderDTO struct {
	OrderID   string           `json:"orderId"`
	OrderType string           `json:"orderType"`
	Status    string           `json:"status"`
	DueDate   time.Time        `json:"dueDate,omitempty"`
	Details   []OrderDetailDTO `json:"details"`
}

// OrderDetailDTO is the read model for one order detail
type OrderDetailDTO struct {
	DetailKey       string `json:"detailKey"`
	SKU             string `json:"sku"`
	UOM             string `json:"uom"`
	Description     string `json:"description,omitempty"`
	PlanQty         int    `json:"planQty"`
	PickedQty       int    `json:"pickedQty"`
	Status          string `json:"status"`
	Active          bool   `json:"active"`
	DestinationSlot string `json:"destinationSlot,omitempty"`
}

// ToOrderDTO maps an order aggregate to its read model
func ToOrderDTO(o *domain.OrderHeader) *OrderDTO {
	dto := &OrderDTO{
		OrderID:   o.OrderID,
		OrderType: string(o.OrderType),
		Status:    string(o.Status),
		DueDate:   o.DueDate,
		Details:   make([]OrderDetailDTO, 0, len(o.Details)),
	}
	for _, d := range o.Details {
		dto.Details = append(dto.Details, OrderDetailDTO{
			DetailKey:       d.DetailKey,
			SKU:             d.SKU,
			UOM:             d.UOM,
			Description:     d.Description,
			PlanQty:         d.PlanQty,
			PickedQty:       d.PickedQty,
			Status:          string(d.Status),
			Active:          d.Active,
			DestinationSlot: d.DestinationSlot,
		})
	}
	return dto
}
