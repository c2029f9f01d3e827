package che

import (
	"context"
	"fmt"
)

// handleWallScanItem is the home state for put_wall and sku_wall: an item
// scan resolves the puts for that item across the wall.
func (m *Machine) handleWallScanItem(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case RawScan:
		m.resolveWallPuts(ctx, e.Token)
	case CommandScan:
		switch e.Command {
		case CommandOrderWall:
			if m.mode != ModePutWall {
				m.emitFrame(NewFrame("SCAN ITEM", "", "", ""))
				return
			}
			m.state = StateWallScanOrder
			m.emitFrame(NewFrame("SCAN ORDER", "", "", ""))
		case CommandRemove:
			m.pendingLocation = ""
			m.state = StateWallRemoveConfirm
			m.emitFrame(NewFrame("SCAN WALL SLOT", "TO REMOVE", "OR CANCEL", ""))
		case CommandInfo:
			m.state = StateInfoPrompt
			m.emitFrame(frameInfoPrompt())
		default:
			m.emitFrame(NewFrame("SCAN ITEM", "", "", ""))
		}
	default:
		m.emitFrame(NewFrame("SCAN ITEM", "", "", ""))
	}
}

// resolveWallPuts asks the backend for put instructions for one item and
// enters the put flow, or shows the no-work screen naming the item.
func (m *Machine) resolveWallPuts(ctx context.Context, token string) {
	sku := token
	if result, err := m.backend.Lookup(ctx, token); err == nil && result.Item != nil {
		sku = result.Item.SKU
	}

	result, err := m.backend.ResolvePuts(ctx, m.deviceID, sku)
	if err != nil {
		m.failBackend(err, "resolve puts")
		return
	}
	if len(result.Instructions) == 0 {
		m.state = StateNoPutWork
		m.emitFrame(frameNoWork(sku))
		return
	}

	m.run = result.Instructions
	m.runIndex = 0
	m.state = StateDoPut
	m.logger.Event(ctx, "put_run_started", map[string]any{
		"sku":          sku,
		"instructions": len(m.run),
	})
	m.renderActive()
}

// handleDoPut confirms puts into wall slots by button press
func (m *Machine) handleDoPut(ctx context.Context, ev Event) {
	wi := m.current()
	if wi == nil {
		m.renderActive()
		return
	}
	switch e := ev.(type) {
	case ButtonPress:
		if e.Quantity >= wi.PlanQty {
			m.completeActive(ctx, wi, wi.PlanQty)
			return
		}
		m.pendingShort = e.Quantity
		m.state = StateShortConfirm
		m.emitFrame(frameShortConfirm(wi, e.Quantity))
	case CommandScan:
		switch e.Command {
		case CommandShort:
			m.state = StateShortPick
			m.emitFrame(frameShortPick(wi))
		case CommandCancel:
			m.run = nil
			m.runIndex = 0
			m.clearAllIndicators()
			m.state = StateWallScanItem
			m.emitFrame(NewFrame("SCAN ITEM", "", "", ""))
		case CommandInfo:
			m.state = StateInfoPrompt
			m.emitFrame(frameInfoPrompt())
		default:
			m.renderActive()
		}
	case RawScan:
		// Scanning the next item abandons the rest of this put run
		m.run = nil
		m.runIndex = 0
		m.clearAllIndicators()
		m.resolveWallPuts(ctx, e.Token)
	default:
		m.renderActive()
	}
}

// handleNoPutWork lets the worker scan the next item straight away
func (m *Machine) handleNoPutWork(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case RawScan:
		m.resolveWallPuts(ctx, e.Token)
	case CommandScan:
		if e.Command == CommandCancel {
			m.state = StateWallScanItem
			m.emitFrame(NewFrame("SCAN ITEM", "", "", ""))
			return
		}
		m.state = StateWallScanItem
		m.handleWallScanItem(ctx, ev)
	default:
		m.emitFrame(frameNoWork(""))
	}
}

// handleWallScanOrder assigns orders to wall slots: scan the order first
func (m *Machine) handleWallScanOrder(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case RawScan:
		result, err := m.backend.Lookup(ctx, e.Token)
		if err != nil || (result.Kind != LookupOrder && result.Kind != LookupLicense) {
			m.emitFrame(NewFrame("UNKNOWN ORDER", e.Token, "", ""))
			return
		}
		m.pendingWallOrder = result.OrderID
		m.state = StateWallScanSlot
		m.emitFrame(NewFrame("SCAN WALL SLOT", "FOR "+m.pendingWallOrder, "", ""))
	case CommandScan:
		if e.Command == CommandCancel {
			m.state = StateWallScanItem
			m.emitFrame(NewFrame("SCAN ITEM", "", "", ""))
			return
		}
		m.emitFrame(NewFrame("SCAN ORDER", "", "", ""))
	default:
		m.emitFrame(NewFrame("SCAN ORDER", "", "", ""))
	}
}

// handleWallScanSlot binds the pending order to the scanned wall slot
func (m *Machine) handleWallScanSlot(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case LocationScan:
		loc, err := m.resolveAlias(ctx, e.Alias)
		if err != nil {
			m.emitFrame(NewFrame("UNKNOWN LOCATION", e.Alias, "", ""))
			return
		}
		if err := m.backend.AssignOrderToWallSlot(ctx, m.pendingWallOrder, loc.Alias); err != nil {
			m.failBackend(err, "assign wall slot")
			return
		}
		m.logger.Event(ctx, "wall_slot_assigned", map[string]any{
			"orderId": m.pendingWallOrder,
			"slot":    loc.Alias,
		})
		m.pendingWallOrder = ""
		m.state = StateWallScanOrder
		m.emitFrame(NewFrame("SCAN ORDER", "OR CANCEL", "", ""))
	case CommandScan:
		if e.Command == CommandCancel {
			m.pendingWallOrder = ""
			m.state = StateWallScanOrder
			m.emitFrame(NewFrame("SCAN ORDER", "", "", ""))
			return
		}
		m.emitFrame(NewFrame("SCAN WALL SLOT", "FOR "+m.pendingWallOrder, "", ""))
	default:
		m.emitFrame(NewFrame("SCAN WALL SLOT", "FOR "+m.pendingWallOrder, "", ""))
	}
}

// handleWallRemoveConfirm clears all orders out of one wall slot
func (m *Machine) handleWallRemoveConfirm(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case LocationScan:
		if _, err := m.resolveAlias(ctx, e.Alias); err != nil {
			m.emitFrame(NewFrame("UNKNOWN LOCATION", e.Alias, "", ""))
			return
		}
		m.pendingLocation = e.Alias
		m.emitFrame(NewFrame("REMOVE ORDERS", "FROM "+e.Alias, "YES OR NO", ""))
	case CommandScan:
		switch e.Command {
		case CommandYes:
			if m.pendingLocation == "" {
				m.emitFrame(NewFrame("SCAN WALL SLOT", "TO REMOVE", "OR CANCEL", ""))
				return
			}
			removed, err := m.backend.RemoveWallOrders(ctx, m.pendingLocation)
			if err != nil {
				m.failBackend(err, "remove wall orders")
				return
			}
			m.logger.Event(ctx, "wall_orders_removed", map[string]any{
				"slot":  m.pendingLocation,
				"count": removed,
			})
			m.emitFrame(NewFrame(fmt.Sprintf("REMOVED %d", removed), "FROM "+m.pendingLocation, "", ""))
			m.pendingLocation = ""
			m.state = StateWallScanItem
		case CommandNo, CommandCancel:
			m.pendingLocation = ""
			m.state = StateWallScanItem
			m.emitFrame(NewFrame("SCAN ITEM", "", "", ""))
		default:
			m.emitFrame(NewFrame("SCAN WALL SLOT", "TO REMOVE", "OR CANCEL", ""))
		}
	default:
		m.emitFrame(NewFrame("SCAN WALL SLOT", "TO REMOVE", "OR CANCEL", ""))
	}
}
