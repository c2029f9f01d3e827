package che

import (
	"context"
	"fmt"
)

// handleInfoPrompt waits for an item or location scan to display info for
func (m *Machine) handleInfoPrompt(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case LocationScan:
		loc, err := m.resolveAlias(ctx, e.Alias)
		if err != nil {
			m.emitFrame(NewFrame("UNKNOWN LOCATION", e.Alias, "", "CANCEL TO EXIT"))
			return
		}
		m.state = StateInfoDisplay
		m.emitFrame(NewFrame(
			loc.Alias,
			fmt.Sprintf("PATH %s", loc.PathID),
			fmt.Sprintf("DIST %d CM", loc.PathDistanceCm),
			"CANCEL TO EXIT",
		))
	case RawScan:
		result, err := m.backend.Lookup(ctx, e.Token)
		if err != nil || result.Item == nil {
			m.emitFrame(NewFrame("UNKNOWN ITEM", e.Token, "", "CANCEL TO EXIT"))
			return
		}
		m.state = StateInfoDisplay
		m.emitFrame(NewFrame(
			result.Item.SKU,
			result.Item.Description,
			"UOM "+result.Item.DefaultUOM,
			"CANCEL TO EXIT",
		))
	case CommandScan:
		if e.Command == CommandCancel {
			m.exitSubFlow()
			return
		}
		m.emitFrame(frameInfoPrompt())
	default:
		m.emitFrame(frameInfoPrompt())
	}
}

// handleInfoDisplay holds the info screen until the worker cancels or
// scans the next subject.
func (m *Machine) handleInfoDisplay(ctx context.Context, ev Event) {
	if cmd, ok := ev.(CommandScan); ok && cmd.Command == CommandCancel {
		m.exitSubFlow()
		return
	}
	m.state = StateInfoPrompt
	m.handleInfoPrompt(ctx, ev)
}

// handleScanGTIN starts inventory removal: first the item, then the
// location it should be removed from.
func (m *Machine) handleScanGTIN(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case RawScan:
		if m.pendingSKU == "" {
			result, err := m.backend.Lookup(ctx, e.Token)
			if err != nil || result.Item == nil {
				m.emitFrame(NewFrame("UNKNOWN ITEM", e.Token, "", "CANCEL TO EXIT"))
				return
			}
			m.pendingSKU = result.Item.SKU
			m.emitFrame(NewFrame("SCAN LOCATION", "FOR "+m.pendingSKU, "", ""))
			return
		}
		m.emitFrame(NewFrame("SCAN LOCATION", "FOR "+m.pendingSKU, "", ""))
	case LocationScan:
		if m.pendingSKU == "" {
			m.emitFrame(NewFrame("SCAN ITEM GTIN", "", "", ""))
			return
		}
		if _, err := m.resolveAlias(ctx, e.Alias); err != nil {
			m.emitFrame(NewFrame("UNKNOWN LOCATION", e.Alias, "", ""))
			return
		}
		m.pendingLocation = e.Alias
		m.state = StateRemoveInvConfirm
		m.emitFrame(NewFrame(
			"REMOVE "+m.pendingSKU,
			"FROM "+m.pendingLocation,
			"YES OR NO",
			"",
		))
	case CommandScan:
		if e.Command == CommandCancel {
			m.exitSubFlow()
			return
		}
		m.emitFrame(NewFrame("SCAN ITEM GTIN", "", "", ""))
	default:
		m.emitFrame(NewFrame("SCAN ITEM GTIN", "", "", ""))
	}
}

// handleRemoveInvConfirm commits or abandons the inventory removal
func (m *Machine) handleRemoveInvConfirm(ctx context.Context, ev Event) {
	cmd, ok := ev.(CommandScan)
	if !ok {
		m.emitFrame(NewFrame("REMOVE "+m.pendingSKU, "FROM "+m.pendingLocation, "YES OR NO", ""))
		return
	}
	switch cmd.Command {
	case CommandYes:
		if err := m.backend.RemoveInventory(ctx, m.pendingSKU, m.pendingLocation); err != nil {
			m.failBackend(err, "remove inventory")
			return
		}
		m.logger.Event(ctx, "inventory_removed", map[string]any{
			"sku":      m.pendingSKU,
			"location": m.pendingLocation,
		})
		m.exitSubFlow()
	case CommandNo, CommandCancel:
		m.exitSubFlow()
	default:
		m.emitFrame(NewFrame("REMOVE "+m.pendingSKU, "FROM "+m.pendingLocation, "YES OR NO", ""))
	}
}

// exitSubFlow returns to the state the worker was working in before the
// info or inventory detour.
func (m *Machine) exitSubFlow() {
	m.pendingSKU = ""
	m.pendingLocation = ""
	if m.current() != nil {
		m.state = m.workState()
		m.renderActive()
		return
	}
	switch m.mode {
	case ModePutWall, ModeSkuWall:
		m.state = StateWallScanItem
	case ModePalletizer:
		m.state = StatePalletScanItem
	default:
		m.state = StateContainerSelect
	}
	m.renderCurrent()
}
