package che

import (
	"context"

	"github.com/wms-platform/fulfillment-engine/internal/domain"
)

// palletPrefix keys pallets by the leading digits of the item id. The
// prefix length comes from facility configuration.
func (m *Machine) palletPrefix(ctx context.Context, sku string) string {
	prefixLen := domain.DefaultPalletizerPrefixLen
	if fac, err := m.backend.Facility(ctx); err == nil && fac.PalletizerPrefixLen > 0 {
		prefixLen = fac.PalletizerPrefixLen
	}
	if len(sku) < prefixLen {
		return sku
	}
	return sku[:prefixLen]
}

// handlePalletScanItem is the palletizer home state. An item scan routes
// the item to the open pallet for its prefix, or asks for a location when
// no pallet is open yet. A location scan or a license plate scan closes
// a pallet.
func (m *Machine) handlePalletScanItem(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case RawScan:
		sku := e.Token
		if result, err := m.backend.Lookup(ctx, e.Token); err == nil {
			if result.Kind == LookupLicense {
				m.closeLastPallet(ctx)
				return
			}
			if result.Item != nil {
				sku = result.Item.SKU
			}
		}
		prefix := m.palletPrefix(ctx, sku)
		alias, open := m.pallets[prefix]
		if !open {
			m.pendingSKU = sku
			m.pendingPallet = prefix
			m.state = StatePalletNewOrder
			m.emitFrame(framePalletNotFound())
			return
		}
		m.palletPut(ctx, sku, alias)
	case LocationScan:
		m.closePallet(ctx, e.Alias)
	case TapeScan:
		loc, err := m.resolveTape(ctx, e.Scan)
		if err != nil {
			m.logger.WithError(err).Warn("pallet tape did not resolve")
			m.emitFrame(NewFrame("SCAN ITEM", "", "", ""))
			return
		}
		m.closePallet(ctx, loc.Alias)
	case CommandScan:
		switch e.Command {
		case CommandRemove:
			m.state = StatePalletRemove
			m.emitFrame(NewFrame("SCAN PALLET", "TO REMOVE", "OR CANCEL", ""))
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

// palletPut asks the backend for a put onto an open pallet and waits for
// the confirming press.
func (m *Machine) palletPut(ctx context.Context, sku, alias string) {
	wi, err := m.backend.PalletizerPut(ctx, m.deviceID, sku, alias)
	if err != nil {
		m.failBackend(err, "palletizer put")
		return
	}
	m.run = []*domain.WorkInstruction{wi}
	m.runIndex = 0
	m.lastPallet = alias
	m.state = StatePalletPutItem
	m.emitFrame(framePut(wi))
}

// handlePalletNewOrder opens a pallet for the pending prefix at the
// scanned location, then routes the held item there.
func (m *Machine) handlePalletNewOrder(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case LocationScan:
		loc, err := m.resolveAlias(ctx, e.Alias)
		if err != nil {
			m.emitFrame(framePalletNotFound())
			return
		}
		m.pallets[m.pendingPallet] = loc.Alias
		m.logger.Event(ctx, "pallet_opened", map[string]any{
			"prefix":   m.pendingPallet,
			"location": loc.Alias,
		})
		sku := m.pendingSKU
		m.pendingSKU = ""
		m.pendingPallet = ""
		m.palletPut(ctx, sku, loc.Alias)
	case CommandScan:
		if e.Command == CommandCancel {
			m.pendingSKU = ""
			m.pendingPallet = ""
			m.state = StatePalletScanItem
			m.emitFrame(NewFrame("SCAN ITEM", "", "", ""))
			return
		}
		m.emitFrame(framePalletNotFound())
	default:
		m.emitFrame(framePalletNotFound())
	}
}

// handlePalletPutItem confirms the put, or opens the damaged flow
func (m *Machine) handlePalletPutItem(ctx context.Context, ev Event) {
	wi := m.current()
	if wi == nil {
		m.renderActive()
		return
	}
	switch e := ev.(type) {
	case ButtonPress:
		m.completeActive(ctx, wi, wi.PlanQty)
	case CommandScan:
		switch e.Command {
		case CommandShort:
			m.state = StatePalletDamaged
			m.emitFrame(NewFrame("ITEM DAMAGED", wi.SKU, "YES OR NO", ""))
		case CommandCancel:
			m.run = nil
			m.runIndex = 0
			m.state = StatePalletScanItem
			m.emitFrame(NewFrame("SCAN ITEM", "", "", ""))
		default:
			m.emitFrame(framePut(wi))
		}
	case RawScan:
		// Next item scan confirms the current put implicitly
		m.completeActive(ctx, wi, wi.PlanQty)
		if m.state == StatePalletScanItem {
			m.handlePalletScanItem(ctx, e)
		}
	default:
		m.emitFrame(framePut(wi))
	}
}

// handlePalletDamaged shorts the held put when the worker confirms damage
func (m *Machine) handlePalletDamaged(ctx context.Context, ev Event) {
	wi := m.current()
	if wi == nil {
		m.renderActive()
		return
	}
	cmd, ok := ev.(CommandScan)
	if !ok {
		m.emitFrame(NewFrame("ITEM DAMAGED", wi.SKU, "YES OR NO", ""))
		return
	}
	switch cmd.Command {
	case CommandYes:
		if _, err := m.backend.ShortPick(ctx, m.deviceID, wi.InstructionID, wi.Version, 0); err != nil {
			m.failBackend(err, "short damaged put")
			return
		}
		m.shortCount++
		m.run = nil
		m.runIndex = 0
		m.state = StatePalletScanItem
		m.emitFrame(NewFrame("SCAN ITEM", "", "", ""))
	case CommandNo, CommandCancel:
		m.state = StatePalletPutItem
		m.emitFrame(framePut(wi))
	default:
		m.emitFrame(NewFrame("ITEM DAMAGED", wi.SKU, "YES OR NO", ""))
	}
}

// handlePalletRemove clears the orders staged on a pallet location
func (m *Machine) handlePalletRemove(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case LocationScan:
		removed, err := m.backend.RemoveWallOrders(ctx, e.Alias)
		if err != nil {
			m.failBackend(err, "remove pallet orders")
			return
		}
		for prefix, alias := range m.pallets {
			if alias == e.Alias {
				delete(m.pallets, prefix)
			}
		}
		if m.lastPallet == e.Alias {
			m.lastPallet = ""
		}
		m.logger.Event(ctx, "pallet_removed", map[string]any{
			"location": e.Alias,
			"orders":   removed,
		})
		m.state = StatePalletScanItem
		m.emitFrame(NewFrame("SCAN ITEM", "", "", ""))
	case CommandScan:
		if e.Command == CommandCancel {
			m.state = StatePalletScanItem
			m.emitFrame(NewFrame("SCAN ITEM", "", "", ""))
			return
		}
		m.emitFrame(NewFrame("SCAN PALLET", "TO REMOVE", "OR CANCEL", ""))
	default:
		m.emitFrame(NewFrame("SCAN PALLET", "TO REMOVE", "OR CANCEL", ""))
	}
}

// closePallet closes the pallet open at a location
func (m *Machine) closePallet(ctx context.Context, alias string) {
	prefix := ""
	for p, a := range m.pallets {
		if a == alias {
			prefix = p
			break
		}
	}
	if prefix == "" {
		m.emitFrame(framePalletNotFound())
		return
	}
	if err := m.backend.ClosePallet(ctx, m.deviceID, alias); err != nil {
		m.failBackend(err, "close pallet")
		return
	}
	delete(m.pallets, prefix)
	if m.lastPallet == alias {
		m.lastPallet = ""
	}
	m.logger.Event(ctx, "pallet_closed", map[string]any{"location": alias, "prefix": prefix})
	m.emitFrame(NewFrame("PALLET CLOSED", alias, "", "SCAN ITEM"))
}

// closeLastPallet closes the pallet the device last put an item to. The
// worker applies the shipping license plate and scans it to finish.
func (m *Machine) closeLastPallet(ctx context.Context) {
	if m.lastPallet == "" {
		m.emitFrame(framePalletNotFound())
		return
	}
	m.closePallet(ctx, m.lastPallet)
}
