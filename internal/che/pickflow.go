package che

import (
	"context"

	apperrors "github.com/wms-platform/fulfillment-engine/pkg/errors"

	"github.com/wms-platform/fulfillment-engine/internal/domain"
)

// handleDoPick drives the active pick. Button presses confirm quantity,
// location scans jump the run, SHORT opens the short sub-flow.
func (m *Machine) handleDoPick(ctx context.Context, ev Event) {
	wi := m.current()
	if wi == nil {
		m.renderActive()
		return
	}

	switch e := ev.(type) {
	case ButtonPress:
		m.handlePickPress(ctx, wi, e)
	case CommandScan:
		switch e.Command {
		case CommandShort:
			if wi.Kind.IsHousekeeping() {
				m.renderActive()
				return
			}
			m.state = StateShortPick
			m.emitFrame(frameShortPick(wi))
		case CommandSetup:
			m.clearAllIndicators()
			m.state = StateContainerSelect
			m.emitFrame(frameContainerSelect())
		case CommandStart:
			m.proposeDirection(domain.DirectionForward)
		case CommandReverse:
			m.proposeDirection(domain.DirectionReverse)
		case CommandInfo:
			m.state = StateInfoPrompt
			m.emitFrame(frameInfoPrompt())
		default:
			m.renderActive()
		}
	case LocationScan:
		loc, err := m.resolveAlias(ctx, e.Alias)
		if err != nil {
			m.logger.WithError(err).Warn("jump location did not resolve")
			m.renderActive()
			return
		}
		m.jumpTo(ctx, loc)
	case TapeScan:
		loc, err := m.resolveTape(ctx, e.Scan)
		if err != nil {
			m.logger.WithError(err).Warn("jump tape did not resolve")
			m.renderActive()
			return
		}
		m.jumpTo(ctx, loc)
	case RawScan:
		m.handlePickRawScan(ctx, wi, e.Token)
	default:
		m.renderActive()
	}
}

// handlePickPress applies a quantity press to the active instruction
func (m *Machine) handlePickPress(ctx context.Context, wi *domain.WorkInstruction, press ButtonPress) {
	if wi.Kind.IsHousekeeping() {
		// Housekeeping screens are acknowledged by any press
		m.advance()
		return
	}
	if wi.CartPosition > 0 && press.Position != wi.CartPosition {
		m.renderActive()
		return
	}
	if m.mode == ModeLineScan && !m.lineVerified {
		m.emitFrame(NewFrame("SCAN ITEM FIRST", wi.SKU, "", ""))
		return
	}

	switch {
	case press.Quantity >= wi.PlanQty:
		m.completeActive(ctx, wi, wi.PlanQty)
	default:
		// zero or partial quantity enters the short confirmation sub-flow
		m.pendingShort = press.Quantity
		m.state = StateShortConfirm
		if wi.CartPosition > 0 {
			m.emitIndicator(wi.CartPosition, shortIndicator(wi))
		}
		m.emitFrame(frameShortConfirm(wi, press.Quantity))
	}
}

// handlePickRawScan verifies the item in line_scan mode; other modes
// re-render the prompt.
func (m *Machine) handlePickRawScan(ctx context.Context, wi *domain.WorkInstruction, token string) {
	if m.mode != ModeLineScan {
		m.renderActive()
		return
	}
	if token == wi.SKU {
		m.lineVerified = true
		m.renderActive()
		return
	}
	result, err := m.backend.Lookup(ctx, token)
	if err == nil && result.Item != nil && result.Item.SKU == wi.SKU {
		m.lineVerified = true
		m.renderActive()
		return
	}
	m.emitFrame(NewFrame("WRONG ITEM", "EXPECTED "+wi.SKU, "", ""))
}

// completeActive records a completed pick and advances the run
func (m *Machine) completeActive(ctx context.Context, wi *domain.WorkInstruction, qty int) {
	err := m.backend.CompletePick(ctx, m.deviceID, wi.InstructionID, wi.Version, qty)
	switch {
	case err == nil:
		m.doneCount++
		m.logger.Event(ctx, "pick_completed", map[string]any{
			"instructionId": wi.InstructionID,
			"qty":           qty,
		})
		m.advance()
	case apperrors.IsCode(err, apperrors.CodeConcurrentClaimConflict):
		// Another device finished it first; skip without counting
		m.logger.WithError(err).Warn("instruction already claimed, skipping")
		m.advance()
	case apperrors.IsCode(err, apperrors.CodeStaleReference):
		// Purged while held: degrade to no-work for this instruction
		m.logger.WithError(err).Warn("instruction purged while held, skipping")
		m.advance()
	default:
		m.failBackend(err, "complete pick")
	}
}

// handleShortPick waits for the picked-so-far quantity press
func (m *Machine) handleShortPick(ctx context.Context, ev Event) {
	wi := m.current()
	if wi == nil {
		m.renderActive()
		return
	}
	switch e := ev.(type) {
	case ButtonPress:
		if e.Quantity >= wi.PlanQty {
			// Full quantity pressed during a short flow completes normally
			m.state = m.workState()
			m.completeActive(ctx, wi, wi.PlanQty)
			return
		}
		m.pendingShort = e.Quantity
		m.state = StateShortConfirm
		m.emitFrame(frameShortConfirm(wi, e.Quantity))
	case CommandScan:
		if e.Command == CommandCancel || e.Command == CommandNo {
			m.resumeWork()
			return
		}
		m.emitFrame(frameShortPick(wi))
	default:
		m.emitFrame(frameShortPick(wi))
	}
}

// handleShortConfirm finalizes or abandons the short. YES shorts the
// instruction and cascades over later instructions for the same item.
func (m *Machine) handleShortConfirm(ctx context.Context, ev Event) {
	wi := m.current()
	if wi == nil {
		m.renderActive()
		return
	}
	cmd, ok := ev.(CommandScan)
	if !ok {
		m.emitFrame(frameShortConfirm(wi, m.pendingShort))
		return
	}
	switch cmd.Command {
	case CommandYes:
		m.shortActive(ctx, wi)
	case CommandNo, CommandCancel:
		m.pendingShort = 0
		m.resumeWork()
	default:
		m.emitFrame(frameShortConfirm(wi, m.pendingShort))
	}
}

// shortActive records the short and drops cascaded same-item instructions
// from the remaining run.
func (m *Machine) shortActive(ctx context.Context, wi *domain.WorkInstruction) {
	cascaded, err := m.backend.ShortPick(ctx, m.deviceID, wi.InstructionID, wi.Version, m.pendingShort)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeConcurrentClaimConflict) ||
			apperrors.IsCode(err, apperrors.CodeStaleReference) {
			m.logger.WithError(err).Warn("short skipped, instruction no longer held")
			m.pendingShort = 0
			m.state = m.workState()
			m.advance()
			return
		}
		m.failBackend(err, "short pick")
		return
	}

	m.shortCount++
	m.logger.Event(ctx, "pick_shorted", map[string]any{
		"instructionId": wi.InstructionID,
		"qty":           m.pendingShort,
		"cascaded":      len(cascaded),
	})

	dropped := make(map[string]bool, len(cascaded))
	for _, id := range cascaded {
		dropped[id] = true
	}
	if len(dropped) > 0 {
		remaining := m.run[:m.runIndex+1]
		for _, rest := range m.run[m.runIndex+1:] {
			if dropped[rest.InstructionID] {
				m.shortCount++
				if rest.CartPosition > 0 {
					m.emitClear(rest.CartPosition)
				}
				continue
			}
			remaining = append(remaining, rest)
		}
		m.run = remaining
	}

	m.pendingShort = 0
	m.state = m.workState()
	m.advance()
}
