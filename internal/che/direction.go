package che

import (
	"context"
	"strings"

	"github.com/wms-platform/fulfillment-engine/internal/domain"
)

// proposeDirection records the first press of a direction command and moves
// to the review state. Nothing is committed yet; the worker either presses
// a direction again or scans a starting location.
func (m *Machine) proposeDirection(dir domain.Direction) {
	m.pendingDirection = dir
	m.state = StateLocationReview
	m.emitFrame(frameDirectionReview(dir))
}

// handleLocationReview completes the two-phase direction commit. A second
// direction press wins outright, whichever direction it names. A location
// or tape scan commits the pending direction anchored at that location.
func (m *Machine) handleLocationReview(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case CommandScan:
		switch e.Command {
		case CommandStart:
			m.commitDirection(ctx, domain.DirectionForward, nil)
		case CommandReverse:
			m.commitDirection(ctx, domain.DirectionReverse, nil)
		case CommandCancel:
			m.pendingDirection = ""
			m.state = StateContainerSelect
			m.emitFrame(frameContainerSelect())
		default:
			m.emitFrame(frameDirectionReview(m.pendingDirection))
		}
	case LocationScan:
		loc, err := m.resolveAlias(ctx, e.Alias)
		if err != nil {
			m.logger.WithError(err).Warn("start location did not resolve")
			m.emitFrame(frameDirectionReview(m.pendingDirection))
			return
		}
		m.commitDirection(ctx, m.pendingDirection, loc)
	case TapeScan:
		loc, err := m.resolveTape(ctx, e.Scan)
		if err != nil {
			m.logger.WithError(err).Warn("start tape did not resolve")
			m.emitFrame(frameDirectionReview(m.pendingDirection))
			return
		}
		m.commitDirection(ctx, m.pendingDirection, loc)
	default:
		m.emitFrame(frameDirectionReview(m.pendingDirection))
	}
}

// commitDirection resolves a fresh instruction run for the committed
// direction and anchor and enters the pick flow.
func (m *Machine) commitDirection(ctx context.Context, dir domain.Direction, anchor *domain.Location) {
	params := RunParams{
		DeviceID:        m.deviceID,
		Containers:      m.containerList(),
		Direction:       dir,
		Anchor:          anchor,
		LastKnownAnchor: m.lastKnownAnchor,
	}
	if m.mode == ModeReplenish {
		params.OrderTypes = []domain.OrderType{domain.OrderTypeReplenishment}
	}

	result, err := m.backend.ResolveRun(ctx, params)
	if err != nil {
		m.failBackend(err, "resolve run")
		return
	}

	m.committedDirection = dir
	m.pendingDirection = ""

	if result.AnchorUsed != nil {
		if m.lastPathID != "" && result.AnchorUsed.PathID != m.lastPathID {
			if fac, ferr := m.backend.Facility(ctx); ferr == nil && fac.DropDoneCountOnPathChange {
				m.doneCount = 0
			}
		}
		m.lastKnownAnchor = result.AnchorUsed
		m.lastPathID = result.AnchorUsed.PathID
	}

	m.run = result.Instructions
	m.runIndex = 0
	m.lineVerified = false

	if len(m.run) == 0 {
		m.clearAllIndicators()
		m.state = StateComplete
		m.emitFrame(frameNoWork(m.noWorkSubject(result.ShortOrders)))
		return
	}

	m.logger.Event(ctx, "run_started", map[string]any{
		"direction":    string(dir),
		"instructions": len(m.run),
	})
	m.state = StateDoPick
	m.renderActive()
}

// jumpTo re-resolves the run from a mid-run scanned anchor, keeping the
// committed direction.
func (m *Machine) jumpTo(ctx context.Context, loc *domain.Location) {
	dir := m.committedDirection
	if dir == "" {
		dir = domain.DirectionForward
	}
	m.clearAllIndicators()
	m.commitDirection(ctx, dir, loc)
}

// containerList flattens the position-keyed container map
func (m *Machine) containerList() []*domain.Container {
	list := make([]*domain.Container, 0, len(m.containers))
	for _, c := range m.containers {
		list = append(list, c)
	}
	return list
}

// resolveAlias looks a location up by alias in the facility snapshot
func (m *Machine) resolveAlias(ctx context.Context, alias string) (*domain.Location, error) {
	fac, err := m.backend.Facility(ctx)
	if err != nil {
		return nil, err
	}
	return fac.LocationByAlias(alias)
}

// resolveTape looks a location up by tape id and applies the scan offset
func (m *Machine) resolveTape(ctx context.Context, scan domain.TapeScan) (*domain.Location, error) {
	fac, err := m.backend.Facility(ctx)
	if err != nil {
		return nil, err
	}
	loc, err := fac.LocationByTape(scan.TapeID)
	if err != nil {
		return nil, err
	}
	adjusted := *loc
	adjusted.PathDistanceCm += scan.OffsetCm
	return &adjusted, nil
}

// noWorkSubject names who the empty run was for on the no-work screen
func (m *Machine) noWorkSubject(shortOrders []string) string {
	if len(shortOrders) > 0 {
		return strings.Join(shortOrders, " ")
	}
	ids := make([]string, 0, len(m.containers))
	for _, c := range m.containers {
		ids = append(ids, c.ContainerID)
	}
	return strings.Join(ids, " ")
}
