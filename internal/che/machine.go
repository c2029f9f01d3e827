package che

import (
	"context"
	"errors"

	"github.com/wms-platform/fulfillment-engine/pkg/logging"

	"github.com/wms-platform/fulfillment-engine/internal/domain"
	"github.com/wms-platform/fulfillment-engine/internal/resolver"
)

// ProcessMode selects which transition table a session runs under
type ProcessMode string

const (
	ModePick       ProcessMode = "pick"
	ModeLineScan   ProcessMode = "line_scan"
	ModePutWall    ProcessMode = "put_wall"
	ModeSkuWall    ProcessMode = "sku_wall"
	ModePalletizer ProcessMode = "palletizer"
	ModeReplenish  ProcessMode = "replenishment"
)

// IsValid reports whether the mode is a known process mode
func (m ProcessMode) IsValid() bool {
	switch m {
	case ModePick, ModeLineScan, ModePutWall, ModeSkuWall, ModePalletizer, ModeReplenish:
		return true
	}
	return false
}

// State is one interaction state of a device session
type State string

const (
	StateIdle              State = "IDLE"
	StateContainerSelect   State = "CONTAINER_SELECT"
	StateContainerPosition State = "CONTAINER_POSITION"
	StateSetupSummary      State = "SETUP_SUMMARY"
	StateLocationReview    State = "LOCATION_SELECT_REVIEW"
	StateDoPick            State = "DO_PICK"
	StateShortPick         State = "SHORT_PICK"
	StateShortConfirm      State = "SHORT_PICK_CONFIRM"
	StateRemoveContainer   State = "REMOVE_CHE_CONTAINER"
	StateScanGTIN          State = "SCAN_GTIN"
	StateInfoPrompt        State = "INFO_PROMPT"
	StateInfoDisplay       State = "INFO_DISPLAY"
	StateRemoveInvConfirm  State = "REMOVE_INVENTORY_CONFIRM"
	StateWallScanOrder     State = "PUT_WALL_SCAN_ORDER"
	StateWallScanSlot      State = "PUT_WALL_SCAN_WALL"
	StateWallScanItem      State = "PUT_WALL_SCAN_ITEM"
	StateDoPut             State = "DO_PUT"
	StateNoPutWork         State = "NO_PUT_WORK"
	StateWallRemoveConfirm State = "REMOVE_WALL_ORDERS_CONFIRM"
	StatePalletScanItem    State = "PALLETIZER_SCAN_ITEM"
	StatePalletNewOrder    State = "PALLETIZER_NEW_ORDER"
	StatePalletPutItem     State = "PALLETIZER_PUT_ITEM"
	StatePalletRemove      State = "PALLETIZER_REMOVE"
	StatePalletDamaged     State = "PALLETIZER_DAMAGED"
	StateComplete          State = "READY"
)

// LookupKind classifies a raw token after server-side lookup
type LookupKind string

const (
	LookupItem    LookupKind = "item"
	LookupGTIN    LookupKind = "gtin"
	LookupOrder   LookupKind = "order"
	LookupLicense LookupKind = "license"
	LookupUnknown LookupKind = "unknown"
)

// LookupResult resolves a raw token in precedence order: item id, then
// GTIN, then order id, then license plate.
type LookupResult struct {
	Kind    LookupKind
	Item    *domain.Item
	OrderID string
}

// RunParams asks the backend to resolve an instruction run for a device
type RunParams struct {
	DeviceID        string
	Containers      []*domain.Container
	Direction       domain.Direction
	Anchor          *domain.Location
	LastKnownAnchor *domain.Location
	OrderTypes      []domain.OrderType
}

// Backend is the slice of the application layer a session needs. The
// machine never touches repositories directly.
type Backend interface {
	Authenticate(ctx context.Context, badge string) (*domain.Worker, error)
	Facility(ctx context.Context) (*domain.Facility, error)
	ResolveRun(ctx context.Context, params RunParams) (*resolver.ResolveResult, error)
	ResolvePuts(ctx context.Context, deviceID, sku string) (*resolver.ResolveResult, error)
	CompletePick(ctx context.Context, deviceID, instructionID string, version int64, qty int) error
	ShortPick(ctx context.Context, deviceID, instructionID string, version int64, qty int) ([]string, error)
	Instruction(ctx context.Context, instructionID string) (*domain.WorkInstruction, error)
	Lookup(ctx context.Context, token string) (*LookupResult, error)
	AssignOrderToWallSlot(ctx context.Context, orderID, slotAlias string) error
	RemoveWallOrders(ctx context.Context, slotAlias string) (int, error)
	RemoveInventory(ctx context.Context, sku, locationAlias string) error
	PalletizerPut(ctx context.Context, deviceID, sku, locationAlias string) (*domain.WorkInstruction, error)
	ClosePallet(ctx context.Context, deviceID, locationAlias string) error
	ReleaseDevice(ctx context.Context, deviceID string) error
}

// Machine is the interaction state of one device. It is not safe for
// concurrent use; Session serializes access.
type Machine struct {
	deviceID string
	mode     ProcessMode
	backend  Backend
	logger   *logging.Logger

	state  State
	worker *domain.Worker

	containers       map[int]*domain.Container
	pendingContainer string

	pendingDirection   domain.Direction
	committedDirection domain.Direction
	lastKnownAnchor    *domain.Location
	lastPathID         string

	run      []*domain.WorkInstruction
	runIndex int

	doneCount  int
	shortCount int

	// line_scan mode requires a verifying item scan before each press
	lineVerified bool
	pendingShort int

	// palletizer: open pallet location per item prefix, and the location
	// of the most recent put so a license scan knows which pallet it closes
	pallets       map[string]string
	pendingPallet string
	lastPallet    string

	// inventory removal staging
	pendingSKU      string
	pendingLocation string

	// put wall: order awaiting a slot assignment
	pendingWallOrder string

	out []DisplayCommand
}

// NewMachine builds a machine in IDLE for one device
func NewMachine(deviceID string, mode ProcessMode, backend Backend, logger *logging.Logger) *Machine {
	return &Machine{
		deviceID:   deviceID,
		mode:       mode,
		backend:    backend,
		logger:     logger.WithDeviceID(deviceID).WithComponent("che"),
		state:      StateIdle,
		containers: make(map[int]*domain.Container),
		pallets:    make(map[string]string),
	}
}

// State reports the current interaction state
func (m *Machine) State() State { return m.state }

// Mode reports the session's process mode
func (m *Machine) Mode() ProcessMode { return m.mode }

// Worker reports the authenticated worker, nil when logged out
func (m *Machine) Worker() *domain.Worker { return m.worker }

// Handle applies one event and returns the display commands it produced.
// Unrecognized events re-render the current prompt without changing state.
func (m *Machine) Handle(ctx context.Context, ev Event) []DisplayCommand {
	m.out = m.out[:0]

	// Inspection runs inside the actor without touching the display
	if ins, ok := ev.(inspectEvent); ok {
		ins.fn(m)
		return nil
	}

	// Logout is honored from every state
	if cmd, ok := ev.(CommandScan); ok && cmd.Command == CommandLogout {
		m.logout(ctx)
		return m.flush()
	}

	handler := m.table()[m.state]
	if handler == nil {
		m.renderCurrent()
		return m.flush()
	}
	handler(ctx, ev)
	return m.flush()
}

type stateHandler func(ctx context.Context, ev Event)

// table selects the transition table for the session's process mode. The
// common setup and pick states are shared; modes override or extend them.
func (m *Machine) table() map[State]stateHandler {
	t := map[State]stateHandler{
		StateIdle:              m.handleIdle,
		StateContainerSelect:   m.handleContainerSelect,
		StateContainerPosition: m.handleContainerPosition,
		StateSetupSummary:      m.handleSetupSummary,
		StateLocationReview:    m.handleLocationReview,
		StateDoPick:            m.handleDoPick,
		StateShortPick:         m.handleShortPick,
		StateShortConfirm:      m.handleShortConfirm,
		StateRemoveContainer:   m.handleRemoveContainer,
		StateScanGTIN:          m.handleScanGTIN,
		StateInfoPrompt:        m.handleInfoPrompt,
		StateInfoDisplay:       m.handleInfoDisplay,
		StateRemoveInvConfirm:  m.handleRemoveInvConfirm,
		StateComplete:          m.handleComplete,
	}

	switch m.mode {
	case ModePutWall:
		t[StateWallScanOrder] = m.handleWallScanOrder
		t[StateWallScanSlot] = m.handleWallScanSlot
		t[StateWallScanItem] = m.handleWallScanItem
		t[StateDoPut] = m.handleDoPut
		t[StateNoPutWork] = m.handleNoPutWork
		t[StateWallRemoveConfirm] = m.handleWallRemoveConfirm
	case ModeSkuWall:
		// A sku wall keys slots by item, never by order, so the
		// order-to-slot assignment states do not exist in this mode
		t[StateWallScanItem] = m.handleWallScanItem
		t[StateDoPut] = m.handleDoPut
		t[StateNoPutWork] = m.handleNoPutWork
		t[StateWallRemoveConfirm] = m.handleWallRemoveConfirm
	case ModePalletizer:
		t[StatePalletScanItem] = m.handlePalletScanItem
		t[StatePalletNewOrder] = m.handlePalletNewOrder
		t[StatePalletPutItem] = m.handlePalletPutItem
		t[StatePalletRemove] = m.handlePalletRemove
		t[StatePalletDamaged] = m.handlePalletDamaged
	}
	return t
}

func (m *Machine) flush() []DisplayCommand {
	cmds := make([]DisplayCommand, len(m.out))
	copy(cmds, m.out)
	return cmds
}

func (m *Machine) emitFrame(f Frame) {
	m.out = append(m.out, DisplayCommand{Position: 0, Frame: &f})
}

func (m *Machine) emitIndicator(position int, ind Indicator) {
	m.out = append(m.out, DisplayCommand{Position: position, Indicator: &ind})
}

func (m *Machine) emitClear(position int) {
	m.out = append(m.out, DisplayCommand{Position: position, Clear: true})
}

func (m *Machine) clearAllIndicators() {
	for pos := range m.containers {
		m.emitClear(pos)
	}
}

// Render produces the display commands for the current state without
// consuming an event. Used by display polling.
func (m *Machine) Render() []DisplayCommand {
	m.out = m.out[:0]
	m.renderCurrent()
	return m.flush()
}

// renderCurrent re-renders the prompt for the current state. Used when an
// event does not fit the state's grammar.
func (m *Machine) renderCurrent() {
	switch m.state {
	case StateIdle:
		m.emitFrame(frameIdle())
	case StateContainerSelect:
		m.emitFrame(frameContainerSelect())
	case StateContainerPosition:
		m.emitFrame(frameContainerPosition(m.pendingContainer))
	case StateSetupSummary:
		m.emitFrame(frameSummary(m.Summary()))
	case StateLocationReview:
		m.emitFrame(frameDirectionReview(m.pendingDirection))
	case StateDoPick:
		m.renderActive()
	case StateShortPick:
		if wi := m.current(); wi != nil {
			m.emitFrame(frameShortPick(wi))
		}
	case StateShortConfirm:
		if wi := m.current(); wi != nil {
			m.emitFrame(frameShortConfirm(wi, m.pendingShort))
		}
	case StateRemoveContainer:
		m.emitFrame(frameRemoveContainer())
	case StateInfoPrompt:
		m.emitFrame(frameInfoPrompt())
	case StateComplete:
		m.emitFrame(frameAllComplete())
	case StateWallScanOrder:
		m.emitFrame(NewFrame("SCAN ORDER", "", "", ""))
	case StateWallScanSlot:
		m.emitFrame(NewFrame("SCAN WALL SLOT", "FOR "+m.pendingWallOrder, "", ""))
	case StateWallScanItem:
		m.emitFrame(NewFrame("SCAN ITEM", "", "", ""))
	case StateDoPut:
		m.renderActive()
	case StateNoPutWork:
		m.emitFrame(frameNoWork(""))
	case StatePalletScanItem:
		m.emitFrame(NewFrame("SCAN ITEM", "", "", ""))
	case StatePalletNewOrder:
		m.emitFrame(framePalletNotFound())
	case StateScanGTIN:
		m.emitFrame(NewFrame("SCAN ITEM GTIN", "", "", ""))
	default:
		m.emitFrame(frameIdle())
	}
}

// logout releases device claims and resets all interaction state
func (m *Machine) logout(ctx context.Context) {
	if err := m.backend.ReleaseDevice(ctx, m.deviceID); err != nil {
		m.logger.WithError(err).Warn("failed to release device claims on logout")
	}
	m.clearAllIndicators()
	m.worker = nil
	m.containers = make(map[int]*domain.Container)
	m.pendingContainer = ""
	m.pendingDirection = ""
	m.committedDirection = ""
	m.lastKnownAnchor = nil
	m.lastPathID = ""
	m.run = nil
	m.runIndex = 0
	m.doneCount = 0
	m.shortCount = 0
	m.lineVerified = false
	m.pallets = make(map[string]string)
	m.lastPallet = ""
	m.state = StateIdle
	m.emitFrame(frameIdle())
}

// handleIdle accepts only a badge scan
func (m *Machine) handleIdle(ctx context.Context, ev Event) {
	scan, ok := ev.(BadgeScan)
	if !ok {
		m.emitFrame(frameIdle())
		return
	}
	worker, err := m.backend.Authenticate(ctx, scan.Badge)
	if err != nil {
		m.logger.WithFields(map[string]any{"badge": scan.Badge}).Warn("badge rejected")
		m.emitFrame(frameUnknownBadge())
		return
	}
	m.worker = worker
	m.logger.Event(ctx, "worker_login", map[string]any{"workerId": worker.WorkerID})
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

// handleContainerSelect runs cart setup: alternating container and
// position scans, or a direction command to review and start the run.
func (m *Machine) handleContainerSelect(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case ContainerScan:
		m.pendingContainer = e.ContainerID
		m.state = StateContainerPosition
		m.emitFrame(frameContainerPosition(e.ContainerID))
	case RawScan:
		// An unprefixed token during setup is treated as a container id
		m.pendingContainer = e.Token
		m.state = StateContainerPosition
		m.emitFrame(frameContainerPosition(e.Token))
	case CommandScan:
		switch e.Command {
		case CommandSetup:
			m.state = StateSetupSummary
			m.emitFrame(frameSummary(m.Summary()))
		case CommandStart:
			m.proposeDirection(domain.DirectionForward)
		case CommandReverse:
			m.proposeDirection(domain.DirectionReverse)
		case CommandRemove:
			m.state = StateRemoveContainer
			m.emitFrame(frameRemoveContainer())
		case CommandInfo:
			m.state = StateInfoPrompt
			m.emitFrame(frameInfoPrompt())
		case CommandInventory:
			m.state = StateScanGTIN
			m.emitFrame(NewFrame("SCAN ITEM GTIN", "", "", ""))
		default:
			m.emitFrame(frameContainerSelect())
		}
	default:
		m.emitFrame(frameContainerSelect())
	}
}

// handleContainerPosition binds the pending container to a cart position
func (m *Machine) handleContainerPosition(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case PositionScan:
		workerID := ""
		if m.worker != nil {
			workerID = m.worker.WorkerID
		}
		c := domain.NewContainer(m.pendingContainer, e.Position, m.deviceID, workerID)
		c.BindOrder(m.pendingContainer)
		m.containers[e.Position] = c
		m.pendingContainer = ""
		m.state = StateContainerSelect
		m.emitIndicator(e.Position, Indicator{DisplayValue: e.Position, BlinkFrequency: BlinkNone, DutyCycle: DutySolid})
		m.emitFrame(frameContainerSelect())
	case CommandScan:
		if e.Command == CommandCancel {
			m.pendingContainer = ""
			m.state = StateContainerSelect
			m.emitFrame(frameContainerSelect())
			return
		}
		m.emitFrame(frameContainerPosition(m.pendingContainer))
	default:
		m.emitFrame(frameContainerPosition(m.pendingContainer))
	}
}

// handleSetupSummary shows live counts; a direction command starts the run
func (m *Machine) handleSetupSummary(ctx context.Context, ev Event) {
	cmd, ok := ev.(CommandScan)
	if !ok {
		m.emitFrame(frameSummary(m.Summary()))
		return
	}
	switch cmd.Command {
	case CommandStart:
		m.proposeDirection(domain.DirectionForward)
	case CommandReverse:
		m.proposeDirection(domain.DirectionReverse)
	case CommandSetup, CommandCancel:
		m.state = StateContainerSelect
		m.emitFrame(frameContainerSelect())
	default:
		m.emitFrame(frameSummary(m.Summary()))
	}
}

// handleComplete is the post-run state: setup again or log out
func (m *Machine) handleComplete(ctx context.Context, ev Event) {
	cmd, ok := ev.(CommandScan)
	if !ok {
		m.emitFrame(frameAllComplete())
		return
	}
	switch cmd.Command {
	case CommandSetup:
		m.run = nil
		m.runIndex = 0
		m.state = StateContainerSelect
		m.emitFrame(frameContainerSelect())
	case CommandStart:
		m.proposeDirection(domain.DirectionForward)
	case CommandReverse:
		m.proposeDirection(domain.DirectionReverse)
	default:
		m.emitFrame(frameAllComplete())
	}
}

// handleRemoveContainer removes one container by position scan
func (m *Machine) handleRemoveContainer(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case PositionScan:
		if _, ok := m.containers[e.Position]; ok {
			delete(m.containers, e.Position)
			m.emitClear(e.Position)
		}
		m.state = StateContainerSelect
		m.emitFrame(frameContainerSelect())
	case CommandScan:
		if e.Command == CommandCancel {
			m.state = StateContainerSelect
			m.emitFrame(frameContainerSelect())
			return
		}
		m.emitFrame(frameRemoveContainer())
	default:
		m.emitFrame(frameRemoveContainer())
	}
}

// current returns the active work instruction, nil when the run is done
func (m *Machine) current() *domain.WorkInstruction {
	if m.runIndex < 0 || m.runIndex >= len(m.run) {
		return nil
	}
	return m.run[m.runIndex]
}

// renderActive renders the frame and indicator for the active instruction,
// or the completion summary when none remain.
func (m *Machine) renderActive() {
	wi := m.current()
	if wi == nil {
		m.clearAllIndicators()
		switch m.mode {
		case ModePutWall, ModeSkuWall:
			m.state = StateWallScanItem
			m.emitFrame(NewFrame("SCAN ITEM", "", "", ""))
		case ModePalletizer:
			m.state = StatePalletScanItem
			m.emitFrame(NewFrame("SCAN ITEM", "", "", ""))
		default:
			m.state = StateComplete
			m.emitFrame(frameAllComplete())
		}
		return
	}
	if m.state == StateDoPut || m.state == StatePalletPutItem {
		m.emitFrame(framePut(wi))
	} else {
		m.emitFrame(framePick(wi))
	}
	if wi.CartPosition > 0 {
		m.emitIndicator(wi.CartPosition, pickIndicator(wi))
	}
}

// advance steps past the active instruction and re-renders
func (m *Machine) advance() {
	if wi := m.current(); wi != nil && wi.CartPosition > 0 {
		m.emitClear(wi.CartPosition)
	}
	m.runIndex++
	m.lineVerified = false
	m.renderActive()
}

// workState is the active work state for the session's mode
func (m *Machine) workState() State {
	switch m.mode {
	case ModePutWall, ModeSkuWall:
		return StateDoPut
	case ModePalletizer:
		return StatePalletPutItem
	}
	return StateDoPick
}

// resumeWork returns to the active work state and re-renders it
func (m *Machine) resumeWork() {
	m.state = m.workState()
	m.renderActive()
}

// instructionByID finds an instruction in the current run
func (m *Machine) instructionByID(id string) *domain.WorkInstruction {
	for _, wi := range m.run {
		if wi.InstructionID == id {
			return wi
		}
	}
	return nil
}

// failBackend logs a backend error and shows a retryable failure screen
// without losing interaction state.
func (m *Machine) failBackend(err error, op string) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		m.logger.WithError(err).Warn("backend call timed out: " + op)
	} else {
		m.logger.WithError(err).Error("backend call failed: " + op)
	}
	m.emitFrame(frameFailure())
}
