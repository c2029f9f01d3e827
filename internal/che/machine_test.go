package che

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/fulfillment-engine/internal/domain"
	"github.com/wms-platform/fulfillment-engine/internal/resolver"
	apperrors "github.com/wms-platform/fulfillment-engine/pkg/errors"
	"github.com/wms-platform/fulfillment-engine/pkg/logging"
)

// fakeBackend is a configurable in-memory Backend for machine tests
type fakeBackend struct {
	workers  map[string]*domain.Worker
	facility *domain.Facility

	resolveFn     func(params RunParams) (*resolver.ResolveResult, error)
	resolveCalls  []RunParams
	resolvePutsFn func(sku string) (*resolver.ResolveResult, error)

	completeErr map[string]error
	completed   []string
	cascade     map[string][]string
	shorted     []string

	lookup        map[string]*LookupResult
	palletPuts    []string
	closedPallets []string

	releaseCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		workers: map[string]*domain.Worker{
			"100": domain.NewWorker("W100", "100", "Pat"),
		},
		facility: &domain.Facility{
			FacilityID: "DC1",
			Locations: []domain.Location{
				{LocationID: "L1", Alias: "A-01-01", Aisle: "A", Bay: "01", PathID: "PATH-1", PathDistanceCm: 100, TapeID: 11},
				{LocationID: "L2", Alias: "A-01-02", Aisle: "A", Bay: "01", PathID: "PATH-1", PathDistanceCm: 300, TapeID: 12},
				{LocationID: "L3", Alias: "B-01-01", Aisle: "B", Bay: "01", PathID: "PATH-2", PathDistanceCm: 50, TapeID: 21},
			},
		},
		completeErr: make(map[string]error),
		cascade:     make(map[string][]string),
		lookup:      make(map[string]*LookupResult),
	}
}

func (f *fakeBackend) Authenticate(ctx context.Context, badge string) (*domain.Worker, error) {
	if w, ok := f.workers[badge]; ok {
		return w, nil
	}
	return nil, apperrors.ErrUnknownBadge(badge)
}

func (f *fakeBackend) Facility(ctx context.Context) (*domain.Facility, error) {
	return f.facility, nil
}

func (f *fakeBackend) ResolveRun(ctx context.Context, params RunParams) (*resolver.ResolveResult, error) {
	f.resolveCalls = append(f.resolveCalls, params)
	if f.resolveFn != nil {
		return f.resolveFn(params)
	}
	return &resolver.ResolveResult{}, nil
}

func (f *fakeBackend) ResolvePuts(ctx context.Context, deviceID, sku string) (*resolver.ResolveResult, error) {
	if f.resolvePutsFn != nil {
		return f.resolvePutsFn(sku)
	}
	return &resolver.ResolveResult{}, nil
}

func (f *fakeBackend) CompletePick(ctx context.Context, deviceID, instructionID string, version int64, qty int) error {
	if err, ok := f.completeErr[instructionID]; ok {
		return err
	}
	f.completed = append(f.completed, instructionID)
	return nil
}

func (f *fakeBackend) ShortPick(ctx context.Context, deviceID, instructionID string, version int64, qty int) ([]string, error) {
	f.shorted = append(f.shorted, instructionID)
	return f.cascade[instructionID], nil
}

func (f *fakeBackend) Instruction(ctx context.Context, instructionID string) (*domain.WorkInstruction, error) {
	return nil, nil
}

func (f *fakeBackend) Lookup(ctx context.Context, token string) (*LookupResult, error) {
	if r, ok := f.lookup[token]; ok {
		return r, nil
	}
	return &LookupResult{Kind: LookupUnknown}, nil
}

func (f *fakeBackend) AssignOrderToWallSlot(ctx context.Context, orderID, slotAlias string) error {
	return nil
}

func (f *fakeBackend) RemoveWallOrders(ctx context.Context, slotAlias string) (int, error) {
	return 0, nil
}

func (f *fakeBackend) RemoveInventory(ctx context.Context, sku, locationAlias string) error {
	return nil
}

func (f *fakeBackend) PalletizerPut(ctx context.Context, deviceID, sku, locationAlias string) (*domain.WorkInstruction, error) {
	f.palletPuts = append(f.palletPuts, sku+"@"+locationAlias)
	detail := &domain.OrderDetail{
		DetailKey: domain.DetailKeyFor("PALLET-"+sku, sku, "each"),
		OrderID:   "PALLET-" + sku,
		SKU:       sku,
		UOM:       "each",
		PlanQty:   1,
		Status:    domain.OrderStatusInProgress,
		Active:    true,
	}
	loc := &domain.Location{Alias: locationAlias}
	return domain.NewWorkInstruction(domain.WIKindPut, detail, loc, 1), nil
}

func (f *fakeBackend) ClosePallet(ctx context.Context, deviceID, locationAlias string) error {
	f.closedPallets = append(f.closedPallets, locationAlias)
	return nil
}

func (f *fakeBackend) ReleaseDevice(ctx context.Context, deviceID string) error {
	f.releaseCalls++
	return nil
}

func testLogger() *logging.Logger {
	return logging.New(logging.DefaultConfig("che-test"))
}

func pickWI(orderID, sku string, qty, pos int, alias string, distanceCm int) *domain.WorkInstruction {
	detail := &domain.OrderDetail{
		DetailKey: domain.DetailKeyFor(orderID, sku, "each"),
		OrderID:   orderID,
		SKU:       sku,
		UOM:       "each",
		PlanQty:   qty,
		Status:    domain.OrderStatusReleased,
		Active:    true,
	}
	loc := &domain.Location{Alias: alias, Aisle: "A", Bay: "01", PathID: "PATH-1", PathDistanceCm: distanceCm}
	wi := domain.NewWorkInstruction(domain.WIKindPick, detail, loc, qty)
	wi.CartPosition = pos
	return wi
}

// firstFrame returns the first frame among the emitted commands
func firstFrame(t *testing.T, cmds []DisplayCommand) Frame {
	t.Helper()
	for _, c := range cmds {
		if c.Frame != nil {
			return *c.Frame
		}
	}
	t.Fatal("no frame emitted")
	return Frame{}
}

// loginAndBind authenticates and binds ORD-100 to position 1
func loginAndBind(t *testing.T, m *Machine) {
	t.Helper()
	ctx := context.Background()
	m.Handle(ctx, BadgeScan{Badge: "100"})
	require.Equal(t, StateContainerSelect, m.State())
	m.Handle(ctx, ContainerScan{ContainerID: "ORD-100"})
	require.Equal(t, StateContainerPosition, m.State())
	m.Handle(ctx, PositionScan{Position: 1})
	require.Equal(t, StateContainerSelect, m.State())
}

func TestMachine_UnknownBadge(t *testing.T) {
	m := NewMachine("CHE-1", ModePick, newFakeBackend(), testLogger())

	cmds := m.Handle(context.Background(), BadgeScan{Badge: "999"})

	assert.Equal(t, StateIdle, m.State())
	assert.Nil(t, m.Worker())
	assert.Equal(t, "UNKNOWN BADGE", firstFrame(t, cmds).Lines[0])
}

func TestMachine_NonBadgeScanWhileIdle(t *testing.T) {
	m := NewMachine("CHE-1", ModePick, newFakeBackend(), testLogger())

	cmds := m.Handle(context.Background(), RawScan{Token: "Item7"})

	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, "SCAN BADGE", firstFrame(t, cmds).Lines[0])
}

func TestMachine_PickRunHappyPath(t *testing.T) {
	backend := newFakeBackend()
	backend.resolveFn = func(params RunParams) (*resolver.ResolveResult, error) {
		return &resolver.ResolveResult{
			Instructions: []*domain.WorkInstruction{
				pickWI("ORD-100", "SKU-001", 2, 1, "A-01-01", 100),
				pickWI("ORD-100", "SKU-002", 1, 1, "A-01-02", 300),
			},
			AnchorUsed: &domain.Location{Alias: "A-01-01", PathID: "PATH-1", PathDistanceCm: 100},
		}, nil
	}
	m := NewMachine("CHE-1", ModePick, backend, testLogger())
	ctx := context.Background()

	loginAndBind(t, m)

	// Two-phase commit: first press proposes, second commits
	m.Handle(ctx, CommandScan{Command: CommandStart})
	require.Equal(t, StateLocationReview, m.State())
	cmds := m.Handle(ctx, CommandScan{Command: CommandStart})
	require.Equal(t, StateDoPick, m.State())
	assert.Equal(t, "A-01-01", firstFrame(t, cmds).Lines[0])

	m.Handle(ctx, ButtonPress{Position: 1, Quantity: 2})
	require.Equal(t, StateDoPick, m.State())

	m.Handle(ctx, ButtonPress{Position: 1, Quantity: 1})
	assert.Equal(t, StateComplete, m.State())
	assert.Equal(t, []string{"SKU-001-each-ORD-100", "SKU-002-each-ORD-100"}, backend.completed)

	summary := m.Summary()
	assert.Equal(t, 2, summary.Done)
	assert.Equal(t, 0, summary.Short)
	assert.Equal(t, 0, summary.Remaining)
}

func TestMachine_DirectionSecondPressWins(t *testing.T) {
	tests := []struct {
		name   string
		first  Command
		second Command
		want   domain.Direction
	}{
		{"start then start", CommandStart, CommandStart, domain.DirectionForward},
		{"start then reverse", CommandStart, CommandReverse, domain.DirectionReverse},
		{"reverse then start", CommandReverse, CommandStart, domain.DirectionForward},
		{"reverse then reverse", CommandReverse, CommandReverse, domain.DirectionReverse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend()
			m := NewMachine("CHE-1", ModePick, backend, testLogger())
			ctx := context.Background()
			loginAndBind(t, m)

			m.Handle(ctx, CommandScan{Command: tt.first})
			require.Equal(t, StateLocationReview, m.State())
			m.Handle(ctx, CommandScan{Command: tt.second})

			require.Len(t, backend.resolveCalls, 1)
			assert.Equal(t, tt.want, backend.resolveCalls[0].Direction)
			assert.Nil(t, backend.resolveCalls[0].Anchor)
		})
	}
}

func TestMachine_LocationScanCommitsPendingDirection(t *testing.T) {
	backend := newFakeBackend()
	m := NewMachine("CHE-1", ModePick, backend, testLogger())
	ctx := context.Background()
	loginAndBind(t, m)

	m.Handle(ctx, CommandScan{Command: CommandReverse})
	m.Handle(ctx, LocationScan{Alias: "A-01-02"})

	require.Len(t, backend.resolveCalls, 1)
	assert.Equal(t, domain.DirectionReverse, backend.resolveCalls[0].Direction)
	require.NotNil(t, backend.resolveCalls[0].Anchor)
	assert.Equal(t, "A-01-02", backend.resolveCalls[0].Anchor.Alias)
}

func TestMachine_TapeScanCommitsWithOffset(t *testing.T) {
	backend := newFakeBackend()
	m := NewMachine("CHE-1", ModePick, backend, testLogger())
	ctx := context.Background()
	loginAndBind(t, m)

	m.Handle(ctx, CommandScan{Command: CommandStart})
	m.Handle(ctx, TapeScan{Scan: domain.TapeScan{TapeID: 12, OffsetCm: 40}})

	require.Len(t, backend.resolveCalls, 1)
	anchor := backend.resolveCalls[0].Anchor
	require.NotNil(t, anchor)
	assert.Equal(t, "A-01-02", anchor.Alias)
	assert.Equal(t, 340, anchor.PathDistanceCm)
}

func TestMachine_EmptyRunShowsNoWork(t *testing.T) {
	backend := newFakeBackend()
	backend.resolveFn = func(params RunParams) (*resolver.ResolveResult, error) {
		return &resolver.ResolveResult{ShortOrders: []string{"ORD-100"}}, nil
	}
	m := NewMachine("CHE-1", ModePick, backend, testLogger())
	ctx := context.Background()
	loginAndBind(t, m)

	m.Handle(ctx, CommandScan{Command: CommandStart})
	cmds := m.Handle(ctx, CommandScan{Command: CommandStart})

	assert.Equal(t, StateComplete, m.State())
	assert.Equal(t, "NO WORK FOR ORD-100", firstFrame(t, cmds).Lines[0])
}

func TestMachine_WrongPositionPressIgnored(t *testing.T) {
	backend := newFakeBackend()
	backend.resolveFn = func(params RunParams) (*resolver.ResolveResult, error) {
		return &resolver.ResolveResult{
			Instructions: []*domain.WorkInstruction{pickWI("ORD-100", "SKU-001", 2, 1, "A-01-01", 100)},
		}, nil
	}
	m := NewMachine("CHE-1", ModePick, backend, testLogger())
	ctx := context.Background()
	loginAndBind(t, m)
	m.Handle(ctx, CommandScan{Command: CommandStart})
	m.Handle(ctx, CommandScan{Command: CommandStart})

	m.Handle(ctx, ButtonPress{Position: 3, Quantity: 2})

	assert.Equal(t, StateDoPick, m.State())
	assert.Empty(t, backend.completed)
}

func TestMachine_PartialPressOpensShortConfirm(t *testing.T) {
	backend := newFakeBackend()
	backend.resolveFn = func(params RunParams) (*resolver.ResolveResult, error) {
		return &resolver.ResolveResult{
			Instructions: []*domain.WorkInstruction{pickWI("ORD-100", "SKU-001", 5, 1, "A-01-01", 100)},
		}, nil
	}
	m := NewMachine("CHE-1", ModePick, backend, testLogger())
	ctx := context.Background()
	loginAndBind(t, m)
	m.Handle(ctx, CommandScan{Command: CommandStart})
	m.Handle(ctx, CommandScan{Command: CommandStart})

	cmds := m.Handle(ctx, ButtonPress{Position: 1, Quantity: 2})
	assert.Equal(t, StateShortConfirm, m.State())
	assert.Equal(t, "CONFIRM SHORT", firstFrame(t, cmds).Lines[0])

	// NO abandons the short and returns to the pick
	m.Handle(ctx, CommandScan{Command: CommandNo})
	assert.Equal(t, StateDoPick, m.State())
	assert.Empty(t, backend.shorted)
}

func TestMachine_ShortCascadeDropsLaterInstructions(t *testing.T) {
	backend := newFakeBackend()
	backend.resolveFn = func(params RunParams) (*resolver.ResolveResult, error) {
		return &resolver.ResolveResult{
			Instructions: []*domain.WorkInstruction{
				pickWI("ORD-100", "SKU-001", 5, 1, "A-01-01", 100),
				pickWI("ORD-100", "SKU-002", 1, 1, "A-01-02", 300),
				pickWI("ORD-200", "SKU-001", 3, 2, "A-01-01", 100),
			},
		}, nil
	}
	backend.cascade["SKU-001-each-ORD-100"] = []string{"SKU-001-each-ORD-200"}
	m := NewMachine("CHE-1", ModePick, backend, testLogger())
	ctx := context.Background()

	m.Handle(ctx, BadgeScan{Badge: "100"})
	m.Handle(ctx, ContainerScan{ContainerID: "ORD-100"})
	m.Handle(ctx, PositionScan{Position: 1})
	m.Handle(ctx, ContainerScan{ContainerID: "ORD-200"})
	m.Handle(ctx, PositionScan{Position: 2})
	m.Handle(ctx, CommandScan{Command: CommandStart})
	m.Handle(ctx, CommandScan{Command: CommandStart})

	m.Handle(ctx, ButtonPress{Position: 1, Quantity: 0})
	require.Equal(t, StateShortConfirm, m.State())
	m.Handle(ctx, CommandScan{Command: CommandYes})

	// The cascaded same-item instruction is gone; only SKU-002 remains
	assert.Equal(t, StateDoPick, m.State())
	assert.Equal(t, []string{"SKU-001-each-ORD-100"}, backend.shorted)
	require.NotNil(t, m.current())
	assert.Equal(t, "SKU-002", m.current().SKU)

	summary := m.Summary()
	assert.Equal(t, 2, summary.Short)
	assert.Equal(t, 1, summary.Remaining)
}

func TestMachine_ClaimConflictSkipsInstruction(t *testing.T) {
	backend := newFakeBackend()
	backend.resolveFn = func(params RunParams) (*resolver.ResolveResult, error) {
		return &resolver.ResolveResult{
			Instructions: []*domain.WorkInstruction{
				pickWI("ORD-100", "SKU-001", 2, 1, "A-01-01", 100),
				pickWI("ORD-100", "SKU-002", 1, 1, "A-01-02", 300),
			},
		}, nil
	}
	backend.completeErr["SKU-001-each-ORD-100"] = apperrors.ErrConcurrentClaimConflict("SKU-001-each-ORD-100")
	m := NewMachine("CHE-1", ModePick, backend, testLogger())
	ctx := context.Background()
	loginAndBind(t, m)
	m.Handle(ctx, CommandScan{Command: CommandStart})
	m.Handle(ctx, CommandScan{Command: CommandStart})

	m.Handle(ctx, ButtonPress{Position: 1, Quantity: 2})

	// Lost the race: skipped without counting, next instruction active
	require.NotNil(t, m.current())
	assert.Equal(t, "SKU-002", m.current().SKU)
	assert.Equal(t, 0, m.Summary().Done)
}

func TestMachine_PurgedInstructionSkips(t *testing.T) {
	backend := newFakeBackend()
	backend.resolveFn = func(params RunParams) (*resolver.ResolveResult, error) {
		return &resolver.ResolveResult{
			Instructions: []*domain.WorkInstruction{pickWI("ORD-100", "SKU-001", 2, 1, "A-01-01", 100)},
		}, nil
	}
	backend.completeErr["SKU-001-each-ORD-100"] = apperrors.ErrStaleReference("work instruction", "SKU-001-each-ORD-100")
	m := NewMachine("CHE-1", ModePick, backend, testLogger())
	ctx := context.Background()
	loginAndBind(t, m)
	m.Handle(ctx, CommandScan{Command: CommandStart})
	m.Handle(ctx, CommandScan{Command: CommandStart})

	m.Handle(ctx, ButtonPress{Position: 1, Quantity: 2})

	assert.Equal(t, StateComplete, m.State())
	assert.Equal(t, 0, m.Summary().Done)
}

func TestMachine_HousekeepingAcknowledgedByPress(t *testing.T) {
	backend := newFakeBackend()
	backend.resolveFn = func(params RunParams) (*resolver.ResolveResult, error) {
		return &resolver.ResolveResult{
			Instructions: []*domain.WorkInstruction{
				domain.NewHousekeepingInstruction(domain.WIKindReversal, "PATH-1", 300),
				pickWI("ORD-100", "SKU-001", 2, 1, "A-01-01", 100),
			},
		}, nil
	}
	m := NewMachine("CHE-1", ModePick, backend, testLogger())
	ctx := context.Background()
	loginAndBind(t, m)
	m.Handle(ctx, CommandScan{Command: CommandStart})
	cmds := m.Handle(ctx, CommandScan{Command: CommandStart})
	assert.Equal(t, "REVERSE DIRECTION", firstFrame(t, cmds).Lines[0])

	// Any position press acknowledges the prompt; nothing is completed
	m.Handle(ctx, ButtonPress{Position: 7, Quantity: 0})
	require.NotNil(t, m.current())
	assert.Equal(t, "SKU-001", m.current().SKU)
	assert.Empty(t, backend.completed)
	assert.Equal(t, 0, m.Summary().Done)
}

func TestMachine_HousekeepingNeverCounted(t *testing.T) {
	backend := newFakeBackend()
	backend.resolveFn = func(params RunParams) (*resolver.ResolveResult, error) {
		return &resolver.ResolveResult{
			Instructions: []*domain.WorkInstruction{
				domain.NewHousekeepingInstruction(domain.WIKindBayChange, "PATH-1", 300),
				pickWI("ORD-100", "SKU-001", 2, 1, "A-01-01", 100),
			},
		}, nil
	}
	m := NewMachine("CHE-1", ModePick, backend, testLogger())
	ctx := context.Background()
	loginAndBind(t, m)
	m.Handle(ctx, CommandScan{Command: CommandStart})
	m.Handle(ctx, CommandScan{Command: CommandStart})

	assert.Equal(t, 1, m.Summary().Remaining)
}

func TestMachine_LogoutResetsEverything(t *testing.T) {
	backend := newFakeBackend()
	backend.resolveFn = func(params RunParams) (*resolver.ResolveResult, error) {
		return &resolver.ResolveResult{
			Instructions: []*domain.WorkInstruction{pickWI("ORD-100", "SKU-001", 2, 1, "A-01-01", 100)},
		}, nil
	}
	m := NewMachine("CHE-1", ModePick, backend, testLogger())
	ctx := context.Background()
	loginAndBind(t, m)
	m.Handle(ctx, CommandScan{Command: CommandStart})
	m.Handle(ctx, CommandScan{Command: CommandStart})
	require.Equal(t, StateDoPick, m.State())

	cmds := m.Handle(ctx, CommandScan{Command: CommandLogout})

	assert.Equal(t, StateIdle, m.State())
	assert.Nil(t, m.Worker())
	assert.Equal(t, 1, backend.releaseCalls)
	assert.Equal(t, "SCAN BADGE", firstFrame(t, cmds).Lines[0])
	assert.Equal(t, 0, m.Summary().Orders)
}

func TestMachine_LineScanRequiresItemVerification(t *testing.T) {
	backend := newFakeBackend()
	backend.resolveFn = func(params RunParams) (*resolver.ResolveResult, error) {
		return &resolver.ResolveResult{
			Instructions: []*domain.WorkInstruction{pickWI("ORD-100", "SKU-001", 2, 1, "A-01-01", 100)},
		}, nil
	}
	m := NewMachine("CHE-1", ModeLineScan, backend, testLogger())
	ctx := context.Background()
	loginAndBind(t, m)
	m.Handle(ctx, CommandScan{Command: CommandStart})
	m.Handle(ctx, CommandScan{Command: CommandStart})

	// Press before scanning the item is rejected
	cmds := m.Handle(ctx, ButtonPress{Position: 1, Quantity: 2})
	assert.Equal(t, "SCAN ITEM FIRST", firstFrame(t, cmds).Lines[0])
	assert.Empty(t, backend.completed)

	// Wrong item does not verify
	cmds = m.Handle(ctx, RawScan{Token: "SKU-999"})
	assert.Equal(t, "WRONG ITEM", firstFrame(t, cmds).Lines[0])

	// Matching scan verifies, press completes
	m.Handle(ctx, RawScan{Token: "SKU-001"})
	m.Handle(ctx, ButtonPress{Position: 1, Quantity: 2})
	assert.Equal(t, []string{"SKU-001-each-ORD-100"}, backend.completed)
}

func TestMachine_PathChangeDropsDoneCount(t *testing.T) {
	backend := newFakeBackend()
	backend.facility.DropDoneCountOnPathChange = true
	path := "PATH-1"
	backend.resolveFn = func(params RunParams) (*resolver.ResolveResult, error) {
		return &resolver.ResolveResult{
			Instructions: []*domain.WorkInstruction{
				pickWI("ORD-100", "SKU-001", 2, 1, "A-01-01", 100),
				pickWI("ORD-100", "SKU-002", 1, 1, "A-01-02", 300),
			},
			AnchorUsed: &domain.Location{Alias: "A-01-01", PathID: path, PathDistanceCm: 100},
		}, nil
	}
	m := NewMachine("CHE-1", ModePick, backend, testLogger())
	ctx := context.Background()
	loginAndBind(t, m)
	m.Handle(ctx, CommandScan{Command: CommandStart})
	m.Handle(ctx, CommandScan{Command: CommandStart})
	m.Handle(ctx, ButtonPress{Position: 1, Quantity: 2})
	require.Equal(t, 1, m.Summary().Done)

	// Jump to a location on a different path
	path = "PATH-2"
	m.Handle(ctx, LocationScan{Alias: "B-01-01"})
	assert.Equal(t, 0, m.Summary().Done)
}

func TestMachine_PathSameKeepsDoneCount(t *testing.T) {
	backend := newFakeBackend()
	backend.facility.DropDoneCountOnPathChange = true
	backend.resolveFn = func(params RunParams) (*resolver.ResolveResult, error) {
		return &resolver.ResolveResult{
			Instructions: []*domain.WorkInstruction{
				pickWI("ORD-100", "SKU-001", 2, 1, "A-01-01", 100),
				pickWI("ORD-100", "SKU-002", 1, 1, "A-01-02", 300),
			},
			AnchorUsed: &domain.Location{Alias: "A-01-01", PathID: "PATH-1", PathDistanceCm: 100},
		}, nil
	}
	m := NewMachine("CHE-1", ModePick, backend, testLogger())
	ctx := context.Background()
	loginAndBind(t, m)
	m.Handle(ctx, CommandScan{Command: CommandStart})
	m.Handle(ctx, CommandScan{Command: CommandStart})
	m.Handle(ctx, ButtonPress{Position: 1, Quantity: 2})
	require.Equal(t, 1, m.Summary().Done)

	m.Handle(ctx, LocationScan{Alias: "A-01-02"})
	assert.Equal(t, 1, m.Summary().Done)
}

func TestMachine_RemoveContainer(t *testing.T) {
	backend := newFakeBackend()
	m := NewMachine("CHE-1", ModePick, backend, testLogger())
	ctx := context.Background()
	loginAndBind(t, m)
	require.Equal(t, 1, m.Summary().Orders)

	m.Handle(ctx, CommandScan{Command: CommandRemove})
	require.Equal(t, StateRemoveContainer, m.State())
	m.Handle(ctx, PositionScan{Position: 1})

	assert.Equal(t, StateContainerSelect, m.State())
	assert.Equal(t, 0, m.Summary().Orders)
}

func TestMachine_SetupSummaryCounts(t *testing.T) {
	backend := newFakeBackend()
	m := NewMachine("CHE-1", ModePick, backend, testLogger())
	ctx := context.Background()
	loginAndBind(t, m)
	m.Handle(ctx, ContainerScan{ContainerID: "ORD-200"})
	m.Handle(ctx, PositionScan{Position: 2})

	cmds := m.Handle(ctx, CommandScan{Command: CommandSetup})
	require.Equal(t, StateSetupSummary, m.State())
	assert.Equal(t, "ORDERS 2", firstFrame(t, cmds).Lines[0])
}

func putWI(orderID, sku string, qty int, slotAlias string) *domain.WorkInstruction {
	detail := &domain.OrderDetail{
		DetailKey:       domain.DetailKeyFor(orderID, sku, "each"),
		OrderID:         orderID,
		SKU:             sku,
		UOM:             "each",
		PlanQty:         qty,
		Status:          domain.OrderStatusReleased,
		Active:          true,
		DestinationSlot: slotAlias,
	}
	loc := &domain.Location{Alias: slotAlias}
	return domain.NewWorkInstruction(domain.WIKindPut, detail, loc, qty)
}

func TestMachine_ReplenishmentRunFiltersOrderType(t *testing.T) {
	backend := newFakeBackend()
	backend.resolveFn = func(params RunParams) (*resolver.ResolveResult, error) {
		return &resolver.ResolveResult{
			Instructions: []*domain.WorkInstruction{pickWI("REPL-100", "SKU-001", 2, 1, "A-01-01", 100)},
		}, nil
	}
	m := NewMachine("CHE-1", ModeReplenish, backend, testLogger())
	ctx := context.Background()
	loginAndBind(t, m)

	m.Handle(ctx, CommandScan{Command: CommandStart})
	m.Handle(ctx, CommandScan{Command: CommandStart})

	require.Len(t, backend.resolveCalls, 1)
	assert.Equal(t, []domain.OrderType{domain.OrderTypeReplenishment}, backend.resolveCalls[0].OrderTypes)
	require.Equal(t, StateDoPick, m.State())

	m.Handle(ctx, ButtonPress{Position: 1, Quantity: 2})
	assert.Equal(t, StateComplete, m.State())
	assert.Equal(t, []string{"SKU-001-each-REPL-100"}, backend.completed)
}

func TestMachine_PalletClosedByLicenseScan(t *testing.T) {
	backend := newFakeBackend()
	backend.lookup["LP-9"] = &LookupResult{Kind: LookupLicense, OrderID: "ORD-900"}
	m := NewMachine("CHE-1", ModePalletizer, backend, testLogger())
	ctx := context.Background()

	m.Handle(ctx, BadgeScan{Badge: "100"})
	require.Equal(t, StatePalletScanItem, m.State())

	// First item of a new prefix asks for a pallet location
	m.Handle(ctx, RawScan{Token: "1234567"})
	require.Equal(t, StatePalletNewOrder, m.State())
	m.Handle(ctx, LocationScan{Alias: "A-01-01"})
	require.Equal(t, StatePalletPutItem, m.State())
	m.Handle(ctx, ButtonPress{Position: 1, Quantity: 1})
	require.Equal(t, StatePalletScanItem, m.State())

	// Scanning the shipping license plate closes the pallet just built
	cmds := m.Handle(ctx, RawScan{Token: "LP-9"})
	assert.Equal(t, []string{"A-01-01"}, backend.closedPallets)
	assert.Equal(t, "PALLET CLOSED", firstFrame(t, cmds).Lines[0])

	// With no pallet left, another license scan has nothing to close
	cmds = m.Handle(ctx, RawScan{Token: "LP-9"})
	assert.Equal(t, "PALLET NOT FOUND", firstFrame(t, cmds).Lines[0])
	assert.Len(t, backend.closedPallets, 1)
}

func TestMachine_InfoExitReturnsToPutFlow(t *testing.T) {
	backend := newFakeBackend()
	backend.resolvePutsFn = func(sku string) (*resolver.ResolveResult, error) {
		return &resolver.ResolveResult{
			Instructions: []*domain.WorkInstruction{putWI("ORD-100", "SKU-001", 2, "WALL-01")},
		}, nil
	}
	m := NewMachine("CHE-1", ModePutWall, backend, testLogger())
	ctx := context.Background()

	m.Handle(ctx, BadgeScan{Badge: "100"})
	require.Equal(t, StateWallScanItem, m.State())
	m.Handle(ctx, RawScan{Token: "SKU-001"})
	require.Equal(t, StateDoPut, m.State())

	// An info detour mid-run comes back to the put, not to a pick state
	m.Handle(ctx, CommandScan{Command: CommandInfo})
	require.Equal(t, StateInfoPrompt, m.State())
	cmds := m.Handle(ctx, CommandScan{Command: CommandCancel})

	assert.Equal(t, StateDoPut, m.State())
	assert.Equal(t, "WALL-01", firstFrame(t, cmds).Lines[0])
}

func TestMachine_SkuWallHasNoOrderAssignment(t *testing.T) {
	backend := newFakeBackend()
	m := NewMachine("CHE-1", ModeSkuWall, backend, testLogger())
	ctx := context.Background()

	m.Handle(ctx, BadgeScan{Badge: "100"})
	require.Equal(t, StateWallScanItem, m.State())

	// Slots are keyed by item in this mode; ORDER_WALL is not part of
	// its transition graph
	cmds := m.Handle(ctx, CommandScan{Command: CommandOrderWall})
	assert.Equal(t, StateWallScanItem, m.State())
	assert.Equal(t, "SCAN ITEM", firstFrame(t, cmds).Lines[0])

	other := NewMachine("CHE-2", ModePutWall, backend, testLogger())
	other.Handle(ctx, BadgeScan{Badge: "100"})
	other.Handle(ctx, CommandScan{Command: CommandOrderWall})
	assert.Equal(t, StateWallScanOrder, other.State())
}

func TestMachine_Render(t *testing.T) {
	m := NewMachine("CHE-1", ModePick, newFakeBackend(), testLogger())

	cmds := m.Render()
	assert.Equal(t, "SCAN BADGE", firstFrame(t, cmds).Lines[0])

	// Render does not consume state
	assert.Equal(t, StateIdle, m.State())
}
