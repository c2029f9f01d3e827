package che

import (
	"strconv"
	"strings"

	apperrors "github.com/wms-platform/fulfillment-engine/pkg/errors"

	"github.com/wms-platform/fulfillment-engine/internal/domain"
)

// Scan grammar prefixes. Everything without a prefix is a raw token and is
// classified server-side by lookup precedence.
const (
	prefixBadge     = "U%"
	prefixContainer = "C%"
	prefixPosition  = "P%"
	prefixLocation  = "L%"
	prefixCommand   = "X%"
	prefixTape      = "%"
)

// Command is a worker-issued control scan
type Command string

const (
	CommandStart     Command = "START"
	CommandReverse   Command = "REVERSE"
	CommandSetup     Command = "SETUP"
	CommandLogout    Command = "LOGOUT"
	CommandShort     Command = "SHORT"
	CommandYes       Command = "YES"
	CommandNo        Command = "NO"
	CommandInfo      Command = "INFO"
	CommandRemove    Command = "REMOVE"
	CommandCancel    Command = "CANCEL"
	CommandInventory Command = "INVENTORY"
	CommandPutWall   Command = "PUT_WALL"
	CommandOrderWall Command = "ORDER_WALL"
)

// IsValid reports whether the command is one the grammar recognizes
func (c Command) IsValid() bool {
	switch c {
	case CommandStart, CommandReverse, CommandSetup, CommandLogout,
		CommandShort, CommandYes, CommandNo, CommandInfo, CommandRemove,
		CommandCancel, CommandInventory, CommandPutWall, CommandOrderWall:
		return true
	}
	return false
}

// Event is one input to a device session
type Event interface {
	isEvent()
}

// BadgeScan authenticates a worker
type BadgeScan struct {
	Badge string
}

// ContainerScan announces a container awaiting a cart position
type ContainerScan struct {
	ContainerID string
}

// PositionScan selects a numeric cart or wall position
type PositionScan struct {
	Position int
}

// LocationScan names a location by alias
type LocationScan struct {
	Alias string
}

// CommandScan carries a control command
type CommandScan struct {
	Command Command
}

// TapeScan carries a decoded position tape token
type TapeScan struct {
	Scan domain.TapeScan
}

// RawScan is an unprefixed token classified by server-side lookup
type RawScan struct {
	Token string
}

// ButtonPress reports a quantity confirmed on a position button
type ButtonPress struct {
	Position int
	Quantity int
}

func (BadgeScan) isEvent()     {}
func (ContainerScan) isEvent() {}
func (PositionScan) isEvent()  {}
func (LocationScan) isEvent()  {}
func (CommandScan) isEvent()   {}
func (TapeScan) isEvent()      {}
func (RawScan) isEvent()       {}
func (ButtonPress) isEvent()   {}

// StripArtifacts removes scanner symbology artifacts from a token: AIM
// identifiers such as "]C1" or "]E0" that some scanners prepend, plus
// surrounding whitespace.
func StripArtifacts(token string) string {
	token = strings.TrimSpace(token)
	if len(token) >= 3 && token[0] == ']' {
		token = token[3:]
	}
	return strings.TrimSpace(token)
}

// ParseScan classifies one scanned token into a typed event. Unknown
// commands and malformed positions are grammar errors; callers re-render
// the current prompt rather than changing state.
func ParseScan(token string) (Event, error) {
	token = StripArtifacts(token)
	if token == "" {
		return nil, apperrors.ErrInvalidScanGrammar(token)
	}
	switch {
	case strings.HasPrefix(token, prefixBadge):
		badge := token[len(prefixBadge):]
		if badge == "" {
			return nil, apperrors.ErrInvalidScanGrammar(token)
		}
		return BadgeScan{Badge: badge}, nil
	case strings.HasPrefix(token, prefixContainer):
		id := token[len(prefixContainer):]
		if id == "" {
			return nil, apperrors.ErrInvalidScanGrammar(token)
		}
		return ContainerScan{ContainerID: id}, nil
	case strings.HasPrefix(token, prefixPosition):
		pos, err := strconv.Atoi(token[len(prefixPosition):])
		if err != nil || pos < 1 {
			return nil, apperrors.ErrInvalidScanGrammar(token)
		}
		return PositionScan{Position: pos}, nil
	case strings.HasPrefix(token, prefixLocation):
		alias := token[len(prefixLocation):]
		if alias == "" {
			return nil, apperrors.ErrInvalidScanGrammar(token)
		}
		return LocationScan{Alias: alias}, nil
	case strings.HasPrefix(token, prefixCommand):
		cmd := Command(strings.ToUpper(token[len(prefixCommand):]))
		if !cmd.IsValid() {
			return nil, apperrors.ErrInvalidScanGrammar(token)
		}
		return CommandScan{Command: cmd}, nil
	case strings.HasPrefix(token, prefixTape):
		scan, err := domain.DecodeTape(token[len(prefixTape):])
		if err != nil {
			return nil, apperrors.ErrInvalidScanGrammar(token)
		}
		return TapeScan{Scan: scan}, nil
	}
	return RawScan{Token: token}, nil
}
