package che

import (
	"fmt"

	"github.com/wms-platform/fulfillment-engine/internal/domain"
)

// FrameLines is the number of text lines on a CHE display
const FrameLines = 4

// Frame is one 4-line text display frame
type Frame struct {
	Lines [FrameLines]string `json:"lines"`
}

// NewFrame builds a frame from up to four lines
func NewFrame(lines ...string) Frame {
	var f Frame
	for i := 0; i < len(lines) && i < FrameLines; i++ {
		f.Lines[i] = lines[i]
	}
	return f
}

// Indicator is the tuple rendered on a numeric position indicator. The
// state machine never constructs wire bytes; the device protocol codec
// consumes this tuple.
type Indicator struct {
	DisplayValue   int `json:"displayValue"`
	MinQty         int `json:"minQty"`
	MaxQty         int `json:"maxQty"`
	BlinkFrequency int `json:"blinkFrequency"`
	DutyCycle      int `json:"dutyCycle"`
}

// Indicator presets
const (
	BlinkNone  = 0
	BlinkSlow  = 4
	BlinkFast  = 10
	DutySolid  = 100
	DutyNormal = 50
)

// DisplayCommand targets one cart/wall position. Position 0 is the main
// text display.
type DisplayCommand struct {
	Position  int        `json:"position"`
	Frame     *Frame     `json:"frame,omitempty"`
	Indicator *Indicator `json:"indicator,omitempty"`
	Clear     bool       `json:"clear,omitempty"`
}

// Dispatcher renders display commands onto hardware. Implementations own
// the wire protocol; the state machine only emits tuples and frames.
type Dispatcher interface {
	Send(deviceID string, commands []DisplayCommand) error
}

// NopDispatcher discards all output. Useful in tests and for devices whose
// link is temporarily down.
type NopDispatcher struct{}

// Send implements Dispatcher
func (NopDispatcher) Send(string, []DisplayCommand) error { return nil }

// Frame builders. User-visible failure text is always actionable, never a
// raw error code.

func frameIdle() Frame {
	return NewFrame("SCAN BADGE", "", "", "")
}

func frameUnknownBadge() Frame {
	return NewFrame("UNKNOWN BADGE", "SEE SUPERVISOR", "", "SCAN BADGE")
}

func frameContainerSelect() Frame {
	return NewFrame("SCAN CONTAINER", "OR SETUP", "", "")
}

func frameContainerPosition(containerID string) Frame {
	return NewFrame("SCAN POSITION", "FOR "+containerID, "", "")
}

func frameSummary(s Summary) Frame {
	line3 := fmt.Sprintf("DONE %d  SHORT %d", s.Done, s.Short)
	if !s.ShowDone {
		line3 = fmt.Sprintf("SHORT %d", s.Short)
	}
	return NewFrame(
		fmt.Sprintf("ORDERS %d", s.Orders),
		fmt.Sprintf("REMAIN %d", s.Remaining),
		line3,
		"START OR REVERSE",
	)
}

func framePick(wi *domain.WorkInstruction) Frame {
	switch wi.Kind {
	case domain.WIKindReversal:
		return NewFrame("REVERSE DIRECTION", "", "", "CONTINUE")
	case domain.WIKindBayChange:
		return NewFrame("NEXT BAY", "", "", "CONTINUE")
	}
	return NewFrame(
		wi.LocationAlias,
		wi.SKU,
		fmt.Sprintf("QTY %d", wi.PlanQty),
		fmt.Sprintf("POS %d", wi.CartPosition),
	)
}

func framePut(wi *domain.WorkInstruction) Frame {
	return NewFrame(
		wi.LocationAlias,
		wi.SKU,
		fmt.Sprintf("PUT %d", wi.PlanQty),
		"",
	)
}

func frameShortPick(wi *domain.WorkInstruction) Frame {
	return NewFrame(
		"SHORT PICK",
		wi.SKU,
		"PRESS QTY PICKED",
		"",
	)
}

func frameShortConfirm(wi *domain.WorkInstruction, qty int) Frame {
	return NewFrame(
		"CONFIRM SHORT",
		fmt.Sprintf("%s QTY %d OF %d", wi.SKU, qty, wi.PlanQty),
		"YES OR NO",
		"",
	)
}

func frameNoWork(subject string) Frame {
	if subject == "" {
		return NewFrame("NO WORK", "", "", "SCAN LOCATION")
	}
	return NewFrame("NO WORK FOR "+subject, "", "", "SCAN LOCATION")
}

func frameAllComplete() Frame {
	return NewFrame("ALL WORK COMPLETE", "", "", "SETUP OR LOGOUT")
}

func frameDirectionReview(dir domain.Direction) Frame {
	word := "FORWARD"
	if dir == domain.DirectionReverse {
		word = "REVERSE"
	}
	return NewFrame(
		"DIRECTION "+word,
		"SCAN LOCATION",
		"OR PRESS AGAIN",
		"",
	)
}

func framePalletNotFound() Frame {
	return NewFrame("PALLET NOT FOUND", "SCAN LOCATION", "TO OPEN PALLET", "")
}

func frameFailure() Frame {
	return NewFrame("SERVER ERROR", "TRY AGAIN", "", "")
}

func frameRemoveContainer() Frame {
	return NewFrame("SCAN POSITION", "TO REMOVE", "OR CANCEL", "")
}

func frameInfoPrompt() Frame {
	return NewFrame("SCAN LOCATION", "OR ITEM", "FOR INFO", "CANCEL TO EXIT")
}

func pickIndicator(wi *domain.WorkInstruction) Indicator {
	return Indicator{
		DisplayValue:   wi.PlanQty,
		MinQty:         0,
		MaxQty:         wi.PlanQty,
		BlinkFrequency: BlinkNone,
		DutyCycle:      DutySolid,
	}
}

func shortIndicator(wi *domain.WorkInstruction) Indicator {
	return Indicator{
		DisplayValue:   wi.PlanQty,
		MinQty:         0,
		MaxQty:         wi.PlanQty,
		BlinkFrequency: BlinkFast,
		DutyCycle:      DutyNormal,
	}
}
