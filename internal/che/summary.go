package che

import "github.com/wms-platform/fulfillment-engine/internal/domain"

// Summary is the live count view shown on the setup and completion screens
type Summary struct {
	Orders    int  `json:"orders"`
	Remaining int  `json:"remaining"`
	Done      int  `json:"done"`
	Short     int  `json:"short"`
	ShowDone  bool `json:"showDone"`
}

// Summary computes the live counts for the session. Housekeeping
// instructions never count as work. The done count survives jumps on the
// same path; a path change clears it when the facility policy says so.
func (m *Machine) Summary() Summary {
	s := Summary{
		Done:     m.doneCount,
		Short:    m.shortCount,
		ShowDone: true,
	}

	orders := make(map[string]bool)
	for _, c := range m.containers {
		for _, id := range c.OrderIDs {
			orders[id] = true
		}
	}
	s.Orders = len(orders)

	for i := m.runIndex; i < len(m.run); i++ {
		wi := m.run[i]
		if wi.Kind.IsHousekeeping() {
			continue
		}
		if wi.Status == domain.WIStatusNew || wi.Status == domain.WIStatusInProgress {
			s.Remaining++
		}
	}
	return s
}
