package dashboard

import (
	"errors"
	"fmt"

	"github.com/jogardn/order-dashboard/pkg/models"
)

var (
	// ErrOperationFailed is what every failed read or write collapses into.
	// The wrapped error carries the transport, status or decode detail.
	ErrOperationFailed = errors.New("operation failed")
	ErrPageOutOfRange  = errors.New("page out of range")
	ErrUnknownTab      = errors.New("unknown filter tab")
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Tab is a named predicate over order status, evaluated by the orders API.
type Tab string

const (
	TabAll        Tab = "all"
	TabIncomplete Tab = "incomplete"
	TabOverdue    Tab = "overdue"
	TabOngoing    Tab = "ongoing"
	TabFinished   Tab = "finished"
)

var tabOrder = []struct {
	tab   Tab
	label string
}{
	{TabAll, "All"},
	{TabIncomplete, "Incomplete"},
	{TabOverdue, "Overdue"},
	{TabOngoing, "Ongoing"},
	{TabFinished, "Finished"},
}

func ParseTab(s string) (Tab, error) {
	for _, t := range tabOrder {
		if string(t.tab) == s {
			return t.tab, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTab, s)
}

// ViewState is an immutable snapshot of one dashboard view.
type ViewState struct {
	Phase    Phase
	Tab      Tab
	Window   models.PageWindow
	Orders   []models.OrderRecord
	Stats    models.StatsSnapshot
	Selected []string
	// AllSelected is set when every visible row is selected and at least one is visible.
	AllSelected bool
	LastError   string
}

func (s ViewState) Loading() bool {
	return s.Phase != PhaseReady
}

func (s ViewState) IsSelected(id string) bool {
	for _, selected := range s.Selected {
		if selected == id {
			return true
		}
	}
	return false
}

func (s ViewState) VisibleIDs() []string {
	ids := make([]string, 0, len(s.Orders))
	for _, order := range s.Orders {
		ids = append(ids, order.ID)
	}
	return ids
}
