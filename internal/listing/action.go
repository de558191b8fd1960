package listing

import "context"

// Action names a bulk operation offered by the selection panel.
type Action string

const (
	ActionMove    Action = "move"
	ActionDispose Action = "dispose"
	ActionPrint   Action = "print"
	ActionCheckIn Action = "check_in"
	ActionClear   Action = "clear"
)

// PanelActions lists the panel's operations in display order.
var PanelActions = []Action{ActionMove, ActionDispose, ActionPrint, ActionCheckIn, ActionClear}

// Label is the button caption of the action.
func (a Action) Label() string {
	switch a {
	case ActionMove:
		return "Move"
	case ActionDispose:
		return "Dispose"
	case ActionPrint:
		return "Print"
	case ActionCheckIn:
		return "Check in"
	case ActionClear:
		return "Clear"
	}
	return string(a)
}

// Valid reports whether a is one of the panel actions.
func (a Action) Valid() bool {
	for _, known := range PanelActions {
		if a == known {
			return true
		}
	}
	return false
}

// ParseAction converts s into an Action.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.Valid() {
		return "", ErrUnknownAction
	}
	return a, nil
}

// ActionRequest is what a bulk operation receives: the selection and the full items.
type ActionRequest[T any] struct {
	Resource string
	Action   Action
	IDs      []string
	Items    []T
	Params   map[string]string
}

// ActionHandler performs bulk operations against the mutation endpoints of a resource.
// The returned reference identifies the operation, for example a job id.
type ActionHandler[T any] interface {
	HandleAction(ctx context.Context, req ActionRequest[T]) (string, error)
}

// ActionHandlerFunc adapts a function to ActionHandler.
type ActionHandlerFunc[T any] func(ctx context.Context, req ActionRequest[T]) (string, error)

// HandleAction calls f.
func (f ActionHandlerFunc[T]) HandleAction(ctx context.Context, req ActionRequest[T]) (string, error) {
	return f(ctx, req)
}

// PanelState describes the floating action panel of a view.
type PanelState struct {
	Visible bool     `json:"visible"`
	Count   int      `json:"count"`
	Actions []Action `json:"actions,omitempty"`
}

func panelFor(sel *Selection) PanelState {
	n := sel.Count()
	if n == 0 {
		return PanelState{}
	}
	return PanelState{Visible: true, Count: n, Actions: PanelActions}
}
