package fsm

import (
	"fmt"

	"github.com/librescoot/powerled-service/internal/events"
	"github.com/librescoot/powerled-service/internal/indicator"
)

// State is the charge indicator state. Each state implies a fixed set of
// active listeners, see Listeners.
type State string

const (
	// Initial state, and after power is unplugged
	StateDisconnected State = "disconnected"
	// Power present, screen state not yet observed
	StateConnected State = "connected"
	// Power present, screen on; the indicator is suppressed by the display
	StateConnectedScreenOn State = "connected-screen-on"
	// Power present, screen off; the indicator is shown
	StateConnectedScreenOff State = "connected-screen-off"
)

// Policy selects what happens around screen-on
type Policy string

const (
	// PolicyRearm stops battery tracking on screen-on and waits for the
	// next screen-off to assert the indicator again.
	PolicyRearm Policy = "rearm"
	// PolicyContinuous never listens for screen-on. Battery tracking keeps
	// running and every screen-off re-asserts the indicator.
	PolicyContinuous Policy = "continuous"
)

// ParsePolicy converts a configuration value into a Policy
func ParsePolicy(value string) (Policy, error) {
	switch Policy(value) {
	case PolicyRearm, PolicyContinuous:
		return Policy(value), nil
	default:
		return "", fmt.Errorf("unknown screen-on policy: %q", value)
	}
}

// Listeners returns the events a state listens for
func Listeners(state State) []events.Name {
	switch state {
	case StateDisconnected:
		return []events.Name{events.PowerConnected}
	case StateConnected:
		return []events.Name{events.ScreenOff, events.BatteryStatusChanged, events.PowerDisconnected}
	case StateConnectedScreenOn:
		return []events.Name{events.ScreenOff, events.PowerDisconnected}
	case StateConnectedScreenOff:
		return []events.Name{events.BatteryStatusChanged, events.ScreenOn, events.PowerDisconnected}
	default:
		return nil
	}
}

// ActionKind identifies a side effect produced by a transition
type ActionKind int

const (
	ActionSubscribe ActionKind = iota
	ActionUnsubscribe
	ActionSetIndicator
	ActionClearIndicator
)

// Action is a single side effect the Machine applies after a transition
type Action struct {
	Kind  ActionKind
	Event events.Name     // Subscribe, Unsubscribe
	Color indicator.Color // SetIndicator
}

func (a Action) String() string {
	switch a.Kind {
	case ActionSubscribe:
		return "subscribe " + string(a.Event)
	case ActionUnsubscribe:
		return "unsubscribe " + string(a.Event)
	case ActionSetIndicator:
		return "set " + a.Color.String()
	case ActionClearIndicator:
		return "clear"
	default:
		return "unknown"
	}
}

func subscribe(name events.Name) Action {
	return Action{Kind: ActionSubscribe, Event: name}
}

func unsubscribe(name events.Name) Action {
	return Action{Kind: ActionUnsubscribe, Event: name}
}

func setIndicator(color indicator.Color) Action {
	return Action{Kind: ActionSetIndicator, Color: color}
}

func clearIndicator() Action {
	return Action{Kind: ActionClearIndicator}
}

// Snapshot is the machine data a transition depends on
type Snapshot struct {
	State State
	Color indicator.Color // last asserted color, ColorNone after clear
}

// Input is an event plus the query results resolved for it
type Input struct {
	Event       events.Event
	BatteryFull bool // resolved for ScreenOff only
}

// Bus is the event bus the Machine subscribes on and queries.
// events.Bus implements it.
type Bus interface {
	Subscribe(name events.Name, handler events.Handler)
	Unsubscribe(name events.Name) bool
	PowerConnected() (bool, error)
	BatteryFull() (bool, error)
}

// Observer is notified after Start, after Stop, and after each transition
// that changed the state or the indicator color.
type Observer func(from, to State, color indicator.Color)
