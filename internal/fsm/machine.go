package fsm

import (
	"log"
	"sort"

	"github.com/librescoot/powerled-service/internal/events"
	"github.com/librescoot/powerled-service/internal/indicator"
)

// Machine drives the charge indicator from bus events. It owns the
// listener table and must only be used from the bus dispatch goroutine
// (Start and Stop included).
type Machine struct {
	bus      Bus
	sink     indicator.Sink
	policy   Policy
	logger   *log.Logger
	observer Observer

	state     State
	color     indicator.Color
	listeners map[events.Name]bool
}

// NewMachine creates a machine in the disconnected state. Nothing is
// subscribed until Start.
func NewMachine(bus Bus, sink indicator.Sink, policy Policy, logger *log.Logger) *Machine {
	return &Machine{
		bus:       bus,
		sink:      sink,
		policy:    policy,
		logger:    logger,
		state:     StateDisconnected,
		color:     indicator.ColorNone,
		listeners: make(map[events.Name]bool),
	}
}

// OnTransition registers an observer for state and color changes
func (m *Machine) OnTransition(observer Observer) {
	m.observer = observer
}

// State returns the current state
func (m *Machine) State() State {
	return m.state
}

// Color returns the last asserted indicator color
func (m *Machine) Color() indicator.Color {
	return m.color
}

// Listeners returns the currently subscribed event names in sorted order
func (m *Machine) Listeners() []events.Name {
	names := make([]events.Name, 0, len(m.listeners))
	for name := range m.listeners {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Start derives the initial state from a live power query and subscribes
// accordingly. A failed query counts as disconnected.
func (m *Machine) Start() {
	connected, err := m.bus.PowerConnected()
	if err != nil {
		m.logger.Printf("Power state unavailable, assuming disconnected: %v", err)
		connected = false
	}

	m.logger.Printf("Starting indicator state machine (power connected: %v, screen-on policy: %s)",
		connected, m.policy)

	from := m.state
	state, actions := Initial(connected)
	m.apply(actions)
	m.enter(from, state)
}

// Handle processes one event. Events for names that are not subscribed are
// ignored, which covers events queued before an unsubscribe.
func (m *Machine) Handle(ev events.Event) {
	if !m.listeners[ev.Name] {
		m.logger.Printf("Ignoring %s event in state %s", ev.Name, m.state)
		return
	}

	in := Input{Event: ev}
	if ev.Name == events.ScreenOff {
		full, err := m.bus.BatteryFull()
		if err != nil {
			m.logger.Printf("Battery state unavailable, assuming not full: %v", err)
			full = false
		}
		in.BatteryFull = full
	}

	if ev.Name == events.BatteryStatusChanged {
		m.logger.Printf("Battery status: %s", ev.Status)
	} else {
		m.logger.Printf("Received %s event", ev.Name)
	}

	from := m.state
	prevColor := m.color
	state, actions := Transition(Snapshot{State: m.state, Color: m.color}, in, m.policy)
	m.apply(actions)

	if state != from || m.color != prevColor {
		m.enter(from, state)
	}
}

// Stop removes every subscription and clears the indicator. Each
// unsubscribe is attempted independently.
func (m *Machine) Stop() {
	m.logger.Printf("Stopping indicator state machine in state %s", m.state)

	for _, name := range events.Names {
		m.apply([]Action{unsubscribe(name)})
	}

	from := m.state
	m.apply([]Action{clearIndicator()})
	m.enter(from, StateDisconnected)
}

func (m *Machine) enter(from, to State) {
	m.state = to
	if from != to {
		m.logger.Printf("Indicator state transition: %s -> %s", from, to)
	}
	if m.observer != nil {
		m.observer(from, to, m.color)
	}
}

func (m *Machine) apply(actions []Action) {
	for _, action := range actions {
		switch action.Kind {
		case ActionSubscribe:
			if m.listeners[action.Event] {
				m.bus.Unsubscribe(action.Event)
			}
			m.bus.Subscribe(action.Event, m.Handle)
			m.listeners[action.Event] = true

		case ActionUnsubscribe:
			if !m.bus.Unsubscribe(action.Event) && m.listeners[action.Event] {
				m.logger.Printf("Listener for %s was already gone", action.Event)
			}
			delete(m.listeners, action.Event)

		case ActionSetIndicator:
			pattern := indicator.PatternFor(action.Color)
			if err := m.sink.Set(action.Color, pattern); err != nil {
				m.logger.Printf("Failed to set indicator to %s: %v", action.Color, err)
			}
			m.color = action.Color

		case ActionClearIndicator:
			if err := m.sink.Clear(); err != nil {
				m.logger.Printf("Failed to clear indicator: %v", err)
			}
			m.color = indicator.ColorNone
		}
	}
}
