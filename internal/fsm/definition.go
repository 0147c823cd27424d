package fsm

import (
	"github.com/librescoot/powerled-service/internal/events"
	"github.com/librescoot/powerled-service/internal/indicator"
)

// Initial returns the state to start in and the subscriptions to set up,
// given whether power is connected at startup.
func Initial(powerConnected bool) (State, []Action) {
	if powerConnected {
		return StateConnected, []Action{
			subscribe(events.ScreenOff),
			subscribe(events.BatteryStatusChanged),
			subscribe(events.PowerDisconnected),
		}
	}

	return StateDisconnected, []Action{
		subscribe(events.PowerConnected),
	}
}

// Transition computes the next state and the actions to apply for in.
// Events that the current state does not listen for leave the state
// unchanged and produce no actions.
func Transition(s Snapshot, in Input, policy Policy) (State, []Action) {
	switch in.Event.Name {
	case events.PowerConnected:
		if s.State != StateDisconnected {
			return s.State, nil
		}
		// The indicator stays off until the next screen-off or battery event
		return StateConnected, []Action{
			unsubscribe(events.PowerConnected),
			subscribe(events.ScreenOff),
			subscribe(events.BatteryStatusChanged),
			subscribe(events.PowerDisconnected),
		}

	case events.PowerDisconnected:
		if s.State == StateDisconnected {
			return s.State, nil
		}
		return StateDisconnected, []Action{
			unsubscribe(events.BatteryStatusChanged),
			unsubscribe(events.ScreenOff),
			unsubscribe(events.ScreenOn),
			unsubscribe(events.PowerDisconnected),
			clearIndicator(),
			subscribe(events.PowerConnected),
		}

	case events.ScreenOff:
		if s.State != StateConnected && s.State != StateConnectedScreenOn {
			return s.State, nil
		}

		// The display turns the light off on wake, so always re-assert
		color := indicator.ColorOrange
		if in.BatteryFull {
			color = indicator.ColorGreen
		}
		actions := []Action{
			setIndicator(color),
			subscribe(events.BatteryStatusChanged),
		}

		if policy == PolicyContinuous {
			return StateConnected, append(actions, subscribe(events.ScreenOff))
		}
		return StateConnectedScreenOff, append(actions,
			subscribe(events.ScreenOn),
			unsubscribe(events.ScreenOff),
		)

	case events.BatteryStatusChanged:
		if s.State != StateConnected && s.State != StateConnectedScreenOff {
			return s.State, nil
		}

		// Full always re-sends green, only a repeated orange is suppressed
		if in.Event.Status == events.StatusFull {
			return s.State, []Action{setIndicator(indicator.ColorGreen)}
		}
		if s.Color != indicator.ColorOrange {
			return s.State, []Action{setIndicator(indicator.ColorOrange)}
		}
		return s.State, nil

	case events.ScreenOn:
		if s.State != StateConnectedScreenOff {
			return s.State, nil
		}
		return StateConnectedScreenOn, []Action{
			unsubscribe(events.BatteryStatusChanged),
			unsubscribe(events.ScreenOn),
			subscribe(events.ScreenOff),
		}
	}

	return s.State, nil
}
