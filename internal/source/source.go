package source

import (
	"context"

	"github.com/librescoot/powerled-service/internal/events"
)

// Publisher accepts events produced by a source. events.Bus implements it.
type Publisher interface {
	Publish(ev events.Event)
}

// Source produces power, battery and screen events and answers the state
// queries of the bus.
type Source interface {
	events.Probe

	// Start begins delivering events to pub until ctx is cancelled
	Start(ctx context.Context, pub Publisher) error
	Close() error
}

func powerEvent(connected bool) events.Event {
	if connected {
		return events.Event{Name: events.PowerConnected}
	}
	return events.Event{Name: events.PowerDisconnected}
}

func screenEvent(on bool) events.Event {
	if on {
		return events.Event{Name: events.ScreenOn}
	}
	return events.Event{Name: events.ScreenOff}
}

func batteryEvent(status events.BatteryStatus) events.Event {
	return events.Event{Name: events.BatteryStatusChanged, Status: status}
}
