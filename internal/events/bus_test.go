package events_test

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/librescoot/powerled-service/internal/events"
)

type stubProbe struct {
	connected bool
	full      bool
	err       error
}

func (p *stubProbe) PowerConnected() (bool, error) { return p.connected, p.err }
func (p *stubProbe) BatteryFull() (bool, error)    { return p.full, p.err }

func newTestLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestSubscribeReplacesExistingHandler(t *testing.T) {
	bus := events.NewBus(nil, newTestLogger())

	var first, second int
	bus.Subscribe(events.ScreenOff, func(events.Event) { first++ })
	bus.Subscribe(events.ScreenOff, func(events.Event) { second++ })

	bus.Dispatch(events.Event{Name: events.ScreenOff})

	if first != 0 || second != 1 {
		t.Errorf("Expected only the latest handler to run, got first=%d second=%d", first, second)
	}
	if got := bus.Active(); len(got) != 1 || got[0] != events.ScreenOff {
		t.Errorf("Expected exactly one active subscription, got %v", got)
	}
}

func TestUnsubscribeAbsentReturnsFalse(t *testing.T) {
	bus := events.NewBus(nil, newTestLogger())

	if bus.Unsubscribe(events.ScreenOn) {
		t.Errorf("Expected false when unsubscribing an absent listener")
	}

	bus.Subscribe(events.ScreenOn, func(events.Event) {})
	if !bus.Unsubscribe(events.ScreenOn) {
		t.Errorf("Expected true when unsubscribing an active listener")
	}
	if bus.Subscribed(events.ScreenOn) {
		t.Errorf("Expected ScreenOn to be unsubscribed")
	}
}

func TestDispatchDropsUnsubscribedEvents(t *testing.T) {
	bus := events.NewBus(nil, newTestLogger())

	if bus.Dispatch(events.Event{Name: events.PowerConnected}) {
		t.Errorf("Expected event without subscriber to be dropped")
	}
}

func TestHandlerMaySubscribeDuringDispatch(t *testing.T) {
	bus := events.NewBus(nil, newTestLogger())

	bus.Subscribe(events.PowerConnected, func(events.Event) {
		bus.Unsubscribe(events.PowerConnected)
		bus.Subscribe(events.PowerDisconnected, func(events.Event) {})
	})

	bus.Dispatch(events.Event{Name: events.PowerConnected})

	got := bus.Active()
	if len(got) != 1 || got[0] != events.PowerDisconnected {
		t.Errorf("Expected [%s], got %v", events.PowerDisconnected, got)
	}
}

func TestRunDeliversInOrder(t *testing.T) {
	bus := events.NewBus(nil, newTestLogger())

	received := make(chan events.BatteryStatus, 3)
	bus.Subscribe(events.BatteryStatusChanged, func(ev events.Event) {
		received <- ev.Status
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bus.Run(ctx)
		close(done)
	}()

	want := []events.BatteryStatus{events.StatusCharging, events.StatusFull, events.StatusDischarging}
	for _, status := range want {
		bus.Publish(events.Event{Name: events.BatteryStatusChanged, Status: status})
	}

	for i, status := range want {
		select {
		case got := <-received:
			if got != status {
				t.Errorf("Event %d: expected %s, got %s", i, status, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for event %d", i)
		}
	}

	cancel()
	<-done

	// Publishing after Run has exited must not block
	bus.Publish(events.Event{Name: events.ScreenOn})
}

func TestQueriesDelegateToProbe(t *testing.T) {
	bus := events.NewBus(&stubProbe{connected: true, full: false}, newTestLogger())

	connected, err := bus.PowerConnected()
	if err != nil || !connected {
		t.Errorf("Expected connected=true, got %v (err=%v)", connected, err)
	}
	full, err := bus.BatteryFull()
	if err != nil || full {
		t.Errorf("Expected full=false, got %v (err=%v)", full, err)
	}
}

func TestQueriesWithoutProbe(t *testing.T) {
	bus := events.NewBus(nil, newTestLogger())

	if _, err := bus.PowerConnected(); !errors.Is(err, events.ErrNoProbe) {
		t.Errorf("Expected ErrNoProbe, got %v", err)
	}
	if _, err := bus.BatteryFull(); !errors.Is(err, events.ErrNoProbe) {
		t.Errorf("Expected ErrNoProbe, got %v", err)
	}
}

func TestParseBatteryStatus(t *testing.T) {
	tests := []struct {
		input string
		want  events.BatteryStatus
	}{
		{"full", events.StatusFull},
		{"Full\n", events.StatusFull},
		{"Charging", events.StatusCharging},
		{"discharging", events.StatusDischarging},
		{"Not charging", events.StatusNotCharging},
		{"not_charging", events.StatusNotCharging},
		{"not-charging", events.StatusNotCharging},
		{"", events.StatusUnknown},
		{"bogus", events.StatusUnknown},
	}

	for _, tt := range tests {
		if got := events.ParseBatteryStatus(tt.input); got != tt.want {
			t.Errorf("ParseBatteryStatus(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}
