package source

import (
	"context"
	"fmt"
	"log"

	"github.com/godbus/dbus/v5"
	"github.com/librescoot/powerled-service/internal/events"
)

const (
	upowerDest            = "org.freedesktop.UPower"
	upowerPath            = dbus.ObjectPath("/org/freedesktop/UPower")
	upowerDisplayDevice   = dbus.ObjectPath("/org/freedesktop/UPower/devices/DisplayDevice")
	upowerInterface       = "org.freedesktop.UPower"
	upowerDeviceInterface = "org.freedesktop.UPower.Device"
	propertiesInterface   = "org.freedesktop.DBus.Properties"
	propertiesChanged     = propertiesInterface + ".PropertiesChanged"
	screenSaverInterface  = "org.freedesktop.ScreenSaver"
	screenSaverActive     = screenSaverInterface + ".ActiveChanged"
)

// UPower device states, see the UPower Device interface documentation
const (
	upowerStateUnknown          uint32 = 0
	upowerStateCharging         uint32 = 1
	upowerStateDischarging      uint32 = 2
	upowerStateEmpty            uint32 = 3
	upowerStateFullyCharged     uint32 = 4
	upowerStatePendingCharge    uint32 = 5
	upowerStatePendingDischarge uint32 = 6
)

// UPower follows power and battery state from UPower on the system bus
// and screen blanking from the ScreenSaver interface on the session bus.
type UPower struct {
	system  *dbus.Conn
	session *dbus.Conn
	logger  *log.Logger

	// one channel per connection, each connection closes its own on loss
	systemSignals  chan *dbus.Signal
	sessionSignals chan *dbus.Signal
}

// NewUPower connects to the system bus. The session bus is optional: without
// it no screen events are produced.
func NewUPower(logger *log.Logger) (*UPower, error) {
	system, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	u := &UPower{
		system:        system,
		logger:        logger,
		systemSignals: make(chan *dbus.Signal, 16),
	}

	session, err := dbus.ConnectSessionBus()
	if err != nil {
		logger.Printf("Warning: no session bus, screen events disabled: %v", err)
	} else {
		u.session = session
	}

	return u, nil
}

func (u *UPower) Start(ctx context.Context, pub Publisher) error {
	if err := u.system.AddMatchSignal(
		dbus.WithMatchObjectPath(upowerPath),
		dbus.WithMatchInterface(propertiesInterface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return fmt.Errorf("failed to watch UPower properties: %w", err)
	}

	if err := u.system.AddMatchSignal(
		dbus.WithMatchObjectPath(upowerDisplayDevice),
		dbus.WithMatchInterface(propertiesInterface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return fmt.Errorf("failed to watch UPower display device: %w", err)
	}
	u.system.Signal(u.systemSignals)

	if u.session != nil {
		if err := u.session.AddMatchSignal(
			dbus.WithMatchInterface(screenSaverInterface),
			dbus.WithMatchMember("ActiveChanged"),
		); err != nil {
			u.logger.Printf("Warning: cannot watch screen saver, screen events disabled: %v", err)
		} else {
			u.sessionSignals = make(chan *dbus.Signal, 16)
			u.session.Signal(u.sessionSignals)
		}
	}

	go u.listen(ctx, pub)

	u.logger.Printf("Listening for UPower and screen saver signals")
	return nil
}

func (u *UPower) listen(ctx context.Context, pub Publisher) {
	sessionSignals := u.sessionSignals

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-u.systemSignals:
			if !ok {
				u.logger.Printf("System bus signal channel closed")
				return
			}
			publishAll(pub, translateSignal(sig))
		case sig, ok := <-sessionSignals:
			if !ok {
				u.logger.Printf("Session bus signal channel closed, screen events disabled")
				sessionSignals = nil
				continue
			}
			publishAll(pub, translateSignal(sig))
		}
	}
}

func publishAll(pub Publisher, evs []events.Event) {
	for _, ev := range evs {
		pub.Publish(ev)
	}
}

// translateSignal maps a D-Bus signal to bus events. Unrelated signals map
// to nothing.
func translateSignal(sig *dbus.Signal) []events.Event {
	if sig == nil {
		return nil
	}

	switch sig.Name {
	case screenSaverActive:
		if len(sig.Body) < 1 {
			return nil
		}
		active, ok := sig.Body[0].(bool)
		if !ok {
			return nil
		}
		// An active screen saver means the display is blanked
		return []events.Event{screenEvent(!active)}

	case propertiesChanged:
		if len(sig.Body) < 2 {
			return nil
		}
		iface, _ := sig.Body[0].(string)
		changed, ok := sig.Body[1].(map[string]dbus.Variant)
		if !ok {
			return nil
		}

		var out []events.Event
		switch {
		case iface == upowerInterface && sig.Path == upowerPath:
			if v, exists := changed["OnBattery"]; exists {
				if onBattery, ok := v.Value().(bool); ok {
					out = append(out, powerEvent(!onBattery))
				}
			}
		case iface == upowerDeviceInterface && sig.Path == upowerDisplayDevice:
			if v, exists := changed["State"]; exists {
				if state, ok := v.Value().(uint32); ok {
					out = append(out, batteryEvent(upowerBatteryStatus(state)))
				}
			}
		}
		return out
	}

	return nil
}

func upowerBatteryStatus(state uint32) events.BatteryStatus {
	switch state {
	case upowerStateFullyCharged:
		return events.StatusFull
	case upowerStateCharging:
		return events.StatusCharging
	case upowerStateDischarging, upowerStateEmpty:
		return events.StatusDischarging
	case upowerStatePendingCharge, upowerStatePendingDischarge:
		return events.StatusNotCharging
	default:
		return events.StatusUnknown
	}
}

// PowerConnected reads UPower's OnBattery property
func (u *UPower) PowerConnected() (bool, error) {
	v, err := u.system.Object(upowerDest, upowerPath).GetProperty(upowerInterface + ".OnBattery")
	if err != nil {
		return false, fmt.Errorf("failed to read OnBattery: %w", err)
	}
	onBattery, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("unexpected OnBattery type %T", v.Value())
	}
	return !onBattery, nil
}

// BatteryFull reads the State of UPower's display device
func (u *UPower) BatteryFull() (bool, error) {
	v, err := u.system.Object(upowerDest, upowerDisplayDevice).GetProperty(upowerDeviceInterface + ".State")
	if err != nil {
		return false, fmt.Errorf("failed to read battery state: %w", err)
	}
	state, ok := v.Value().(uint32)
	if !ok {
		return false, fmt.Errorf("unexpected battery state type %T", v.Value())
	}
	return upowerBatteryStatus(state) == events.StatusFull, nil
}

// Close stops signal delivery and closes both bus connections
func (u *UPower) Close() error {
	u.system.RemoveSignal(u.systemSignals)
	if u.session != nil {
		if u.sessionSignals != nil {
			u.session.RemoveSignal(u.sessionSignals)
		}
		if err := u.session.Close(); err != nil {
			u.logger.Printf("Failed to close session bus: %v", err)
		}
	}
	if err := u.system.Close(); err != nil {
		return fmt.Errorf("failed to close system bus: %w", err)
	}
	return nil
}
