package events

import "strings"

// Name identifies a system event a handler can be subscribed to
type Name string

const (
	PowerConnected       Name = "power-connected"
	PowerDisconnected    Name = "power-disconnected"
	ScreenOff            Name = "screen-off"
	ScreenOn             Name = "screen-on"
	BatteryStatusChanged Name = "battery-status-changed"
)

// Names lists every event the bus knows about
var Names = []Name{
	PowerConnected,
	PowerDisconnected,
	ScreenOff,
	ScreenOn,
	BatteryStatusChanged,
}

// Valid reports whether n is one of the defined event names
func (n Name) Valid() bool {
	for _, known := range Names {
		if n == known {
			return true
		}
	}
	return false
}

// BatteryStatus is the charge status carried by BatteryStatusChanged
type BatteryStatus int

const (
	StatusUnknown BatteryStatus = iota
	StatusFull
	StatusCharging
	StatusDischarging
	StatusNotCharging
)

// String returns the string representation of the battery status
func (s BatteryStatus) String() string {
	switch s {
	case StatusFull:
		return "full"
	case StatusCharging:
		return "charging"
	case StatusDischarging:
		return "discharging"
	case StatusNotCharging:
		return "not-charging"
	default:
		return "unknown"
	}
}

// ParseBatteryStatus maps the textual forms used by Redis and sysfs
// ("full", "Full", "not-charging", "Not charging", ...) to a BatteryStatus.
// Anything unrecognised is StatusUnknown.
func ParseBatteryStatus(value string) BatteryStatus {
	switch normalize(value) {
	case "full":
		return StatusFull
	case "charging":
		return StatusCharging
	case "discharging":
		return StatusDischarging
	case "not-charging":
		return StatusNotCharging
	default:
		return StatusUnknown
	}
}

var statusReplacer = strings.NewReplacer(" ", "-", "_", "-")

func normalize(value string) string {
	return statusReplacer.Replace(strings.ToLower(strings.TrimSpace(value)))
}

// Event is a single occurrence delivered through the bus
type Event struct {
	Name   Name
	Status BatteryStatus // only meaningful for BatteryStatusChanged
}

// Handler receives events for the name it was subscribed to
type Handler func(Event)

// Probe answers the synchronous state queries of the bus
type Probe interface {
	PowerConnected() (bool, error)
	BatteryFull() (bool, error)
}
