package indicator

import (
	"fmt"
	"time"
)

// Color is the color shown by the charge indicator
type Color int

const (
	ColorNone Color = iota
	ColorGreen
	ColorOrange
)

// String returns the string representation of the color
func (c Color) String() string {
	switch c {
	case ColorGreen:
		return "green"
	case ColorOrange:
		return "orange"
	default:
		return "none"
	}
}

// Pattern is a blink profile: the light is on for On, then off for Off
type Pattern struct {
	On  time.Duration
	Off time.Duration
}

// Blink profiles. Green is effectively solid.
var (
	PatternFull     = Pattern{On: 60000 * time.Millisecond, Off: 500 * time.Millisecond}
	PatternCharging = Pattern{On: 7000 * time.Millisecond, Off: 500 * time.Millisecond}
)

// PatternFor returns the blink profile used for color
func PatternFor(c Color) Pattern {
	switch c {
	case ColorGreen:
		return PatternFull
	case ColorOrange:
		return PatternCharging
	default:
		return Pattern{}
	}
}

// Sink drives the indicator. Calls are fire-and-forget and idempotent:
// setting the same color twice or clearing a cleared indicator is harmless.
type Sink interface {
	Set(color Color, pattern Pattern) error
	Clear() error
}

// Multi mirrors one indicator onto several outputs
type Multi struct {
	sinks []Sink
}

// NewMulti returns a sink writing to all of sinks
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Set forwards to every output, attempting all of them before reporting
// the first error.
func (m *Multi) Set(color Color, pattern Pattern) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Set(color, pattern); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Clear forwards to every output
func (m *Multi) Clear() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Clear(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close releases outputs that hold resources
func (m *Multi) Close() error {
	var firstErr error
	for _, s := range m.sinks {
		closer, ok := s.(interface{ Close() error })
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close indicator output: %w", err)
		}
	}
	return firstErr
}
