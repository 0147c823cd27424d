package indicator

import (
	"fmt"
	"log"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOConfig selects the chip and line offsets of the two LEDs
type GPIOConfig struct {
	Chip         string
	GreenOffset  int
	OrangeOffset int
}

type outputLine interface {
	SetValue(value int) error
	Close() error
}

// GPIOSink drives a green and an orange LED on GPIO lines, blinking the
// active one in a background goroutine.
type GPIOSink struct {
	chip   *gpiocdev.Chip
	lines  map[Color]outputLine
	logger *log.Logger
	dryRun bool

	current Color
	pattern Pattern
	stop    chan struct{}
	done    chan struct{}
}

// NewGPIOSink opens the GPIO chip and requests both LED lines as outputs,
// initially off. In dry-run mode no hardware is touched.
func NewGPIOSink(cfg GPIOConfig, logger *log.Logger, dryRun bool) (*GPIOSink, error) {
	gs := &GPIOSink{
		lines:  make(map[Color]outputLine),
		logger: logger,
		dryRun: dryRun,
	}

	if dryRun {
		return gs, nil
	}

	chip, err := gpiocdev.NewChip(cfg.Chip)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %s: %w", cfg.Chip, err)
	}
	gs.chip = chip

	greenLine, err := chip.RequestLine(cfg.GreenOffset, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("failed to request green LED GPIO %d: %w", cfg.GreenOffset, err)
	}
	gs.lines[ColorGreen] = greenLine

	orangeLine, err := chip.RequestLine(cfg.OrangeOffset, gpiocdev.AsOutput(0))
	if err != nil {
		greenLine.Close()
		chip.Close()
		return nil, fmt.Errorf("failed to request orange LED GPIO %d: %w", cfg.OrangeOffset, err)
	}
	gs.lines[ColorOrange] = orangeLine

	logger.Printf("Initialized LED GPIO lines on %s: green (%d), orange (%d)",
		cfg.Chip, cfg.GreenOffset, cfg.OrangeOffset)
	return gs, nil
}

// Set lights the LED for color with the given blink pattern. Asking for
// the color and pattern already shown is a no-op.
func (gs *GPIOSink) Set(color Color, pattern Pattern) error {
	if gs.dryRun {
		gs.logger.Printf("DRY RUN: Would set LED to %s (on %v, off %v)", color, pattern.On, pattern.Off)
		gs.current, gs.pattern = color, pattern
		return nil
	}

	line, exists := gs.lines[color]
	if !exists {
		return fmt.Errorf("no LED line for color %s", color)
	}

	if gs.current == color && gs.pattern == pattern && gs.stop != nil {
		return nil
	}

	gs.stopBlink()
	if err := gs.allOff(); err != nil {
		return err
	}

	gs.current, gs.pattern = color, pattern
	gs.stop = make(chan struct{})
	gs.done = make(chan struct{})
	go gs.blink(line, pattern, gs.stop, gs.done)

	return nil
}

// Clear turns both LEDs off
func (gs *GPIOSink) Clear() error {
	if gs.dryRun {
		gs.logger.Printf("DRY RUN: Would turn LED off")
		gs.current = ColorNone
		return nil
	}

	gs.stopBlink()
	gs.current, gs.pattern = ColorNone, Pattern{}
	return gs.allOff()
}

func (gs *GPIOSink) stopBlink() {
	if gs.stop == nil {
		return
	}
	close(gs.stop)
	<-gs.done
	gs.stop, gs.done = nil, nil
}

func (gs *GPIOSink) allOff() error {
	for color, line := range gs.lines {
		if err := line.SetValue(0); err != nil {
			return fmt.Errorf("failed to turn off %s LED: %w", color, err)
		}
	}
	return nil
}

func (gs *GPIOSink) blink(line outputLine, pattern Pattern, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		if err := line.SetValue(1); err != nil {
			gs.logger.Printf("Failed to switch LED on: %v", err)
		}
		if !wait(pattern.On, stop) {
			return
		}
		if pattern.Off <= 0 {
			continue
		}
		if err := line.SetValue(0); err != nil {
			gs.logger.Printf("Failed to switch LED off: %v", err)
		}
		if !wait(pattern.Off, stop) {
			return
		}
	}
}

// wait sleeps for d and reports false if stop closed first. A non-positive
// d waits for stop only.
func wait(d time.Duration, stop <-chan struct{}) bool {
	if d <= 0 {
		<-stop
		return false
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-stop:
		return false
	}
}

// Close turns the LEDs off and releases all GPIO resources
func (gs *GPIOSink) Close() error {
	if gs.dryRun {
		return nil
	}

	gs.stopBlink()

	var lastErr error
	for color, line := range gs.lines {
		if err := line.SetValue(0); err != nil {
			gs.logger.Printf("Failed to turn off %s LED: %v", color, err)
		}
		if err := line.Close(); err != nil {
			gs.logger.Printf("Failed to close %s LED line: %v", color, err)
			lastErr = err
		}
	}

	if gs.chip != nil {
		if err := gs.chip.Close(); err != nil {
			gs.logger.Printf("Failed to close GPIO chip: %v", err)
			lastErr = err
		}
	}

	gs.logger.Printf("Closed LED GPIO lines")
	return lastErr
}
