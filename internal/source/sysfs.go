package source

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/librescoot/powerled-service/internal/events"
	"github.com/prometheus/procfs/sysfs"
)

// SysfsConfig locates the sysfs mount and the polling interval
type SysfsConfig struct {
	Root         string
	PollInterval time.Duration
}

// Sysfs polls the kernel power supply class and the backlight power state
// and publishes an event whenever a value changes.
type Sysfs struct {
	config       SysfsConfig
	fs           sysfs.FS
	backlightDir string
	logger       *log.Logger
	pub          Publisher

	cancel context.CancelFunc
	done   chan struct{}

	polled    bool
	connected bool
	status    events.BatteryStatus
	screenOn  bool
	hasScreen bool
}

// NewSysfs opens the sysfs mount at cfg.Root
func NewSysfs(cfg SysfsConfig, logger *log.Logger) (*Sysfs, error) {
	fs, err := sysfs.NewFS(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to open sysfs at %s: %w", cfg.Root, err)
	}

	return &Sysfs{
		config:       cfg,
		fs:           fs,
		backlightDir: filepath.Join(cfg.Root, "class", "backlight"),
		logger:       logger,
	}, nil
}

func (s *Sysfs) Start(ctx context.Context, pub Publisher) error {
	if _, err := s.fs.PowerSupplyClass(); err != nil {
		return fmt.Errorf("power supply class unavailable: %w", err)
	}
	if s.config.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval: %v", s.config.PollInterval)
	}

	s.pub = pub
	pollCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.poll()
	go s.monitor(pollCtx)

	s.logger.Printf("Polling %s every %v", s.config.Root, s.config.PollInterval)
	return nil
}

func (s *Sysfs) monitor(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

// poll reads the current values and publishes the differences to the
// previous poll. The first poll only records a baseline, except that a
// screen already off is reported so the indicator can come up.
func (s *Sysfs) poll() {
	connected, err := s.PowerConnected()
	if err != nil {
		s.logger.Printf("Error reading power supply state: %v", err)
		connected = s.connected
	}

	status, err := s.batteryStatus()
	if err != nil {
		s.logger.Printf("Error reading battery status: %v", err)
		status = s.status
	}

	screenOn, hasScreen := s.screenState()

	if !s.polled {
		s.polled = true
		s.connected, s.status, s.screenOn, s.hasScreen = connected, status, screenOn, hasScreen
		if !hasScreen {
			s.logger.Printf("Warning: no backlight found in %s, screen events disabled", s.backlightDir)
		} else if !screenOn {
			s.pub.Publish(screenEvent(false))
		}
		return
	}

	if connected != s.connected {
		s.connected = connected
		s.pub.Publish(powerEvent(connected))
	}
	if status != s.status {
		s.status = status
		s.pub.Publish(batteryEvent(status))
	}
	if hasScreen && (!s.hasScreen || screenOn != s.screenOn) {
		s.screenOn, s.hasScreen = screenOn, true
		s.pub.Publish(screenEvent(screenOn))
	}
}

// PowerConnected reports whether any non-battery supply is online
func (s *Sysfs) PowerConnected() (bool, error) {
	supplies, err := s.supplies()
	if err != nil {
		return false, err
	}

	found := false
	for _, ps := range supplies {
		if ps.Type == "Battery" {
			continue
		}
		found = true

		if ps.Online != nil && *ps.Online == 1 {
			return true, nil
		}
	}

	if !found {
		return false, fmt.Errorf("no external power supply in %s", s.config.Root)
	}
	return false, nil
}

// BatteryFull reports whether the first battery's status is Full
func (s *Sysfs) BatteryFull() (bool, error) {
	status, err := s.batteryStatus()
	if err != nil {
		return false, err
	}
	return status == events.StatusFull, nil
}

func (s *Sysfs) batteryStatus() (events.BatteryStatus, error) {
	supplies, err := s.supplies()
	if err != nil {
		return events.StatusUnknown, err
	}

	for _, ps := range supplies {
		if ps.Type == "Battery" {
			return events.ParseBatteryStatus(ps.Status), nil
		}
	}

	return events.StatusUnknown, fmt.Errorf("no battery in %s", s.config.Root)
}

// supplies returns the power supply class ordered by name
func (s *Sysfs) supplies() ([]sysfs.PowerSupply, error) {
	class, err := s.fs.PowerSupplyClass()
	if err != nil {
		return nil, fmt.Errorf("failed to read power supplies: %w", err)
	}

	supplies := make([]sysfs.PowerSupply, 0, len(class))
	for _, ps := range class {
		supplies = append(supplies, ps)
	}
	sort.Slice(supplies, func(i, j int) bool { return supplies[i].Name < supplies[j].Name })
	return supplies, nil
}

// screenState reads bl_power of the first backlight. 0 means unblanked.
func (s *Sysfs) screenState() (on bool, found bool) {
	entries, err := os.ReadDir(s.backlightDir)
	if err != nil || len(entries) == 0 {
		return false, false
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	data, err := os.ReadFile(filepath.Join(s.backlightDir, names[0], "bl_power"))
	if err != nil {
		return false, false
	}
	return strings.TrimSpace(string(data)) == "0", true
}

// Close stops polling
func (s *Sysfs) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}
	return nil
}
