package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/librescoot/powerled-service/internal/config"
	"github.com/librescoot/powerled-service/internal/events"
	"github.com/librescoot/powerled-service/internal/fsm"
	"github.com/librescoot/powerled-service/internal/indicator"
	"github.com/librescoot/powerled-service/internal/source"
	"github.com/librescoot/powerled-service/internal/systemd"
	"github.com/redis/go-redis/v9"
	redis_ipc "github.com/rescoot/redis-ipc"
)

type Service struct {
	config        *config.Config
	logger        *log.Logger
	redis         *redis_ipc.Client
	standardRedis *redis.Client
	systemd       *systemd.Client

	source  source.Source
	sinks   *indicator.Multi
	bus     *events.Bus
	machine *fsm.Machine

	initialRetries    int
	initialRetryDelay time.Duration
}

func New(cfg *config.Config, logger *log.Logger) (*Service, error) {
	policy, err := fsm.ParsePolicy(cfg.ScreenOnPolicy)
	if err != nil {
		return nil, err
	}

	service := &Service{
		config:            cfg,
		logger:            logger,
		initialRetries:    10,
		initialRetryDelay: 500 * time.Millisecond,
	}

	if cfg.NeedsRedis() {
		redisClient, err := redis_ipc.New(redis_ipc.Config{
			Address:       cfg.RedisHost,
			Port:          cfg.RedisPort,
			RetryInterval: 5 * time.Second,
			MaxRetries:    3,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis client: %w", err)
		}
		service.redis = redisClient
	}

	if err := service.createSource(); err != nil {
		service.close()
		return nil, err
	}

	if err := service.createSinks(); err != nil {
		service.close()
		return nil, err
	}

	systemdClient, err := systemd.NewClient()
	if err != nil {
		service.close()
		return nil, fmt.Errorf("failed to create systemd client: %w", err)
	}
	service.systemd = systemdClient

	service.bus = events.NewBus(service.source, logger)
	service.machine = fsm.NewMachine(service.bus, service.sinks, policy, logger)
	if cfg.PublishState {
		service.machine.OnTransition(service.publishState)
	}

	return service, nil
}

func (s *Service) createSource() error {
	switch s.config.Source {
	case config.SourceRedis:
		s.source = source.NewRedis(s.redis, source.RedisKeys{
			PowerKey:     s.config.PowerKey,
			PowerField:   s.config.PowerField,
			BatteryKey:   s.config.BatteryKey,
			BatteryField: s.config.BatteryField,
			ScreenKey:    s.config.ScreenKey,
			ScreenField:  s.config.ScreenField,
		}, s.logger)

	case config.SourceUPower:
		upower, err := source.NewUPower(s.logger)
		if err != nil {
			return fmt.Errorf("failed to create UPower source: %w", err)
		}
		s.source = upower

	case config.SourceSysfs:
		sysfsSource, err := source.NewSysfs(source.SysfsConfig{
			Root:         s.config.SysfsRoot,
			PollInterval: s.config.PollInterval,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("failed to create sysfs source: %w", err)
		}
		s.source = sysfsSource

	default:
		return fmt.Errorf("%w: %q", config.ErrUnknownSource, s.config.Source)
	}

	s.logger.Printf("Using %s event source", s.config.Source)
	return nil
}

func (s *Service) createSinks() error {
	var outputs []indicator.Sink

	for _, name := range s.config.SinkList() {
		switch name {
		case config.SinkGPIO:
			gpio, err := indicator.NewGPIOSink(indicator.GPIOConfig{
				Chip:         s.config.GPIOChip,
				GreenOffset:  s.config.GreenLEDOffset,
				OrangeOffset: s.config.OrangeLEDOffset,
			}, s.logger, s.config.DryRun)
			if err != nil {
				s.sinks = indicator.NewMulti(outputs...)
				return fmt.Errorf("failed to create GPIO indicator: %w", err)
			}
			outputs = append(outputs, gpio)

		case config.SinkRedis:
			if s.standardRedis == nil {
				s.standardRedis = redis.NewClient(&redis.Options{
					Addr: fmt.Sprintf("%s:%d", s.config.RedisHost, s.config.RedisPort),
					DB:   0,
				})
			}
			outputs = append(outputs, indicator.NewRedisSink(context.Background(),
				s.standardRedis, s.config.IndicatorKey, s.logger))

		case config.SinkLog:
			outputs = append(outputs, indicator.NewLogSink(s.logger, ""))

		default:
			s.sinks = indicator.NewMulti(outputs...)
			return fmt.Errorf("%w: %q", config.ErrUnknownSink, name)
		}
	}

	s.sinks = indicator.NewMulti(outputs...)
	s.logger.Printf("Indicator outputs: %v", s.config.SinkList())
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.source.Start(ctx, s.bus); err != nil {
		s.close()
		return fmt.Errorf("failed to start %s source: %w", s.config.Source, err)
	}

	s.waitForInitialState(ctx)
	s.machine.Start()

	if _, err := s.systemd.Notify(systemd.Ready); err != nil {
		s.logger.Printf("Failed to notify systemd: %v", err)
	}

	// Run event loop
	s.bus.Run(ctx)

	if _, err := s.systemd.Notify(systemd.Stopping); err != nil {
		s.logger.Printf("Failed to notify systemd: %v", err)
	}

	s.machine.Stop()
	s.close()

	return nil
}

// waitForInitialState retries the power query while the source is coming
// up. If it never answers the machine starts disconnected and catches up
// from the next power event.
func (s *Service) waitForInitialState(ctx context.Context) {
	for i := range s.initialRetries {
		connected, err := s.source.PowerConnected()
		if err == nil {
			s.logger.Printf("Successfully read initial power state: connected=%v", connected)
			return
		}

		if i < s.initialRetries-1 {
			s.logger.Printf("Failed to read initial power state (attempt %d/%d): %v. Retrying in %v...",
				i+1, s.initialRetries, err, s.initialRetryDelay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.initialRetryDelay):
			}
		}
	}

	s.logger.Printf("WARNING: Failed to read initial power state after %d attempts, starting disconnected", s.initialRetries)
}

// publishState mirrors the machine state into its own hash, apart from
// the LED hash written by the redis output
func (s *Service) publishState(from, to fsm.State, color indicator.Color) {
	if s.redis == nil {
		return
	}

	s.logger.Printf("Publishing indicator state: %s (%s)", to, color)

	tx := s.redis.NewTxGroup("power-led-state")

	tx.Add("HSET", s.config.StateKey, "state", string(to), "color", color.String())

	tx.Add("PUBLISH", s.config.StateKey, "state")

	if _, err := tx.Exec(); err != nil {
		s.logger.Printf("Failed to publish indicator state: %v", err)
	}
}

func (s *Service) close() {
	if s.source != nil {
		if err := s.source.Close(); err != nil {
			s.logger.Printf("Failed to close %s source: %v", s.config.Source, err)
		}
	}

	if s.sinks != nil {
		if err := s.sinks.Close(); err != nil {
			s.logger.Printf("Failed to close indicator outputs: %v", err)
		}
	}

	if s.systemd != nil {
		s.systemd.Close()
	}

	if s.standardRedis != nil {
		if err := s.standardRedis.Close(); err != nil {
			s.logger.Printf("Failed to close Redis client: %v", err)
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Printf("Failed to close Redis client: %v", err)
		}
	}
}
