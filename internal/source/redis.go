package source

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/librescoot/powerled-service/internal/events"
	redis_ipc "github.com/rescoot/redis-ipc"
)

// RedisKeys names the hashes and fields the Redis source reads. Each hash
// is also the pub/sub channel on which the field name is announced when
// it changes.
type RedisKeys struct {
	PowerKey     string
	PowerField   string
	BatteryKey   string
	BatteryField string
	ScreenKey    string
	ScreenField  string
}

// Redis reads power, battery and screen state from Redis hashes
type Redis struct {
	client *redis_ipc.Client
	keys   RedisKeys
	logger *log.Logger
	pub    Publisher
}

// NewRedis creates a Redis source on an existing redis-ipc client. The
// client stays owned by the caller.
func NewRedis(client *redis_ipc.Client, keys RedisKeys, logger *log.Logger) *Redis {
	return &Redis{
		client: client,
		keys:   keys,
		logger: logger,
	}
}

func (r *Redis) Start(ctx context.Context, pub Publisher) error {
	r.pub = pub

	powerSubscriber := r.client.Subscribe(r.keys.PowerKey)
	if err := powerSubscriber.Handle(r.keys.PowerField, r.onPower); err != nil {
		return fmt.Errorf("failed to subscribe to %s %s: %w", r.keys.PowerKey, r.keys.PowerField, err)
	}

	batterySubscriber := r.client.Subscribe(r.keys.BatteryKey)
	if err := batterySubscriber.Handle(r.keys.BatteryField, r.onBattery); err != nil {
		return fmt.Errorf("failed to subscribe to %s %s: %w", r.keys.BatteryKey, r.keys.BatteryField, err)
	}

	screenSubscriber := r.client.Subscribe(r.keys.ScreenKey)
	if err := screenSubscriber.Handle(r.keys.ScreenField, r.onScreen); err != nil {
		return fmt.Errorf("failed to subscribe to %s %s: %w", r.keys.ScreenKey, r.keys.ScreenField, err)
	}

	r.logger.Printf("Listening for power (%s), battery (%s) and screen (%s) updates",
		r.keys.PowerKey, r.keys.BatteryKey, r.keys.ScreenKey)
	return nil
}

func (r *Redis) onPower(data []byte) error {
	connected, err := r.PowerConnected()
	if err != nil {
		return err
	}
	r.pub.Publish(powerEvent(connected))
	return nil
}

func (r *Redis) onBattery(data []byte) error {
	status, err := r.batteryStatus()
	if err != nil {
		return err
	}
	r.pub.Publish(batteryEvent(status))
	return nil
}

func (r *Redis) onScreen(data []byte) error {
	value, err := r.client.HGet(r.keys.ScreenKey, r.keys.ScreenField)
	if err != nil {
		return fmt.Errorf("failed to get screen state: %w", err)
	}

	on, err := parseScreenState(value)
	if err != nil {
		return err
	}
	r.pub.Publish(screenEvent(on))
	return nil
}

// PowerConnected reads the power supply field
func (r *Redis) PowerConnected() (bool, error) {
	value, err := r.client.HGet(r.keys.PowerKey, r.keys.PowerField)
	if err != nil {
		return false, fmt.Errorf("failed to get power state: %w", err)
	}
	return parseOnline(value)
}

// BatteryFull reads the battery charge status field
func (r *Redis) BatteryFull() (bool, error) {
	status, err := r.batteryStatus()
	if err != nil {
		return false, err
	}
	return status == events.StatusFull, nil
}

func (r *Redis) batteryStatus() (events.BatteryStatus, error) {
	value, err := r.client.HGet(r.keys.BatteryKey, r.keys.BatteryField)
	if err != nil {
		return events.StatusUnknown, fmt.Errorf("failed to get battery status: %w", err)
	}
	return events.ParseBatteryStatus(value), nil
}

// Close is a no-op, the redis-ipc client belongs to the caller
func (r *Redis) Close() error {
	return nil
}

func parseOnline(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on", "online", "connected":
		return true, nil
	case "0", "false", "no", "off", "offline", "disconnected":
		return false, nil
	default:
		return false, fmt.Errorf("invalid power state: %q", value)
	}
}

func parseScreenState(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "1", "true", "unblank":
		return true, nil
	case "off", "0", "false", "blank", "standby":
		return false, nil
	default:
		return false, fmt.Errorf("invalid screen state: %q", value)
	}
}
