package source

import (
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/librescoot/powerled-service/internal/events"
	redis_ipc "github.com/rescoot/redis-ipc"
)

func newTestRedisSource(t *testing.T) (*Redis, *miniredis.Miniredis, *collector) {
	t.Helper()
	mr := miniredis.RunT(t)

	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("Invalid miniredis port %q: %v", mr.Port(), err)
	}

	client, err := redis_ipc.New(redis_ipc.Config{
		Address:       mr.Host(),
		Port:          port,
		RetryInterval: 10 * time.Millisecond,
		MaxRetries:    1,
	})
	if err != nil {
		t.Fatalf("Failed to create Redis client: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	src := NewRedis(client, RedisKeys{
		PowerKey:     "power-supply",
		PowerField:   "online",
		BatteryKey:   "battery:0",
		BatteryField: "charge-status",
		ScreenKey:    "dashboard",
		ScreenField:  "backlight",
	}, newTestLogger())

	pub := &collector{}
	src.pub = pub
	return src, mr, pub
}

func TestRedisHandlersTranslateFields(t *testing.T) {
	src, mr, pub := newTestRedisSource(t)

	tests := []struct {
		name    string
		key     string
		field   string
		value   string
		handler func([]byte) error
		want    events.Event
	}{
		{"plugged", "power-supply", "online", "1", src.onPower, events.Event{Name: events.PowerConnected}},
		{"unplugged", "power-supply", "online", "0", src.onPower, events.Event{Name: events.PowerDisconnected}},
		{"charging", "battery:0", "charge-status", "charging", src.onBattery,
			events.Event{Name: events.BatteryStatusChanged, Status: events.StatusCharging}},
		{"full", "battery:0", "charge-status", "full", src.onBattery,
			events.Event{Name: events.BatteryStatusChanged, Status: events.StatusFull}},
		{"screen off", "dashboard", "backlight", "off", src.onScreen, events.Event{Name: events.ScreenOff}},
		{"screen on", "dashboard", "backlight", "on", src.onScreen, events.Event{Name: events.ScreenOn}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr.HSet(tt.key, tt.field, tt.value)

			if err := tt.handler([]byte(tt.field)); err != nil {
				t.Fatalf("Handler failed: %v", err)
			}
			if got := pub.take(); !reflect.DeepEqual(got, []events.Event{tt.want}) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRedisHandlersRejectInvalidValues(t *testing.T) {
	src, mr, pub := newTestRedisSource(t)

	mr.HSet("power-supply", "online", "maybe")
	if err := src.onPower([]byte("online")); err == nil {
		t.Errorf("Expected error for invalid power state")
	}

	mr.HSet("dashboard", "backlight", "dim")
	if err := src.onScreen([]byte("backlight")); err == nil {
		t.Errorf("Expected error for invalid screen state")
	}

	if got := pub.take(); len(got) != 0 {
		t.Errorf("Expected nothing published, got %v", got)
	}
}

func TestRedisQueries(t *testing.T) {
	src, mr, _ := newTestRedisSource(t)

	if _, err := src.PowerConnected(); err == nil {
		t.Errorf("Expected error without power state")
	}

	mr.HSet("power-supply", "online", "1")
	mr.HSet("battery:0", "charge-status", "full")

	connected, err := src.PowerConnected()
	if err != nil || !connected {
		t.Errorf("Expected connected, got %v (err=%v)", connected, err)
	}
	full, err := src.BatteryFull()
	if err != nil || !full {
		t.Errorf("Expected full, got %v (err=%v)", full, err)
	}

	mr.HSet("battery:0", "charge-status", "not charging")
	full, err = src.BatteryFull()
	if err != nil || full {
		t.Errorf("Expected not full, got %v (err=%v)", full, err)
	}
}
