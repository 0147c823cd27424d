package service

import (
	"context"
	"log"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/librescoot/powerled-service/internal/config"
	"github.com/librescoot/powerled-service/internal/fsm"
	"github.com/librescoot/powerled-service/internal/indicator"
	"github.com/redis/go-redis/v9"
	redis_ipc "github.com/rescoot/redis-ipc"
)

func TestPublishStateUsesItsOwnHash(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("Invalid miniredis port %q: %v", mr.Port(), err)
	}

	ipc, err := redis_ipc.New(redis_ipc.Config{
		Address:       mr.Host(),
		Port:          port,
		RetryInterval: 10 * time.Millisecond,
		MaxRetries:    1,
	})
	if err != nil {
		t.Fatalf("Failed to create Redis client: %v", err)
	}
	defer ipc.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cfg := config.New()
	logger := log.New(&syncBuffer{}, "", 0)
	svc := &Service{config: cfg, logger: logger, redis: ipc}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pubsub := client.Subscribe(ctx, cfg.StateKey, cfg.IndicatorKey)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	if _, err := pubsub.Receive(ctx); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	sink := indicator.NewRedisSink(ctx, client, cfg.IndicatorKey, logger)
	if err := sink.Set(indicator.ColorOrange, indicator.PatternCharging); err != nil {
		t.Fatalf("Failed to set indicator: %v", err)
	}
	svc.publishState(fsm.StateConnected, fsm.StateConnectedScreenOff, indicator.ColorOrange)

	if got := mr.HGet(cfg.StateKey, "state"); got != string(fsm.StateConnectedScreenOff) {
		t.Errorf("Expected state %s, got %q", fsm.StateConnectedScreenOff, got)
	}
	if got := mr.HGet(cfg.StateKey, "color"); got != "orange" {
		t.Errorf("Expected state color orange, got %q", got)
	}
	if got := mr.HGet(cfg.IndicatorKey, "state"); got != "" {
		t.Errorf("Expected indicator hash to carry no state, got %q", got)
	}

	announcements := map[string]string{}
	for range 2 {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			t.Fatalf("Failed to receive announcement: %v", err)
		}
		announcements[msg.Channel] = msg.Payload
	}
	if announcements[cfg.IndicatorKey] != "color" {
		t.Errorf("Expected color on %s, got %q", cfg.IndicatorKey, announcements[cfg.IndicatorKey])
	}
	if announcements[cfg.StateKey] != "state" {
		t.Errorf("Expected state on %s, got %q", cfg.StateKey, announcements[cfg.StateKey])
	}
}

func TestPublishStateWithoutRedis(t *testing.T) {
	svc := &Service{config: config.New(), logger: log.New(&syncBuffer{}, "", 0)}
	svc.publishState(fsm.StateDisconnected, fsm.StateConnected, indicator.ColorNone)
}
