package indicator_test

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/librescoot/powerled-service/internal/indicator"
	"github.com/redis/go-redis/v9"
)

func TestRedisSinkWritesHashAndAnnounces(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	pubsub := client.Subscribe(ctx, "power-led")
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	sink := indicator.NewRedisSink(ctx, client, "power-led", log.New(io.Discard, "", 0))

	if err := sink.Set(indicator.ColorOrange, indicator.PatternCharging); err != nil {
		t.Fatalf("Failed to set indicator: %v", err)
	}

	want := map[string]string{"color": "orange", "on-ms": "7000", "off-ms": "500"}
	for field, value := range want {
		if got := mr.HGet("power-led", field); got != value {
			t.Errorf("Expected %s=%s, got %q", field, value, got)
		}
	}

	msg, err := pubsub.ReceiveMessage(withTimeout(t))
	if err != nil {
		t.Fatalf("Failed to receive announcement: %v", err)
	}
	if msg.Channel != "power-led" || msg.Payload != "color" {
		t.Errorf("Expected color on power-led, got %q on %q", msg.Payload, msg.Channel)
	}

	if err := sink.Clear(); err != nil {
		t.Fatalf("Failed to clear indicator: %v", err)
	}
	if got := mr.HGet("power-led", "color"); got != "none" {
		t.Errorf("Expected color none after clear, got %q", got)
	}
	if got := mr.HGet("power-led", "on-ms"); got != "0" {
		t.Errorf("Expected on-ms 0 after clear, got %q", got)
	}
}

func TestRedisSinkReportsUnreachableServer(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	sink := indicator.NewRedisSink(context.Background(), client, "power-led", log.New(io.Discard, "", 0))
	if err := sink.Set(indicator.ColorGreen, indicator.PatternFull); err == nil {
		t.Errorf("Expected error with Redis down")
	}
}

func withTimeout(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	return ctx
}
