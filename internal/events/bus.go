package events

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
)

// ErrNoProbe is returned by the bus queries when no probe was configured
var ErrNoProbe = errors.New("no state probe configured")

// Bus delivers named events to at most one handler per name. Events are
// queued by sources from any goroutine and dispatched one at a time by Run,
// so handlers never overlap.
type Bus struct {
	logger   *log.Logger
	probe    Probe
	mutex    sync.Mutex
	handlers map[Name]Handler
	queue    chan Event
	done     chan struct{}
}

// NewBus creates a new event bus answering queries through probe
func NewBus(probe Probe, logger *log.Logger) *Bus {
	return &Bus{
		logger:   logger,
		probe:    probe,
		handlers: make(map[Name]Handler),
		queue:    make(chan Event, 100),
		done:     make(chan struct{}),
	}
}

// Subscribe installs handler for name. An existing handler for the same
// name is removed first, so a name never has two live handlers.
func (b *Bus) Subscribe(name Name, handler Handler) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if _, exists := b.handlers[name]; exists {
		delete(b.handlers, name)
		b.logger.Printf("Replacing existing subscription for %s", name)
	}
	b.handlers[name] = handler
}

// Unsubscribe removes the handler for name. It returns false if nothing
// was subscribed.
func (b *Bus) Unsubscribe(name Name) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if _, exists := b.handlers[name]; !exists {
		return false
	}
	delete(b.handlers, name)
	return true
}

// Subscribed reports whether name currently has a handler
func (b *Bus) Subscribed(name Name) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	_, exists := b.handlers[name]
	return exists
}

// Active returns the subscribed names in sorted order
func (b *Bus) Active() []Name {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	names := make([]Name, 0, len(b.handlers))
	for name := range b.handlers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Publish queues an event for dispatch. It blocks while the queue is full
// and returns immediately once Run has exited.
func (b *Bus) Publish(ev Event) {
	select {
	case b.queue <- ev:
	case <-b.done:
	}
}

// Dispatch delivers ev to its handler on the calling goroutine. Events
// without a subscriber are dropped and Dispatch returns false.
func (b *Bus) Dispatch(ev Event) bool {
	b.mutex.Lock()
	handler, exists := b.handlers[ev.Name]
	b.mutex.Unlock()

	if !exists {
		b.logger.Printf("Dropping %s event, no subscriber", ev.Name)
		return false
	}

	handler(ev)
	return true
}

// Run processes queued events sequentially until ctx is cancelled
func (b *Bus) Run(ctx context.Context) {
	defer close(b.done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.queue:
			b.Dispatch(ev)
		}
	}
}

// PowerConnected asks the probe whether external power is present
func (b *Bus) PowerConnected() (bool, error) {
	if b.probe == nil {
		return false, ErrNoProbe
	}
	return b.probe.PowerConnected()
}

// BatteryFull asks the probe whether the battery reports full charge
func (b *Bus) BatteryFull() (bool, error) {
	if b.probe == nil {
		return false, ErrNoProbe
	}
	return b.probe.BatteryFull()
}
