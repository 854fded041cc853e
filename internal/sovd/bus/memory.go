package bus

import (
	"context"
	"sync"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/pkg/metrics"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/log"
)

var _ Bus = (*MemoryBus)(nil)

// MemoryBus is an in-process Bus. Publish never blocks: a subscriber whose
// buffer is full is dropped and its subscription ends with ErrSlowSubscriber.
type MemoryBus struct {
	mu       sync.RWMutex
	channels map[string]map[*subscription]struct{}
	buffer   int
	closed   bool

	// onEmpty is called with the channel name after its last subscriber left.
	onEmpty func(channel string)
}

// NewMemoryBus creates a MemoryBus with the given per-subscriber buffer size.
func NewMemoryBus(buffer int) *MemoryBus {
	if buffer < 1 {
		buffer = 1
	}
	return &MemoryBus{
		channels: make(map[string]map[*subscription]struct{}),
		buffer:   buffer,
	}
}

// Publish delivers event to every current subscriber of the command.
func (b *MemoryBus) Publish(_ context.Context, commandID string, event model.Event) error {
	b.deliver(Channel(commandID), event)
	return nil
}

func (b *MemoryBus) deliver(channel string, event model.Event) {
	var lagging []*subscription

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	for s := range b.channels[channel] {
		select {
		case s.events <- event:
		default:
			lagging = append(lagging, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range lagging {
		metrics.BusEventsDroppedTotal.Inc()
		log.Warn("Dropping lagging subscriber", "channel", channel, "event", string(event.Type))
		b.remove(s, ErrSlowSubscriber)
	}
}

// Subscribe attaches a new subscriber to the command's channel.
func (b *MemoryBus) Subscribe(_ context.Context, commandID string) (Subscription, error) {
	channel := Channel(commandID)
	s := &subscription{
		bus:     b,
		channel: channel,
		events:  make(chan model.Event, b.buffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	subs, ok := b.channels[channel]
	if !ok {
		subs = make(map[*subscription]struct{})
		b.channels[channel] = subs
	}
	subs[s] = struct{}{}
	return s, nil
}

// Subscribers returns the number of live subscribers of a command.
func (b *MemoryBus) Subscribers(commandID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels[Channel(commandID)])
}

// Close ends all subscriptions.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	channels := b.channels
	b.channels = make(map[string]map[*subscription]struct{})
	b.mu.Unlock()

	for _, subs := range channels {
		for s := range subs {
			s.finish(ErrClosed)
		}
	}
	return nil
}

func (b *MemoryBus) remove(s *subscription, reason error) {
	empty := false

	b.mu.Lock()
	if subs, ok := b.channels[s.channel]; ok {
		if _, ok := subs[s]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(b.channels, s.channel)
				empty = true
			}
		}
	}
	b.mu.Unlock()

	s.finish(reason)
	if empty && b.onEmpty != nil {
		b.onEmpty(s.channel)
	}
}

type subscription struct {
	bus     *MemoryBus
	channel string
	events  chan model.Event

	once sync.Once
	err  error
}

func (s *subscription) Events() <-chan model.Event {
	return s.events
}

func (s *subscription) Err() error {
	// err is written before events is closed, so readers that observed the
	// closed channel see it.
	return s.err
}

func (s *subscription) Close() error {
	s.bus.remove(s, nil)
	return nil
}

func (s *subscription) finish(reason error) {
	s.once.Do(func() {
		s.err = reason
		close(s.events)
	})
}
