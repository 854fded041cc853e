package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/log"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/mqtt"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/mqtt/topic"
)

var _ Bus = (*MQTTBus)(nil)

// MQTTBus shares command channels between processes through an MQTT broker.
// Each process holds at most one broker subscription per command and fans the
// received events out to its local subscribers.
type MQTTBus struct {
	client mqtt.Client
	topics *topic.TopicBuilder
	qos    int
	local  *MemoryBus
	logger log.Logger

	// mu serializes broker SUBSCRIBE/UNSUBSCRIBE for the same command.
	mu     sync.Mutex
	active map[string]bool
}

// NewMQTTBus creates a bus on top of a started MQTT client.
func NewMQTTBus(client mqtt.Client, topics *topic.TopicBuilder, qos, buffer int) *MQTTBus {
	b := &MQTTBus{
		client: client,
		topics: topics,
		qos:    qos,
		local:  NewMemoryBus(buffer),
		logger: log.WithName("bus"),
		active: make(map[string]bool),
	}
	b.local.onEmpty = b.release
	return b
}

// Publish sends the event to the broker; local subscribers receive it when
// the broker echoes it back.
func (b *MQTTBus) Publish(ctx context.Context, commandID string, event model.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event for %s: %w", event.Type, commandID, err)
	}
	if err := b.client.Publish(ctx, b.topics.Response(commandID), b.qos, false, payload); err != nil {
		return fmt.Errorf("publish %s event for %s: %w", event.Type, commandID, err)
	}
	return nil
}

// Subscribe attaches a local subscriber and makes sure the broker forwards the
// command's topic to this process.
func (b *MQTTBus) Subscribe(ctx context.Context, commandID string) (Subscription, error) {
	sub, err := b.local.Subscribe(ctx, commandID)
	if err != nil {
		return nil, err
	}

	channel := Channel(commandID)

	b.mu.Lock()
	if b.active[channel] {
		b.mu.Unlock()
		return sub, nil
	}
	err = b.client.Subscribe(ctx, b.topics.Response(commandID), b.qos, b.onMessage)
	if err == nil {
		b.active[channel] = true
	}
	b.mu.Unlock()

	if err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", channel, err)
	}
	return sub, nil
}

// Close ends all local subscriptions. The MQTT client is owned by the caller.
func (b *MQTTBus) Close() error {
	return b.local.Close()
}

func (b *MQTTBus) onMessage(_ context.Context, t string, payload []byte) {
	commandID, ok := b.topics.CommandID(t)
	if !ok {
		b.logger.Debug("Ignoring message on foreign topic", "topic", t)
		return
	}

	var event model.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		b.logger.Error(err, "Discarding undecodable event", "topic", t)
		return
	}
	b.local.deliver(Channel(commandID), event)
}

// release drops the broker subscription once the last local subscriber left.
func (b *MQTTBus) release(channel string) {
	commandID := strings.TrimPrefix(channel, ChannelPrefix)

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active[channel] || b.local.Subscribers(commandID) > 0 {
		return
	}
	delete(b.active, channel)

	if err := b.client.Unsubscribe(context.Background(), b.topics.Response(commandID)); err != nil {
		b.logger.Error(err, "Failed to unsubscribe", "channel", channel)
	}
}
