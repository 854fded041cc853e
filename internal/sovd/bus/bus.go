// Package bus distributes command events from the single executing producer to
// any number of live subscribers. Each command has its own channel; within a
// channel every subscriber sees events in publish order, and nothing is
// buffered for subscribers that join later.
package bus

import (
	"context"
	"errors"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
)

// ChannelPrefix namespaces the per-command channels.
const ChannelPrefix = "response:"

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("bus closed")

// ErrSlowSubscriber ends a subscription whose buffer overflowed.
var ErrSlowSubscriber = errors.New("subscriber too slow, events dropped")

// Channel returns the channel name of a command.
func Channel(commandID string) string {
	return ChannelPrefix + commandID
}

// Bus is a per-command publish/subscribe transport.
type Bus interface {
	core.EventPublisher

	// Subscribe starts receiving the events published on the command's channel
	// from now on.
	Subscribe(ctx context.Context, commandID string) (Subscription, error)

	// Close ends every subscription and releases the transport.
	Close() error
}

// Subscription is a live attachment to one command's channel.
type Subscription interface {
	// Events yields events until the subscription is closed. The channel is
	// closed when Close is called, the bus shuts down or the subscriber lags.
	Events() <-chan model.Event

	// Err reports why the events channel was closed, nil after a regular Close.
	Err() error

	// Close detaches the subscription. It is safe to call more than once.
	Close() error
}
