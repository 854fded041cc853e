package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/aman-2709/vehicle-sovd-sub000/pkg/log"
)

const reconnectDelay = 3 * time.Second

// ErrNotStarted is returned by every operation issued before Start.
var ErrNotStarted = errors.New("mqtt client not started")

type pahoClient struct {
	cfg    *ClientConfig
	logger log.Logger

	cm *autopaho.ConnectionManager
	// handlerCtx is handed to message handlers; it lives as long as Start's ctx.
	handlerCtx context.Context

	mu   sync.RWMutex
	subs map[string]subscription

	connected atomic.Bool
}

type subscription struct {
	filter  string
	qos     int
	handler MessageHandler
}

// NewClient validates cfg, fills in defaults and returns an unconnected client.
func NewClient(cfg *ClientConfig) (Client, error) {
	if cfg == nil {
		return nil, errors.New("mqtt config is required")
	}
	setDefaultConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mqtt config: %w", err)
	}

	return &pahoClient{
		cfg:    cfg,
		logger: log.WithName("mqtt").WithValues("client_id", cfg.ClientID),
		subs:   make(map[string]subscription),
	}, nil
}

func (c *pahoClient) Start(ctx context.Context) error {
	broker, err := url.Parse(c.cfg.BrokerURL)
	if err != nil {
		return err
	}

	cm, err := autopaho.NewConnection(ctx, autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{broker},
		KeepAlive:                     c.cfg.KeepAlive,
		CleanStartOnInitialConnection: c.cfg.CleanStart,
		SessionExpiryInterval:         c.cfg.SessionExpiry,
		ReconnectBackoff:              autopaho.NewConstantBackoff(reconnectDelay),
		ConnectTimeout:                c.cfg.ConnectTimeout,
		ConnectUsername:               c.cfg.Username,
		ConnectPassword:               []byte(c.cfg.Password),
		TlsCfg:                        &tls.Config{InsecureSkipVerify: c.cfg.InsecureSkipVerify},
		WillMessage:                   c.willMessage(),
		OnConnectionUp:                c.onConnectionUp,
		OnConnectError:                c.onConnectError,
		ClientConfig: paho.ClientConfig{
			ClientID:           c.cfg.ClientID,
			OnClientError:      c.onClientError,
			OnServerDisconnect: c.onServerDisconnect,
			OnPublishReceived:  []func(paho.PublishReceived) (bool, error){c.route},
		},
	})
	if err != nil {
		return err
	}

	c.handlerCtx = ctx
	c.cm = cm
	c.logger.Info("MQTT client started", "broker", c.cfg.BrokerURL)
	return nil
}

func (c *pahoClient) Disconnect(ctx context.Context) {
	if c.cm == nil {
		return
	}
	if err := c.cm.Disconnect(ctx); err != nil {
		c.logger.Error(err, "MQTT disconnect was not clean")
		return
	}
	c.logger.Info("MQTT client disconnected")
}

func (c *pahoClient) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	if c.cm == nil {
		return ErrNotStarted
	}
	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     byte(qos),
		Retain:  retain,
		Payload: payload,
	})
	return err
}

// Subscribe records the handler before sending SUBSCRIBE so that retained
// messages delivered with the SUBACK are routed.
func (c *pahoClient) Subscribe(ctx context.Context, filter string, qos int, handler MessageHandler) error {
	if c.cm == nil {
		return ErrNotStarted
	}

	s := subscription{filter: filter, qos: qos, handler: handler}
	c.mu.Lock()
	c.subs[filter] = s
	c.mu.Unlock()

	if _, err := c.cm.Subscribe(ctx, subscribePacket(s)); err != nil {
		c.mu.Lock()
		delete(c.subs, filter)
		c.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	c.logger.Debug("Subscribed", "filter", filter)
	return nil
}

func (c *pahoClient) Unsubscribe(ctx context.Context, filter string) error {
	if c.cm == nil {
		return ErrNotStarted
	}

	c.mu.Lock()
	delete(c.subs, filter)
	c.mu.Unlock()

	_, err := c.cm.Unsubscribe(ctx, &paho.Unsubscribe{Topics: []string{filter}})
	return err
}

func (c *pahoClient) AwaitConnection(ctx context.Context) error {
	if c.cm == nil {
		return ErrNotStarted
	}
	return c.cm.AwaitConnection(ctx)
}

// IsConnected reports the state last observed by the connection callbacks.
func (c *pahoClient) IsConnected() bool {
	return c.connected.Load()
}

func (c *pahoClient) snapshot() []subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]subscription, 0, len(c.subs))
	for _, s := range c.subs {
		out = append(out, s)
	}
	return out
}

func subscribePacket(subs ...subscription) *paho.Subscribe {
	p := &paho.Subscribe{Subscriptions: make([]paho.SubscribeOptions, 0, len(subs))}
	for _, s := range subs {
		p.Subscriptions = append(p.Subscriptions, paho.SubscribeOptions{Topic: s.filter, QoS: byte(s.qos)})
	}
	return p
}

// onConnectionUp restores every live subscription in one SUBSCRIBE packet.
func (c *pahoClient) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	c.connected.Store(true)

	subs := c.snapshot()
	c.logger.Info("MQTT connection up", "subscriptions", len(subs))
	if len(subs) == 0 {
		return
	}
	if _, err := cm.Subscribe(context.Background(), subscribePacket(subs...)); err != nil {
		c.logger.Error(err, "Failed to restore subscriptions", "count", len(subs))
	}
}

func (c *pahoClient) onConnectError(err error) {
	c.connected.Store(false)
	c.logger.Error(err, "MQTT connect failed, retrying", "delay", reconnectDelay)
}

func (c *pahoClient) onClientError(err error) {
	c.connected.Store(false)
	c.logger.Error(err, "MQTT client error")
}

func (c *pahoClient) onServerDisconnect(d *paho.Disconnect) {
	c.connected.Store(false)
	var reason string
	if d.Properties != nil {
		reason = d.Properties.ReasonString
	}
	c.logger.Warn("MQTT broker closed the session", "code", d.ReasonCode, "reason", reason)
}

// route runs matching handlers inline on the reader goroutine, which keeps
// per-topic arrival order. Handlers must not block.
func (c *pahoClient) route(p paho.PublishReceived) (bool, error) {
	topic := p.Packet.Topic
	matched := false
	for _, s := range c.snapshot() {
		if topicsMatch(topicFilter(s.filter), topic) {
			s.handler(c.handlerCtx, topic, p.Packet.Payload)
			matched = true
		}
	}
	if !matched {
		c.logger.Debug("No handler for topic", "topic", topic)
	}
	return true, nil
}

func (c *pahoClient) willMessage() *paho.WillMessage {
	if c.cfg.WillTopic == "" {
		return nil
	}
	return &paho.WillMessage{
		Topic:   c.cfg.WillTopic,
		Payload: c.cfg.WillPayload,
		QoS:     c.cfg.WillQoS,
		Retain:  c.cfg.WillRetain,
	}
}

// topicsMatch reports whether topic is covered by filter, honoring the + and #
// wildcards.
func topicsMatch(filter, topic string) bool {
	if filter == topic {
		return true
	}
	if !strings.ContainsAny(filter, "+#") {
		return false
	}

	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, part := range fp {
		switch {
		case part == "#":
			return true
		case i >= len(tp):
			return false
		case part != "+" && part != tp[i]:
			return false
		}
	}
	return len(fp) == len(tp)
}

// topicFilter strips the $share/<group>/ prefix of a shared subscription.
func topicFilter(filter string) string {
	if rest, ok := strings.CutPrefix(filter, "$share/"); ok {
		if _, f, ok := strings.Cut(rest, "/"); ok {
			return f
		}
	}
	return filter
}
