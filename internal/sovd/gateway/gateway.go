// Package gateway relays command events from the bus to WebSocket clients.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/pkg/util"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/auth"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/bus"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/log"
)

// PathVar is the mux variable holding the command id.
const PathVar = "command_id"

// DefaultPingInterval is used when no interval is configured.
const DefaultPingInterval = 30 * time.Second

var (
	errFinished   = errors.New("command finished")
	errClientGone = errors.New("client disconnected")
)

// CommandReader is the read side of the lifecycle manager used for replay.
type CommandReader interface {
	GetCommand(ctx context.Context, commandID string) (*model.Command, error)
	ListResponses(ctx context.Context, commandID string) ([]*model.ResponseChunk, error)
}

// TokenAuthenticator resolves a bearer token to an active user.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// Gateway serves GET /ws/responses/{command_id}.
type Gateway struct {
	bus          bus.Bus
	commands     CommandReader
	auth         TokenAuthenticator
	registry     *Registry
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	logger       log.Logger

	// mu orders relays.Add against the closing flag so Shutdown's Wait never
	// races a new relay.
	mu      sync.Mutex
	closing atomic.Bool
	relays  sync.WaitGroup
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithPingInterval sets how often idle clients are pinged.
func WithPingInterval(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.pingInterval = d
		}
	}
}

// WithRegistry shares a registry between gateways.
func WithRegistry(r *Registry) Option {
	return func(g *Gateway) {
		g.registry = r
	}
}

// New creates a Gateway.
func New(b bus.Bus, commands CommandReader, authn TokenAuthenticator, opts ...Option) *Gateway {
	g := &Gateway{
		bus:          b,
		commands:     commands,
		auth:         authn,
		registry:     NewRegistry(),
		pingInterval: DefaultPingInterval,
		logger:       log.WithName("gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Browsers on other origins authenticate with the token parameter.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Registry returns the live connection registry.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// ServeHTTP upgrades the request and relays the command's events until a
// terminal event, a client disconnect or shutdown.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	commandID := mux.Vars(r)[PathVar]

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		g.logger.Debug("WebSocket upgrade failed", "command_id", commandID, "error", err.Error())
		return
	}
	if !g.enter() {
		reject(ws, websocket.CloseGoingAway, "Server shutting down")
		return
	}
	defer g.relays.Done()

	// The request context is canceled by net/http only when the handler
	// returns, so the relay derives its own.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	token := r.URL.Query().Get("token")
	if token == "" {
		token = auth.BearerToken(r)
	}
	user, err := g.auth.Authenticate(ctx, token)
	if err != nil {
		g.logger.Info("Rejecting unauthenticated WebSocket", "command_id", commandID, "reason", err.Error())
		reject(ws, websocket.ClosePolicyViolation, "Authentication failed")
		return
	}

	if _, err := g.commands.GetCommand(ctx, commandID); err != nil {
		if errors.Is(err, util.ErrNotFound) {
			reject(ws, websocket.ClosePolicyViolation, "Command not found")
			return
		}
		g.logger.Error(err, "Failed to load command", "command_id", commandID)
		reject(ws, websocket.CloseInternalServerErr, "Internal error")
		return
	}

	conn := newConn(ws, commandID, user.ID)
	logger := g.logger.WithValues("command_id", commandID, "conn_id", conn.ID, "user_id", user.ID)
	g.registry.Register(conn)
	// Shutdown may have broadcast while this request was authenticating.
	if g.closing.Load() {
		_ = conn.SendClose(websocket.CloseGoingAway, "Server shutting down")
		g.registry.Deregister(conn)
		_ = conn.Close()
		return
	}

	sub, err := g.bus.Subscribe(ctx, commandID)
	if err != nil {
		logger.Error(err, "Failed to subscribe")
		_ = conn.SendClose(websocket.CloseInternalServerErr, "Internal error")
		g.registry.Deregister(conn)
		_ = conn.Close()
		return
	}
	logger.Info("WebSocket connected")

	err = g.relay(ctx, conn, sub)
	switch {
	case errors.Is(err, errFinished):
		logger.Info("Relay finished")
	case errors.Is(err, errClientGone), errors.Is(err, context.Canceled):
		logger.Info("WebSocket disconnected")
	default:
		logger.Warn("Relay ended", "error", err.Error())
	}

	g.teardown(logger, conn, sub)
}

// relay runs the bus forwarder and the disconnect watcher until either stops.
func (g *Gateway) relay(ctx context.Context, conn *Conn, sub bus.Subscription) error {
	eg, ectx := errgroup.WithContext(ctx)

	// A blocked read only returns on error, so force one once the group ends.
	stop := context.AfterFunc(ectx, func() {
		_ = conn.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	eg.Go(func() error { return g.forward(ectx, conn, sub) })
	eg.Go(func() error { return g.watchClient(conn) })
	return eg.Wait()
}

// forward replays what is already persisted and then streams live events.
// The subscription exists before the replay reads, so nothing falls in between;
// live chunks that were part of the replay are skipped by sequence number.
func (g *Gateway) forward(ctx context.Context, conn *Conn, sub bus.Subscription) error {
	cmd, err := g.commands.GetCommand(ctx, conn.CommandID)
	if err != nil {
		return fmt.Errorf("reload command: %w", err)
	}
	// Read after the status: a terminal status implies all chunks are persisted.
	chunks, err := g.commands.ListResponses(ctx, conn.CommandID)
	if err != nil {
		return fmt.Errorf("load responses: %w", err)
	}

	lastSeq := -1
	for _, c := range chunks {
		if err := conn.SendEvent(model.NewResponseEvent(c)); err != nil {
			return fmt.Errorf("send replayed chunk %d: %w", c.Sequence, err)
		}
		lastSeq = c.Sequence
	}
	if terminal, ok := model.TerminalEvent(cmd); ok {
		if err := conn.SendEvent(terminal); err != nil {
			return fmt.Errorf("send terminal event: %w", err)
		}
		_ = conn.SendClose(websocket.CloseNormalClosure, "Command finished")
		return errFinished
	}

	ticker := time.NewTicker(g.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				return fmt.Errorf("ping: %w", err)
			}

		case e, ok := <-sub.Events():
			if !ok {
				return g.interrupted(conn, sub.Err())
			}
			if e.Type == model.EventResponse && e.Sequence <= lastSeq {
				continue
			}
			if err := conn.SendEvent(e); err != nil {
				return fmt.Errorf("send %s event: %w", e.Type, err)
			}
			if e.IsTerminal() {
				_ = conn.SendClose(websocket.CloseNormalClosure, "Command finished")
				return errFinished
			}
		}
	}
}

// interrupted tells the client why its stream stopped before the command
// finished. A dropped slow subscriber may reconnect and replay.
func (g *Gateway) interrupted(conn *Conn, cause error) error {
	if errors.Is(cause, bus.ErrSlowSubscriber) {
		_ = conn.SendClose(websocket.CloseTryAgainLater, "Stream fell behind, reconnect to resume")
	} else {
		_ = conn.SendClose(websocket.CloseInternalServerErr, "Event stream interrupted")
	}
	if cause == nil {
		cause = bus.ErrClosed
	}
	return fmt.Errorf("subscription closed: %w", cause)
}

// watchClient reads until the client goes away. Clients are not expected to send
// data; anything they send is discarded.
func (g *Gateway) watchClient(conn *Conn) error {
	conn.ws.SetReadLimit(maxMessageSize)
	pongWait := g.pingInterval + writeWait
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ws.ReadMessage(); err != nil {
			return fmt.Errorf("%w: %v", errClientGone, err)
		}
	}
}

// teardown runs every step even if an earlier one fails.
func (g *Gateway) teardown(logger log.Logger, conn *Conn, sub bus.Subscription) {
	if err := sub.Close(); err != nil {
		logger.Error(err, "Failed to unsubscribe")
	}
	g.registry.Deregister(conn)
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Debug("Closing WebSocket", "error", err.Error())
	}
}

// Shutdown sends a going-away close frame to every live connection and waits
// for their relays to finish.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closing.Store(true)
	g.mu.Unlock()

	for _, id := range g.registry.Commands() {
		g.registry.Broadcast(id, func(c *Conn) error {
			err := c.SendClose(websocket.CloseGoingAway, "Server shutting down")
			_ = c.Close()
			return err
		})
	}

	done := make(chan struct{})
	go func() {
		g.relays.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enter admits a relay unless shutdown has begun.
func (g *Gateway) enter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closing.Load() {
		return false
	}
	g.relays.Add(1)
	return true
}

func reject(ws *websocket.Conn, code int, reason string) {
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	_ = ws.Close()
}
