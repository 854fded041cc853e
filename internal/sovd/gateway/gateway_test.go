package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/pkg/util"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/bus"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
)

const goodToken = "good-token"

type commandStore struct {
	mu       sync.Mutex
	commands map[string]*model.Command
	chunks   map[string][]*model.ResponseChunk

	// hold, when set, parks GetCommand until it is closed.
	hold    chan struct{}
	waiting atomic.Int32
}

func newCommandStore() *commandStore {
	return &commandStore{
		commands: make(map[string]*model.Command),
		chunks:   make(map[string][]*model.ResponseChunk),
	}
}

func (s *commandStore) put(cmd *model.Command, chunks ...*model.ResponseChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[cmd.ID] = cmd
	s.chunks[cmd.ID] = chunks
}

func (s *commandStore) GetCommand(_ context.Context, id string) (*model.Command, error) {
	s.mu.Lock()
	hold := s.hold
	s.mu.Unlock()
	if hold != nil {
		s.waiting.Add(1)
		<-hold
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.commands[id]
	if !ok {
		return nil, fmt.Errorf("command %s: %w", id, util.ErrNotFound)
	}
	c := *cmd
	return &c, nil
}

func (s *commandStore) ListResponses(_ context.Context, id string) ([]*model.ResponseChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.ResponseChunk(nil), s.chunks[id]...), nil
}

type tokenAuth struct{}

func (tokenAuth) Authenticate(_ context.Context, token string) (*model.User, error) {
	if token != goodToken {
		return nil, fmt.Errorf("%w: bad token", util.ErrUnauthorized)
	}
	return &model.User{ID: "u-1", Username: "tech", IsActive: true}, nil
}

type harness struct {
	bus      *bus.MemoryBus
	commands *commandStore
	gateway  *Gateway
	server   *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{bus: bus.NewMemoryBus(16), commands: newCommandStore()}
	h.gateway = New(h.bus, h.commands, tokenAuth{})

	r := mux.NewRouter()
	r.Handle("/ws/responses/{command_id}", h.gateway)
	h.server = httptest.NewServer(r)
	t.Cleanup(func() {
		h.server.Close()
		_ = h.bus.Close()
	})
	return h
}

func (h *harness) dial(t *testing.T, commandID, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws/responses/" + commandID + "?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func (h *harness) publish(t *testing.T, e model.Event) {
	t.Helper()
	if err := h.bus.Publish(context.Background(), e.CommandID, e); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, ws *websocket.Conn) model.Event {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e model.Event
	if err := ws.ReadJSON(&e); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return e
}

func expectClose(t *testing.T, ws *websocket.Conn, code int) {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		t.Fatalf("expected close frame, got %v", err)
	}
	if ce.Code != code {
		t.Fatalf("close code = %d (%q), want %d", ce.Code, ce.Text, code)
	}
}

func chunk(cmd string, seq int, final bool) *model.ResponseChunk {
	return &model.ResponseChunk{
		ID:        fmt.Sprintf("%s-r%d", cmd, seq),
		CommandID: cmd,
		Payload:   map[string]any{"part": float64(seq)},
		Sequence:  seq,
		IsFinal:   final,
	}
}

func running(id string) *model.Command {
	return &model.Command{ID: id, VehicleID: "veh-1", Name: "read_dtc", Status: model.CommandStatusInProgress}
}

func TestRejectsBeforeRelaying(t *testing.T) {
	tests := []struct {
		name      string
		commandID string
		token     string
		reason    string
	}{
		{"bad token", "c-1", "nope", "Authentication failed"},
		{"missing token", "c-1", "", "Authentication failed"},
		{"unknown command", "c-missing", goodToken, "Command not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.commands.put(running("c-1"))

			ws := h.dial(t, tt.commandID, tt.token)
			_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, _, err := ws.ReadMessage()
			var ce *websocket.CloseError
			if !errors.As(err, &ce) {
				t.Fatalf("expected close frame, got %v", err)
			}
			if ce.Code != websocket.ClosePolicyViolation || ce.Text != tt.reason {
				t.Errorf("close = %d %q, want %d %q", ce.Code, ce.Text, websocket.ClosePolicyViolation, tt.reason)
			}
			if n := h.bus.Subscribers(tt.commandID); n != 0 {
				t.Errorf("rejected connection left %d subscribers", n)
			}
			if n := h.gateway.Registry().Len(); n != 0 {
				t.Errorf("rejected connection left %d registry entries", n)
			}
		})
	}
}

func TestRelaysLiveEventsUntilCompletion(t *testing.T) {
	h := newHarness(t)
	h.commands.put(running("c-1"))

	ws := h.dial(t, "c-1", goodToken)
	waitFor(t, "subscription", func() bool { return h.bus.Subscribers("c-1") == 1 })

	for i := 0; i < 3; i++ {
		h.publish(t, model.NewResponseEvent(chunk("c-1", i, i == 2)))
	}
	h.publish(t, model.NewStatusEvent("c-1", time.Now()))

	for i := 0; i < 3; i++ {
		e := readEvent(t, ws)
		if e.Type != model.EventResponse || e.Sequence != i {
			t.Fatalf("event %d = %+v", i, e)
		}
		if i == 2 && !e.IsFinal {
			t.Errorf("last chunk should be final")
		}
	}
	if e := readEvent(t, ws); e.Type != model.EventStatus || e.Status != model.CommandStatusCompleted {
		t.Fatalf("status event = %+v", e)
	}
	expectClose(t, ws, websocket.CloseNormalClosure)

	waitFor(t, "teardown", func() bool {
		return h.bus.Subscribers("c-1") == 0 && h.gateway.Registry().Len() == 0
	})
}

func TestErrorEventEndsRelay(t *testing.T) {
	h := newHarness(t)
	h.commands.put(running("c-1"))

	ws := h.dial(t, "c-1", goodToken)
	waitFor(t, "subscription", func() bool { return h.bus.Subscribers("c-1") == 1 })

	h.publish(t, model.NewErrorEvent("c-1", "Vehicle unreachable", time.Now()))

	e := readEvent(t, ws)
	if e.Type != model.EventError || e.ErrorMessage != "Vehicle unreachable" {
		t.Fatalf("error event = %+v", e)
	}
	expectClose(t, ws, websocket.CloseNormalClosure)
}

func TestDisconnectDoesNotAffectSiblings(t *testing.T) {
	h := newHarness(t)
	h.commands.put(running("c-1"))

	first := h.dial(t, "c-1", goodToken)
	second := h.dial(t, "c-1", goodToken)
	waitFor(t, "two subscriptions", func() bool { return h.bus.Subscribers("c-1") == 2 })

	_ = first.Close()
	waitFor(t, "first teardown", func() bool {
		return h.bus.Subscribers("c-1") == 1 && h.gateway.Registry().Len() == 1
	})

	h.publish(t, model.NewResponseEvent(chunk("c-1", 0, false)))
	if e := readEvent(t, second); e.Sequence != 0 {
		t.Fatalf("second subscriber got %+v", e)
	}
}

func TestLateSubscriberReplaysPersistedChunks(t *testing.T) {
	h := newHarness(t)
	h.commands.put(running("c-1"), chunk("c-1", 0, false), chunk("c-1", 1, false))

	ws := h.dial(t, "c-1", goodToken)
	for i := 0; i < 2; i++ {
		if e := readEvent(t, ws); e.Sequence != i {
			t.Fatalf("replayed event %d = %+v", i, e)
		}
	}

	// A chunk persisted before the replay may also arrive live.
	h.publish(t, model.NewResponseEvent(chunk("c-1", 1, false)))
	h.publish(t, model.NewResponseEvent(chunk("c-1", 2, true)))
	h.publish(t, model.NewStatusEvent("c-1", time.Now()))

	if e := readEvent(t, ws); e.Type != model.EventResponse || e.Sequence != 2 {
		t.Fatalf("expected chunk 2 without duplicate, got %+v", e)
	}
	if e := readEvent(t, ws); e.Type != model.EventStatus {
		t.Fatalf("expected status event, got %+v", e)
	}
	expectClose(t, ws, websocket.CloseNormalClosure)
}

func TestFinishedCommandIsReplayedAndClosed(t *testing.T) {
	h := newHarness(t)
	done := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cmd := running("c-1")
	cmd.Status = model.CommandStatusFailed
	cmd.ErrorMessage = "Vehicle connection timeout"
	cmd.CompletedAt = &done
	h.commands.put(cmd, chunk("c-1", 0, false))

	ws := h.dial(t, "c-1", goodToken)
	if e := readEvent(t, ws); e.Type != model.EventResponse || e.Sequence != 0 {
		t.Fatalf("replayed chunk = %+v", e)
	}
	e := readEvent(t, ws)
	if e.Type != model.EventError || e.ErrorMessage != "Vehicle connection timeout" || !e.FailedAt.Equal(done) {
		t.Fatalf("terminal event = %+v", e)
	}
	expectClose(t, ws, websocket.CloseNormalClosure)
}

func TestShutdownClosesWithGoingAway(t *testing.T) {
	h := newHarness(t)
	h.commands.put(running("c-1"))
	h.commands.put(running("c-2"))

	a := h.dial(t, "c-1", goodToken)
	b := h.dial(t, "c-2", goodToken)
	waitFor(t, "subscriptions", func() bool {
		return h.bus.Subscribers("c-1") == 1 && h.bus.Subscribers("c-2") == 1
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.gateway.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	expectClose(t, a, websocket.CloseGoingAway)
	expectClose(t, b, websocket.CloseGoingAway)

	if n := h.gateway.Registry().Len(); n != 0 {
		t.Errorf("registry still holds %d connections", n)
	}

	late := h.dial(t, "c-1", goodToken)
	expectClose(t, late, websocket.CloseGoingAway)
}

func TestHeaderTokenIsAccepted(t *testing.T) {
	h := newHarness(t)
	h.commands.put(running("c-1"))

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws/responses/c-1"
	header := http.Header{"Authorization": []string{"Bearer " + goodToken}}
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ws.Close()

	waitFor(t, "subscription", func() bool { return h.bus.Subscribers("c-1") == 1 })
}

func TestShutdownReachesRelayStillAuthenticating(t *testing.T) {
	h := newHarness(t)
	h.commands.put(running("c-1"))
	hold := make(chan struct{})
	h.commands.mu.Lock()
	h.commands.hold = hold
	h.commands.mu.Unlock()

	ws := h.dial(t, "c-1", goodToken)
	waitFor(t, "command lookup", func() bool { return h.commands.waiting.Load() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.gateway.Shutdown(ctx) }()

	waitFor(t, "shutdown to begin", h.gateway.closing.Load)
	select {
	case err := <-done:
		t.Fatalf("Shutdown returned %v before the admitted relay ended", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(hold)
	expectClose(t, ws, websocket.CloseGoingAway)
	if err := <-done; err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if n := h.gateway.Registry().Len(); n != 0 {
		t.Errorf("registry still holds %d connections", n)
	}
	if n := h.bus.Subscribers("c-1"); n != 0 {
		t.Errorf("%d subscribers left after shutdown", n)
	}
}

// laggingBus hands out subscriptions that were already dropped for lagging.
type laggingBus struct{ bus.Bus }

type droppedSub struct{ events chan model.Event }

func (d droppedSub) Events() <-chan model.Event { return d.events }
func (d droppedSub) Err() error                 { return bus.ErrSlowSubscriber }
func (d droppedSub) Close() error               { return nil }

func (laggingBus) Subscribe(context.Context, string) (bus.Subscription, error) {
	events := make(chan model.Event)
	close(events)
	return droppedSub{events: events}, nil
}

func TestDroppedSubscriberIsToldToRetry(t *testing.T) {
	commands := newCommandStore()
	commands.put(running("c-1"), chunk("c-1", 0, false))
	g := New(laggingBus{Bus: bus.NewMemoryBus(1)}, commands, tokenAuth{})
	r := mux.NewRouter()
	r.Handle("/ws/responses/{command_id}", g)
	h := &harness{commands: commands, gateway: g, server: httptest.NewServer(r)}
	t.Cleanup(h.server.Close)

	ws := h.dial(t, "c-1", goodToken)
	if e := readEvent(t, ws); e.Type != model.EventResponse || e.Sequence != 0 {
		t.Fatalf("replayed event = %+v", e)
	}
	expectClose(t, ws, websocket.CloseTryAgainLater)
	waitFor(t, "deregistration", func() bool { return h.gateway.Registry().Len() == 0 })
}
