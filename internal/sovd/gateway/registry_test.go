package gateway

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

// serverConn returns the server side of a real WebSocket pair.
func serverConn(t *testing.T, commandID string) *Conn {
	t.Helper()
	ch := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{}
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade: %v", err)
			return
		}
		ch <- ws
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	c := newConn(<-ch, commandID, "u-1")
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRegistryRemovesEmptyCommands(t *testing.T) {
	r := NewRegistry()
	a := serverConn(t, "c-1")
	b := serverConn(t, "c-1")

	r.Register(a)
	r.Register(b)
	r.Register(a)
	if r.Len() != 2 || len(r.Connections("c-1")) != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}

	if !r.Deregister(a) {
		t.Fatal("Deregister(a) = false")
	}
	if r.Deregister(a) {
		t.Error("second Deregister(a) should report false")
	}
	if got := r.Commands(); len(got) != 1 {
		t.Errorf("Commands() = %v", got)
	}

	r.Deregister(b)
	if got := r.Commands(); len(got) != 0 {
		t.Errorf("Commands() after last deregister = %v", got)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d", r.Len())
	}
}

func TestBroadcastDropsOnlyFailingConnection(t *testing.T) {
	r := NewRegistry()
	good := serverConn(t, "c-1")
	bad := serverConn(t, "c-1")
	other := serverConn(t, "c-2")
	r.Register(good)
	r.Register(bad)
	r.Register(other)

	n := r.Broadcast("c-1", func(c *Conn) error {
		if c == bad {
			return errors.New("broken pipe")
		}
		return nil
	})
	if n != 1 {
		t.Errorf("Broadcast delivered %d, want 1", n)
	}

	conns := r.Connections("c-1")
	if len(conns) != 1 || conns[0] != good {
		t.Errorf("remaining connections = %v", conns)
	}
	if len(r.Connections("c-2")) != 1 {
		t.Error("other command should be untouched")
	}
}
