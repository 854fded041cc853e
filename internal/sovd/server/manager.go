package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/aman-2709/vehicle-sovd-sub000/pkg/log"
)

// Server is a long-running component that stops when ctx is done.
type Server interface {
	Start(ctx context.Context) error
}

// ServerFunc adapts a function to Server.
type ServerFunc func(ctx context.Context) error

func (f ServerFunc) Start(ctx context.Context) error { return f(ctx) }

// Manager manages the lifecycle of all servers of the process.
type Manager struct {
	servers []Server
}

// NewManager creates a manager for the given servers.
func NewManager(servers ...Server) *Manager {
	return &Manager{servers: servers}
}

// Start launches all servers in parallel. The first one to fail stops the
// others; Start returns once every server has returned.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range m.servers {
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	log.Info("All servers starting...", "count", len(m.servers))
	return g.Wait()
}
