// Package sovd assembles the diagnostic command server: store, event bus,
// vehicle connector, lifecycle service, REST API and WebSocket gateway.
package sovd

import (
	"context"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/server"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/log"
)

// Server is the main application struct of sovd-server.
type Server struct {
	manager *server.Manager
	closers []func() error
}

// Run starts the servers and blocks until ctx is done or one of them fails.
func (s *Server) Run(ctx context.Context) error {
	log.Info("Starting SOVD server...")
	defer s.cleanup()
	return s.manager.Start(ctx)
}

func (s *Server) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// cleanup releases resources in reverse order of acquisition.
func (s *Server) cleanup() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Error(err, "Failed to release resource")
		}
	}
	s.closers = nil
}
