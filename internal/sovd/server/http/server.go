package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/pkg/metrics"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/auth"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/log"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/options"
)

// CommandService is the part of the lifecycle manager exposed over REST.
type CommandService interface {
	SubmitCommand(ctx context.Context, vehicleID, commandName string, params map[string]any, userID string) (*model.Command, error)
	GetCommand(ctx context.Context, commandID string) (*model.Command, error)
	ListResponses(ctx context.Context, commandID string) ([]*model.ResponseChunk, error)
	ListCommands(ctx context.Context, filter model.CommandFilter) ([]*model.Command, error)
	RegisterVehicle(ctx context.Context, v *model.Vehicle) (*model.Vehicle, error)
	ListVehicles(ctx context.Context) ([]*model.Vehicle, error)
}

// Gateway serves the WebSocket endpoint and closes its connections on shutdown.
type Gateway interface {
	http.Handler
	Shutdown(ctx context.Context) error
}

// ArchiveLinker hands out download links for archived commands.
type ArchiveLinker interface {
	PresignedURL(ctx context.Context, cmd *model.Command, expiry time.Duration) (string, error)
}

// Check reports whether a dependency is ready to serve traffic.
type Check func(ctx context.Context) error

// Option customizes a Server.
type Option func(*Server)

// WithArchiveLinker enables GET /api/v1/commands/{id}/archive.
func WithArchiveLinker(a ArchiveLinker) Option {
	return func(s *Server) { s.archive = a }
}

// WithReadinessCheck adds a named check to /readyz.
func WithReadinessCheck(name string, c Check) Option {
	return func(s *Server) {
		s.checks = append(s.checks, namedCheck{name: name, check: c})
	}
}

type namedCheck struct {
	name  string
	check Check
}

// Server is the REST, WebSocket and health endpoint of the service.
type Server struct {
	server  *http.Server
	options *options.HttpOptions

	svc          CommandService
	gateway      Gateway
	authenticate mux.MiddlewareFunc
	archive      ArchiveLinker
	checks       []namedCheck
	logger       log.Logger
}

// NewServer wires the routes. authenticate guards every /api route; the
// WebSocket endpoint authenticates its own token parameter.
func NewServer(opts *options.HttpOptions, svc CommandService, gw Gateway, authenticate mux.MiddlewareFunc, extra ...Option) *Server {
	s := &Server{
		options:      opts,
		svc:          svc,
		gateway:      gw,
		authenticate: authenticate,
		logger:       log.WithName("http"),
	}
	for _, o := range extra {
		o(s)
	}

	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: opts.Timeout,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.Handle("/ws/responses/{command_id}", s.gateway).Methods(http.MethodGet)

	// A subrouter reports a method mismatch as 404 unless it has its own handler.
	api := r.PathPrefix("/api/v1").Subrouter()
	api.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	api.Use(s.authenticate)
	api.HandleFunc("/commands", s.handleSubmitCommand).Methods(http.MethodPost)
	api.HandleFunc("/commands", s.handleListCommands).Methods(http.MethodGet)
	api.HandleFunc("/commands/{id}", s.handleGetCommand).Methods(http.MethodGet)
	api.HandleFunc("/commands/{id}/responses", s.handleListResponses).Methods(http.MethodGet)
	api.HandleFunc("/commands/{id}/archive", s.handleArchiveLink).Methods(http.MethodGet)
	api.HandleFunc("/vehicles", s.handleListVehicles).Methods(http.MethodGet)
	api.Handle("/vehicles", auth.RequireRole(auth.RoleAdmin)(http.HandlerFunc(s.handleRegisterVehicle))).Methods(http.MethodPost)

	return r
}

// Start serves until ctx is done, then closes the WebSocket relays and drains
// in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen(s.options.Network, s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	s.logger.Info("Starting HTTP Server", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.Timeout)
	defer cancel()

	// Hijacked connections are not tracked by http.Server.
	if err := s.gateway.Shutdown(shutdownCtx); err != nil {
		s.logger.Error(err, "WebSocket relays did not stop in time")
	}
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.logger.Info("HTTP Server stopped")
	return nil
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for _, c := range s.checks {
		if err := c.check(ctx); err != nil {
			failed[c.name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "checks": failed})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
