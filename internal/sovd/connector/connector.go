// Package connector drives diagnostic commands over the streaming vehicle RPC.
package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"

	pb "github.com/aman-2709/vehicle-sovd-sub000/api/vehicle/v1"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/pkg/metrics"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/pkg/tlsutil"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/log"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/options"
)

var _ core.Executor = (*Connector)(nil)

// Connector executes commands against the vehicle gateway. All commands share
// one lazily created gRPC channel.
type Connector struct {
	opts     *options.VehicleOptions
	dialOpts []grpc.DialOption
	sleep    SleepFunc
	now      func() time.Time
	logger   log.Logger

	mu     sync.Mutex
	conn   *grpc.ClientConn
	client pb.VehicleServiceClient
}

// Option customizes a Connector.
type Option func(*Connector)

// WithDialOptions appends gRPC dial options, e.g. a custom dialer in tests.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Connector) {
		c.dialOpts = append(c.dialOpts, opts...)
	}
}

// WithSleep replaces the backoff wait.
func WithSleep(fn SleepFunc) Option {
	return func(c *Connector) {
		c.sleep = fn
	}
}

// New creates a Connector. With TLS enabled the certificate material is loaded
// here, so a broken setup fails at startup rather than on the first command.
func New(opts *options.VehicleOptions, o ...Option) (*Connector, error) {
	if opts == nil {
		return nil, fmt.Errorf("%w: missing vehicle options", ErrConfig)
	}

	var creds credentials.TransportCredentials
	if opts.TLS {
		tlsCfg, err := tlsutil.ClientConfig(opts.CertDir)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
		creds = credentials.NewTLS(tlsCfg)
	} else {
		creds = insecure.NewCredentials()
	}

	c := &Connector{
		opts:     opts,
		dialOpts: []grpc.DialOption{grpc.WithTransportCredentials(creds)},
		sleep:    sleepContext,
		now:      time.Now,
		logger:   log.WithName("connector"),
	}
	if opts.KeepAlive > 0 {
		c.dialOpts = append(c.dialOpts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                opts.KeepAlive,
			Timeout:             opts.KeepAlive / 3,
			PermitWithoutStream: true,
		}))
	}
	for _, fn := range o {
		fn(c)
	}
	return c, nil
}

// channel returns the shared client, creating the channel on first use.
func (c *Connector) channel() (pb.VehicleServiceClient, *grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.client, c.conn, nil
	}
	conn, err := grpc.NewClient(c.opts.Endpoint, c.dialOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create channel to %s: %w", c.opts.Endpoint, err)
	}
	c.conn = conn
	c.client = pb.NewVehicleServiceClient(conn)
	c.logger.Info("Created vehicle channel", "endpoint", c.opts.Endpoint, "tls", c.opts.TLS)
	return c.client, c.conn, nil
}

// Start opens the channel, exports its connectivity until ctx is done and
// then closes it.
func (c *Connector) Start(ctx context.Context) error {
	_, conn, err := c.channel()
	if err != nil {
		return err
	}
	conn.Connect()
	go c.monitorConnection(ctx, conn)

	<-ctx.Done()
	c.logger.Info("Closing vehicle channel")
	return c.Close()
}

// Close releases the channel. A later Execute creates a new one.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn, c.client = nil, nil
	return err
}

func (c *Connector) monitorConnection(ctx context.Context, conn *grpc.ClientConn) {
	logger := log.Logr().WithName("grpc-monitor")

	lastState := conn.GetState()
	updateMetric(lastState)

	for {
		if !conn.WaitForStateChange(ctx, lastState) {
			return
		}
		newState := conn.GetState()
		logger.Info("Vehicle channel state changed", "from", lastState.String(), "to", newState.String())

		updateMetric(newState)
		lastState = newState
		if newState == connectivity.Shutdown {
			return
		}
	}
}

func updateMetric(state connectivity.State) {
	if state == connectivity.Ready {
		metrics.VehicleConnectivityStatus.Set(1)
	} else {
		metrics.VehicleConnectivityStatus.Set(0)
	}
}

// Execute runs cmd to a terminal state. Transient failures are retried while
// nothing of the failed attempt has been persisted. It logs through the
// per-command logger carried by ctx.
func (c *Connector) Execute(ctx context.Context, cmd *model.Command, rec core.Recorder) {
	logger := log.FromContext(ctx).WithName("connector")

	req, err := (&pb.CommandRequest{
		CommandID:   cmd.ID,
		VehicleID:   cmd.VehicleID,
		CommandName: cmd.Name,
		Params:      cmd.Params,
	}).ToStruct()
	if err != nil {
		c.fail(ctx, logger, cmd, rec, internalError(fmt.Errorf("encode request: %w", err)))
		return
	}

	var lastErr *ExecutionError
	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := Backoff(c.opts.BackoffBase, attempt-1)
			logger.Info("Retrying vehicle command", "attempt", attempt+1, "delay", delay, "cause", lastErr.Error())
			metrics.CommandRetriesTotal.Inc()
			if err := c.sleep(ctx, delay); err != nil {
				lastErr = Classify(err)
				break
			}
		}

		persisted, err := c.attempt(ctx, cmd, req, rec)
		if err == nil {
			c.complete(ctx, logger, cmd, rec)
			return
		}
		lastErr = err
		if persisted > 0 || !err.Transient() {
			break
		}
	}

	if lastErr == nil {
		lastErr = internalError(errors.New("no execution attempt was made"))
	}
	c.fail(ctx, logger, cmd, rec, lastErr)
}

// attempt runs one streaming call and reports how many chunks it persisted.
func (c *Connector) attempt(ctx context.Context, cmd *model.Command, req *structpb.Struct, rec core.Recorder) (int, *ExecutionError) {
	client, _, err := c.channel()
	if err != nil {
		return 0, internalError(err)
	}

	actx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	stream, err := client.ExecuteCommand(actx, req)
	if err != nil {
		return 0, Classify(err)
	}

	persisted := 0
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return persisted, protocolError("stream ended after %d chunks without a final chunk", persisted)
		}
		if err != nil {
			return persisted, Classify(err)
		}

		chunk, err := pb.ChunkFromStruct(msg)
		if err != nil {
			return persisted, protocolError("decode chunk: %w", err)
		}
		if chunk.Sequence != persisted {
			return persisted, protocolError("chunk sequence %d, expected %d", chunk.Sequence, persisted)
		}

		if _, err := rec.RecordResponse(ctx, cmd.ID, chunk.Payload, chunk.Sequence, chunk.IsFinal); err != nil {
			return persisted, internalError(fmt.Errorf("record chunk %d: %w", chunk.Sequence, err))
		}
		persisted++

		if chunk.IsFinal {
			// The deferred cancel ends the stream; nothing may follow the final chunk.
			return persisted, nil
		}
	}
}

func (c *Connector) complete(ctx context.Context, logger log.Logger, cmd *model.Command, rec core.Recorder) {
	ctx = context.WithoutCancel(ctx)
	if err := rec.CompleteCommand(ctx, cmd.ID); err != nil {
		logger.Error(err, "Failed to mark command completed")
		c.fail(ctx, logger, cmd, rec, internalError(fmt.Errorf("complete command: %w", err)))
		return
	}
	logger.Info("Command completed")
	c.observe(metrics.OutcomeCompleted, cmd)
}

func (c *Connector) fail(ctx context.Context, logger log.Logger, cmd *model.Command, rec core.Recorder, cause *ExecutionError) {
	ctx = context.WithoutCancel(ctx)
	logger.Error(cause, "Command failed", "kind", string(cause.Kind))

	if err := rec.FailCommand(ctx, cmd.ID, cause.Kind.Message()); err != nil {
		logger.Error(err, "Failed to mark command failed")
	}

	outcome := metrics.OutcomeFailed
	if cause.Kind == KindTimeout {
		outcome = metrics.OutcomeTimeout
	}
	c.observe(outcome, cmd)
}

func (c *Connector) observe(outcome string, cmd *model.Command) {
	metrics.CommandOutcomesTotal.WithLabelValues(outcome).Inc()
	if !cmd.SubmittedAt.IsZero() {
		metrics.CommandDuration.WithLabelValues(outcome).Observe(c.now().Sub(cmd.SubmittedAt).Seconds())
	}
}
