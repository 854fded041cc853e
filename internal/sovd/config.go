package sovd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/auth"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/bus"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/connector"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/service"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/gateway"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/server"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/server/http"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/storage"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/store"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/log"
	pkgmqtt "github.com/aman-2709/vehicle-sovd-sub000/pkg/mqtt"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/mqtt/topic"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/options"
)

const mqttConnectTimeout = 10 * time.Second

type Config struct {
	HttpOptions    *options.HttpOptions
	VehicleOptions *options.VehicleOptions
	MqttOptions    *options.MqttOptions
	BusOptions     *options.BusOptions
	DBOptions      *options.DBOptions
	JWTOptions     *options.JWTOptions
	S3Options      *options.S3Options
}

// NewServer builds every component. On error, whatever was opened is released.
func (cfg *Config) NewServer(ctx context.Context) (_ *Server, err error) {
	srv := &Server{}
	defer func() {
		if err != nil {
			srv.cleanup()
		}
	}()

	// 1. Persistence
	db, err := store.Open(cfg.DBOptions)
	if err != nil {
		return nil, err
	}
	srv.onClose(func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	repo := store.NewRepository(db)

	// 2. Event bus
	eventBus, busReady, err := cfg.newBus(ctx, srv)
	if err != nil {
		return nil, err
	}
	srv.onClose(eventBus.Close)

	// 3. Vehicle transport
	conn, err := connector.New(cfg.VehicleOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to init vehicle connector: %w", err)
	}

	// 4. Core service, with the optional archive
	var svcOpts []service.Option
	var httpOpts []http.Option
	if cfg.S3Options.Enabled {
		archive, err := storage.NewMinIO(cfg.S3Options)
		if err != nil {
			return nil, err
		}
		svcOpts = append(svcOpts, service.WithArchiver(archive))
		httpOpts = append(httpOpts, http.WithArchiveLinker(archive))
	}
	svc := service.New(repo, eventBus, conn, svcOpts...)

	// 5. Authentication
	authn, err := auth.NewAuthenticator(cfg.JWTOptions, repo.User())
	if err != nil {
		return nil, err
	}
	if id := cfg.JWTOptions.BootstrapAdmin; id != "" {
		admin := &model.User{ID: id, Username: id, Role: auth.RoleAdmin, IsActive: true}
		if err := svc.EnsureUser(ctx, admin); err != nil {
			return nil, fmt.Errorf("failed to create bootstrap admin: %w", err)
		}
	}

	// 6. Ingress
	gw := gateway.New(eventBus, svc, authn, gateway.WithPingInterval(cfg.HttpOptions.PingInterval))
	httpOpts = append(httpOpts,
		http.WithReadinessCheck("database", pingDB(db)),
		http.WithReadinessCheck("bus", busReady),
	)
	httpSrv := http.NewServer(cfg.HttpOptions, svc, gw, authn.Middleware, httpOpts...)

	srv.manager = server.NewManager(httpSrv, executionServer(svc.Dispatcher(), conn))
	return srv, nil
}

func (cfg *Config) newBus(ctx context.Context, srv *Server) (bus.Bus, http.Check, error) {
	if cfg.BusOptions.Driver != "mqtt" {
		return bus.NewMemoryBus(cfg.BusOptions.BufferSize), func(context.Context) error { return nil }, nil
	}

	clientCfg := cfg.MqttOptions.ToClientConfig()
	if clientCfg.ClientID == "" {
		hostname, _ := os.Hostname()
		clientCfg.ClientID = fmt.Sprintf("sovd-server-%s-%d", hostname, os.Getpid())
	}
	client, err := pkgmqtt.NewClient(clientCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init mqtt client: %w", err)
	}

	// The connection outlives the signal context so that commands still
	// draining at shutdown can publish their terminal events.
	if err := client.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, nil, fmt.Errorf("failed to start mqtt client: %w", err)
	}
	srv.onClose(func() error {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client.Disconnect(dctx)
		return nil
	})

	wctx, cancel := context.WithTimeout(ctx, mqttConnectTimeout)
	defer cancel()
	if err := client.AwaitConnection(wctx); err != nil {
		return nil, nil, fmt.Errorf("mqtt broker %s not reachable: %w", clientCfg.BrokerURL, err)
	}

	ready := func(context.Context) error {
		if !client.IsConnected() {
			return errors.New("mqtt client disconnected")
		}
		return nil
	}
	return bus.NewMQTTBus(client, topic.NewTopicBuilder(cfg.MqttOptions.TopicRoot), cfg.BusOptions.QoS, cfg.BusOptions.BufferSize), ready, nil
}

// executionServer drains in-flight commands before the vehicle channel is
// closed, so that shutdown does not turn running commands into failures.
func executionServer(d *service.Dispatcher, conn *connector.Connector) server.Server {
	return server.ServerFunc(func(ctx context.Context) error {
		connCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
		defer stop()

		connErr := make(chan error, 1)
		go func() { connErr <- conn.Start(connCtx) }()

		err := d.Start(ctx)
		stop()
		if cerr := <-connErr; cerr != nil {
			log.Error(cerr, "Closing vehicle channel")
		}
		return err
	})
}

func pingDB(db *gorm.DB) http.Check {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
