package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/aman-2709/vehicle-sovd-sub000/cmd/sovd-server/app/options"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/app"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/log"
)

const (
	commandName = "sovd-server"
	commandDesc = `The SOVD server accepts diagnostic commands over REST, executes them
against the vehicle gateway over a streaming gRPC channel, stores every
response chunk and relays them live to WebSocket subscribers.`
)

func NewApp() *app.App {
	opts := options.NewServerOptions()
	application := app.NewApp(
		commandName,
		"Launch the SOVD diagnostic command server",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithEnvPrefix("SOVD"),
		app.WithWatchConfig(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.ServerOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		defer log.Sync()

		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		server, err := cfg.NewServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create sovd server: %w", err)
		}

		return server.Run(ctx)
	}
}
