package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/aman-2709/vehicle-sovd-sub000/cmd/sovd-vehicle-sim/app/options"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/vehiclesim"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/app"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/log"
)

const (
	commandName = "sovd-vehicle-sim"
	commandDesc = `The vehicle simulator serves the vehicle gRPC service and streams
canned diagnostic responses. Add "simulate" to the command parameters to
inject a fault (timeout, unavailable, malformed, truncated).`
)

func NewApp() *app.App {
	opts := options.NewSimOptions()
	return app.NewApp(
		commandName,
		"Launch a simulated vehicle endpoint",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithEnvPrefix("SOVD_SIM"),
		app.WithRunFunc(run(opts)),
	)
}

func run(opts *options.SimOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		defer log.Sync()

		ctx := genericapiserver.SetupSignalContext()

		sim, err := vehiclesim.NewServer(opts.GrpcOptions)
		if err != nil {
			return fmt.Errorf("failed to create vehicle simulator: %w", err)
		}
		return sim.Start(ctx)
	}
}
