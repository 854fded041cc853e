package main

import (
	"os"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/aman-2709/vehicle-sovd-sub000/cmd/sovdctl/app"
)

func main() {
	ctx := genericapiserver.SetupSignalContext()
	if err := app.NewRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
