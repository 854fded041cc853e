package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/aman-2709/vehicle-sovd-sub000/cmd/sovd-vehicle-sim/app"
)

func main() {
	app.NewApp().Run()
}
