package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/aman-2709/vehicle-sovd-sub000/cmd/sovd-server/app"
)

func main() {
	app.NewApp().Run()
}
