package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/otahub/cmd/otahub/app"
)

func main() {
	app.NewApp().Run()
}
