package app

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/otahub/cmd/otahub/app/options"
	"github.com/autopeer-io/otahub/pkg/app"
	"github.com/autopeer-io/otahub/pkg/log"
)

const (
	commandName = "otahub"
	commandDesc = `otahub delivers firmware images to ESP32 devices over websocket.

Devices register on the websocket endpoint and receive images as base64
chunks. Operators upload images and start batch updates through the REST
API, and watch progress as websocket observers.`
)

func NewApp() *app.App {
	opts := options.NewHubOptions()
	application := app.NewApp(
		commandName,
		"Launch the otahub firmware delivery server",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
		app.WithConfigChangeHook(reloadLogLevel),
	)
	return application
}

func run(opts *options.HubOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)

		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		server, err := cfg.NewOTAHubServer()
		if err != nil {
			return fmt.Errorf("failed to create otahub server: %w", err)
		}

		return server.Run(ctx)
	}
}

// reloadLogLevel applies log.level from an edited config file. Other
// settings take effect on restart.
func reloadLogLevel(v *viper.Viper, e fsnotify.Event) {
	level := v.GetString("log.level")
	if level == "" || level == log.Level() {
		return
	}
	if err := log.SetLevel(level); err != nil {
		log.Error(err, "Ignoring log level from config file", "file", e.Name)
		return
	}
	log.Info("Log level changed", "level", level, "file", e.Name)
}
