package otahub

import (
	"fmt"

	"github.com/autopeer-io/otahub/internal/otahub/core"
	"github.com/autopeer-io/otahub/internal/otahub/core/service"
	"github.com/autopeer-io/otahub/internal/otahub/notifier"
	"github.com/autopeer-io/otahub/internal/otahub/repository"
	"github.com/autopeer-io/otahub/internal/otahub/server"
	"github.com/autopeer-io/otahub/internal/otahub/server/http"
	"github.com/autopeer-io/otahub/internal/otahub/storage"
	"github.com/autopeer-io/otahub/internal/otahub/stream"
	"github.com/autopeer-io/otahub/pkg/log"
	pkgmqtt "github.com/autopeer-io/otahub/pkg/mqtt"
	"github.com/autopeer-io/otahub/pkg/mqtt/topic"
	"github.com/autopeer-io/otahub/pkg/options"
)

type Config struct {
	HttpOptions      *options.HttpOptions
	WebSocketOptions *options.WebSocketOptions
	OTAOptions       *options.OTAOptions
	S3Options        *options.S3Options
	MqttOptions      *options.MqttOptions
	StoreOptions     *options.StoreOptions
}

// NewOTAHubServer assembles the adapters, the core service and the ingress servers.
func (cfg *Config) NewOTAHubServer() (*OTAHubServer, error) {
	// Secondary adapters
	repo, err := openRepository(cfg.StoreOptions)
	if err != nil {
		return nil, err
	}

	minio, err := storage.NewMinIO(cfg.S3Options)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	fetcher := storage.NewRouter().
		Handle(storage.NewHTTPFetcher(cfg.OTAOptions.FetchTimeout), "http", "https").
		Handle(minio, "s3")

	streamer := stream.New(fetcher, stream.Config{
		ChunkSize:       cfg.OTAOptions.ChunkSize,
		ChunkInterval:   cfg.OTAOptions.ChunkInterval,
		StartDelay:      cfg.OTAOptions.StartDelay,
		MaxFirmwareSize: cfg.OTAOptions.MaxFirmwareSize,
	})

	var (
		mqttClient pkgmqtt.Client
		topics     *topic.Builder
		events     core.EventNotifier
	)
	if cfg.MqttOptions.Enabled {
		mqttClient, err = pkgmqtt.NewClient(cfg.MqttOptions.ToClientConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to init mqtt client: %w", err)
		}
		topics = topic.NewBuilder(cfg.MqttOptions.TopicRoot)
		events = notifier.NewMQTTNotifier(mqttClient, topics)
	}

	// Core
	svc := service.New(repo, minio, streamer, events,
		service.WithURLExpiry(cfg.OTAOptions.URLExpiry),
	)

	// Primary adapters
	srvManager := server.NewManager(&server.Config{
		HttpOptions:      cfg.HttpOptions,
		WebSocketOptions: cfg.WebSocketOptions,
		MqttClient:       mqttClient,
		Topics:           topics,
		ReadyChecks:      []http.Check{minio.CheckBucket},
	}, svc)

	return &OTAHubServer{
		serverManager: srvManager,
		service:       svc,
	}, nil
}

func openRepository(opts *options.StoreOptions) (*repository.Store, error) {
	if opts.DataDir == "" {
		log.Warn("No data directory configured, firmware metadata will not survive a restart")
		return repository.NewMemory(), nil
	}

	store, err := repository.Open(opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}
	return store, nil
}
