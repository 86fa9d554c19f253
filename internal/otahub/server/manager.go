package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/otahub/internal/otahub/core/service"
	"github.com/autopeer-io/otahub/internal/otahub/server/http"
	"github.com/autopeer-io/otahub/internal/otahub/server/mqtt"
	"github.com/autopeer-io/otahub/internal/otahub/server/ws"
	"github.com/autopeer-io/otahub/pkg/log"
)

// Server defines the common interface for all sub-servers (http, ws, mqtt).
type Server interface {
	Start(ctx context.Context) error
}

// Manager manages the lifecycle of all protocol servers.
type Manager struct {
	servers []Server
}

// NewManager creates a new server manager and initializes all sub-servers.
func NewManager(cfg *Config, svc *service.Service) *Manager {
	var servers []Server

	// The websocket endpoint is mounted on the HTTP listener.
	wsSrv := ws.NewServer(svc, cfg.WebSocketOptions)
	servers = append(servers, wsSrv)

	checks := append([]http.Check(nil), cfg.ReadyChecks...)
	if cfg.MqttClient != nil {
		mqttSrv := mqtt.NewServer(cfg.MqttClient, cfg.Topics, svc)
		servers = append(servers, mqttSrv)
		checks = append(checks, mqttSrv.Ready)
	}

	httpSrv := http.NewServer(cfg.HttpOptions, svc, wsSrv, wsSrv.Path(), checks...)
	servers = append(servers, httpSrv)

	return &Manager{
		servers: servers,
	}
}

// Start launches all servers in parallel and waits for termination.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range m.servers {
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	log.Info("All servers starting...", "count", len(m.servers))
	return g.Wait()
}
