package otahub

import (
	"context"

	"github.com/autopeer-io/otahub/internal/otahub/core/service"
	"github.com/autopeer-io/otahub/internal/otahub/server"
	"github.com/autopeer-io/otahub/pkg/log"
)

// OTAHubServer is the main application struct for otahub.
type OTAHubServer struct {
	serverManager *server.Manager
	service       *service.Service
}

// Run blocks until ctx is done or a server fails, then stops every transfer.
func (a *OTAHubServer) Run(ctx context.Context) error {
	log.Info("Starting otahub...")

	err := a.serverManager.Start(ctx)

	a.service.Shutdown()
	a.service.Wait()
	log.Info("otahub stopped")

	return err
}
