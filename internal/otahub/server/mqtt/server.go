package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/autopeer-io/otahub/internal/otahub/core"
	"github.com/autopeer-io/otahub/internal/otahub/core/model"
	"github.com/autopeer-io/otahub/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/otahub/pkg/log"
	pkgmqtt "github.com/autopeer-io/otahub/pkg/mqtt"
	"github.com/autopeer-io/otahub/pkg/mqtt/topic"
)

// BatchStarter runs a batch start request.
type BatchStarter interface {
	StartBatch(ctx context.Context, versionID string, deviceIDs []string) ([]model.BatchTarget, error)
}

type batchRequest struct {
	VersionID string   `json:"versionId"`
	Devices   []string `json:"devices"`
}

type batchResult struct {
	RequestID string              `json:"requestId"`
	VersionID string              `json:"versionId"`
	Results   []model.BatchTarget `json:"results,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// Server accepts batch start requests over MQTT.
type Server struct {
	client pkgmqtt.Client
	topics *topic.Builder
	svc    BatchStarter
}

func NewServer(client pkgmqtt.Client, builder *topic.Builder, svc BatchStarter) *Server {
	return &Server{
		client: client,
		topics: builder,
		svc:    svc,
	}
}

// Start connects to the broker, subscribes and blocks until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	if err := s.client.Start(ctx); err != nil {
		return err
	}

	defer func() {
		log.Info("Disconnecting MQTT client...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.client.Disconnect(shutdownCtx)
		log.Info("MQTT client disconnected")
	}()

	log.Info("Waiting for MQTT connection...")
	if err := s.client.AwaitConnection(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	log.Info("MQTT Connected")

	if err := s.subscribe(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

// Ready fails while the broker connection is down.
func (s *Server) Ready(context.Context) error {
	if !s.client.IsConnected() {
		return errors.New("mqtt broker not connected")
	}
	return nil
}

func (s *Server) subscribe(ctx context.Context) error {
	const qos = 1

	filter := s.topics.Shared(paths.SharedGroup).BuildWildcard(paths.Batch)
	if err := s.client.Subscribe(ctx, filter, qos, s.handleBatch); err != nil {
		return fmt.Errorf("failed to subscribe to topic: %s, err: %w", filter, err)
	}
	return nil
}

func (s *Server) handleBatch(ctx context.Context, t string, payload []byte) {
	requestID, ok := s.topics.ID(paths.Batch, t)
	if !ok {
		log.Warn("Ignoring batch request on unexpected topic", "topic", t)
		return
	}

	var req batchRequest
	res := batchResult{RequestID: requestID}
	if err := json.Unmarshal(payload, &req); err != nil {
		res.Error = fmt.Sprintf("malformed request: %v", err)
	} else {
		res.VersionID = req.VersionID
		targets, err := s.svc.StartBatch(ctx, req.VersionID, req.Devices)
		if err != nil {
			res.Error = message(err)
		}
		res.Results = targets
	}

	if res.Error != "" {
		log.Warn("Batch request rejected", "requestID", requestID, "err", res.Error)
	}

	data, err := json.Marshal(res)
	if err != nil {
		log.Error(err, "Failed to encode batch result", "requestID", requestID)
		return
	}
	if err := s.client.Publish(ctx, s.topics.Build(paths.BatchResult, requestID), 1, false, data); err != nil {
		log.Error(err, "Failed to publish batch result", "requestID", requestID)
	}
}

func message(err error) string {
	var ce *core.Error
	if errors.As(err, &ce) {
		return ce.Message
	}
	return err.Error()
}
