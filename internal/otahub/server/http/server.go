package http

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	middleware "github.com/autopeer-io/otahub/internal/pkg/middleware/http"
	"github.com/autopeer-io/otahub/pkg/log"
	"github.com/autopeer-io/otahub/pkg/options"
)

// Check reports whether a dependency is ready to serve traffic.
type Check func(ctx context.Context) error

type Server struct {
	server  *http.Server
	options *options.HttpOptions
}

// NewServer builds the HTTP listener carrying the REST API, probes,
// metrics and, when ws is non-nil, the websocket endpoint at wsPath.
func NewServer(opts *options.HttpOptions, api API, ws http.Handler, wsPath string, checks ...Check) *Server {
	h := &handler{api: api, maxUpload: opts.MaxUploadSize}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	router.HandleFunc("/readyz", readyz(checks)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// API routes sit on the root router so a method mismatch answers 405.
	// A PathPrefix subrouter turns it into 404.
	logging := middleware.Logging(log.WithName("http"))
	timeout := middleware.Timeout(opts.Timeout)
	wrap := func(fn http.HandlerFunc) http.Handler {
		return logging(timeout(fn))
	}
	router.Handle("/api/v1/ota/upload", wrap(h.upload)).Methods(http.MethodPost)
	router.Handle("/api/v1/ota/all", wrap(h.list)).Methods(http.MethodGet)
	router.Handle("/api/v1/ota/delete/{id}", wrap(h.delete)).Methods(http.MethodDelete)
	router.Handle("/api/v1/ota/start", wrap(h.start)).Methods(http.MethodPost)
	router.Handle("/api/v1/devices", wrap(h.devices)).Methods(http.MethodGet)
	router.Handle("/api/v1/devices/{id}", wrap(h.device)).Methods(http.MethodGet)

	if ws != nil {
		router.Handle(wsPath, ws)
	}

	return &Server{
		server: &http.Server{
			Addr:              opts.Addr,
			Handler:           router,
			ReadHeaderTimeout: opts.Timeout,
		},
		options: opts,
	}
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen(s.options.Network, s.server.Addr)
	if err != nil {
		return err
	}
	log.Info("Starting HTTP Server", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.Timeout)
		defer cancel()
		log.Info("Shutting down HTTP Server")
		return s.server.Shutdown(shutdownCtx)
	}
}

func readyz(checks []Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			if err := check(r.Context()); err != nil {
				log.Warn("Readiness check failed", "err", err.Error())
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
