package ws

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/autopeer-io/otahub/pkg/log"
	"github.com/autopeer-io/otahub/pkg/options"
)

// Server upgrades HTTP requests to device and observer connections.
type Server struct {
	svc        DeviceService
	dispatcher *Dispatcher
	opts       *options.WebSocketOptions
	upgrader   websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[*Conn]struct{}
	wg    sync.WaitGroup
}

func NewServer(svc DeviceService, opts *options.WebSocketOptions) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		svc:        svc,
		dispatcher: NewDispatcher(svc),
		opts:       opts,
		upgrader:   makeUpgrader(opts.AllowedOrigins),
		ctx:        ctx,
		cancel:     cancel,
		conns:      make(map[*Conn]struct{}),
	}
}

// makeUpgrader creates a websocket upgrader with origin checking.
func makeUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Devices do not send an Origin header.
				return true
			}
			return originSet[origin]
		},
	}
}

// Path returns where the endpoint is mounted.
func (s *Server) Path() string { return s.opts.Path }

// Start blocks until ctx is done, then closes every connection and waits
// for their handlers to return.
func (s *Server) Start(ctx context.Context) error {
	log.Info("Websocket endpoint ready", "path", s.opts.Path)
	<-ctx.Done()

	s.cancel()
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	n := len(s.conns)
	s.mu.Unlock()

	log.Info("Closing websocket connections", "count", n)
	s.wg.Wait()
	return nil
}

func isObserver(r *http.Request) bool {
	q := r.URL.Query()
	return q.Get("admin") == "true" || q.Get("role") == "observer"
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.ctx.Err() != nil {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		log.Debug("Websocket upgrade failed", "remote", r.RemoteAddr, "err", err.Error())
		return
	}

	c := newConn(ws, remoteIP(r), s.opts)
	if !s.track(c) {
		_ = ws.Close()
		return
	}
	defer s.untrack(c)

	go c.writePump()

	if isObserver(r) {
		s.serveObserver(c)
		return
	}
	s.serveDevice(c)
}

func (s *Server) serveObserver(c *Conn) {
	if err := s.svc.AddObserver(s.ctx, c); err != nil {
		c.log.Error(err, "Failed to send device list")
	}
	defer s.svc.RemoveObserver(c)

	// Observer frames are read only to notice the close.
	c.readLoop(func([]byte) {})
}

func (s *Server) serveDevice(c *Conn) {
	c.log.Info("Device connection opened")
	p := &peer{conn: c}
	defer s.dispatcher.Close(p)

	c.readLoop(func(data []byte) {
		s.dispatcher.Dispatch(s.ctx, p, data)
	})
	c.log.Info("Device connection closed", "deviceID", p.deviceID)
}

func (s *Server) track(c *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}
