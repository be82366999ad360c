package monitor

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kbukum/dwiflow/component"
	"github.com/kbukum/dwiflow/errors"
	"github.com/kbukum/dwiflow/logger"
	"github.com/kbukum/dwiflow/observability"
	"github.com/kbukum/dwiflow/version"
)

const componentName = "monitor"

// HealthFunc reports the health of the components running beside the
// pipeline.
type HealthFunc func(ctx context.Context) []component.Health

var (
	_ component.Component   = (*Server)(nil)
	_ component.Describable = (*Server)(nil)
)

// Server serves progress, health and the event stream over HTTP.
type Server struct {
	cfg      Config
	engine   *gin.Engine
	progress *Progress
	hub      *Hub
	health   HealthFunc
	log      *logger.Logger

	mu       sync.Mutex
	srv      *http.Server
	addr     string
	hubDone  chan struct{}
	serveErr error
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithHealth sets the source of the component list reported by /health.
func WithHealth(fn HealthFunc) ServerOption {
	return func(s *Server) { s.health = fn }
}

// NewServer creates a server for progress. hub may be nil, in which case
// /events is not served.
func NewServer(cfg Config, progress *Progress, hub *Hub, opts ...ServerOption) *Server {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		engine:   gin.New(),
		progress: progress,
		hub:      hub,
		log:      logger.WithComponent(componentName),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.engine.Use(recovery(s.log), requestLogger(s.log))
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/status", s.handleStatus)
	s.engine.GET("/version", s.handleVersion)
	if hub != nil {
		s.engine.GET("/events", s.handleEvents)
	}
	return s
}

// Handler returns the HTTP handler, for mounting or testing without a
// listener.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Name() string { return componentName }

// Start binds the listener and serves in the background. It returns once
// the port is bound.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.InvalidState(componentName, "running", "start")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return errors.ServiceUnavailable(componentName).WithCause(err).WithDetail("addr", addr)
	}

	s.srv = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.addr = ln.Addr().String()

	if s.hub != nil {
		s.hubDone = make(chan struct{})
		go func() {
			defer close(s.hubDone)
			s.hub.Run()
		}()
	}

	srv := s.srv
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("monitor server failed", logger.Fields(logger.FieldError, err.Error()))
			s.mu.Lock()
			s.serveErr = err
			s.mu.Unlock()
		}
	}()

	s.log.Info("monitor listening", logger.Fields("addr", s.addr))
	return nil
}

// Stop closes the event streams, then shuts the HTTP server down within
// the configured timeout.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, hubDone := s.srv, s.hubDone
	s.srv, s.hubDone = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	// Open streams keep connections active; close them first so Shutdown
	// does not wait for them.
	if s.hub != nil {
		s.hub.Stop()
		<-hubDone
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		return errors.Internal(err).WithDetail(logger.FieldComponent, componentName)
	}
	s.log.Debug("monitor stopped")
	return nil
}

func (s *Server) Health(ctx context.Context) component.Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.serveErr != nil:
		return component.Health{Name: componentName, Status: component.StatusUnhealthy, Message: s.serveErr.Error()}
	case s.srv == nil:
		return component.Health{Name: componentName, Status: component.StatusUnhealthy, Message: "not serving"}
	default:
		return component.Health{Name: componentName, Status: component.StatusHealthy}
	}
}

func (s *Server) Describe() component.Description {
	return component.Description{
		Name:    "Monitor",
		Type:    "server",
		Details: fmt.Sprintf("http://%s", s.Addr()),
	}
}

// Addr returns the bound address once started, the configured one before.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr != "" {
		return s.addr
	}
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

func (s *Server) handleHealth(c *gin.Context) {
	var results []component.Health
	if s.health != nil {
		results = s.health(c.Request.Context())
	} else {
		results = []component.Health{s.Health(c.Request.Context())}
	}

	info := version.Get()
	report := observability.NewServiceHealth(info.Name, info.Version)
	for _, h := range results {
		report.AddComponent(h)
	}

	code := http.StatusOK
	if !report.Healthy() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.progress.Snapshot())
}

func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get())
}

func (s *Server) handleEvents(c *gin.Context) {
	ServeSSE(s.hub, c.Writer, c.Request, uuid.NewString(), c.Query("topic"), s.cfg.KeepAlive)
}
