package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/showrunner/internal/audit"
	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/infrastructure/config"
	"github.com/nerrad567/showrunner/internal/infrastructure/logging"
	"github.com/nerrad567/showrunner/internal/infrastructure/metrics"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// Engine is the automation surface the API drives. *automation.Engine
// implements it.
type Engine interface {
	RoutineStatuses() []*automation.RoutineStatus
	RoutineStatus(id string) (*automation.RoutineStatus, error)
	RunRoutine(ctx context.Context, id string, req automation.RunRequest) (*automation.RunResult, error)
	StartRoutine(id string, req automation.RunRequest) error
	AbortRoutine(id, reason string) error

	TriggerStatuses() []*automation.TriggerStatus
	TriggerStatus(id string) (*automation.TriggerStatus, error)
	ArmTrigger(id string) error
	DisarmTrigger(id string) error
	FireTrigger(ctx context.Context, id string, payload map[string]any) error
	Hook(ctx context.Context, id string, payload map[string]any) error
}

// Executions reads stored runs. *audit.SQLiteRepository implements it.
type Executions interface {
	Get(ctx context.Context, id string) (*audit.Run, error)
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Metrics    config.MetricsConfig
	Logger     *logging.Logger
	Engine     Engine
	Executions Executions        // optional; execution routes return 503 without it
	Recorder   *metrics.Recorder // optional; /metrics is not mounted without it
	Version    string
}

// Server is the HTTP API server.
type Server struct {
	cfg        config.APIConfig
	secCfg     config.SecurityConfig
	metricsCfg config.MetricsConfig
	logger     *logging.Logger
	engine     Engine
	executions Executions
	recorder   *metrics.Recorder
	version    string
	hub        *Hub
	server     *http.Server
	listener   net.Listener
	cancel     context.CancelFunc
}

// New creates a server. The WebSocket hub exists from here on so it can be
// attached to the event relay before Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}

	return &Server{
		cfg:        deps.Config,
		secCfg:     deps.Security,
		metricsCfg: deps.Metrics,
		logger:     deps.Logger,
		engine:     deps.Engine,
		executions: deps.Executions,
		recorder:   deps.Recorder,
		version:    deps.Version,
		hub:        NewHub(deps.WS, deps.Logger),
	}, nil
}

// Hub returns the WebSocket hub. It satisfies eventbus.Broadcaster.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the router. Tests serve it through httptest.
func (s *Server) Handler() http.Handler { return s.buildRouter() }

// Start binds the listener and serves in the background. The bind happens
// here so a port conflict is reported to the caller.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln
	s.logger.Info("API server listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close waits up to gracefulShutdownTimeout for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
