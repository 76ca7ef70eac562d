package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/LastGentlman/chandra/internal/api"
	"github.com/LastGentlman/chandra/internal/config"
	"github.com/LastGentlman/chandra/internal/home"
	"github.com/LastGentlman/chandra/internal/llmcall"
	"github.com/LastGentlman/chandra/internal/providers"
	"github.com/LastGentlman/chandra/internal/server/endpoints"
	"github.com/LastGentlman/chandra/internal/svcctx"
	"github.com/LastGentlman/chandra/internal/vllm"
)

// Server is the Chandra OCR HTTP server.
// When configured to, it manages the vLLM container lifecycle - starting it
// on server start and stopping it on server shutdown.
type Server struct {
	httpServer  *http.Server
	handler     http.Handler
	vllmManager *vllm.DockerManager
	registry    *providers.Registry
	configMgr   *config.Manager
	logger      *slog.Logger

	// call log
	callStore llmcall.Store
	sink      *llmcall.Sink

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: server.host from config)
	Host string
	// Port is the port to listen on (default: server.port from config)
	Port string
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Home is the chandra home directory used for upload scratch space.
	Home *home.Dir
	// StartVLLM starts the vLLM container with the server and stops it on shutdown.
	StartVLLM bool
	// VLLMConfig holds vLLM container settings
	VLLMConfig vllm.DockerConfig
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}
	appCfg := cfg.ConfigManager.Get()
	if cfg.Host == "" {
		cfg.Host = appCfg.Server.Host
	}
	if cfg.Port == "" {
		cfg.Port = appCfg.Server.Port
	}

	s := &Server{
		configMgr: cfg.ConfigManager,
		logger:    cfg.Logger,
	}

	if cfg.StartVLLM {
		mgr, err := vllm.NewDockerManager(cfg.VLLMConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create vllm manager: %w", err)
		}
		s.vllmManager = mgr
	}

	// Create model registry and rebuild it when the config changes
	s.registry = providers.NewRegistry()
	s.registry.SetLogger(cfg.Logger)
	s.registry.Reload(appCfg.ToRegistryConfig())
	cfg.ConfigManager.OnChange(func(c *config.Config) {
		s.registry.Reload(c.ToRegistryConfig())
		cfg.Logger.Info("model registry reloaded from config")
	})

	callStore, err := openCallStore(appCfg.CallLog, cfg.Logger)
	if err != nil {
		return nil, err
	}
	s.callStore = callStore
	s.sink = llmcall.NewSink(llmcall.SinkConfig{Store: callStore, Logger: cfg.Logger})

	s.services = &svcctx.Services{
		Registry:  s.registry,
		ConfigMgr: cfg.ConfigManager,
		Logger:    cfg.Logger,
		Home:      cfg.Home,
		Recorder:  llmcall.NewRecorder(s.sink),
	}
	if lister, ok := callStore.(llmcall.Lister); ok {
		s.services.CallLog = lister
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{VLLM: s.vllmManager}) {
		s.endpointRegistry.Register(ep)
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.handler = s.withServices(s.cors(s.limitBody(mux)))

	s.httpServer = &http.Server{
		Addr:        net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:     s.handler,
		ReadTimeout: 5 * time.Minute,
		// Multi-page documents can take many minutes to generate.
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// openCallStore opens Postgres when a DSN is configured, otherwise an
// in-memory store.
func openCallStore(cfg config.CallLogConfig, logger *slog.Logger) (llmcall.Store, error) {
	dsn := config.ResolveEnvVars(cfg.DSN)
	if dsn == "" {
		return &llmcall.MemoryStore{}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := llmcall.OpenPostgres(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open call log: %w", err)
	}
	logger.Info("call log connected to postgres")
	return store, nil
}

// Start starts the server and, if managed, the vLLM container.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	s.sink.Start(context.WithoutCancel(ctx))

	if s.vllmManager != nil {
		s.logger.Info("starting vLLM container")
		if err := s.vllmManager.Start(ctx); err != nil {
			_ = s.shutdown()
			return fmt.Errorf("failed to start vLLM: %w", err)
		}
		s.logger.Info("waiting for vLLM to load the model", "url", s.vllmManager.URL())
		if err := s.vllmManager.WaitReady(ctx, vllm.DefaultReadyTimeout); err != nil {
			_ = s.shutdown()
			return fmt.Errorf("vLLM health check failed: %w", err)
		}
		s.logger.Info("vLLM is ready", "url", s.vllmManager.BaseURL())
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown stops the HTTP server, the vLLM container and the call log.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	// Shutdown HTTP server with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.vllmManager != nil {
		s.logger.Info("stopping vLLM container")
		if err := s.vllmManager.Stop(shutdownCtx); err != nil {
			s.logger.Error("vLLM stop error", "error", err)
		}
		if err := s.vllmManager.Close(); err != nil {
			s.logger.Error("vLLM manager close error", "error", err)
		}
	}

	s.sink.Stop()
	if closer, ok := s.callStore.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			s.logger.Error("call log close error", "error", err)
		}
	}
	if err := s.registry.Close(); err != nil {
		s.logger.Error("model registry close error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Registry returns the model registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := svcctx.WithServices(r.Context(), s.services)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
