package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/healthtrack/healthtrack-analytics/internal/analytics"
	appconfig "github.com/healthtrack/healthtrack-analytics/internal/config"
	"github.com/healthtrack/healthtrack-analytics/internal/db"
	"github.com/healthtrack/healthtrack-analytics/internal/middleware"
)

// Version is reported by /info.
const Version = "0.1.0"

// Server represents the HealthTrack analytics server
type Server struct {
	config *appconfig.Config
	logger *zap.Logger

	// Core components
	engine  *analytics.Engine
	store   db.Store
	hub     *Hub
	adapter *StoreAdapter
	limiter *middleware.RateLimiter

	// Listeners
	httpServer *http.Server
	grpcServer *GRPCServer

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// State
	mu      sync.RWMutex
	running bool
	started time.Time
}

// NewServer wires the HTTP, WebSocket and gRPC surfaces around an engine
// and a store. A nil store leaves the per-user routes answering 503.
func NewServer(cfg *appconfig.Config, engine *analytics.Engine, store db.Store, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("analytics engine cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config: cfg,
		logger: logger,
		engine: engine,
		store:  store,
		hub:    NewHub(logger.Named("ws")),
		ctx:    ctx,
		cancel: cancel,
	}
	if store != nil {
		s.adapter = NewStoreAdapter(store, s.hub, cfg.Notifications.MinSeverity, engine.Options().Anomaly, logger.Named("sink"))
	}
	if cfg.RateLimit.Enabled {
		s.limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}
	return s, nil
}

// Adapter returns the store adapter the report pipeline should use, or nil
// when the server has no store.
func (s *Server) Adapter() *StoreAdapter {
	return s.adapter
}

// Hub returns the notification hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the full HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHandlers(mux)

	mws := []middleware.Middleware{middleware.RequestID, middleware.AccessLog(s.logger.Named("http"))}
	if s.limiter != nil {
		mws = append(mws, s.limiter.Middleware)
	}
	return middleware.Chain(mux, mws...)
}

// Start starts the HTTP and gRPC listeners. It returns once both are bound.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.started = time.Now()
	s.mu.Unlock()

	read, write := timeouts(s.config)
	s.httpServer = &http.Server{
		Addr:         httpAddr(s.config),
		Handler:      s.Handler(),
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  120 * time.Second,
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.setStopped()
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}

	s.grpcServer = NewGRPCServer(grpcAddr(s.config), s.store, s.logger.Named("grpc"))
	if err := s.grpcServer.Start(s.ctx); err != nil {
		ln.Close()
		s.setStopped()
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("HTTP server starting", zap.String("address", s.httpServer.Addr))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()

	s.logger.Info("HealthTrack analytics server started",
		zap.String("http", s.httpServer.Addr),
		zap.String("grpc", s.grpcServer.Addr()),
		zap.Bool("store", s.store != nil),
		zap.Bool("rate_limit", s.limiter != nil),
	)
	return nil
}

func (s *Server) setStopped() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Stopping HealthTrack analytics server")

	var shutdownErr error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("shutdown HTTP server: %w", err)
		}
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}
	s.hub.Close()

	// Cancel context
	s.cancel()

	// Wait for goroutines
	s.wg.Wait()

	s.logger.Info("HealthTrack analytics server stopped")
	return shutdownErr
}

// Wait blocks until the server is stopped
func (s *Server) Wait() {
	<-s.ctx.Done()
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// GetAnalyticsEngine returns the analytics engine
func (s *Server) GetAnalyticsEngine() *analytics.Engine {
	return s.engine
}

// registerHandlers registers HTTP handlers
func (s *Server) registerHandlers(mux *http.ServeMux) {
	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Readiness check
	mux.HandleFunc("/ready", s.handleReady)

	// Info endpoint
	mux.HandleFunc("/info", s.handleInfo)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	// Stateless analytics endpoints
	mux.HandleFunc("/api/v1/analytics/", s.handleAnalyticsDispatch)

	// Stored user data
	mux.HandleFunc("/api/v1/users/", s.handleUsersDispatch)

	// Notification stream
	mux.HandleFunc("/ws/users/", s.handleNotificationStream)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonOK(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady reports ready once the store answers a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	jsonOK(w, map[string]interface{}{
		"status":    "ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	opts := s.engine.Options()
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	info := map[string]interface{}{
		"name":     "HealthTrack Analytics",
		"version":  Version,
		"database": s.config.Database.Type,
		"anomaly": map[string]interface{}{
			"z_score_threshold": opts.Anomaly.ZThreshold,
			"rolling_window":    opts.Anomaly.RollingWindow,
			"rolling_threshold": opts.Anomaly.RollingThreshold,
		},
		"forecast": map[string]interface{}{
			"moving_average_window": opts.Forecast.Window,
			"smoothing_alpha":       opts.Forecast.Alpha,
		},
		"notifications": s.config.Notifications.Enabled,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	}
	if !started.IsZero() {
		info["uptime_seconds"] = int(time.Since(started).Seconds())
	}
	jsonOK(w, info)
}
