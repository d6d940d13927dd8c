package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/healthtrack/healthtrack-analytics/internal/db"
)

// AnalyticsServiceName is the service name reported by the health server.
const AnalyticsServiceName = "healthtrack.analytics"

// healthCheckInterval is how often the store is pinged to refresh status.
const healthCheckInterval = 15 * time.Second

// GRPCServer exposes the standard gRPC health service. Its status follows
// the store: NOT_SERVING while the store fails to answer a ping.
type GRPCServer struct {
	addr         string
	server       *grpc.Server
	healthServer *health.Server
	store        db.Store
	log          *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewGRPCServer creates a gRPC server instance bound to addr once started.
func NewGRPCServer(addr string, store db.Store, log *zap.Logger) *GRPCServer {
	if log == nil {
		log = zap.NewNop()
	}
	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(4 * 1024 * 1024),
		grpc.MaxSendMsgSize(4 * 1024 * 1024),
		grpc.ConnectionTimeout(30 * time.Second),
	}

	s := grpc.NewServer(opts...)
	healthServer := health.NewServer()

	// Register health service
	grpc_health_v1.RegisterHealthServer(s, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(AnalyticsServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	// Enable reflection for grpcurl and friends
	reflection.Register(s)

	return &GRPCServer{
		addr:         addr,
		server:       s,
		healthServer: healthServer,
		store:        store,
		log:          log,
		stopCh:       make(chan struct{}),
	}
}

// Start binds the listener and serves in the background.
func (g *GRPCServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", g.addr, err)
	}
	g.mu.Lock()
	g.listener = listener
	g.mu.Unlock()

	g.log.Info("gRPC server starting", zap.String("address", listener.Addr().String()))

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.server.Serve(listener); err != nil {
			g.log.Error("gRPC server failed", zap.Error(err))
		}
	}()

	if g.store != nil {
		g.wg.Add(1)
		go g.watchStore(ctx)
	}
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (g *GRPCServer) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener != nil {
		return g.listener.Addr().String()
	}
	return g.addr
}

// CheckStore pings the store once and updates the analytics service status.
func (g *GRPCServer) CheckStore(ctx context.Context) grpc_health_v1.HealthCheckResponse_ServingStatus {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if g.store != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := g.store.Ping(pingCtx); err != nil {
			g.log.Warn("store ping failed", zap.Error(err))
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
	}
	g.healthServer.SetServingStatus(AnalyticsServiceName, status)
	return status
}

func (g *GRPCServer) watchStore(ctx context.Context) {
	defer g.wg.Done()
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			g.CheckStore(ctx)
		case <-g.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop gracefully stops the gRPC server
func (g *GRPCServer) Stop() {
	g.log.Info("Stopping gRPC server")
	g.healthServer.Shutdown()

	select {
	case <-g.stopCh:
	default:
		close(g.stopCh)
	}

	// Graceful stop with timeout
	stopped := make(chan struct{})
	go func() {
		g.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		g.log.Info("gRPC server stopped gracefully")
	case <-time.After(5 * time.Second):
		g.log.Warn("gRPC server forced to stop after timeout")
		g.server.Stop()
	}
	g.wg.Wait()
}
