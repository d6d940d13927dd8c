package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/proto"

	"github.com/healthtrack/healthtrack-analytics/internal/db"
)

func TestGRPCHealth(t *testing.T) {
	store, err := db.NewSQLiteStore(":memory:")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g := NewGRPCServer("127.0.0.1:0", store, nil)
	require.NoError(t, g.Start(ctx))
	defer g.Stop()

	conn, err := grpc.NewClient(g.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := grpc_health_v1.NewHealthClient(conn)

	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: AnalyticsServiceName})
	require.NoError(t, err)
	assert.True(t, proto.Equal(&grpc_health_v1.HealthCheckResponse{
		Status: grpc_health_v1.HealthCheckResponse_SERVING,
	}, resp), "got %v", resp)

	require.NoError(t, store.Close())
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, g.CheckStore(ctx))

	resp, err = client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: AnalyticsServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	// overall server status is unaffected by the store
	resp, err = client.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestGRPCServer_AddrBeforeStart(t *testing.T) {
	g := NewGRPCServer("127.0.0.1:7777", nil, nil)
	assert.Equal(t, "127.0.0.1:7777", g.Addr())
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, g.CheckStore(context.Background()))
}
