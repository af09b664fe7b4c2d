package grpc_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/aescanero/shiptrack/internal/application/simulation"
	metrics "github.com/aescanero/shiptrack/pkg/adapters/metrics/prometheus"
	"github.com/aescanero/shiptrack/pkg/adapters/routing/direct"
	simclient "github.com/aescanero/shiptrack/pkg/adapters/simulation/grpc"
	"github.com/aescanero/shiptrack/pkg/adapters/storage/memory"
	simrpc "github.com/aescanero/shiptrack/pkg/api/grpc"
	"github.com/aescanero/shiptrack/pkg/domain"
	"github.com/aescanero/shiptrack/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

var (
	origin      = domain.NewGeoPoint(114.30, 30.59)
	destination = domain.NewGeoPoint(114.87, 30.45)
)

type routerFunc func(ctx context.Context, o, d domain.GeoPoint) ([]domain.GeoPoint, error)

func (f routerFunc) Route(ctx context.Context, o, d domain.GeoPoint) ([]domain.GeoPoint, error) {
	return f(ctx, o, d)
}

func startEngine(t *testing.T, router ports.Router) *simclient.Client {
	t.Helper()

	engine := simulation.NewEngine(&simulation.Config{
		Router:  router,
		Store:   memory.NewInMemoryRunStorage(),
		Metrics: metrics.NewCollector(prometheus.NewRegistry()),
		Logger:  zap.NewNop(),
	})
	server := simrpc.NewServer(&simrpc.Config{
		Simulations: simulation.NewLocalService(engine),
		Logger:      zap.NewNop(),
	})

	lis := bufconn.Listen(1 << 20)
	go func() { _ = server.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})

	return simclient.NewClientWithConn(conn, zap.NewNop())
}

func TestClient_CreateReadDelete(t *testing.T) {
	client := startEngine(t, direct.NewRouter())
	ctx := context.Background()

	require.NoError(t, client.Create(ctx, "1", origin, destination, nil))

	snap, err := client.Read(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, origin, snap.Location)
	assert.Zero(t, snap.Progress)
	assert.Greater(t, snap.TotalDistanceMeters, 50000.0)
	assert.Equal(t, domain.DefaultSpeedKmh, snap.BaseSpeedKmh)

	require.NoError(t, client.Delete(ctx, "1"))

	_, err = client.Read(ctx, "1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClient_ErrorMapping(t *testing.T) {
	client := startEngine(t, routerFunc(func(ctx context.Context, o, d domain.GeoPoint) ([]domain.GeoPoint, error) {
		if o == d {
			return nil, domain.ErrRouteUnavailable
		}
		return []domain.GeoPoint{o, d}, nil
	}))
	ctx := context.Background()

	require.NoError(t, client.Create(ctx, "1", origin, destination, nil))

	err := client.Create(ctx, "1", origin, destination, nil)
	assert.ErrorIs(t, err, domain.ErrDuplicateSimulation)

	err = client.Create(ctx, "2", origin, origin, nil)
	assert.ErrorIs(t, err, domain.ErrRouteUnavailable)

	err = client.Create(ctx, "3", origin, destination, &domain.SimulationConfig{SpeedKmh: 0, TickIntervalMs: 1000})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	err = client.Delete(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClient_OrderIDRoundTrip(t *testing.T) {
	client := startEngine(t, direct.NewRouter())
	ctx := context.Background()

	require.NoError(t, client.Create(ctx, "42", origin, destination, &domain.SimulationConfig{
		SpeedKmh:         80,
		TickIntervalMs:   1000,
		VarianceFraction: 0,
	}))

	snap, err := client.Read(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 80.0, snap.BaseSpeedKmh)
}
