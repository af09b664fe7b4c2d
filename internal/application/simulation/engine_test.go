package simulation_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/shiptrack/internal/application/simulation"
	metrics "github.com/aescanero/shiptrack/pkg/adapters/metrics/prometheus"
	"github.com/aescanero/shiptrack/pkg/adapters/routing/direct"
	"github.com/aescanero/shiptrack/pkg/adapters/storage/memory"
	"github.com/aescanero/shiptrack/pkg/domain"
	"github.com/aescanero/shiptrack/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	origin      = domain.NewGeoPoint(114.30, 30.59)
	destination = domain.NewGeoPoint(114.87, 30.45)
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type routerFunc func(ctx context.Context, o, d domain.GeoPoint) ([]domain.GeoPoint, error)

func (f routerFunc) Route(ctx context.Context, o, d domain.GeoPoint) ([]domain.GeoPoint, error) {
	return f(ctx, o, d)
}

func newEngine(t *testing.T, router ports.Router, store ports.RunStore, clock *fakeClock) *simulation.Engine {
	t.Helper()
	return simulation.NewEngine(&simulation.Config{
		Router:  router,
		Store:   store,
		Metrics: metrics.NewCollector(prometheus.NewRegistry()),
		Logger:  zap.NewNop(),
		Clock:   clock.Now,
		Rand:    rand.New(rand.NewPCG(7, 7)),
	})
}

func deterministicConfig() *domain.SimulationConfig {
	return &domain.SimulationConfig{SpeedKmh: 40, TickIntervalMs: 2000, VarianceFraction: 0}
}

func TestEngine_QueryImmediatelyAfterStart(t *testing.T) {
	clock := newFakeClock()
	engine := newEngine(t, direct.NewRouter(), memory.NewInMemoryRunStorage(), clock)
	ctx := context.Background()

	require.NoError(t, engine.Start(ctx, "1", origin, destination, deterministicConfig()))

	snap, err := engine.Query(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.Progress)
	assert.Equal(t, origin, snap.Location)
	assert.Equal(t, clock.Now().UnixMilli(), snap.StartedAt)
	assert.Equal(t, 40.0, snap.BaseSpeedKmh)
	assert.InDelta(t, origin.DistanceTo(destination), snap.TotalDistanceMeters, 1e-6)
	assert.InDelta(t, snap.TotalDistanceMeters, snap.RemainingDistanceMeters, 1e-6)
	assert.Greater(t, snap.PlannedArrivalTimestamp, snap.StartedAt)
}

func TestEngine_QueryReflectsElapsedTime(t *testing.T) {
	clock := newFakeClock()
	engine := newEngine(t, direct.NewRouter(), memory.NewInMemoryRunStorage(), clock)
	ctx := context.Background()
	require.NoError(t, engine.Start(ctx, "1", origin, destination, deterministicConfig()))

	first, err := engine.Query(ctx, "1")
	require.NoError(t, err)
	arrival := time.UnixMilli(first.PlannedArrivalTimestamp)

	// Halfway with no background tick in between.
	clock.Advance(arrival.Sub(clock.Now()) / 2)
	mid, err := engine.Query(ctx, "1")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, mid.Progress, 0.01)
	assert.Equal(t, domain.StatusInTransit, domain.StatusForProgress(mid.Progress))

	clock.Advance(arrival.Sub(clock.Now()))
	done, err := engine.Query(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, done.Progress)
	assert.Equal(t, destination, done.Location)
	assert.Zero(t, done.RemainingDistanceMeters)

	clock.Advance(time.Hour)
	later, err := engine.Query(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, later.Progress)
	assert.Equal(t, destination, later.Location)
}

func TestEngine_QueryBeforeFirstEventReturnsOrigin(t *testing.T) {
	clock := newFakeClock()
	engine := newEngine(t, direct.NewRouter(), memory.NewInMemoryRunStorage(), clock)
	ctx := context.Background()
	require.NoError(t, engine.Start(ctx, "1", origin, destination, deterministicConfig()))

	clock.Advance(-time.Minute)
	snap, err := engine.Query(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, origin, snap.Location)
	assert.Equal(t, 0.0, snap.Progress)
}

func TestEngine_DuplicateStartLeavesFirstRunUntouched(t *testing.T) {
	clock := newFakeClock()
	engine := newEngine(t, direct.NewRouter(), memory.NewInMemoryRunStorage(), clock)
	ctx := context.Background()
	require.NoError(t, engine.Start(ctx, "1", origin, destination, deterministicConfig()))
	before, err := engine.Query(ctx, "1")
	require.NoError(t, err)

	err = engine.Start(ctx, "1", destination, origin, &domain.SimulationConfig{SpeedKmh: 90, TickIntervalMs: 1000})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDuplicateSimulation))

	after, err := engine.Query(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, engine.Len())
}

func TestEngine_RouteUnavailable(t *testing.T) {
	clock := newFakeClock()
	ctx := context.Background()

	t.Run("fewer than two points", func(t *testing.T) {
		engine := newEngine(t, routerFunc(func(context.Context, domain.GeoPoint, domain.GeoPoint) ([]domain.GeoPoint, error) {
			return []domain.GeoPoint{origin}, nil
		}), memory.NewInMemoryRunStorage(), clock)

		err := engine.Start(ctx, "1", origin, destination, nil)
		assert.ErrorIs(t, err, domain.ErrRouteUnavailable)
		_, err = engine.Query(ctx, "1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("routing failure", func(t *testing.T) {
		engine := newEngine(t, routerFunc(func(context.Context, domain.GeoPoint, domain.GeoPoint) ([]domain.GeoPoint, error) {
			return nil, errors.New("connection refused")
		}), memory.NewInMemoryRunStorage(), clock)

		err := engine.Start(ctx, "1", origin, destination, nil)
		assert.ErrorIs(t, err, domain.ErrRouteUnavailable)
	})
}

func TestEngine_InvalidConfig(t *testing.T) {
	engine := newEngine(t, direct.NewRouter(), memory.NewInMemoryRunStorage(), newFakeClock())
	ctx := context.Background()

	for _, cfg := range []domain.SimulationConfig{
		{SpeedKmh: 0, TickIntervalMs: 1000},
		{SpeedKmh: 40, TickIntervalMs: 0},
		{SpeedKmh: 40, TickIntervalMs: 1000, VarianceFraction: 1.5},
		{SpeedKmh: 40, TickIntervalMs: 1000, VarianceFraction: -0.1},
	} {
		cfg := cfg
		assert.ErrorIs(t, engine.Start(ctx, "1", origin, destination, &cfg), domain.ErrInvalidConfig)
	}
	assert.Zero(t, engine.Len())
}

func TestEngine_StopAndNotFound(t *testing.T) {
	store := memory.NewInMemoryRunStorage()
	engine := newEngine(t, direct.NewRouter(), store, newFakeClock())
	ctx := context.Background()

	assert.ErrorIs(t, engine.Stop(ctx, "missing"), domain.ErrNotFound)
	_, err := engine.Query(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, engine.Start(ctx, "1", origin, destination, nil))
	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.OrderID{"1"}, ids)

	require.NoError(t, engine.Stop(ctx, "1"))
	_, err = engine.Query(ctx, "1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// A fresh start is allowed after stop.
	require.NoError(t, engine.Start(ctx, "1", origin, destination, nil))
}

func TestEngine_RestoreFromStore(t *testing.T) {
	clock := newFakeClock()
	store := memory.NewInMemoryRunStorage()
	ctx := context.Background()

	first := newEngine(t, direct.NewRouter(), store, clock)
	require.NoError(t, first.Start(ctx, "42", origin, destination, deterministicConfig()))
	clock.Advance(10 * time.Minute)
	want, err := first.Query(ctx, "42")
	require.NoError(t, err)

	restarted := newEngine(t, direct.NewRouter(), store, clock)
	n, err := restarted.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := restarted.Query(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEngine_RunAndShutdown(t *testing.T) {
	engine := newEngine(t, direct.NewRouter(), memory.NewInMemoryRunStorage(), newFakeClock())
	require.NoError(t, engine.Run())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, engine.Shutdown(ctx))
}

func TestLocalService_DelegatesToEngine(t *testing.T) {
	engine := newEngine(t, direct.NewRouter(), memory.NewInMemoryRunStorage(), newFakeClock())
	var svc ports.SimulationService = simulation.NewLocalService(engine)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, "9", origin, destination, nil))
	snap, err := svc.Read(ctx, "9")
	require.NoError(t, err)
	assert.Equal(t, origin, snap.Location)
	require.NoError(t, svc.Delete(ctx, "9"))
	_, err = svc.Read(ctx, "9")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
