package simulation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/aescanero/shiptrack/pkg/domain"
	"github.com/aescanero/shiptrack/pkg/ports"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Engine owns the simulation runs keyed by order.
type Engine struct {
	router   ports.Router
	store    ports.RunStore
	metrics  ports.MetricsCollector
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time

	defaults     domain.SimulationConfig
	tickInterval time.Duration
	retention    time.Duration

	mu   sync.Mutex
	rng  *rand.Rand
	runs map[domain.OrderID]*domain.SimulationRun

	cron *cron.Cron
}

// Config holds engine dependencies and tuning.
type Config struct {
	Router  ports.Router
	Store   ports.RunStore
	Metrics ports.MetricsCollector
	Logger  *zap.Logger

	// Defaults applies when Start is called without a config.
	Defaults domain.SimulationConfig
	// TickInterval is the background cursor tick period.
	TickInterval time.Duration
	// CompletedRetention is how long a completed run is kept before the
	// tick reaps it. Zero disables reaping.
	CompletedRetention time.Duration

	Clock func() time.Time
	Rand  *rand.Rand
}

// NewEngine creates a new simulation engine
func NewEngine(cfg *Config) *Engine {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed))
	}
	defaults := cfg.Defaults
	if defaults == (domain.SimulationConfig{}) {
		defaults = domain.DefaultSimulationConfig()
	}
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = time.Second
	}

	return &Engine{
		router:       cfg.Router,
		store:        cfg.Store,
		metrics:      cfg.Metrics,
		validate:     validator.New(),
		logger:       cfg.Logger,
		now:          clock,
		defaults:     defaults,
		tickInterval: tick,
		retention:    cfg.CompletedRetention,
		rng:          rng,
		runs:         make(map[domain.OrderID]*domain.SimulationRun),
	}
}

// Start resolves a route and precomputes the trajectory for orderID.
func (e *Engine) Start(ctx context.Context, orderID domain.OrderID, origin, destination domain.GeoPoint, cfg *domain.SimulationConfig) error {
	simCfg := e.defaults
	if cfg != nil {
		simCfg = *cfg
	}
	if err := e.validate.Struct(simCfg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}

	if e.exists(orderID) {
		e.metrics.RecordSimulationStarted("duplicate")
		return fmt.Errorf("%w: order %s", domain.ErrDuplicateSimulation, orderID)
	}

	route, err := e.router.Route(ctx, origin, destination)
	if err != nil {
		e.metrics.RecordSimulationStarted("route_unavailable")
		return fmt.Errorf("%w: %v", domain.ErrRouteUnavailable, err)
	}
	if len(route) < 2 {
		e.metrics.RecordSimulationStarted("route_unavailable")
		return fmt.Errorf("%w: got %d points", domain.ErrRouteUnavailable, len(route))
	}

	e.mu.Lock()
	if _, ok := e.runs[orderID]; ok {
		e.mu.Unlock()
		e.metrics.RecordSimulationStarted("duplicate")
		return fmt.Errorf("%w: order %s", domain.ErrDuplicateSimulation, orderID)
	}
	startedAt := e.now().UnixMilli()
	events, total := buildTrajectory(route, simCfg, startedAt, e.rng)
	run := &domain.SimulationRun{
		OrderID:             orderID,
		State:               domain.RunStateCreated,
		StartedAt:           startedAt,
		BaseSpeedKmh:        simCfg.SpeedKmh,
		TotalDistanceMeters: total,
		Events:              events,
	}
	e.runs[orderID] = run
	active := len(e.runs)
	e.mu.Unlock()

	if err := e.store.Save(ctx, run); err != nil {
		e.mu.Lock()
		delete(e.runs, orderID)
		e.mu.Unlock()
		e.metrics.RecordSimulationStarted("failed")
		return fmt.Errorf("failed to save simulation run: %w", err)
	}

	e.mu.Lock()
	if run.State == domain.RunStateCreated {
		run.State = domain.RunStateRunning
	}
	e.mu.Unlock()

	e.metrics.RecordSimulationStarted("started")
	e.metrics.SetActiveSimulations(active)
	e.logger.Info("simulation started",
		zap.String("order_id", orderID.String()),
		zap.Int("route_points", len(route)),
		zap.Int("events", len(events)),
		zap.Float64("total_distance_m", total),
		zap.Float64("speed_kmh", simCfg.SpeedKmh))

	return nil
}

// Query returns the snapshot for orderID at the current time.
func (e *Engine) Query(ctx context.Context, orderID domain.OrderID) (*domain.ShipmentSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	run, ok := e.runs[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}

	e.advance(run, e.now().UnixMilli())
	return run.Snapshot(), nil
}

// Stop deletes the run for orderID.
func (e *Engine) Stop(ctx context.Context, orderID domain.OrderID) error {
	e.mu.Lock()
	run, ok := e.runs[orderID]
	if ok {
		delete(e.runs, orderID)
		if !run.State.IsTerminal() {
			run.State = domain.RunStateStopped
		}
	}
	active := len(e.runs)
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}

	if err := e.store.Delete(ctx, orderID); err != nil {
		e.logger.Error("failed to delete stored simulation run",
			zap.String("order_id", orderID.String()),
			zap.Error(err))
	}

	e.metrics.SetActiveSimulations(active)
	e.logger.Info("simulation stopped",
		zap.String("order_id", orderID.String()),
		zap.String("state", string(run.State)))

	return nil
}

// Restore loads persisted runs that are not already in memory.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	ids, err := e.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list stored runs: %w", err)
	}

	restored := 0
	for _, id := range ids {
		run, err := e.store.Load(ctx, id)
		if err != nil {
			e.logger.Warn("failed to load stored run",
				zap.String("order_id", id.String()),
				zap.Error(err))
			continue
		}
		if len(run.Events) == 0 {
			continue
		}
		if run.ReadCursor < 0 || run.ReadCursor >= len(run.Events) {
			run.ReadCursor = 0
		}

		e.mu.Lock()
		if _, ok := e.runs[id]; !ok {
			e.runs[id] = run
			restored++
		}
		e.mu.Unlock()
	}

	e.metrics.SetActiveSimulations(e.Len())
	e.logger.Info("simulation runs restored", zap.Int("count", restored))
	return restored, nil
}

// Len returns the number of runs held.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.runs)
}

// Run starts the background cursor tick.
func (e *Engine) Run() error {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(e.logger))
	e.cron = cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger)),
	)
	e.cron.Schedule(cron.Every(e.tickInterval), cron.FuncJob(e.tick))
	e.cron.Start()

	e.logger.Info("simulation tick started", zap.Duration("interval", e.tickInterval))
	return nil
}

// Shutdown stops the background tick and waits for a running tick.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.cron == nil {
		return nil
	}

	stopped := e.cron.Stop()
	select {
	case <-stopped.Done():
		e.logger.Info("simulation engine shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout")
	}
}

// tick advances every cursor and reaps stale completed runs.
func (e *Engine) tick() {
	nowMs := e.now().UnixMilli()
	var reaped []domain.OrderID

	e.mu.Lock()
	for id, run := range e.runs {
		e.advance(run, nowMs)
		if e.retention > 0 && run.State == domain.RunStateCompleted &&
			nowMs-run.CompletedAt > e.retention.Milliseconds() {
			delete(e.runs, id)
			reaped = append(reaped, id)
		}
	}
	active := len(e.runs)
	e.mu.Unlock()

	for _, id := range reaped {
		if err := e.store.Delete(context.Background(), id); err != nil {
			e.logger.Error("failed to delete reaped run",
				zap.String("order_id", id.String()),
				zap.Error(err))
		}
		e.logger.Info("completed simulation reaped", zap.String("order_id", id.String()))
	}

	e.metrics.SetActiveSimulations(active)
}

// advance moves the cursor to the last event due at nowMs. Caller holds mu.
func (e *Engine) advance(run *domain.SimulationRun, nowMs int64) {
	pending := run.Events[run.ReadCursor+1:]
	run.ReadCursor += sort.Search(len(pending), func(i int) bool {
		return pending[i].TargetTimestamp > nowMs
	})

	if run.ReadCursor == len(run.Events)-1 && run.State != domain.RunStateCompleted {
		run.State = domain.RunStateCompleted
		run.CompletedAt = nowMs
		e.metrics.RecordSimulationCompleted()
	}
}

func (e *Engine) exists(orderID domain.OrderID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.runs[orderID]
	return ok
}
