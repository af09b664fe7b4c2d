package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aescanero/shiptrack/pkg/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "shiptrack:run:"

// RunStorage implements RunStore using Redis
type RunStorage struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewRunStorage creates a new Redis run storage
func NewRunStorage(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RunStorage {
	return &RunStorage{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// Save persists a simulation run
func (s *RunStorage) Save(ctx context.Context, run *domain.SimulationRun) error {
	key := getRunKey(run.OrderID)

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	s.logger.Debug("run saved",
		zap.String("order_id", run.OrderID.String()),
		zap.Int("events", len(run.Events)))

	return nil
}

// Load retrieves a simulation run
func (s *RunStorage) Load(ctx context.Context, orderID domain.OrderID) (*domain.SimulationRun, error) {
	data, err := s.client.Get(ctx, getRunKey(orderID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var run domain.SimulationRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}

	return &run, nil
}

// Delete removes a simulation run
func (s *RunStorage) Delete(ctx context.Context, orderID domain.OrderID) error {
	if err := s.client.Del(ctx, getRunKey(orderID)).Err(); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	s.logger.Debug("run deleted", zap.String("order_id", orderID.String()))
	return nil
}

// List returns the order IDs of all stored runs
func (s *RunStorage) List(ctx context.Context) ([]domain.OrderID, error) {
	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error

		batch, cursor, err = s.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	ids := make([]domain.OrderID, 0, len(keys))
	for _, key := range keys {
		if len(key) > len(keyPrefix) {
			ids = append(ids, domain.OrderID(key[len(keyPrefix):]))
		}
	}

	return ids, nil
}

// getRunKey returns the Redis key for an order's run
func getRunKey(orderID domain.OrderID) string {
	return keyPrefix + orderID.String()
}
