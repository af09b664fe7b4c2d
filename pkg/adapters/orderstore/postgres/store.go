package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aescanero/shiptrack/pkg/domain"
	"go.uber.org/zap"
	postgresdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// GormOrderStore implements ports.OrderStore using GORM
type GormOrderStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to PostgreSQL and migrates the schema
func Open(dsn string, logger *zap.Logger) (*GormOrderStore, error) {
	db, err := gorm.Open(postgresdriver.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	store := NewGormOrderStore(db, logger)
	if err := store.Migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

// NewGormOrderStore creates a new GORM order store
func NewGormOrderStore(db *gorm.DB, logger *zap.Logger) *GormOrderStore {
	return &GormOrderStore{
		db:     db,
		logger: logger,
	}
}

// Migrate creates or updates the tables
func (s *GormOrderStore) Migrate() error {
	if err := s.db.AutoMigrate(&OrderDTO{}, &MilestoneDTO{}); err != nil {
		return fmt.Errorf("failed to migrate order store: %w", err)
	}
	return nil
}

// MarkDelivered records the order as delivered. The first delivery time
// wins when called more than once.
func (s *GormOrderStore) MarkDelivered(ctx context.Context, orderID domain.OrderID, at time.Time) error {
	at = at.UTC()
	dto := OrderDTO{
		ID:          orderID.String(),
		Status:      string(domain.StatusDelivered),
		DeliveredAt: &at,
		UpdatedAt:   at,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":       string(domain.StatusDelivered),
			"delivered_at": gorm.Expr("COALESCE(tracked_orders.delivered_at, EXCLUDED.delivered_at)"),
			"updated_at":   at,
		}),
	}).Create(&dto).Error
	if err != nil {
		return fmt.Errorf("failed to mark order delivered: %w", err)
	}

	s.logger.Debug("order marked delivered", zap.String("order_id", orderID.String()))
	return nil
}

// AppendMilestone adds an entry to the order's history
func (s *GormOrderStore) AppendMilestone(ctx context.Context, m domain.Milestone) error {
	dto := milestoneFromDomain(m)
	if err := s.db.WithContext(ctx).Create(&dto).Error; err != nil {
		return fmt.Errorf("failed to append milestone: %w", err)
	}
	return nil
}

// Milestones returns the order's history, oldest first
func (s *GormOrderStore) Milestones(ctx context.Context, orderID domain.OrderID) ([]domain.Milestone, error) {
	var dtos []MilestoneDTO
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID.String()).
		Order("reached_at ASC").
		Find(&dtos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}

	milestones := make([]domain.Milestone, 0, len(dtos))
	for _, dto := range dtos {
		milestones = append(milestones, milestoneToDomain(dto))
	}
	return milestones, nil
}

// DeliveredAt returns when the order was delivered
func (s *GormOrderStore) DeliveredAt(ctx context.Context, orderID domain.OrderID) (*time.Time, error) {
	var dto OrderDTO
	err := s.db.WithContext(ctx).First(&dto, "id = ?", orderID.String()).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return dto.DeliveredAt, nil
}

// Ping checks the database connection
func (s *GormOrderStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access connection pool: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool
func (s *GormOrderStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access connection pool: %w", err)
	}
	return sqlDB.Close()
}
