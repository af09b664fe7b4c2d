// Package postgres persists order delivery state and tracking milestones
// with GORM.
package postgres

import (
	"time"

	"github.com/aescanero/shiptrack/pkg/domain"
	"github.com/google/uuid"
)

// OrderDTO is the tracking state of an order
type OrderDTO struct {
	ID          string `gorm:"primaryKey;size:128"`
	Status      string `gorm:"size:32;index"`
	DeliveredAt *time.Time
	UpdatedAt   time.Time
}

// TableName overrides GORM's default table name
func (OrderDTO) TableName() string {
	return "tracked_orders"
}

// MilestoneDTO is one entry in an order's tracking history
type MilestoneDTO struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrderID   string    `gorm:"size:128;index"`
	Status    string    `gorm:"size:32"`
	Lon       float64
	Lat       float64
	Note      string
	ReachedAt time.Time `gorm:"index"`
}

// TableName overrides GORM's default table name
func (MilestoneDTO) TableName() string {
	return "order_milestones"
}

func milestoneFromDomain(m domain.Milestone) MilestoneDTO {
	return MilestoneDTO{
		ID:        uuid.New(),
		OrderID:   m.OrderID.String(),
		Status:    string(m.Status),
		Lon:       m.Location.Lon,
		Lat:       m.Location.Lat,
		Note:      m.Note,
		ReachedAt: m.ReachedAt.UTC(),
	}
}

func milestoneToDomain(dto MilestoneDTO) domain.Milestone {
	return domain.Milestone{
		OrderID:   domain.OrderID(dto.OrderID),
		Status:    domain.Status(dto.Status),
		Location:  domain.NewGeoPoint(dto.Lon, dto.Lat),
		Note:      dto.Note,
		ReachedAt: dto.ReachedAt,
	}
}
