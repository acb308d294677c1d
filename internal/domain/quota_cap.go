package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QuotaCap is the configured daily cap for a product. A row whose TerritoryID is uuid.Nil
// applies to every territory that has no row of its own.
type QuotaCap struct {
	CapID       uuid.UUID `gorm:"column:cap_id;type:uuid;primaryKey" json:"cap_id"`
	TerritoryID uuid.UUID `gorm:"column:territory_id;type:uuid;not null;uniqueIndex:idx_cap_scope,priority:1" json:"territory_id"`
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:idx_cap_scope,priority:2" json:"product_id"`
	DailyCap    int64     `gorm:"column:daily_cap;not null;check:daily_cap >= 0" json:"daily_cap"`
	CreatedAt   time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (QuotaCap) TableName() string {
	return "QuotaCaps"
}

func (q *QuotaCap) BeforeCreate(tx *gorm.DB) error {
	if q.CapID == uuid.Nil {
		q.CapID = uuid.New()
	}
	return nil
}
