package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OrderEvent is the append-only history of an order (BOOKED, CANCELLED, LINE_AMENDED, ...).
// Downstream reporting reads committed orders from here.
type OrderEvent struct {
	EventID     uuid.UUID      `gorm:"column:event_id;type:uuid;primaryKey" json:"event_id"`
	OrderID     uuid.UUID      `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	TerritoryID uuid.UUID      `gorm:"column:territory_id;type:uuid;not null" json:"territory_id"`
	EventType   string         `gorm:"column:event_type;type:varchar(40);not null" json:"event_type"`
	EventData   datatypes.JSON `gorm:"column:event_data;not null" json:"event_data"`
	CreatedAt   time.Time      `gorm:"column:createdAt" json:"createdAt"`
}

func (OrderEvent) TableName() string {
	return "OrderEvents"
}

func (e *OrderEvent) BeforeCreate(tx *gorm.DB) error {
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	return nil
}
