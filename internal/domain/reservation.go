package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReservationState string

const (
	ReservationPending   ReservationState = "pending"
	ReservationCommitted ReservationState = "committed"
	ReservationReleased  ReservationState = "released"
)

// Reservation is one admitted claim of Quantity units against a QuotaEntry, owned by an order line.
// Quantity never changes; a different quantity is a release followed by a new reservation.
type Reservation struct {
	ReservationID uuid.UUID        `gorm:"column:reservation_id;type:uuid;primaryKey" json:"reservation_id"`
	OrderLineID   uuid.UUID        `gorm:"column:order_line_id;type:uuid;not null;index" json:"order_line_id"`
	TerritoryID   uuid.UUID        `gorm:"column:territory_id;type:uuid;not null;index:idx_reservation_key,priority:1" json:"territory_id"`
	ProductID     uuid.UUID        `gorm:"column:product_id;type:uuid;not null;index:idx_reservation_key,priority:2" json:"product_id"`
	QuotaDate     string           `gorm:"column:quota_date;type:varchar(10);not null;index:idx_reservation_key,priority:3" json:"quota_date"`
	Quantity      int64            `gorm:"column:quantity;not null;check:quantity > 0" json:"quantity"`
	State         ReservationState `gorm:"column:state;type:varchar(20);not null;index" json:"state"`
	CommittedAt   *time.Time       `gorm:"column:committed_at" json:"committed_at"`
	ReleasedAt    *time.Time       `gorm:"column:released_at" json:"released_at"`
	CreatedAt     time.Time        `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt     time.Time        `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Reservation) TableName() string {
	return "Reservations"
}

func (r *Reservation) BeforeCreate(tx *gorm.DB) error {
	if r.ReservationID == uuid.Nil {
		r.ReservationID = uuid.New()
	}
	return nil
}

func (r Reservation) Key() QuotaKey {
	return QuotaKey{TerritoryID: r.TerritoryID, ProductID: r.ProductID, Date: r.QuotaDate}
}
