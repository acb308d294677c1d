package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderSource string

const (
	SourceDealer OrderSource = "dealer"
	SourceTSO    OrderSource = "tso"
)

func (s OrderSource) Valid() bool {
	return s == SourceDealer || s == SourceTSO
}

type OrderStatus string

const (
	OrderBooked    OrderStatus = "booked"
	OrderCancelled OrderStatus = "cancelled"
	// OrderReconciliationRequired marks an order whose quota could not be fully returned.
	OrderReconciliationRequired OrderStatus = "reconciliation_required"
)

// Order is a dealer or TSO order for one territory and business date.
type Order struct {
	OrderID     uuid.UUID       `gorm:"column:order_id;type:uuid;primaryKey" json:"order_id"`
	Source      OrderSource     `gorm:"column:source;type:varchar(10);not null" json:"source"`
	TerritoryID uuid.UUID       `gorm:"column:territory_id;type:uuid;not null;index:idx_order_territory_date,priority:1" json:"territory_id"`
	DealerID    *uuid.UUID      `gorm:"column:dealer_id;type:uuid" json:"dealer_id"`
	OrderDate   string          `gorm:"column:order_date;type:varchar(10);not null;index:idx_order_territory_date,priority:2" json:"order_date"`
	Status      OrderStatus     `gorm:"column:status;type:varchar(30);not null;default:'booked'" json:"status"`
	TotalAmount decimal.Decimal `gorm:"column:total_amount;type:decimal(18,2);not null;default:0" json:"total_amount"`
	CancelledAt *time.Time      `gorm:"column:cancelled_at" json:"cancelled_at"`
	Lines       []OrderLine     `gorm:"foreignKey:OrderID;references:OrderID" json:"lines"`
	CreatedAt   time.Time       `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt   time.Time       `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Order) TableName() string {
	return "Orders"
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.OrderID == uuid.Nil {
		o.OrderID = uuid.New()
	}
	return nil
}

// OrderLine is one product line. ReservationID points at the active reservation and is nil
// when the line's quota has been released without a replacement.
type OrderLine struct {
	LineID        uuid.UUID       `gorm:"column:line_id;type:uuid;primaryKey" json:"line_id"`
	OrderID       uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	ProductID     uuid.UUID       `gorm:"column:product_id;type:uuid;not null" json:"product_id"`
	Quantity      int64           `gorm:"column:quantity;not null" json:"quantity"`
	UnitPrice     decimal.Decimal `gorm:"column:unit_price;type:decimal(18,2);not null;default:0" json:"unit_price"`
	ReservationID *uuid.UUID      `gorm:"column:reservation_id;type:uuid" json:"reservation_id"`
	CreatedAt     time.Time       `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt     time.Time       `gorm:"column:updatedAt" json:"updatedAt"`
}

func (OrderLine) TableName() string {
	return "OrderLines"
}

func (l *OrderLine) BeforeCreate(tx *gorm.DB) error {
	if l.LineID == uuid.Nil {
		l.LineID = uuid.New()
	}
	return nil
}

// Amount is quantity times unit price.
func (l OrderLine) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity))
}

// OrderTotal sums the line amounts, rounded to cents.
func OrderTotal(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount())
	}
	return total.Round(2)
}
