package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DateLayout is the business date format used in quota keys and order dates.
const DateLayout = "2006-01-02"

// QuotaKey identifies one daily cap: a product sold within a territory on a business date.
type QuotaKey struct {
	TerritoryID uuid.UUID `json:"territory_id"`
	ProductID   uuid.UUID `json:"product_id"`
	Date        string    `json:"date"`
}

func (k QuotaKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.TerritoryID, k.ProductID, k.Date)
}

// QuotaEntry holds the cap and the consumed amount for one QuotaKey.
// Rows are created lazily on the first reservation attempt and never deleted.
type QuotaEntry struct {
	EntryID     uuid.UUID `gorm:"column:entry_id;type:uuid;primaryKey" json:"entry_id"`
	TerritoryID uuid.UUID `gorm:"column:territory_id;type:uuid;not null;uniqueIndex:idx_quota_key,priority:1" json:"territory_id"`
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:idx_quota_key,priority:2" json:"product_id"`
	QuotaDate   string    `gorm:"column:quota_date;type:varchar(10);not null;uniqueIndex:idx_quota_key,priority:3" json:"quota_date"`
	DailyCap    int64     `gorm:"column:daily_cap;not null;check:daily_cap >= 0" json:"daily_cap"`
	Consumed    int64     `gorm:"column:consumed;not null;default:0;check:consumed >= 0 AND consumed <= daily_cap" json:"consumed"`
	CreatedAt   time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (QuotaEntry) TableName() string {
	return "QuotaEntries"
}

func (e *QuotaEntry) BeforeCreate(tx *gorm.DB) error {
	if e.EntryID == uuid.Nil {
		e.EntryID = uuid.New()
	}
	return nil
}

// Key returns the immutable key of the entry.
func (e QuotaEntry) Key() QuotaKey {
	return QuotaKey{TerritoryID: e.TerritoryID, ProductID: e.ProductID, Date: e.QuotaDate}
}

// Remaining is cap minus consumed, floored at zero.
func (e QuotaEntry) Remaining() int64 {
	if r := e.DailyCap - e.Consumed; r > 0 {
		return r
	}
	return 0
}
