package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"salesquota-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DBCapSource reads caps from QuotaCaps: a territory row wins over the product-wide row
// (TerritoryID = uuid.Nil), which wins over DefaultCap. DefaultCap <= 0 means "no default".
type DBCapSource struct {
	DB         *gorm.DB
	DefaultCap int64
}

func (c *DBCapSource) Cap(ctx context.Context, key domain.QuotaKey) (int64, error) {
	var caps []domain.QuotaCap
	if err := c.DB.WithContext(ctx).
		Where("product_id = ? AND territory_id IN ?", key.ProductID, []uuid.UUID{key.TerritoryID, uuid.Nil}).
		Find(&caps).Error; err != nil {
		return 0, domain.WrapStorage(err)
	}
	var wide *domain.QuotaCap
	for i := range caps {
		if caps[i].TerritoryID == key.TerritoryID {
			return caps[i].DailyCap, nil
		}
		wide = &caps[i]
	}
	if wide != nil {
		return wide.DailyCap, nil
	}
	if c.DefaultCap > 0 {
		return c.DefaultCap, nil
	}
	return 0, fmt.Errorf("%w: no cap configured for product %s in territory %s", domain.ErrNotFound, key.ProductID, key.TerritoryID)
}

// SetCap upserts the cap for (territory, product). Pass uuid.Nil as territory for a product-wide cap.
// Existing QuotaEntries keep the cap they were created with.
func (c *DBCapSource) SetCap(ctx context.Context, territoryID, productID uuid.UUID, dailyCap int64) (*domain.QuotaCap, error) {
	if dailyCap < 0 {
		return nil, domain.ErrInvalidQuantity
	}
	row := domain.QuotaCap{TerritoryID: territoryID, ProductID: productID, DailyCap: dailyCap}
	err := c.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "territory_id"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"daily_cap": dailyCap, "updatedAt": time.Now()}),
	}).Create(&row).Error
	if err != nil {
		return nil, domain.WrapStorage(err)
	}
	var saved domain.QuotaCap
	if err := c.DB.WithContext(ctx).
		Where("territory_id = ? AND product_id = ?", territoryID, productID).
		First(&saved).Error; err != nil {
		return nil, domain.WrapStorage(err)
	}
	return &saved, nil
}

// ListCaps returns the effective cap per product for a territory (territory rows override product-wide rows).
func (c *DBCapSource) ListCaps(ctx context.Context, territoryID uuid.UUID) ([]domain.QuotaCap, error) {
	var caps []domain.QuotaCap
	if err := c.DB.WithContext(ctx).
		Where("territory_id IN ?", []uuid.UUID{territoryID, uuid.Nil}).
		Find(&caps).Error; err != nil {
		return nil, domain.WrapStorage(err)
	}
	byProduct := make(map[uuid.UUID]domain.QuotaCap, len(caps))
	for _, q := range caps {
		if cur, ok := byProduct[q.ProductID]; ok && cur.TerritoryID == territoryID {
			continue
		}
		byProduct[q.ProductID] = q
	}
	out := make([]domain.QuotaCap, 0, len(byProduct))
	for _, q := range byProduct {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID.String() < out[j].ProductID.String() })
	return out, nil
}
