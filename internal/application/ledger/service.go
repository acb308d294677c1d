package ledger

import (
	"context"
	"errors"

	"salesquota-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CapSource provides the configured cap for a key. The ledger asks it only when a key is first created.
type CapSource interface {
	Cap(ctx context.Context, key domain.QuotaKey) (int64, error)
}

// Service owns the QuotaEntries table. It never changes consumed; that is the admission controller's job.
type Service struct {
	DB   *gorm.DB
	Caps CapSource
}

var quotaKeyColumns = []clause.Column{{Name: "territory_id"}, {Name: "product_id"}, {Name: "quota_date"}}

// GetOrCreate returns the entry for key, creating it with consumed = 0 and capIfNew when absent.
// Concurrent callers racing on a fresh key all observe the single row that won the insert.
func (s *Service) GetOrCreate(ctx context.Context, key domain.QuotaKey, capIfNew int64) (*domain.QuotaEntry, error) {
	if capIfNew < 0 {
		capIfNew = 0
	}
	entry := domain.QuotaEntry{
		TerritoryID: key.TerritoryID,
		ProductID:   key.ProductID,
		QuotaDate:   key.Date,
		DailyCap:    capIfNew,
	}
	if err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: quotaKeyColumns, DoNothing: true}).
		Create(&entry).Error; err != nil {
		return nil, domain.WrapStorage(err)
	}
	return s.Entry(ctx, key)
}

// Ensure returns the entry for key, resolving the cap from the CapSource only when the key is new.
func (s *Service) Ensure(ctx context.Context, key domain.QuotaKey) (*domain.QuotaEntry, error) {
	entry, err := s.Entry(ctx, key)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	limit, err := s.cap(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.GetOrCreate(ctx, key, limit)
}

// Entry loads an existing entry. Unknown keys return domain.ErrNotFound.
func (s *Service) Entry(ctx context.Context, key domain.QuotaKey) (*domain.QuotaEntry, error) {
	var entry domain.QuotaEntry
	err := s.DB.WithContext(ctx).
		Where("territory_id = ? AND product_id = ? AND quota_date = ?", key.TerritoryID, key.ProductID, key.Date).
		First(&entry).Error
	if err != nil {
		return nil, domain.WrapStorage(err)
	}
	return &entry, nil
}

// Remaining returns cap - consumed. A key that was never reserved reports its configured cap;
// with no configured cap it fails with domain.ErrNotFound.
func (s *Service) Remaining(ctx context.Context, key domain.QuotaKey) (int64, error) {
	entry, err := s.Entry(ctx, key)
	if err == nil {
		return entry.Remaining(), nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return 0, err
	}
	limit, err := s.cap(ctx, key)
	if err != nil {
		return 0, err
	}
	return limit, nil
}

// ListByTerritoryDate returns every entry of a territory for one business date, ordered by product.
func (s *Service) ListByTerritoryDate(ctx context.Context, territoryID uuid.UUID, date string) ([]domain.QuotaEntry, error) {
	var entries []domain.QuotaEntry
	if err := s.DB.WithContext(ctx).
		Where("territory_id = ? AND quota_date = ?", territoryID, date).
		Order("product_id ASC").
		Find(&entries).Error; err != nil {
		return nil, domain.WrapStorage(err)
	}
	return entries, nil
}

func (s *Service) cap(ctx context.Context, key domain.QuotaKey) (int64, error) {
	if s.Caps == nil {
		return 0, domain.ErrNotFound
	}
	return s.Caps.Cap(ctx, key)
}
