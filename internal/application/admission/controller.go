// Package admission is the only writer of QuotaEntry.consumed. Every check-and-add is a single
// conditional UPDATE on the entry row, so two requests only contend when they share a quota key.
package admission

import (
	"context"
	"errors"
	"time"

	"salesquota-backend/internal/application/ledger"
	"salesquota-backend/internal/domain"
	"salesquota-backend/internal/pkg/bizdate"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type Controller struct {
	DB       *gorm.DB
	Ledger   *ledger.Service
	Calendar *bizdate.Calendar
}

type ReserveRequest struct {
	Key         domain.QuotaKey
	Quantity    int64
	OrderLineID uuid.UUID
}

const keyWhere = "territory_id = ? AND product_id = ? AND quota_date = ?"

// WithTx returns a controller whose writes join tx.
func (c *Controller) WithTx(tx *gorm.DB) *Controller {
	l := &ledger.Service{DB: tx}
	if c.Ledger != nil {
		l.Caps = c.Ledger.Caps
	}
	return &Controller{DB: tx, Ledger: l, Calendar: c.Calendar}
}

// Reserve admits req.Quantity units against the key or rejects the whole request.
// A rejection returns *domain.QuotaExceededError and leaves the ledger untouched.
func (c *Controller) Reserve(ctx context.Context, req ReserveRequest) (*domain.Reservation, error) {
	if req.Quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if !bizdate.Valid(req.Key.Date) {
		return nil, domain.ErrInvalidDate
	}
	if c.Calendar != nil && c.Calendar.IsPast(req.Key.Date) {
		return nil, domain.ErrDateClosed
	}
	if _, err := c.Ledger.Ensure(ctx, req.Key); err != nil {
		return nil, err
	}

	var reservation *domain.Reservation
	err := c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		k := req.Key
		upd := tx.Model(&domain.QuotaEntry{}).
			Where(keyWhere+" AND consumed + ? <= daily_cap", k.TerritoryID, k.ProductID, k.Date, req.Quantity).
			UpdateColumns(map[string]interface{}{
				"consumed":  gorm.Expr("consumed + ?", req.Quantity),
				"updatedAt": time.Now(),
			})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			var entry domain.QuotaEntry
			if err := tx.Where(keyWhere, k.TerritoryID, k.ProductID, k.Date).First(&entry).Error; err != nil {
				return err
			}
			return &domain.QuotaExceededError{Key: k, Requested: req.Quantity, Remaining: entry.Remaining()}
		}

		r := domain.Reservation{
			OrderLineID: req.OrderLineID,
			TerritoryID: k.TerritoryID,
			ProductID:   k.ProductID,
			QuotaDate:   k.Date,
			Quantity:    req.Quantity,
			State:       domain.ReservationPending,
		}
		if err := tx.Create(&r).Error; err != nil {
			return err
		}
		reservation = &r
		return nil
	})
	if err != nil {
		return nil, domain.WrapStorage(err)
	}
	return reservation, nil
}

// Commit marks a pending reservation committed. Committing twice is a no-op.
func (c *Controller) Commit(ctx context.Context, reservationID uuid.UUID) error {
	now := time.Now()
	upd := c.DB.WithContext(ctx).Model(&domain.Reservation{}).
		Where("reservation_id = ? AND state = ?", reservationID, domain.ReservationPending).
		UpdateColumns(map[string]interface{}{
			"state":        domain.ReservationCommitted,
			"committed_at": now,
			"updatedAt":    now,
		})
	if upd.Error != nil {
		return domain.WrapStorage(upd.Error)
	}
	if upd.RowsAffected == 1 {
		return nil
	}

	r, err := c.Get(ctx, reservationID)
	if err != nil {
		return err
	}
	switch r.State {
	case domain.ReservationCommitted:
		return nil
	case domain.ReservationReleased:
		return domain.ErrReservationReleased
	}
	return domain.ErrInconsistentLedger
}

// Release returns the reserved quantity to its entry. Releasing twice is a no-op, and committed
// reservations may be released. The caller's quantity must match the stored one.
func (c *Controller) Release(ctx context.Context, r domain.Reservation) error {
	err := c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stored domain.Reservation
		if err := tx.Where("reservation_id = ?", r.ReservationID).First(&stored).Error; err != nil {
			return err
		}
		if stored.Quantity != r.Quantity {
			return domain.ErrAmountMismatch
		}
		if stored.State == domain.ReservationReleased {
			return nil
		}

		now := time.Now()
		upd := tx.Model(&domain.Reservation{}).
			Where("reservation_id = ? AND state <> ?", stored.ReservationID, domain.ReservationReleased).
			UpdateColumns(map[string]interface{}{
				"state":       domain.ReservationReleased,
				"released_at": now,
				"updatedAt":   now,
			})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return nil
		}

		k := stored.Key()
		dec := tx.Model(&domain.QuotaEntry{}).
			Where(keyWhere+" AND consumed >= ?", k.TerritoryID, k.ProductID, k.Date, stored.Quantity).
			UpdateColumns(map[string]interface{}{
				"consumed":  gorm.Expr("consumed - ?", stored.Quantity),
				"updatedAt": now,
			})
		if dec.Error != nil {
			return dec.Error
		}
		if dec.RowsAffected == 0 {
			log.Error().
				Str("reservation_id", stored.ReservationID.String()).
				Str("quota_key", k.String()).
				Int64("quantity", stored.Quantity).
				Msg("release would drive consumed below zero")
			return domain.ErrInconsistentLedger
		}
		return nil
	})
	return domain.WrapStorage(err)
}

// Get loads a reservation by id.
func (c *Controller) Get(ctx context.Context, reservationID uuid.UUID) (*domain.Reservation, error) {
	var r domain.Reservation
	if err := c.DB.WithContext(ctx).Where("reservation_id = ?", reservationID).First(&r).Error; err != nil {
		return nil, domain.WrapStorage(err)
	}
	return &r, nil
}

// ReleaseStalePending releases pending reservations created more than olderThan ago.
// Those belong to bookings that crashed or could not roll back; returns how many were released.
func (c *Controller) ReleaseStalePending(ctx context.Context, olderThan time.Duration) (int, error) {
	var stale []domain.Reservation
	if err := c.DB.WithContext(ctx).
		Where(`state = ? AND "createdAt" < ?`, domain.ReservationPending, time.Now().Add(-olderThan)).
		Order(`"createdAt" ASC`).
		Find(&stale).Error; err != nil {
		return 0, domain.WrapStorage(err)
	}

	released := 0
	for _, r := range stale {
		if err := c.Release(ctx, r); err != nil {
			if errors.Is(err, domain.ErrStorageUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return released, err
			}
			log.Warn().Err(err).Str("reservation_id", r.ReservationID.String()).Msg("stale reservation not released")
			continue
		}
		released++
	}
	if released > 0 {
		log.Info().Int("released", released).Msg("released stale pending reservations")
	}
	return released, nil
}
