package admission

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"salesquota-backend/internal/application/ledger"
	"salesquota-backend/internal/domain"
	"salesquota-backend/internal/infrastructure/database"
	"salesquota-backend/internal/pkg/bizdate"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const today = "2026-10-16"

type staticCap int64

func (c staticCap) Cap(ctx context.Context, key domain.QuotaKey) (int64, error) {
	return int64(c), nil
}

func setupAdmissionTest(t *testing.T, dailyCap int64) (*Controller, *gorm.DB) {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return &Controller{
		DB:       db,
		Ledger:   &ledger.Service{DB: db, Caps: staticCap(dailyCap)},
		Calendar: bizdate.Fixed(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)),
	}, db
}

func todayKey() domain.QuotaKey {
	return domain.QuotaKey{TerritoryID: uuid.New(), ProductID: uuid.New(), Date: today}
}

func consumed(t *testing.T, c *Controller, key domain.QuotaKey) int64 {
	e, err := c.Ledger.Entry(context.Background(), key)
	require.NoError(t, err)
	return e.Consumed
}

func TestReserve_RejectsWithoutMutation(t *testing.T) {
	c, _ := setupAdmissionTest(t, 5)
	ctx := context.Background()
	key := todayKey()

	_, err := c.Reserve(ctx, ReserveRequest{Key: key, Quantity: 3, OrderLineID: uuid.New()})
	require.NoError(t, err)

	_, err = c.Reserve(ctx, ReserveRequest{Key: key, Quantity: 3, OrderLineID: uuid.New()})
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)
	var qe *domain.QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, int64(3), qe.Requested)
	assert.Equal(t, int64(2), qe.Remaining)
	assert.Equal(t, int64(3), consumed(t, c, key))

	// exactly the remainder is admitted
	_, err = c.Reserve(ctx, ReserveRequest{Key: key, Quantity: 2, OrderLineID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, int64(5), consumed(t, c, key))
}

func TestReserve_Preconditions(t *testing.T) {
	c, _ := setupAdmissionTest(t, 5)
	ctx := context.Background()

	_, err := c.Reserve(ctx, ReserveRequest{Key: todayKey(), Quantity: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	past := todayKey()
	past.Date = "2026-10-15"
	_, err = c.Reserve(ctx, ReserveRequest{Key: past, Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrDateClosed)

	malformed := todayKey()
	malformed.Date = "2026-1-1"
	_, err = c.Reserve(ctx, ReserveRequest{Key: malformed, Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidDate)
	var entries int64
	require.NoError(t, c.DB.Model(&domain.QuotaEntry{}).Where("quota_date = ?", malformed.Date).Count(&entries).Error)
	assert.Zero(t, entries)

	future := todayKey()
	future.Date = "2026-10-17"
	r, err := c.Reserve(ctx, ReserveRequest{Key: future, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationPending, r.State)
}

func TestReserve_CapNeverExceededUnderConcurrency(t *testing.T) {
	c, db := setupAdmissionTest(t, 20)
	ctx := context.Background()
	key := todayKey()

	var admitted, rejected int64
	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			_, err := c.Reserve(ctx, ReserveRequest{Key: key, Quantity: 1, OrderLineID: uuid.New()})
			switch {
			case err == nil:
				atomic.AddInt64(&admitted, 1)
			case errors.Is(err, domain.ErrQuotaExceeded):
				atomic.AddInt64(&rejected, 1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(20), admitted)
	assert.Equal(t, int64(30), rejected)
	assert.Equal(t, int64(20), consumed(t, c, key))

	var pending int64
	require.NoError(t, db.Model(&domain.Reservation{}).Where("state = ?", domain.ReservationPending).Count(&pending).Error)
	assert.Equal(t, int64(20), pending)
}

func TestReserve_TwoWayRaceOnFreshKey(t *testing.T) {
	c, db := setupAdmissionTest(t, 10)
	ctx := context.Background()
	key := todayKey()

	var admitted int64
	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, err := c.Reserve(ctx, ReserveRequest{Key: key, Quantity: 6, OrderLineID: uuid.New()})
			if err == nil {
				atomic.AddInt64(&admitted, 1)
				return nil
			}
			if errors.Is(err, domain.ErrQuotaExceeded) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(1), admitted)
	assert.Equal(t, int64(6), consumed(t, c, key))
	var entries int64
	require.NoError(t, db.Model(&domain.QuotaEntry{}).Count(&entries).Error)
	assert.Equal(t, int64(1), entries)
}

func TestCommit_Idempotent(t *testing.T) {
	c, _ := setupAdmissionTest(t, 5)
	ctx := context.Background()

	r, err := c.Reserve(ctx, ReserveRequest{Key: todayKey(), Quantity: 2, OrderLineID: uuid.New()})
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx, r.ReservationID))
	require.NoError(t, c.Commit(ctx, r.ReservationID))

	got, err := c.Get(ctx, r.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCommitted, got.State)
	assert.NotNil(t, got.CommittedAt)

	assert.ErrorIs(t, c.Commit(ctx, uuid.New()), domain.ErrNotFound)
}

func TestCommit_AfterReleaseFails(t *testing.T) {
	c, _ := setupAdmissionTest(t, 5)
	ctx := context.Background()

	r, err := c.Reserve(ctx, ReserveRequest{Key: todayKey(), Quantity: 2, OrderLineID: uuid.New()})
	require.NoError(t, err)
	require.NoError(t, c.Release(ctx, *r))
	assert.ErrorIs(t, c.Commit(ctx, r.ReservationID), domain.ErrReservationReleased)
}

func TestRelease_IdempotentAndConserving(t *testing.T) {
	c, _ := setupAdmissionTest(t, 10)
	ctx := context.Background()
	key := todayKey()

	a, err := c.Reserve(ctx, ReserveRequest{Key: key, Quantity: 4, OrderLineID: uuid.New()})
	require.NoError(t, err)
	b, err := c.Reserve(ctx, ReserveRequest{Key: key, Quantity: 3, OrderLineID: uuid.New()})
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx, b.ReservationID))
	assert.Equal(t, int64(7), consumed(t, c, key))

	require.NoError(t, c.Release(ctx, *a))
	require.NoError(t, c.Release(ctx, *a))
	assert.Equal(t, int64(3), consumed(t, c, key))

	// committed reservations can be released
	require.NoError(t, c.Release(ctx, *b))
	assert.Equal(t, int64(0), consumed(t, c, key))

	remaining, err := c.Ledger.Remaining(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(10), remaining)
}

func TestRelease_AmountMismatch(t *testing.T) {
	c, _ := setupAdmissionTest(t, 10)
	ctx := context.Background()
	key := todayKey()

	r, err := c.Reserve(ctx, ReserveRequest{Key: key, Quantity: 4, OrderLineID: uuid.New()})
	require.NoError(t, err)
	wrong := *r
	wrong.Quantity = 5
	assert.ErrorIs(t, c.Release(ctx, wrong), domain.ErrAmountMismatch)
	assert.Equal(t, int64(4), consumed(t, c, key))

	assert.ErrorIs(t, c.Release(ctx, domain.Reservation{ReservationID: uuid.New(), Quantity: 1}), domain.ErrNotFound)
}

func TestRelease_AllowedOnPastDate(t *testing.T) {
	c, _ := setupAdmissionTest(t, 10)
	ctx := context.Background()
	key := todayKey()

	r, err := c.Reserve(ctx, ReserveRequest{Key: key, Quantity: 4, OrderLineID: uuid.New()})
	require.NoError(t, err)

	c.Calendar = bizdate.Fixed(time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC))
	require.NoError(t, c.Release(ctx, *r))
	assert.Equal(t, int64(0), consumed(t, c, key))
}

// Cap 5: A reserves 3, B asks for 3 and is rejected with 2 remaining, A cancels, B retries and is admitted.
func TestReserve_CancelFreesCapacityForWaitingOrder(t *testing.T) {
	c, _ := setupAdmissionTest(t, 5)
	ctx := context.Background()
	key := todayKey()

	a, err := c.Reserve(ctx, ReserveRequest{Key: key, Quantity: 3, OrderLineID: uuid.New()})
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx, a.ReservationID))

	_, err = c.Reserve(ctx, ReserveRequest{Key: key, Quantity: 3, OrderLineID: uuid.New()})
	var qe *domain.QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, int64(2), qe.Remaining)

	require.NoError(t, c.Release(ctx, *a))
	b, err := c.Reserve(ctx, ReserveRequest{Key: key, Quantity: 3, OrderLineID: uuid.New()})
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx, b.ReservationID))
	assert.Equal(t, int64(3), consumed(t, c, key))
}

func TestReleaseStalePending(t *testing.T) {
	c, db := setupAdmissionTest(t, 10)
	ctx := context.Background()
	key := todayKey()

	stale, err := c.Reserve(ctx, ReserveRequest{Key: key, Quantity: 4, OrderLineID: uuid.New()})
	require.NoError(t, err)
	fresh, err := c.Reserve(ctx, ReserveRequest{Key: key, Quantity: 2, OrderLineID: uuid.New()})
	require.NoError(t, err)
	committed, err := c.Reserve(ctx, ReserveRequest{Key: key, Quantity: 1, OrderLineID: uuid.New()})
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx, committed.ReservationID))

	old := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&domain.Reservation{}).
		Where("reservation_id IN ?", []uuid.UUID{stale.ReservationID, committed.ReservationID}).
		UpdateColumn("createdAt", old).Error)

	n, err := c.ReleaseStalePending(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(3), consumed(t, c, key))

	got, err := c.Get(ctx, fresh.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationPending, got.State)
}

func TestReserve_StorageFault(t *testing.T) {
	c, db := setupAdmissionTest(t, 5)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = c.Reserve(context.Background(), ReserveRequest{Key: todayKey(), Quantity: 1, OrderLineID: uuid.New()})
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.NotErrorIs(t, err, domain.ErrQuotaExceeded)
}

func TestWithTx_CommitJoinsTransaction(t *testing.T) {
	c, db := setupAdmissionTest(t, 5)
	ctx := context.Background()

	r, err := c.Reserve(ctx, ReserveRequest{Key: todayKey(), Quantity: 1, OrderLineID: uuid.New()})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := c.WithTx(tx).Commit(ctx, r.ReservationID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := c.Get(ctx, r.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationPending, got.State)
}
