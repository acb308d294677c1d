package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"salesquota-backend/internal/application/admission"
	"salesquota-backend/internal/application/events"
	"salesquota-backend/internal/domain"
	"salesquota-backend/internal/pkg/bizdate"
	"salesquota-backend/internal/pkg/constants"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultRollbackTimeout = 10 * time.Second
	publishTimeout         = 2 * time.Second
)

// Service drives the order lifecycle. Quota moves only through the admission controller.
type Service struct {
	DB        *gorm.DB
	Admission *admission.Controller
	Calendar  *bizdate.Calendar
	Publisher events.Publisher
	Retry     RetryPolicy
	// RollbackTimeout bounds releases that run after the caller's context is gone.
	RollbackTimeout time.Duration
}

type LineInput struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type BookOrderInput struct {
	Source      domain.OrderSource `json:"source"`
	TerritoryID uuid.UUID          `json:"territory_id"`
	DealerID    *uuid.UUID         `json:"dealer_id"`
	Date        string             `json:"order_date"`
	Lines       []LineInput        `json:"lines"`
}

// BookingError reports the first line that did not fit its quota. It unwraps to the quota rejection.
type BookingError struct {
	ProductID uuid.UUID
	Requested int64
	Remaining int64
	Err       error
}

func (e *BookingError) Error() string {
	return fmt.Sprintf("quota exceeded for product %s: requested %d, remaining %d", e.ProductID, e.Requested, e.Remaining)
}

func (e *BookingError) Unwrap() error {
	return e.Err
}

// BookOrder reserves every line and persists the order, or reserves nothing at all.
// Lines are reserved in ascending product order; the first rejection releases everything obtained so far.
func (s *Service) BookOrder(ctx context.Context, in BookOrderInput) (*domain.Order, error) {
	order, err := s.newOrder(in)
	if err != nil {
		return nil, err
	}

	held := make([]domain.Reservation, 0, len(order.Lines))
	for _, i := range reserveOrder(order.Lines) {
		line := &order.Lines[i]
		r, err := s.reserve(ctx, admission.ReserveRequest{
			Key:         domain.QuotaKey{TerritoryID: order.TerritoryID, ProductID: line.ProductID, Date: order.OrderDate},
			Quantity:    line.Quantity,
			OrderLineID: line.LineID,
		})
		if err != nil {
			log.Info().Err(err).
				Str("order_id", order.OrderID.String()).
				Str("product_id", line.ProductID.String()).
				Int("held", len(held)).
				Msg("order line not admitted, rolling back")
			return nil, s.abort(ctx, held, lineError(line, err))
		}
		held = append(held, *r)
		line.ReservationID = &r.ReservationID
	}

	var booked domain.OrderEvent
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Lines").Create(order).Error; err != nil {
			return err
		}
		if err := tx.Create(&order.Lines).Error; err != nil {
			return err
		}
		ctrl := s.Admission.WithTx(tx)
		for _, r := range held {
			if err := ctrl.Commit(ctx, r.ReservationID); err != nil {
				return err
			}
		}
		ev, err := appendEvent(tx, order, constants.EventBooked, map[string]interface{}{
			"source":       order.Source,
			"order_date":   order.OrderDate,
			"total_amount": order.TotalAmount.StringFixed(2),
			"lines":        linePayload(order.Lines),
		})
		booked = ev
		return err
	})
	if err != nil {
		log.Error().Err(err).Str("order_id", order.OrderID.String()).Msg("order persistence failed, rolling back")
		return nil, s.abort(ctx, held, domain.WrapStorage(err))
	}

	log.Info().
		Str("order_id", order.OrderID.String()).
		Str("territory_id", order.TerritoryID.String()).
		Int("lines", len(order.Lines)).
		Msg("order booked")
	s.publish(ctx, booked)
	return order, nil
}

// CancelOrder releases the quota of every line and marks the order cancelled. Cancelling twice is a no-op.
// When a release cannot be completed the order is flagged reconciliation_required; calling again finishes it.
func (s *Service) CancelOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == domain.OrderCancelled {
		return order, nil
	}

	// once started, the releases run to completion even if the caller goes away
	rctx, cancel := s.detached(ctx)
	defer cancel()

	var failed []uuid.UUID
	for _, line := range order.Lines {
		if line.ReservationID == nil {
			continue
		}
		r := domain.Reservation{ReservationID: *line.ReservationID, Quantity: line.Quantity}
		if err := s.release(rctx, r); err != nil {
			log.Error().Err(err).
				Str("order_id", order.OrderID.String()).
				Str("reservation_id", r.ReservationID.String()).
				Msg("release failed during cancellation")
			failed = append(failed, r.ReservationID)
		}
	}

	if len(failed) > 0 {
		ev, err := s.setStatus(rctx, order, domain.OrderReconciliationRequired, constants.EventReconciliationRequired, map[string]interface{}{
			"reason":       "cancel",
			"reservations": failed,
		})
		if err != nil {
			return nil, domain.WrapStorage(err)
		}
		s.publish(rctx, ev)
		return order, fmt.Errorf("%w: %d reservation(s) not released", domain.ErrReconciliationRequired, len(failed))
	}

	ev, err := s.setStatus(rctx, order, domain.OrderCancelled, constants.EventCancelled, map[string]interface{}{
		"total_amount": order.TotalAmount.StringFixed(2),
		"lines":        linePayload(order.Lines),
	})
	if err != nil {
		return nil, domain.WrapStorage(err)
	}
	log.Info().Str("order_id", order.OrderID.String()).Msg("order cancelled")
	s.publish(rctx, ev)
	return order, nil
}

// AmendOrderLine changes the quantity of one line by releasing its reservation and reserving the new
// quantity. If the new quantity does not fit, the old reservation is not restored: the line keeps its
// old quantity without an active reservation and the caller must resubmit.
// Amendments racing on the same line, or racing a cancellation, lose with ErrConcurrentUpdate or
// ErrOrderCancelled and give back whatever they reserved.
func (s *Service) AmendOrderLine(ctx context.Context, orderID, lineID uuid.UUID, quantity int64) (*domain.Order, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := amendable(order.Status); err != nil {
		return nil, err
	}
	idx := -1
	for i := range order.Lines {
		if order.Lines[i].LineID == lineID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, domain.ErrNotFound
	}
	line := &order.Lines[idx]
	if line.Quantity == quantity && line.ReservationID != nil {
		return order, nil
	}
	if s.Calendar != nil && s.Calendar.IsPast(order.OrderDate) {
		return nil, domain.ErrDateClosed
	}

	oldQuantity := line.Quantity
	if line.ReservationID != nil {
		if err := s.detachLine(ctx, order.OrderID, *line); err != nil {
			return nil, err
		}
		line.ReservationID = nil
	}

	r, err := s.reserve(ctx, admission.ReserveRequest{
		Key:         domain.QuotaKey{TerritoryID: order.TerritoryID, ProductID: line.ProductID, Date: order.OrderDate},
		Quantity:    quantity,
		OrderLineID: line.LineID,
	})
	if err != nil {
		log.Warn().Err(err).
			Str("order_id", order.OrderID.String()).
			Str("line_id", line.LineID.String()).
			Msg("amendment rejected, line left without reservation")
		return nil, lineAmendError(line.ProductID, quantity, err)
	}

	var amended domain.OrderEvent
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockBooked(tx, order.OrderID); err != nil {
			return err
		}
		// only a line nobody re-attached since our release may take the new reservation
		upd := tx.Model(&domain.OrderLine{}).
			Where("line_id = ? AND reservation_id IS NULL", line.LineID).
			Updates(map[string]interface{}{
				"quantity":       quantity,
				"reservation_id": r.ReservationID,
			})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return domain.ErrConcurrentUpdate
		}

		var lines []domain.OrderLine
		if err := tx.Where("order_id = ?", order.OrderID).Order("product_id ASC, line_id ASC").Find(&lines).Error; err != nil {
			return err
		}
		order.Lines = lines
		order.TotalAmount = domain.OrderTotal(lines)
		if err := tx.Model(&domain.Order{}).Where("order_id = ?", order.OrderID).
			Update("total_amount", order.TotalAmount).Error; err != nil {
			return err
		}
		if err := s.Admission.WithTx(tx).Commit(ctx, r.ReservationID); err != nil {
			return err
		}
		ev, err := appendEvent(tx, order, constants.EventLineAmended, map[string]interface{}{
			"line_id":      line.LineID,
			"product_id":   line.ProductID,
			"old_quantity": oldQuantity,
			"new_quantity": quantity,
			"total_amount": order.TotalAmount.StringFixed(2),
		})
		amended = ev
		return err
	})
	if err != nil {
		return nil, s.abort(ctx, []domain.Reservation{*r}, domain.WrapStorage(err))
	}

	s.publish(ctx, amended)
	return s.GetOrder(ctx, orderID)
}

// detachLine clears the line's reservation and releases it in one transaction. The swap only
// succeeds while the line still points at the reservation we read, so a concurrent amendment
// cannot release the same reservation and then both attach new ones.
func (s *Service) detachLine(ctx context.Context, orderID uuid.UUID, line domain.OrderLine) error {
	old := domain.Reservation{ReservationID: *line.ReservationID, Quantity: line.Quantity}
	rctx, cancel := s.detached(ctx)
	defer cancel()
	return s.Retry.retry(rctx, func() error {
		return domain.WrapStorage(s.DB.WithContext(rctx).Transaction(func(tx *gorm.DB) error {
			if err := lockBooked(tx, orderID); err != nil {
				return err
			}
			upd := tx.Model(&domain.OrderLine{}).
				Where("line_id = ? AND reservation_id = ? AND quantity = ?", line.LineID, old.ReservationID, old.Quantity).
				UpdateColumn("reservation_id", nil)
			if upd.Error != nil {
				return upd.Error
			}
			if upd.RowsAffected == 0 {
				return domain.ErrConcurrentUpdate
			}
			return s.Admission.WithTx(tx).Release(rctx, old)
		}))
	})
}

// lockBooked touches the order row while it is still booked. The write lock it takes serializes
// amendments with CancelOrder, whose status update hits the same row.
func lockBooked(tx *gorm.DB, orderID uuid.UUID) error {
	upd := tx.Model(&domain.Order{}).
		Where("order_id = ? AND status = ?", orderID, domain.OrderBooked).
		UpdateColumn("updatedAt", time.Now())
	if upd.Error != nil {
		return upd.Error
	}
	if upd.RowsAffected == 1 {
		return nil
	}
	var order domain.Order
	if err := tx.Select("status").Where("order_id = ?", orderID).First(&order).Error; err != nil {
		return err
	}
	return amendable(order.Status)
}

func amendable(status domain.OrderStatus) error {
	switch status {
	case domain.OrderBooked:
		return nil
	case domain.OrderReconciliationRequired:
		return fmt.Errorf("%w: cancellation is waiting for quota reconciliation", domain.ErrOrderCancelled)
	}
	return domain.ErrOrderCancelled
}

// GetOrder loads an order with its lines.
func (s *Service) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	var order domain.Order
	err := s.DB.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("product_id ASC, line_id ASC") }).
		Where("order_id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, domain.WrapStorage(err)
	}
	return &order, nil
}

// ListOrders returns the orders of a territory for one business date, newest first.
func (s *Service) ListOrders(ctx context.Context, territoryID uuid.UUID, date string) ([]domain.Order, error) {
	var orders []domain.Order
	if err := s.DB.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("product_id ASC, line_id ASC") }).
		Where("territory_id = ? AND order_date = ?", territoryID, date).
		Order(`"createdAt" DESC`).
		Find(&orders).Error; err != nil {
		return nil, domain.WrapStorage(err)
	}
	return orders, nil
}

// OrderEvents returns the event history of an order, oldest first.
func (s *Service) OrderEvents(ctx context.Context, orderID uuid.UUID) ([]domain.OrderEvent, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&domain.Order{}).Where("order_id = ?", orderID).Count(&count).Error; err != nil {
		return nil, domain.WrapStorage(err)
	}
	if count == 0 {
		return nil, domain.ErrNotFound
	}
	var evs []domain.OrderEvent
	if err := s.DB.WithContext(ctx).Where("order_id = ?", orderID).Order(`"createdAt" ASC`).Find(&evs).Error; err != nil {
		return nil, domain.WrapStorage(err)
	}
	return evs, nil
}

func (s *Service) newOrder(in BookOrderInput) (*domain.Order, error) {
	if !in.Source.Valid() {
		return nil, domain.ErrInvalidSource
	}
	if in.TerritoryID == uuid.Nil {
		return nil, fmt.Errorf("%w: territory_id is required", domain.ErrInvalidInput)
	}
	if len(in.Lines) == 0 {
		return nil, domain.ErrEmptyOrder
	}
	date := in.Date
	if date == "" {
		date = s.Calendar.Today()
	}
	if !bizdate.Valid(date) {
		return nil, domain.ErrInvalidDate
	}
	if s.Calendar.IsPast(date) {
		return nil, domain.ErrDateClosed
	}

	order := &domain.Order{
		OrderID:     uuid.New(),
		Source:      in.Source,
		TerritoryID: in.TerritoryID,
		DealerID:    in.DealerID,
		OrderDate:   date,
		Status:      domain.OrderBooked,
		Lines:       make([]domain.OrderLine, 0, len(in.Lines)),
	}
	for _, l := range in.Lines {
		if l.Quantity <= 0 || l.UnitPrice.IsNegative() {
			return nil, domain.ErrInvalidQuantity
		}
		if l.ProductID == uuid.Nil {
			return nil, fmt.Errorf("%w: product_id is required", domain.ErrInvalidInput)
		}
		order.Lines = append(order.Lines, domain.OrderLine{
			LineID:    uuid.New(),
			OrderID:   order.OrderID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	order.TotalAmount = domain.OrderTotal(order.Lines)
	return order, nil
}

// reserveOrder returns line indexes sorted by product id; lines for the same product keep input order.
func reserveOrder(lines []domain.OrderLine) []int {
	idx := make([]int, len(lines))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return lines[idx[a]].ProductID.String() < lines[idx[b]].ProductID.String()
	})
	return idx
}

func (s *Service) reserve(ctx context.Context, req admission.ReserveRequest) (*domain.Reservation, error) {
	var r *domain.Reservation
	err := s.Retry.retry(ctx, func() error {
		var err error
		r, err = s.Admission.Reserve(ctx, req)
		return err
	})
	return r, err
}

func (s *Service) release(ctx context.Context, r domain.Reservation) error {
	return s.Retry.retry(ctx, func() error {
		return s.Admission.Release(ctx, r)
	})
}

// abort releases held reservations on a context detached from the caller and returns cause.
// Releases that still fail stay pending for the stale sweeper.
func (s *Service) abort(ctx context.Context, held []domain.Reservation, cause error) error {
	if len(held) == 0 {
		return cause
	}
	rctx, cancel := s.detached(ctx)
	defer cancel()

	leaked := 0
	for _, r := range held {
		if err := s.release(rctx, r); err != nil {
			leaked++
			log.Error().Err(err).
				Str("reservation_id", r.ReservationID.String()).
				Str("quota_key", r.Key().String()).
				Msg("rollback release failed, left for stale sweeper")
		}
	}
	if leaked > 0 {
		return fmt.Errorf("%w (%w: %d reservation(s) not released)", cause, domain.ErrReconciliationRequired, leaked)
	}
	return cause
}

func (s *Service) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.RollbackTimeout
	if timeout <= 0 {
		timeout = defaultRollbackTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func (s *Service) setStatus(ctx context.Context, order *domain.Order, status domain.OrderStatus, eventType string, data map[string]interface{}) (domain.OrderEvent, error) {
	var ev domain.OrderEvent
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{"status": status}
		if status == domain.OrderCancelled {
			now := time.Now()
			updates["cancelled_at"] = now
			order.CancelledAt = &now
		}
		if err := tx.Model(&domain.Order{}).Where("order_id = ?", order.OrderID).Updates(updates).Error; err != nil {
			return err
		}
		order.Status = status
		if status == domain.OrderCancelled {
			// an amendment that committed after our releases attached a reservation we have not seen
			if err := s.releaseAttached(ctx, tx, order); err != nil {
				return err
			}
		}
		var err error
		ev, err = appendEvent(tx, order, eventType, data)
		return err
	})
	return ev, err
}

// releaseAttached releases, inside tx, every reservation still attached to the order's lines.
// Already released reservations are skipped by Release itself.
func (s *Service) releaseAttached(ctx context.Context, tx *gorm.DB, order *domain.Order) error {
	var lines []domain.OrderLine
	if err := tx.Where("order_id = ? AND reservation_id IS NOT NULL", order.OrderID).Find(&lines).Error; err != nil {
		return err
	}
	ctrl := s.Admission.WithTx(tx)
	for _, l := range lines {
		if err := ctrl.Release(ctx, domain.Reservation{ReservationID: *l.ReservationID, Quantity: l.Quantity}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) publish(ctx context.Context, ev domain.OrderEvent) {
	if s.Publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.Publisher.Publish(pctx, events.FromOrderEvent(ev)); err != nil {
		log.Warn().Err(err).
			Str("order_id", ev.OrderID.String()).
			Str("event_type", ev.EventType).
			Msg("order event not published")
	}
}

func appendEvent(tx *gorm.DB, order *domain.Order, eventType string, data map[string]interface{}) (domain.OrderEvent, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return domain.OrderEvent{}, err
	}
	ev := domain.OrderEvent{
		OrderID:     order.OrderID,
		TerritoryID: order.TerritoryID,
		EventType:   eventType,
		EventData:   datatypes.JSON(body),
	}
	if err := tx.Create(&ev).Error; err != nil {
		return domain.OrderEvent{}, err
	}
	return ev, nil
}

func linePayload(lines []domain.OrderLine) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(lines))
	for _, l := range lines {
		out = append(out, map[string]interface{}{
			"line_id":    l.LineID,
			"product_id": l.ProductID,
			"quantity":   l.Quantity,
			"unit_price": l.UnitPrice.StringFixed(2),
		})
	}
	return out
}

func lineError(line *domain.OrderLine, err error) error {
	return lineAmendError(line.ProductID, line.Quantity, err)
}

func lineAmendError(productID uuid.UUID, quantity int64, err error) error {
	var qe *domain.QuotaExceededError
	if errors.As(err, &qe) {
		return &BookingError{ProductID: productID, Requested: quantity, Remaining: qe.Remaining, Err: err}
	}
	return fmt.Errorf("product %s: %w", productID, err)
}
