// Package quotaboard is the read-only projection of the ledger: remaining quota and the daily board.
// It never takes part in reserve or release; each row is read once, so cap, consumed and remaining agree.
package quotaboard

import (
	"context"
	"sort"

	"salesquota-backend/internal/application/ledger"
	"salesquota-backend/internal/domain"
	"salesquota-backend/internal/pkg/bizdate"

	"github.com/google/uuid"
)

// CapLister lists the configured caps of a territory so products without an entry yet still show up.
type CapLister interface {
	ListCaps(ctx context.Context, territoryID uuid.UUID) ([]domain.QuotaCap, error)
}

type Service struct {
	Ledger   *ledger.Service
	Caps     CapLister
	Calendar *bizdate.Calendar
}

type BoardRow struct {
	ProductID uuid.UUID `json:"product_id"`
	Cap       int64     `json:"daily_cap"`
	Consumed  int64     `json:"consumed"`
	Remaining int64     `json:"remaining"`
}

type Board struct {
	TerritoryID uuid.UUID  `json:"territory_id"`
	Date        string     `json:"date"`
	Rows        []BoardRow `json:"rows"`
}

func (s *Service) Remaining(ctx context.Context, territoryID, productID uuid.UUID, date string) (int64, error) {
	if date == "" {
		date = s.Calendar.Today()
	}
	if !bizdate.Valid(date) {
		return 0, domain.ErrInvalidDate
	}
	return s.Ledger.Remaining(ctx, domain.QuotaKey{TerritoryID: territoryID, ProductID: productID, Date: date})
}

// TodaysBoard is the board for the current business date.
func (s *Service) TodaysBoard(ctx context.Context, territoryID uuid.UUID) (*Board, error) {
	return s.Board(ctx, territoryID, s.Calendar.Today())
}

// Board lists every product of the territory that has an entry on date, plus configured caps with
// nothing consumed yet. Past dates only show entries: caps may have changed since.
func (s *Service) Board(ctx context.Context, territoryID uuid.UUID, date string) (*Board, error) {
	if !bizdate.Valid(date) {
		return nil, domain.ErrInvalidDate
	}
	entries, err := s.Ledger.ListByTerritoryDate(ctx, territoryID, date)
	if err != nil {
		return nil, err
	}

	rows := make([]BoardRow, 0, len(entries))
	seen := make(map[uuid.UUID]struct{}, len(entries))
	for _, e := range entries {
		rows = append(rows, BoardRow{ProductID: e.ProductID, Cap: e.DailyCap, Consumed: e.Consumed, Remaining: e.Remaining()})
		seen[e.ProductID] = struct{}{}
	}

	if s.Caps != nil && !s.Calendar.IsPast(date) {
		caps, err := s.Caps.ListCaps(ctx, territoryID)
		if err != nil {
			return nil, err
		}
		for _, c := range caps {
			if _, ok := seen[c.ProductID]; ok {
				continue
			}
			rows = append(rows, BoardRow{ProductID: c.ProductID, Cap: c.DailyCap, Remaining: c.DailyCap})
		}
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].ProductID.String() < rows[j].ProductID.String() })
	return &Board{TerritoryID: territoryID, Date: date, Rows: rows}, nil
}
