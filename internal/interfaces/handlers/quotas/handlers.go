package quotas

import (
	"salesquota-backend/internal/application/ledger"
	boardsvc "salesquota-backend/internal/application/quotaboard"
	"salesquota-backend/internal/pkg/response"
	"salesquota-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	BoardSvc *boardsvc.Service
	Caps     *ledger.DBCapSource
}

// TodaysBoard GET /api/v1/quotas/todays-board?territory_id=
func (h *Handlers) TodaysBoard(c *fiber.Ctx) error {
	territoryID, err := validation.RequiredUUID(c.Query("territory_id"), "territory_id")
	if err != nil {
		return response.DomainError(c, err)
	}
	board, err := h.BoardSvc.TodaysBoard(c.Context(), territoryID)
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Quota board fetched successfully", board, nil)
}

// Board GET /api/v1/quotas/board?territory_id=&date=
func (h *Handlers) Board(c *fiber.Ctx) error {
	territoryID, err := validation.RequiredUUID(c.Query("territory_id"), "territory_id")
	if err != nil {
		return response.DomainError(c, err)
	}
	date, err := validation.OptionalDate(c.Query("date"))
	if err != nil {
		return response.DomainError(c, err)
	}
	if date == "" {
		date = h.BoardSvc.Calendar.Today()
	}
	board, err := h.BoardSvc.Board(c.Context(), territoryID, date)
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Quota board fetched successfully", board, nil)
}

// Remaining GET /api/v1/quotas/remaining?territory_id=&product_id=&date=
func (h *Handlers) Remaining(c *fiber.Ctx) error {
	territoryID, err := validation.RequiredUUID(c.Query("territory_id"), "territory_id")
	if err != nil {
		return response.DomainError(c, err)
	}
	productID, err := validation.RequiredUUID(c.Query("product_id"), "product_id")
	if err != nil {
		return response.DomainError(c, err)
	}
	date, err := validation.OptionalDate(c.Query("date"))
	if err != nil {
		return response.DomainError(c, err)
	}
	if date == "" {
		date = h.BoardSvc.Calendar.Today()
	}
	remaining, err := h.BoardSvc.Remaining(c.Context(), territoryID, productID, date)
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Remaining quota fetched successfully", fiber.Map{
		"territory_id": territoryID,
		"product_id":   productID,
		"date":         date,
		"remaining":    remaining,
	}, nil)
}

// SetCap PUT /api/v1/quotas/set-cap (admin key). Omit territory_id for a product-wide cap.
func (h *Handlers) SetCap(c *fiber.Ctx) error {
	var body struct {
		TerritoryID *string `json:"territory_id"`
		ProductID   string  `json:"product_id"`
		DailyCap    *int64  `json:"daily_cap"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	productID, err := validation.RequiredUUID(body.ProductID, "product_id")
	if err != nil {
		return response.DomainError(c, err)
	}
	territoryID, err := validation.OptionalUUID(body.TerritoryID, "territory_id")
	if err != nil {
		return response.DomainError(c, err)
	}
	if body.DailyCap == nil || *body.DailyCap < 0 {
		return response.Error(c, "daily_cap must be zero or a positive number", fiber.StatusBadRequest, nil)
	}
	scope := uuid.Nil
	if territoryID != nil {
		scope = *territoryID
	}

	saved, err := h.Caps.SetCap(c.Context(), scope, productID, *body.DailyCap)
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Quota cap saved successfully", saved, fiber.Map{
		"applies_from": "next quota entry created for this product",
	})
}
