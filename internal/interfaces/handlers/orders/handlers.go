package orders

import (
	"errors"

	bookingsvc "salesquota-backend/internal/application/booking"
	"salesquota-backend/internal/domain"
	"salesquota-backend/internal/pkg/response"
	"salesquota-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type Handlers struct {
	Service *bookingsvc.Service
}

type lineBody struct {
	ProductID string          `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// BookOrder POST /api/v1/orders/book-order
func (h *Handlers) BookOrder(c *fiber.Ctx) error {
	var body struct {
		Source      string     `json:"source"`
		TerritoryID string     `json:"territory_id"`
		DealerID    *string    `json:"dealer_id"`
		OrderDate   string     `json:"order_date"`
		Lines       []lineBody `json:"lines"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}

	territoryID, err := validation.RequiredUUID(body.TerritoryID, "territory_id")
	if err != nil {
		return response.DomainError(c, err)
	}
	dealerID, err := validation.OptionalUUID(body.DealerID, "dealer_id")
	if err != nil {
		return response.DomainError(c, err)
	}
	date, err := validation.OptionalDate(body.OrderDate)
	if err != nil {
		return response.DomainError(c, err)
	}

	lines := make([]bookingsvc.LineInput, 0, len(body.Lines))
	for _, l := range body.Lines {
		productID, err := validation.RequiredUUID(l.ProductID, "product_id")
		if err != nil {
			return response.DomainError(c, err)
		}
		lines = append(lines, bookingsvc.LineInput{ProductID: productID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}

	order, err := h.Service.BookOrder(c.Context(), bookingsvc.BookOrderInput{
		Source:      domain.OrderSource(body.Source),
		TerritoryID: territoryID,
		DealerID:    dealerID,
		Date:        date,
		Lines:       lines,
	})
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.SuccessCreated(c, "Order booked successfully", order, nil)
}

// CancelOrder POST /api/v1/orders/cancel-order
func (h *Handlers) CancelOrder(c *fiber.Ctx) error {
	var body struct {
		OrderID string `json:"order_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	orderID, err := validation.RequiredUUID(body.OrderID, "order_id")
	if err != nil {
		return response.DomainError(c, err)
	}

	order, err := h.Service.CancelOrder(c.Context(), orderID)
	if errors.Is(err, domain.ErrReconciliationRequired) && order != nil {
		return response.Accepted(c, "Cancellation pending quota reconciliation, retry the request", order, nil)
	}
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Order cancelled successfully", order, nil)
}

// AmendLine PATCH /api/v1/orders/amend-line
func (h *Handlers) AmendLine(c *fiber.Ctx) error {
	var body struct {
		OrderID  string `json:"order_id"`
		LineID   string `json:"line_id"`
		Quantity int64  `json:"quantity"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	orderID, err := validation.RequiredUUID(body.OrderID, "order_id")
	if err != nil {
		return response.DomainError(c, err)
	}
	lineID, err := validation.RequiredUUID(body.LineID, "line_id")
	if err != nil {
		return response.DomainError(c, err)
	}

	order, err := h.Service.AmendOrderLine(c.Context(), orderID, lineID, body.Quantity)
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Order line amended successfully", order, nil)
}

// ViewOrder GET /api/v1/orders/view-order/:order_id
func (h *Handlers) ViewOrder(c *fiber.Ctx) error {
	orderID, err := validation.RequiredUUID(c.Params("order_id"), "order_id")
	if err != nil {
		return response.DomainError(c, err)
	}
	order, err := h.Service.GetOrder(c.Context(), orderID)
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Order fetched successfully", order, nil)
}

// GetOrders GET /api/v1/orders/get-orders?territory_id=&date=
func (h *Handlers) GetOrders(c *fiber.Ctx) error {
	territoryID, err := validation.RequiredUUID(c.Query("territory_id"), "territory_id")
	if err != nil {
		return response.DomainError(c, err)
	}
	date, err := validation.OptionalDate(c.Query("date"))
	if err != nil {
		return response.DomainError(c, err)
	}
	if date == "" {
		date = h.Service.Calendar.Today()
	}
	orders, err := h.Service.ListOrders(c.Context(), territoryID, date)
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Orders fetched successfully", orders, fiber.Map{"count": len(orders), "date": date})
}

// OrderEvents GET /api/v1/orders/order-events/:order_id
func (h *Handlers) OrderEvents(c *fiber.Ctx) error {
	orderID, err := validation.RequiredUUID(c.Params("order_id"), "order_id")
	if err != nil {
		return response.DomainError(c, err)
	}
	evs, err := h.Service.OrderEvents(c.Context(), orderID)
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Order events fetched successfully", evs, nil)
}
