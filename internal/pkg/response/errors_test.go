package response

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"salesquota-backend/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("product x: %w", &domain.QuotaExceededError{}), 400},
		{domain.ErrNotFound, 404},
		{domain.ErrDateClosed, 400},
		{fmt.Errorf("%w: timeout", domain.ErrStorageUnavailable), 503},
		{domain.ErrReconciliationRequired, 202},
		{domain.ErrOrderCancelled, 409},
		{domain.ErrConcurrentUpdate, 409},
		{domain.ErrAmountMismatch, 500},
	}
	for _, tc := range cases {
		code, _ := StatusFor(tc.err)
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}

func TestDomainError_QuotaDetails(t *testing.T) {
	product := uuid.New()
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return DomainError(c, &domain.QuotaExceededError{
			Key:       domain.QuotaKey{TerritoryID: uuid.New(), ProductID: product, Date: "2026-10-16"},
			Requested: 6,
			Remaining: 2,
		})
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	var out ErrorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	details := out.Error.Details.(map[string]interface{})
	assert.Equal(t, product.String(), details["product_id"])
	assert.Equal(t, float64(6), details["requested"])
	assert.Equal(t, float64(2), details["remaining"])
}
