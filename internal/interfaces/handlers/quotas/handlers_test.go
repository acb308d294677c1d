package quotas

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"salesquota-backend/internal/application/admission"
	"salesquota-backend/internal/application/ledger"
	boardsvc "salesquota-backend/internal/application/quotaboard"
	"salesquota-backend/internal/domain"
	"salesquota-backend/internal/infrastructure/database"
	"salesquota-backend/internal/pkg/bizdate"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupQuotasTest(t *testing.T) (*fiber.App, *admission.Controller) {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	cal := bizdate.Fixed(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC))
	caps := &ledger.DBCapSource{DB: db}
	l := &ledger.Service{DB: db, Caps: caps}
	h := &Handlers{BoardSvc: &boardsvc.Service{Ledger: l, Caps: caps, Calendar: cal}, Caps: caps}

	app := fiber.New()
	app.Get("/todays-board", h.TodaysBoard)
	app.Get("/board", h.Board)
	app.Get("/remaining", h.Remaining)
	app.Put("/set-cap", h.SetCap)
	return app, &admission.Controller{DB: db, Ledger: l, Calendar: cal}
}

func call(t *testing.T, app *fiber.App, method, path string, payload interface{}) (int, map[string]interface{}) {
	b, _ := json.Marshal(payload)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestSetCapThenBoard(t *testing.T) {
	app, ctrl := setupQuotasTest(t)
	territory, product := uuid.New(), uuid.New()

	code, _ := call(t, app, "PUT", "/set-cap", map[string]interface{}{
		"territory_id": territory.String(), "product_id": product.String(), "daily_cap": 8,
	})
	require.Equal(t, 200, code)

	_, err := ctrl.Reserve(context.Background(), admission.ReserveRequest{
		Key:         domain.QuotaKey{TerritoryID: territory, ProductID: product, Date: "2026-10-16"},
		Quantity:    3,
		OrderLineID: uuid.New(),
	})
	require.NoError(t, err)

	code, out := call(t, app, "GET", "/todays-board?territory_id="+territory.String(), nil)
	require.Equal(t, 200, code)
	rows := out["data"].(map[string]interface{})["rows"].([]interface{})
	require.Len(t, rows, 1)
	row := rows[0].(map[string]interface{})
	assert.Equal(t, float64(8), row["daily_cap"])
	assert.Equal(t, float64(3), row["consumed"])
	assert.Equal(t, float64(5), row["remaining"])

	code, out = call(t, app, "GET", "/remaining?territory_id="+territory.String()+"&product_id="+product.String(), nil)
	require.Equal(t, 200, code)
	assert.Equal(t, float64(5), out["data"].(map[string]interface{})["remaining"])

	code, out = call(t, app, "GET", "/board?territory_id="+territory.String()+"&date=2026-10-15", nil)
	require.Equal(t, 200, code)
	assert.Empty(t, out["data"].(map[string]interface{})["rows"])
}

func TestSetCap_Validation(t *testing.T) {
	app, _ := setupQuotasTest(t)

	code, _ := call(t, app, "PUT", "/set-cap", map[string]interface{}{"product_id": uuid.New().String()})
	assert.Equal(t, 400, code)

	code, _ = call(t, app, "PUT", "/set-cap", map[string]interface{}{"product_id": uuid.New().String(), "daily_cap": -1})
	assert.Equal(t, 400, code)

	code, out := call(t, app, "PUT", "/set-cap", map[string]interface{}{"product_id": uuid.New().String(), "daily_cap": 0})
	assert.Equal(t, 200, code)
	assert.Equal(t, uuid.Nil.String(), out["data"].(map[string]interface{})["territory_id"])
}

func TestRemaining_UnknownQuota(t *testing.T) {
	app, _ := setupQuotasTest(t)
	code, _ := call(t, app, "GET", "/remaining?territory_id="+uuid.New().String()+"&product_id="+uuid.New().String(), nil)
	assert.Equal(t, 404, code)

	code, _ = call(t, app, "GET", "/todays-board", nil)
	assert.Equal(t, 400, code)
}
