package router

import (
	"context"
	"time"

	"salesquota-backend/internal/application/admission"
	"salesquota-backend/internal/application/booking"
	"salesquota-backend/internal/application/events"
	"salesquota-backend/internal/application/ledger"
	"salesquota-backend/internal/application/quotaboard"
	"salesquota-backend/internal/config"
	"salesquota-backend/internal/infrastructure/cache"
	"salesquota-backend/internal/infrastructure/database"
	healthhandler "salesquota-backend/internal/interfaces/handlers/health"
	orderhandler "salesquota-backend/internal/interfaces/handlers/orders"
	quotahandler "salesquota-backend/internal/interfaces/handlers/quotas"
	"salesquota-backend/internal/middleware"
	"salesquota-backend/internal/pkg/bizdate"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const rollbackTimeout = 10 * time.Second

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Components are the long-lived dependencies built for the app; cmd/api uses them for startup checks,
// the stale reservation sweeper and shutdown.
type Components struct {
	DB        *gorm.DB
	Rdb       *redis.Client
	Publisher events.Publisher
	Admission *admission.Controller
	Booking   *booking.Service
}

// Close releases the broker connection, redis client and database pool.
func (c *Components) Close() {
	if c == nil {
		return
	}
	if p, ok := c.Publisher.(*events.AMQPPublisher); ok {
		_ = p.Close()
	}
	if c.Rdb != nil {
		_ = c.Rdb.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func CreateApp(cfg *config.Config) (*fiber.App, *Components, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	rdb, err := cache.Open(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	comps := &Components{Rdb: rdb, Publisher: events.NopPublisher{}}

	var broker *events.AMQPPublisher
	if cfg.AMQPURL != "" {
		broker = events.NewAMQPPublisher(cfg.AMQPURL, cfg.OrderEventsQueue)
		comps.Publisher = broker
	}

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))
	app.Use(middleware.HealthMarker(rdb))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	hh := &healthhandler.Handlers{
		Rdb:            rdb,
		HealthAdminKey: cfg.HealthAdminKey,
	}
	if broker != nil {
		hh.Broker = broker
	}
	app.Get("/", hh.Dashboard)
	app.Get("/reset", hh.Reset)
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)

	if cfg.DatabaseURL == "" {
		return app, comps, nil
	}
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	comps.DB = db
	hh.DB = &gormDBPinger{db: db}

	calendar := bizdate.New(cfg.BusinessTimezone)
	caps := &ledger.DBCapSource{DB: db, DefaultCap: cfg.DefaultDailyCap}
	ledgerSvc := &ledger.Service{DB: db, Caps: caps}
	comps.Admission = &admission.Controller{DB: db, Ledger: ledgerSvc, Calendar: calendar}
	comps.Booking = &booking.Service{
		DB:        db,
		Admission: comps.Admission,
		Calendar:  calendar,
		Publisher: comps.Publisher,
		Retry: booking.RetryPolicy{
			MaxRetries: cfg.StorageMaxRetries,
			Initial:    cfg.StorageRetryInitial,
		},
		RollbackTimeout: rollbackTimeout,
	}

	oh := &orderhandler.Handlers{Service: comps.Booking}
	og := app.Group("/api/v1/orders")
	og.Post("/book-order", oh.BookOrder)
	og.Post("/cancel-order", oh.CancelOrder)
	og.Patch("/amend-line", oh.AmendLine)
	og.Get("/view-order/:order_id", oh.ViewOrder)
	og.Get("/get-orders", oh.GetOrders)
	og.Get("/order-events/:order_id", oh.OrderEvents)

	qh := &quotahandler.Handlers{
		BoardSvc: &quotaboard.Service{Ledger: ledgerSvc, Caps: caps, Calendar: calendar},
		Caps:     caps,
	}
	qg := app.Group("/api/v1/quotas")
	qg.Get("/todays-board", qh.TodaysBoard)
	qg.Get("/board", qh.Board)
	qg.Get("/remaining", qh.Remaining)
	qg.Put("/set-cap", middleware.RequireAdminKey(cfg.AdminAPIKey), qh.SetCap)

	return app, comps, nil
}
