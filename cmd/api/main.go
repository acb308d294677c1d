package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salesquota-backend/internal/application/admission"
	"salesquota-backend/internal/config"
	"salesquota-backend/internal/infrastructure/cache"
	"salesquota-backend/internal/infrastructure/database"
	"salesquota-backend/internal/interfaces/router"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Env != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	app, comps, err := router.CreateApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("app create")
	}
	defer comps.Close()

	startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	if comps.DB != nil {
		if err := database.AutoMigrate(comps.DB.WithContext(startCtx)); err != nil {
			log.Fatal().Err(err).Msg("database migration failed")
		}
		log.Info().Msg("database connected")
	} else {
		log.Warn().Msg("DATABASE_URL not set; only health routes are served")
	}
	if err := cache.Ping(startCtx, comps.Rdb); err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	cancelStart()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if comps.Admission != nil && cfg.SweepInterval > 0 {
		go sweep(ctx, comps.Admission, cfg.SweepInterval, cfg.StalePendingAfter)
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	log.Info().Str("port", cfg.Port).Msgf("server running, health check at http://localhost:%s/health/json", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Error().Err(err).Msg("listen")
	}
}

// sweep releases reservations left pending by a crashed or rolled-back booking.
func sweep(ctx context.Context, ctrl *admission.Controller, every, olderThan time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := ctrl.ReleaseStalePending(ctx, olderThan)
			if err != nil {
				log.Warn().Err(err).Msg("stale reservation sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int("released", n).Msg("stale reservations released")
			}
		}
	}
}
