// Command server runs the pallet session channel and the operator API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/palletrack/pallet-system/internal/api"
	"github.com/palletrack/pallet-system/internal/api/handler"
	"github.com/palletrack/pallet-system/internal/api/metrics"
	"github.com/palletrack/pallet-system/internal/api/ws"
	"github.com/palletrack/pallet-system/internal/core/ports"
	"github.com/palletrack/pallet-system/internal/core/service"
	"github.com/palletrack/pallet-system/internal/infrastructure/config"
	"github.com/palletrack/pallet-system/internal/infrastructure/db/memory"
	mongostore "github.com/palletrack/pallet-system/internal/infrastructure/db/mongo"
	redisstore "github.com/palletrack/pallet-system/internal/infrastructure/db/redis"
	"github.com/palletrack/pallet-system/internal/infrastructure/queue"
	"github.com/palletrack/pallet-system/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		boot := logger.Init(logger.Options{})
		boot.Fatal().Err(err).Msg("invalid configuration")
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "pallet-system",
	})

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("server exited")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	var (
		pallets ports.PalletRepository
		users   ports.UserRepository
		checks  []handler.DependencyCheck
	)

	switch cfg.StoreDriver {
	case config.DriverMongo:
		store, err := mongostore.Open(ctx, mongostore.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := store.Close(closeCtx); err != nil {
				log.Warn().Err(err).Msg("mongo disconnect failed")
			}
		}()
		pallets, users = store.Pallets, store.Users
		checks = append(checks, handler.DependencyCheck{Name: "mongodb", Ping: store.Ping})
		log.Info().Str("database", cfg.Mongo.Database).Msg("connected to mongodb")
	case config.DriverMemory:
		pallets, users = memory.NewPalletRepository(), memory.NewUserRepository()
		log.Warn().Msg("using in-memory store, records are lost on exit")
	}

	rdb, err := redisstore.Connect(ctx, redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	var locker ports.KeyLocker
	if rdb != nil {
		defer rdb.Close()
		checks = append(checks, handler.DependencyCheck{
			Name: "redis",
			Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
		if cfg.Assign.DistributedLock {
			locker = redisstore.NewKeyLocker(rdb, cfg.Assign.LockTTL)
			log.Info().Dur("ttl", cfg.Assign.LockTTL).Msg("distributed pallet lock enabled")
		}
	}

	dispatcher := queue.NewDispatcher(cfg.Assign.Workers, logger.Component("dispatcher"),
		queue.WithDepthGauge(metrics.AssignQueueDepth))
	dispatcher.Start(ctx)

	svcLog := logger.Component("service")
	svc := ws.Services{
		Users:       service.NewUserService(users, svcLog),
		Pallets:     service.NewPalletService(pallets, dispatcher, locker, svcLog),
		Assignments: service.NewAssignmentService(pallets, users, dispatcher, locker, svcLog),
	}

	wsLog := logger.Component("ws")
	router := ws.NewRouter(handler.NewValidator(), wsLog)
	ws.Register(router, svc)
	hub := ws.NewHub()
	session := ws.NewServer(hub, router, ws.Options{
		ReadLimit:    cfg.WS.ReadLimit,
		PingInterval: cfg.WS.PingInterval,
		PongWait:     cfg.WS.PongWait,
	}, wsLog)

	e := api.NewRouter(api.Deps{
		Pallets:   svc.Pallets,
		Session:   session,
		Checks:    checks,
		JWTSecret: cfg.JWTSecret,
		Log:       logger.Component("http"),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.StoreDriver).Msg("server starting")
		errCh <- e.Start(":" + cfg.Port)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	hub.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
	return nil
}
