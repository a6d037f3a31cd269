package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/cache"
	"github.com/iliyamo/cinema-booking/internal/config"
	"github.com/iliyamo/cinema-booking/internal/database"
	"github.com/iliyamo/cinema-booking/internal/handler"
	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/payment"
	"github.com/iliyamo/cinema-booking/internal/queue"
	"github.com/iliyamo/cinema-booking/internal/repository"
	"github.com/iliyamo/cinema-booking/internal/router"
	"github.com/iliyamo/cinema-booking/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}

	logger := newLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DB)
	if err != nil {
		logger.Fatal("open database", zap.String("driver", cfg.DB.Driver), zap.Error(err))
	}
	defer func() { _ = db.Close() }()
	if err := database.Migrate(ctx, db, cfg.DB.Driver); err != nil {
		logger.Fatal("migrate database", zap.Error(err))
	}

	// Redis is optional; without it the cache, rate limiter and attempt
	// lock are disabled.
	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable; cache, rate limit and payment lock disabled")
	} else {
		defer func() { _ = rdb.Close() }()
	}
	cacheCfg := config.LoadCacheConfig()
	rlCfg := config.LoadRateLimitConfig()

	users := repository.NewUserRepo(db)
	showtimeRepo := repository.NewShowtimeRepo(db)
	seatRepo := repository.NewSeatRepo(db)
	bookingRepo := repository.NewBookingRepo(db)

	members := service.NewMembershipService(db, users, logger)
	inventory := service.NewSeatInventory(db, seatRepo, showtimeRepo, logger)
	showtimes := service.NewShowtimeService(db, showtimeRepo, seatRepo, logger)
	bookings := service.NewBookingService(db, showtimeRepo, seatRepo, bookingRepo, inventory, members, cfg.PendingBookingTTL, logger).
		WithShowtimeCache(cache.NewResponses(rdb, cacheCfg))
	if cfg.RabbitMQURL != "" {
		bookings.WithEvents(queue.NewPublisher(cfg.RabbitMQURL, logger.Named("publisher")))
	}

	var provider payment.Provider = payment.AutoApprove{}
	if cfg.PaymentGatewayURL != "" {
		provider = payment.NewHTTPGateway(cfg.PaymentGatewayURL, &http.Client{Timeout: cfg.PaymentTimeout})
	} else {
		logger.Warn("PAYMENT_GATEWAY_URL not set; every charge is approved")
	}
	lock := cache.NewAttemptLock(rdb, "payattempt", cfg.PaymentLockTTL)
	orchestrator := service.NewPaymentOrchestrator(bookings, provider, lock, cfg.PaymentTimeout, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLogger(logger.Named("http")))
	router.Register(e, router.Handlers{
		Health:     handler.Health(db),
		Showtimes:  handler.NewShowtimeHandler(showtimes, inventory, logger),
		Bookings:   handler.NewBookingHandler(bookings, orchestrator, logger),
		Membership: handler.NewMembershipHandler(members, logger),
		Admin:      handler.NewAdminHandler(showtimes, members, logger),
	}, router.Middlewares{
		ShowtimeCache: middleware.NewRedisCache(cacheCfg, rdb, logger.Named("cache")),
		BookingLimit:  middleware.NewTokenBucket(rlCfg, rdb, logger.Named("ratelimit")),
	}, cfg.JWTSecret)

	workers := &background{}
	workers.Go(ctx, func(ctx context.Context) { bookings.RunReclaimer(ctx, cfg.ReclaimInterval) })
	if cfg.ConsumerEnabled {
		logPath := filepath.Join("logs", "booking.log")
		workers.Go(ctx, func(ctx context.Context) {
			if err := queue.StartBookingConsumer(ctx, cfg.RabbitMQURL, logPath, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("booking consumer stopped", zap.Error(err))
			}
		})
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	// The reclaimer and consumer stop with ctx; wait before the database closes.
	workers.Wait()
	logger.Info("stopped")
}

// background tracks goroutines that stop when their context is done.
type background struct {
	wg sync.WaitGroup
}

func (b *background) Go(ctx context.Context, fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn(ctx)
	}()
}

// Wait blocks until every goroutine returned.
func (b *background) Wait() { b.wg.Wait() }

func newLogger(env string) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if env == "dev" {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}
