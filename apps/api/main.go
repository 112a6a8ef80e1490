package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	accountshandler "github.com/steeplehq/steeple-saas/domains/accounts/be/handler"
	accountsrepo "github.com/steeplehq/steeple-saas/domains/accounts/be/repo"
	accountsservice "github.com/steeplehq/steeple-saas/domains/accounts/be/service"
	churcheshandler "github.com/steeplehq/steeple-saas/domains/churches/be/handler"
	churchesrepo "github.com/steeplehq/steeple-saas/domains/churches/be/repo"
	churchesservice "github.com/steeplehq/steeple-saas/domains/churches/be/service"
	crmhandler "github.com/steeplehq/steeple-saas/domains/crm/be/handler"
	crmrepo "github.com/steeplehq/steeple-saas/domains/crm/be/repo"
	crmservice "github.com/steeplehq/steeple-saas/domains/crm/be/service"
	sessionshandler "github.com/steeplehq/steeple-saas/domains/sessions/be/handler"
	sessionsrepo "github.com/steeplehq/steeple-saas/domains/sessions/be/repo"
	sessionsservice "github.com/steeplehq/steeple-saas/domains/sessions/be/service"
	"github.com/steeplehq/steeple-saas/platform/go/authz"
	platformlogging "github.com/steeplehq/steeple-saas/platform/go/logging"
	platformmiddleware "github.com/steeplehq/steeple-saas/platform/go/middleware"
	"github.com/steeplehq/steeple-saas/platform/go/persistence"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"local"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	SessionSweep    string        `env:"SESSION_SWEEP_SCHEDULE" envDefault:"@hourly"`
	BcryptCost      int           `env:"BCRYPT_COST" envDefault:"12"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component:   "api-server",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	userStore, err := persistence.NewUserStore(pool)
	if err != nil {
		logger.Fatal("init user store", zap.Error(err))
	}
	churchStore, err := persistence.NewChurchStore(pool)
	if err != nil {
		logger.Fatal("init church store", zap.Error(err))
	}
	membershipStore, err := persistence.NewMembershipStore(pool)
	if err != nil {
		logger.Fatal("init membership store", zap.Error(err))
	}
	sessionStore, err := persistence.NewSessionStore(pool, cfg.SessionTTL)
	if err != nil {
		logger.Fatal("init session store", zap.Error(err))
	}
	leadStore, err := persistence.NewLeadStore(pool)
	if err != nil {
		logger.Fatal("init lead store", zap.Error(err))
	}
	taskStore, err := persistence.NewTaskStore(pool)
	if err != nil {
		logger.Fatal("init task store", zap.Error(err))
	}
	dncStore, err := persistence.NewDNCStore(pool)
	if err != nil {
		logger.Fatal("init dnc store", zap.Error(err))
	}

	resolver := authz.NewResolver(sessionStore, userStore, membershipStore, churchStore, logger)

	accountsService := accountsservice.New(
		accountsrepo.NewPostgresRepository(userStore, membershipStore),
		cfg.BcryptCost,
	)
	accountsHTTPHandler := accountshandler.New(accountsService, resolver, logger)

	sessionsService := sessionsservice.New(
		accountsService,
		sessionsrepo.NewPostgresRepository(sessionStore, membershipStore),
		resolver,
	)
	sessionsHTTPHandler := sessionshandler.New(sessionsService, logger)

	churchesService := churchesservice.New(churchesrepo.NewPostgresRepository(churchStore))
	churchesHTTPHandler := churcheshandler.New(churchesService, resolver, logger)

	crmService := crmservice.New(
		crmrepo.NewPostgresRepository(leadStore, taskStore, dncStore),
		logger,
	)
	crmHTTPHandler := crmhandler.New(crmService, resolver, logger)

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	apiRouter := chi.NewRouter()
	apiRouter.Use(platformmiddleware.SessionToken)

	apiRouter.Group(func(r chi.Router) {
		sessionsHTTPHandler.Register(r)
	})
	apiRouter.Group(func(r chi.Router) {
		accountsHTTPHandler.Register(r)
	})
	apiRouter.Group(func(r chi.Router) {
		churchesHTTPHandler.Register(r)
	})
	apiRouter.Group(func(r chi.Router) {
		crmHTTPHandler.Register(r)
	})

	rootRouter.Mount("/api/v1", apiRouter)

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.SessionSweep, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		removed, sweepErr := sessionStore.DeleteExpired(sweepCtx)
		if sweepErr != nil {
			logger.Error("session sweep failed", zap.Error(sweepErr))
			return
		}
		if removed > 0 {
			logger.Info("expired sessions swept", zap.Int64("removed", removed))
		}
	}); err != nil {
		logger.Fatal("schedule session sweep", zap.String("schedule", cfg.SessionSweep), zap.Error(err))
	}
	sweeper.Start()
	defer sweeper.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
