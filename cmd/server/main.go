package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/planorahq/planora/modules/billing"
	"github.com/planorahq/planora/pkg/config"
	"github.com/planorahq/planora/pkg/httpserver"
	"github.com/planorahq/planora/pkg/logger"
	"github.com/planorahq/planora/pkg/pg"
	"github.com/planorahq/planora/pkg/redis"
)

type appConfig struct {
	Addr      string        `env:"SERVER_ADDR" envDefault:":8080"`
	LogLevel  slog.Level    `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat logger.Format `env:"LOG_FORMAT" envDefault:"json"`

	PlansPath     string        `env:"PLANS_PATH" envDefault:"plans.yaml"`
	EventGuardTTL time.Duration `env:"WEBHOOK_EVENT_GUARD_TTL" envDefault:"24h"`
	FetchTimeout  time.Duration `env:"PROVIDER_FETCH_TIMEOUT" envDefault:"10s"`
}

func main() {
	var appCfg appConfig
	config.MustLoad(&appCfg)

	log := logger.New(
		logger.WithLevel(appCfg.LogLevel),
		logger.WithFormat(appCfg.LogFormat),
		logger.WithService("planora"),
	)

	if err := run(context.Background(), appCfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, appCfg appConfig, log *slog.Logger) error {
	var pgCfg pg.Config
	config.MustLoad(&pgCfg)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return err
	}

	var redisCfg redis.Config
	config.MustLoad(&redisCfg)

	redisClient, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer func() { _ = redisClient.Close() }()

	var stripeCfg billing.StripeConfig
	config.MustLoad(&stripeCfg)

	provider, err := billing.NewStripeProvider(stripeCfg)
	if err != nil {
		return err
	}

	svc, err := billing.NewService(ctx,
		billing.NewYAMLSource(appCfg.PlansPath),
		billing.NewPostgresStore(pool),
		billing.WithProvider(provider),
		billing.WithGuard(billing.NewRedisGuard(redisClient, appCfg.EventGuardTTL)),
		billing.WithWebhookSecret(stripeCfg.WebhookSecret),
		billing.WithFetchTimeout(appCfg.FetchTimeout),
		billing.WithLogger(log),
	)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", httpserver.HealthCheckHandler(log,
		pg.Healthcheck(pool),
		redis.Healthcheck(redisClient),
	))
	r.Mount("/", billing.Router(svc, log))

	srv := httpserver.New(
		httpserver.WithAddr(appCfg.Addr),
		httpserver.WithReadTimeout(10*time.Second),
		httpserver.WithWriteTimeout(30*time.Second),
		httpserver.WithIdleTimeout(time.Minute),
		httpserver.WithLogger(log),
	)
	return srv.Run(ctx, r)
}
