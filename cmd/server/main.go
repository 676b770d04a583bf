package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/draftbase/credits/modules/billing"
	"github.com/draftbase/credits/pkg/config"
	"github.com/draftbase/credits/pkg/credits"
	"github.com/draftbase/credits/pkg/eventlog"
	"github.com/draftbase/credits/pkg/httpserver"
	"github.com/draftbase/credits/pkg/ledger"
	"github.com/draftbase/credits/pkg/logger"
	"github.com/draftbase/credits/pkg/notification"
	"github.com/draftbase/credits/pkg/payments"
	"github.com/draftbase/credits/pkg/pg"
)

type appConfig struct {
	Log        logger.Config
	PG         pg.Config
	HTTP       httpserver.Config
	Ledger     ledger.Config
	Payments   payments.Config
	Stripe     payments.StripeConfig
	Paddle     payments.PaddleConfig
	Checkout   credits.Config
	Postmark   notification.Config
	CORSOrigin []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

func main() {
	ctx := context.Background()

	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.NewFromConfig(cfg.Log, logger.WithService("credits"))
	logger.SetAsDefault(log)

	if err := run(ctx, cfg, log); err != nil {
		log.ErrorContext(ctx, "server exited with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, cfg.PG, log); err != nil {
		return err
	}

	provider, err := payments.New(cfg.Payments, cfg.Stripe, cfg.Paddle)
	if err != nil {
		return err
	}

	var notifier notification.Notifier = notification.NopNotifier{}
	if n, err := notification.NewPostmarkNotifier(cfg.Postmark); err == nil {
		notifier = n
	} else {
		log.WarnContext(ctx, "receipt notifications disabled", logger.Error(err))
	}

	ledgerSvc := ledger.NewService(ledger.NewPostgresStore(pool), cfg.Ledger, ledger.WithLogger(log))
	creditsSvc := credits.NewService(
		ledgerSvc,
		eventlog.NewPostgresStore(pool),
		provider,
		cfg.Checkout,
		credits.WithNotifier(notifier),
		credits.WithLogger(log),
	)

	r := chi.NewRouter()
	r.Get("/healthz", httpserver.HealthCheckHandler(ctx, log, pg.Healthcheck(pool)))
	r.Mount("/v1", billing.Router(billing.RouterOptions{
		Ledger:         ledgerSvc,
		Credits:        creditsSvc,
		Logger:         log,
		AllowedOrigins: cfg.CORSOrigin,
	}))

	srv := httpserver.NewFromConfig(cfg.HTTP,
		httpserver.WithLogger(log),
		httpserver.WithStartHook(func(l *slog.Logger) {
			l.Info("billing server listening", "addr", cfg.HTTP.Addr, "provider", provider.Name())
		}),
	)
	return srv.Run(ctx, r)
}
