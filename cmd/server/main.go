package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"booking-portal/internal/app"
	"booking-portal/internal/config"
	"booking-portal/internal/events"
	"booking-portal/internal/gcal"
	"booking-portal/internal/server"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	if cfg.SlogLevel() != slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := app.NewPGStore(pool)
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	pub, err := events.New(events.Config{
		Driver:        cfg.EventsDriver,
		RabbitURL:     cfg.RabbitURL,
		Exchange:      cfg.BookingExchange,
		NATSURL:       cfg.NATSURL,
		SubjectPrefix: cfg.NATSSubjectPrefix,
	}, logger)
	if err != nil {
		return err
	}
	defer pub.Close()

	appInstance := &app.App{
		Bookings:   store,
		Services:   store,
		Health:     store,
		Reconciler: app.NewReconciler(store, pub, logger),
		Verifier:   app.NewSignatureVerifier(cfg.CalendlySigningKey, cfg.CalendlySignatureTolerance),
		Sessions: app.SessionConfig{
			Secret:       cfg.SessionSecret,
			StaticTokens: cfg.StaticTokens,
			SignInPath:   cfg.SignInPath,
		},
		Calendar: gcal.New(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL),
		Logger:   logger,
	}
	if !appInstance.Verifier.Enabled() {
		logger.Warn("CALENDLY_SIGNING_KEY not set, webhook signatures are not checked")
	}

	return server.Run(ctx, appInstance.Router(), cfg.Addr(), cfg.ShutdownTimeout, logger)
}
