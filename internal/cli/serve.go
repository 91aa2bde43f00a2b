package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"dayplan/backend/internal/config"
	"dayplan/backend/internal/service/organizer"
	"dayplan/backend/internal/transport/rest"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Serve the organizer API and the public calendar links.

Configuration comes from DAYPLAN_* environment variables. Without
DAYPLAN_DATABASE_URL calendars are kept in memory and lost on restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	log := newLogger(os.Stdout, "info", false)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		return err
	}

	log = newLogger(os.Stdout, cfg.LogLevel, cfg.VerboseLogging)
	slog.SetDefault(log)

	log.Info("starting", slog.String("http_addr", cfg.HTTPAddr), slog.String("log_level", cfg.LogLevel))

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cs, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cs.close()

	svc := organizer.NewService(
		newPlanner(cfg, log),
		newResolver(cfg, log),
		cs.repo,
		log,
		organizer.Config{
			PublicBaseURL:       cfg.PublicBaseURL,
			ZoneResolveAttempts: cfg.ZoneResolveAttempts,
		},
	)

	e := rest.New(rest.NewServer(svc, log, cs.health), rest.Options{
		AllowOrigins:   cfg.CORSAllowOrigins,
		RequestTimeout: cfg.HTTPRequestTimeout,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(cfg.HTTPAddr)
	}()

	log.Info("http server started", slog.String("http_addr", cfg.HTTPAddr), slog.String("public_base_url", cfg.PublicBaseURL))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		return shutdown(log, e, cfg.ShutdownTimeout)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped with error", slog.Any("err", err))
			return err
		}
		return nil
	}
}

func shutdown(log *slog.Logger, e *echo.Echo, timeout time.Duration) error {
	log.Info("shutting down http server", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Warn("http graceful shutdown timed out; forcing close", slog.Any("err", err))
		return e.Close()
	}
	log.Info("http server stopped")
	return nil
}
