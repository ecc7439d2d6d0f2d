package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gmfloripa/patrol-relay/internal/broadcast"
	"github.com/gmfloripa/patrol-relay/internal/config"
	"github.com/gmfloripa/patrol-relay/internal/directory"
	"github.com/gmfloripa/patrol-relay/internal/domain"
	"github.com/gmfloripa/patrol-relay/internal/metrics"
	"github.com/gmfloripa/patrol-relay/internal/relay"
	"github.com/gmfloripa/patrol-relay/internal/report"
	"github.com/gmfloripa/patrol-relay/internal/server"
	"github.com/gmfloripa/patrol-relay/internal/telemetry"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay HTTP server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(cfg.Telemetry.ServiceName, cfg.Telemetry.Enabled, os.Stdout, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	metrics.Register()

	roster, err := cfg.Roster()
	if err != nil {
		return err
	}
	holder := domain.NewRosterHolder(roster)
	metrics.SetRosterSize(roster.Len())

	svc, closeTokens, err := newRelayService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeTokens()

	controller := broadcast.NewController(broadcast.LocalRelayer{Service: svc}, holder,
		broadcast.WithLogger(logger))

	dirClient := directory.NewClient(cfg.Directory.BaseURL, cfg.Directory.APIKey,
		directory.WithHTTPClient(&http.Client{
			Timeout:   cfg.Directory.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}))

	mailer, err := report.NewMailer(report.NewRenderer(cfg.Report.Timezone), &report.SMTPSender{
		Host:     cfg.Report.SMTP.Host,
		Port:     cfg.Report.SMTP.Port,
		Username: cfg.Report.SMTP.Username,
		Password: cfg.Report.SMTP.Password,
	}, cfg.Report.From, cfg.Report.To)
	if err != nil {
		return err
	}
	if cfg.Report.SMTP.Host == "" {
		logger.Warn("report.smtp.host not set, incident reports will fail")
	}

	relayHandler := relay.NewHandler(svc, cfg.Server.MaxUploadBytes, logger)
	broadcastHandler := broadcast.NewHandler(controller, holder, cfg.Server.MaxUploadBytes, logger)
	searchHandler := directory.NewHandler(dirClient, logger)
	reportHandler := report.NewHandler(mailer, logger)

	srv := server.New(cfg.Server.Port, logger, server.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		ServiceName:    cfg.Telemetry.ServiceName,
	})
	srv.Router.Post(relay.SendFilePath, relayHandler.HandleSendFile)
	srv.Router.Post(broadcast.BroadcastPath, broadcastHandler.HandleBroadcast)
	srv.Router.Get(broadcast.RecipientsPath, broadcastHandler.HandleRecipients)
	srv.Router.Get(directory.SearchPath, searchHandler.HandleSearch)
	srv.Router.Post(report.SendReportPath, reportHandler.HandleSendReport)
	srv.Router.Handle("/metrics", promhttp.Handler())

	watchRoster(ctx, holder, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.Int("port", cfg.Server.Port))
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received, stopping server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}

// watchRoster swaps the recipient roster whenever the config file changes.
// A missing config file leaves the startup roster in place.
func watchRoster(ctx context.Context, holder *domain.RosterHolder, logger *slog.Logger) {
	if _, err := os.Stat(configPath); err != nil {
		logger.Debug("config file not found, roster reload disabled", slog.String("path", configPath))
		return
	}

	w, err := config.NewWatcher(configPath, logger)
	if err != nil {
		logger.Warn("roster reload disabled", slog.String("error", err.Error()))
		return
	}

	err = w.Watch(ctx, func(cfg *config.Config) {
		roster, err := cfg.Roster()
		if err != nil {
			return
		}
		holder.Store(roster)
		metrics.SetRosterSize(roster.Len())
	})
	if err != nil {
		logger.Warn("roster reload disabled", slog.String("error", err.Error()))
	}
}
