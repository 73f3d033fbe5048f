package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/shortlist/internal/adapters/http/api"
	"github.com/okian/shortlist/internal/adapters/http/swagger"
	"github.com/okian/shortlist/internal/adapters/repository"
	service "github.com/okian/shortlist/internal/app"
	"github.com/okian/shortlist/internal/config"
	"github.com/okian/shortlist/pkg/logger"
	"github.com/okian/shortlist/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
	// writeSlack is added to the analysis timeout so a submission response
	// can still be written after the slowest allowed analysis.
	writeSlack = 15 * time.Second
)

func newServeCmd(root *rootOptions, f factories) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), root, f)
		},
	}
}

func serve(ctx context.Context, root *rootOptions, f factories) error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log, err := root.setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	configureMetrics(cfg)

	gen, err := f.generator(ctx, cfg)
	if err != nil {
		return fmt.Errorf("analysis client: %w", err)
	}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	svc := service.New(
		service.WithLogger(log.Named("service")),
		service.WithStore(store),
		service.WithGenerator(gen),
		service.WithRankingLocale(cfg.Ranking.Locale),
		service.WithMaxCVBytes(cfg.MaxCVBytes),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc,
		api.WithLogger(log.Named("api")),
		api.WithMaxCVBytes(cfg.MaxCVBytes),
	).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      time.Duration(cfg.Gemini.TimeoutMS)*time.Millisecond + writeSlack,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		// Streams end when the process is signalled.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("store", cfg.Store.Driver),
			logger.String("namespace", cfg.Namespace),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

func configureMetrics(cfg *config.Config) {
	metrics.Configure(
		metrics.WithNamespace(cfg.Metrics.Namespace),
		metrics.WithSubsystem(cfg.Metrics.Subsystem),
		metrics.WithHistogramBuckets(cfg.Metrics.Buckets),
	)
}

func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Store, error) {
	opts := []repository.Option{
		repository.WithNamespace(cfg.Namespace),
		repository.WithLogger(log.Named("repository")),
		repository.WithReconnectDelay(time.Duration(cfg.Store.ReconnectMS) * time.Millisecond),
	}
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		s, err := repository.OpenPostgres(ctx, cfg.Store.DatabaseURL, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return repository.NewMemoryStore(opts...), nil
	}
}
