package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kitbuilder587/completion-gateway/internal/alert"
	"github.com/kitbuilder587/completion-gateway/internal/api"
	"github.com/kitbuilder587/completion-gateway/internal/config"
	"github.com/kitbuilder587/completion-gateway/internal/llm/openrouter"
	"github.com/kitbuilder587/completion-gateway/internal/metrics"
	"github.com/kitbuilder587/completion-gateway/internal/service"
)

type options struct {
	envFile string
	addr    string
}

func rootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "completion-gateway",
		Short:         "HTTP gateway that forwards prompts to OpenRouter and alerts on failures",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.envFile, "env-file", ".env", "path to the .env file, re-read on reload")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address, overrides LISTEN_ADDR")

	return cmd
}

// gateway - собранный процесс, все зависимости в одном месте
type gateway struct {
	cfg        *config.Config
	logger     *zap.Logger
	store      *config.Store
	server     *api.Server
	reload     service.ReloadService
	dispatcher *alert.Dispatcher
}

func newGateway(opts *options, m *metrics.Metrics) (*gateway, error) {
	src := config.DotenvSource{Path: opts.envFile}

	cfg, err := config.Load(src)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	// без ключа не стартуем
	store, err := config.NewStore(src, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("startup config: %w", err)
	}

	client := openrouter.New(openrouter.Config{
		Model:   cfg.Upstream.Model,
		BaseURL: cfg.Upstream.BaseURL,
		Timeout: cfg.Upstream.Timeout,
	}, logger)

	dispatcher := alert.New(alert.Config{
		Timeout:       cfg.Alert.Timeout,
		MaxConcurrent: cfg.Alert.MaxConcurrent,
	}, logger, m)

	generate := service.NewGenerateService(service.GenerateServiceDeps{
		Config:    store,
		LLM:       client,
		Alerts:    dispatcher,
		Logger:    logger,
		Metrics:   m,
		MaxTokens: cfg.Upstream.MaxTokens,
	})
	reload := service.NewReloadService(store, src, logger, m)

	server := api.NewServer(api.Config{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, generate, reload, logger, m)

	logger.Info("gateway configured",
		zap.String("addr", cfg.Server.Addr),
		zap.String("model", cfg.Upstream.Model),
		zap.Int("max_tokens", cfg.Upstream.MaxTokens),
		zap.Duration("upstream_timeout", cfg.Upstream.Timeout),
	)

	return &gateway{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		server:     server,
		reload:     reload,
		dispatcher: dispatcher,
	}, nil
}

func run(ctx context.Context, opts *options) error {
	gw, err := newGateway(opts, metrics.New())
	if err != nil {
		return err
	}
	defer gw.logger.Sync()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	return gw.serve(ctx, sigCh)
}

// serve runs the HTTP server until ctx is done, a termination signal arrives
// or the listener fails. SIGHUP re-reads the config source in place.
func (gw *gateway) serve(ctx context.Context, sigCh <-chan os.Signal) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return gw.server.ListenAndServe(gctx)
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gw.shutdown()
			case sig := <-sigCh:
				if sig == syscall.SIGHUP {
					gw.logger.Info("SIGHUP received, reloading configuration")
					// ошибка уже залогирована, старый снапшот остается
					_ = gw.reload.Reload()
					continue
				}
				gw.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
				return gw.shutdown()
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// shutdown останавливает сервер и дожидается отправки алертов
func (gw *gateway) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), gw.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := gw.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := gw.dispatcher.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain alerts: %w", err))
	}

	gw.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
