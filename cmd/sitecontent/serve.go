package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sitecontent/internal/assets"
	"sitecontent/internal/core"
	"sitecontent/internal/observability"
	"sitecontent/internal/syncjob"
	"sitecontent/internal/upload"
	"sitecontent/internal/watch"
	"sitecontent/internal/web"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the content API, uploads and static assets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
}

func serve(ctx context.Context, opts *rootOptions) error {
	cfg, logger := opts.cfg, opts.logger
	rt, err := opts.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("content store close failed", "error", err)
		}
	}()

	metrics := observability.New()
	resolver, err := assets.New(rt.blobs,
		assets.WithDirs(cfg.Assets.Dirs...),
		assets.WithCacheSize(cfg.Assets.CacheSize),
		assets.WithLogger(logger),
		assets.WithObserver(func(src assets.Source) { metrics.ObserveAsset(string(src)) }),
	)
	if err != nil {
		return err
	}
	svc := core.NewService(rt.store,
		core.WithLogger(logger),
		core.WithMetrics(metrics),
		core.WithBlobStore(rt.blobs),
		core.WithBlobRemovedHook(func(string) { resolver.Invalidate() }),
	)
	uploader := upload.New(rt.blobs,
		upload.WithMaxSize(cfg.Upload.MaxSizeBytes),
		upload.WithBaseURL(cfg.BaseURL()),
		upload.WithLogger(logger),
		upload.WithStoredHook(func(string) {
			resolver.Invalidate()
			metrics.ObserveUpload()
		}),
	)
	jobs := syncjob.NewWorker(rt.store, rt.blobs,
		syncjob.WithMirrors(cfg.Storage.Mirrors...),
		syncjob.WithQueueSize(cfg.Sync.QueueSize),
		syncjob.WithLogger(logger),
	)

	if cfg.Auth.Enabled {
		if ok, err := svc.HasUsers(ctx); err == nil && !ok {
			logger.Warn("auth enabled but no users exist; create one with `sitecontent users add`")
		}
	}

	server := web.New(web.Deps{
		Service:     svc,
		Uploader:    uploader,
		Assets:      resolver,
		Jobs:        jobs,
		Metrics:     metrics,
		Logger:      logger,
		BlobDriver:  string(rt.blobs.Driver()),
		AuthEnabled: cfg.Auth.Enabled,
		Development: cfg.Development(),
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	jobs.Start()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", httpServer.Addr, "base_url", cfg.BaseURL(), "env", cfg.Env)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if reloader, ok := rt.store.(watch.Reloader); ok && cfg.Storage.Watch {
		w := watch.New(reloader, watch.DefaultDebounce, logger)
		g.Go(func() error { return w.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		err := httpServer.Shutdown(shutdownCtx)
		if stopErr := jobs.Stop(shutdownCtx); stopErr != nil {
			logger.Warn("sync worker stop failed", "error", stopErr)
		}
		return err
	})
	return g.Wait()
}
