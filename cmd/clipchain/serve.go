package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/satindergrewal/clipchain/internal/chain"
	"github.com/satindergrewal/clipchain/internal/clip"
	"github.com/satindergrewal/clipchain/internal/logging"
	"github.com/satindergrewal/clipchain/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the clip upload, playback and live recording server",
		RunE: func(cmd *cobra.Command, args []string) error {
			sigCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return ctx.serve(sigCtx)
		},
	}
}

func (c *commandContext) serve(ctx context.Context) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger := c.logger

	store, err := c.openStore()
	if err != nil {
		return err
	}

	index, err := chain.Open(ctx, cfg.IndexPath)
	if err != nil {
		return err
	}
	defer index.Close()

	// Watch before syncing so no change slips between the two.
	watcher, err := clip.NewWatcher(store, logging.NewComponentLogger(logger, "watcher"))
	if err != nil {
		return err
	}
	indexed, err := chain.Sync(ctx, index, store, logging.NewComponentLogger(logger, "chain"))
	if err != nil {
		return err
	}
	logger.Info("chain index ready", "clips", indexed, "path", index.Path())

	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Error("catalog watcher stopped", "error", err)
		}
	}()
	go chain.Follow(ctx, index, store, watcher.Events(), logging.NewComponentLogger(logger, "chain"))

	srv := server.New(store, index, server.Options{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		WaveformHeight: cfg.WaveformHeight,
		MonitorBuffer:  cfg.MonitorBuffer,
		STUNServer:     cfg.STUNServer,
	}, logging.NewComponentLogger(logger, "http"))
	go srv.Run(ctx)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		srv.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("clipchain live", "addr", addr, "clip_dir", store.Root(), "require_metadata", cfg.RequireMetadata)
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
