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

	"github.com/rockestra/rockestra/internal/bootstrap"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the flow execution engine and its ambient HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "rockestrad.yaml", "path to the process config YAML file")

	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := bootstrap.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := bootstrap.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap runtime: %w", err)
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			rt.Logger.Error(context.Background(), "error closing runtime", "error", cerr)
		}
	}()

	srv := &http.Server{
		Addr:    rt.Addr,
		Handler: rt.HTTPServer,
	}

	serveErr := make(chan error, 1)
	go func() {
		rt.Logger.Info(ctx, "listening", "addr", rt.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		rt.Logger.Info(context.Background(), "shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return <-serveErr
}
