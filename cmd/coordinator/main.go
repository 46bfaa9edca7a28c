package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreamware/graphps/internal/config"
	"github.com/dreamware/graphps/internal/coordinator"
	"github.com/dreamware/graphps/internal/logging"
)

var (
	configPath string
	listenAddr string
)

var rootCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Membership coordinator for graph servers",
	Long: `coordinator hands out ranks to graph servers as they register,
publishes the server list and shard assignments, and probes each server's
/health endpoint.`,
	SilenceUsage: true,
	RunE:         runCoordinator,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCoordinator(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadCoordinator(configPath, os.Getenv)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if cfg.ShardNum <= 0 {
		return fmt.Errorf("shard_num must be positive, got %d", cfg.ShardNum)
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, level, cfg.Log.Format).WithComponent("coordinator")

	srv := newServer(cfg.ShardNum, logger)
	srv.registry.SetMaxServers(cfg.MaxServers)
	monitor := coordinator.NewHealthMonitor(cfg.HealthInterval, cfg.HealthTimeout, logger)
	monitor.SetOnChange(srv.registry.SetStatus)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go monitor.Start(ctx, srv.registry.Servers)
	defer monitor.Stop()

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("coordinator listening", "addr", cfg.Listen, "shard_num", cfg.ShardNum)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = httpSrv.Shutdown(shutdownCtx)
	logger.Info("coordinator stopped")
	return nil
}
