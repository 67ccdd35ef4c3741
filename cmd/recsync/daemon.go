package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fentz26/recsync/internal/controlplane"
	"github.com/fentz26/recsync/internal/scheduler"
	"github.com/spf13/cobra"
)

var listenAddr string

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the recsync daemon",
	Long: `Starts the daemon, which sends queued writes to the recommendation service
in sequence order and serves the status API.`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the status API (overrides config)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.Listen
	if listenAddr != "" {
		addr = listenAddr
	}
	a.log.Info("starting recsync daemon", "client", a.client.Name(), "database", a.cfg.Database)

	d := a.cfg.Dispatcher
	sched := scheduler.New(a.store, a.pdr, a.client, &scheduler.Config{
		GlobalMax:      d.GlobalMax,
		ByOperation:    d.ByOperation,
		PollInterval:   d.PollInterval,
		MaxAttempts:    d.MaxAttempts,
		InitialBackoff: d.InitialBackoff,
		MaxBackoff:     d.MaxBackoff,
	}, a.log, a.metrics)
	sched.Start()

	server := controlplane.NewServer(a.service, addr, sched.GetStats, a.metrics.Handler(), a.log)

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		err := server.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		a.log.Info("received signal, shutting down", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			a.log.Error("status server failed", "error", err)
			sched.Stop()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.log.Error("status server shutdown", "error", err)
	}
	// In-flight dispatches finish and record their outcome before the
	// database is closed.
	sched.Stop()

	a.log.Info("shutdown complete")
	return nil
}
