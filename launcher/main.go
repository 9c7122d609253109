package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"paperscout/internal/config"
	"paperscout/internal/logger"
	"paperscout/internal/supervisor"
)

// The launcher starts the backend API and the web frontend as child
// processes, waits for Ctrl+C, and shuts both down cleanly.
func main() {
	log := logger.New("launcher")

	cfg, err := config.LoadLauncher()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backendPath, backendArgs := splitCmd(cfg.BackendCmd)
	frontendPath, frontendArgs := splitCmd(cfg.FrontendCmd)

	sup := supervisor.New(log, cfg.ShutdownGrace,
		supervisor.Process{
			Name: "backend",
			Path: backendPath,
			Args: backendArgs,
			URL:  cfg.BackendURL,
		},
		supervisor.Process{
			Name: "frontend",
			Path: frontendPath,
			Args: frontendArgs,
			URL:  cfg.FrontendURL,
		},
	)

	if err := sup.Start(); err != nil {
		log.Error("start children", slog.Any("err", err))
		sup.Shutdown()
		sup.Wait()
		os.Exit(1)
	}

	log.Info("paperscout is up",
		slog.String("backend", cfg.BackendURL),
		slog.String("frontend", cfg.FrontendURL),
	)
	log.Info("press Ctrl+C to stop")

	// Exit when either the user interrupts or every child has gone away.
	done := make(chan struct{})
	go func() {
		sup.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case <-done:
		log.Warn("all children exited")
	}

	sup.Shutdown()
	sup.Wait()
	log.Info("launcher stopped")
}

// splitCmd separates a command string into the executable and its arguments.
func splitCmd(raw string) (string, []string) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return raw, nil
	}
	return fields[0], fields[1:]
}
