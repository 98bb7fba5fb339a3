package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shells-above/swarmre/internal/application"
	"github.com/shells-above/swarmre/internal/infrastructure/config"
	"github.com/shells-above/swarmre/internal/infrastructure/logger"
)

const (
	appName    = "ngoclaw-swarm"
	appVersion = "0.2.0"
)

// main runs the orchestrator as a long-lived daemon: every agent configured
// under swarm.agents starts on its own task and the process blocks until
// they all finish or a shutdown signal arrives, mirroring the gateway's old
// "start everything, wait for SIGTERM" shape without the Telegram/HTTP/gRPC
// front doors that no longer apply here.
func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Printf("%s v%s\n", appName, appVersion)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	log, err := logger.NewLogger(logger.Config{
		Level:      "info",
		Format:     "json",
		OutputPath: "stdout",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting swarm orchestrator", zap.String("name", appName), zap.String("version", appVersion))

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := application.NewApp(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize application", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		app.Run(ctx)
		close(done)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
		<-done
	case <-done:
		log.Info("all agents finished")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := app.Stop(shutdownCtx); err != nil {
		log.Error("error during shutdown", zap.Error(err))
		os.Exit(1)
	}

	log.Info("application stopped successfully")
}

func printUsage() {
	fmt.Printf(`%s v%s

Usage:
  swarm             Start every configured agent and wait for completion
  swarm version     Show version
  swarm help        Show this help

Environment:
  NGOCLAW_*         Configuration overrides (see config.yaml)
`, appName, appVersion)
}
