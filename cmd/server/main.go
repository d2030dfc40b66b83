package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/robomsg/relay/internal/server"
)

func main() {
	// A .env file is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg, err := server.LoadConfig()
	if err != nil {
		panic(err)
	}

	log := server.NewLogger(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	srv := server.New(cfg, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			log.Fatal("server failed", zap.Error(err))
		}
		return
	}

	if err := srv.Shutdown(cfg.ShutdownTimeout); err != nil {
		log.Warn("shutdown incomplete", zap.Error(err))
	}
}
