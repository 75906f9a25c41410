package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tyrowin/parley/internal/server"

	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := server.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := server.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	store, err := server.NewFileStore(cfg.Storage.DataDir)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}

	// A corrupt collection is fatal: starting with silently emptied history
	// or names would break the durability contract.
	presence, err := server.NewPresence(store, logger)
	if err != nil {
		logger.Fatal("load presence directory", zap.Error(err))
	}
	messages, err := server.NewMessageLog(store, logger)
	if err != nil {
		logger.Fatal("load message log", zap.Error(err))
	}

	manager := server.NewSessionManager(cfg, presence, messages, logger)
	go manager.Run()

	mux := server.SetupRoutes(manager)
	httpServer := server.CreateServer(cfg.Server.Port, mux)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.StartServer(httpServer, logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.Fatal("server failed", zap.Error(err))
	case sig := <-quit:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	if err := server.ShutdownServer(httpServer, shutdownTimeout, logger); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	if err := manager.Shutdown(shutdownTimeout); err != nil {
		logger.Warn("hub shutdown incomplete", zap.Error(err))
	}

	logger.Info("server stopped")
}
