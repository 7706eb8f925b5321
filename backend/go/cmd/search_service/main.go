package main

import (
	"Neurologix/backend/go/internal/config"
	"Neurologix/backend/go/internal/search_service/api"
	"Neurologix/backend/go/internal/search_service/service"
	"Neurologix/backend/go/pkg/logger"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpserver "Neurologix/backend/go/pkg/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func main() {
	var configPath string
	rootCmd := &cobra.Command{
		Use:   "search_service",
		Short: "Serve natural-language questions over concussion assessment data",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			run(configPath)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config/config.yaml", "path to the YAML configuration file")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) {
	// 1. Load Configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize Logger
	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	appLogger := logger.New("SearchService", "", "")
	appLogger.Info(fmt.Sprintf("Starting %s %s...", cfg.App.Name, cfg.App.Version))

	// 3. Assemble the pipeline; fails fast on a dimension mismatch or unreachable store
	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	svc, err := service.New(startCtx, cfg, appLogger)
	cancel()
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to initialize search service: %v", err))
	}
	defer svc.Close()

	// 4. Mount the gin router inside the rate limited, circuit broken server
	gin.SetMode(gin.ReleaseMode)
	router := api.SetupRouter(api.NewHandler(svc.Orchestrator, appLogger, svc.HealthChecks()...), cfg.Auth, appLogger)

	srv, err := httpserver.NewServer(cfg, httpserver.WithLogger(appLogger))
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to create HTTP server: %v", err))
	}
	srv.Handle("/", router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	// 5. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			appLogger.Error(fmt.Sprintf("HTTP server stopped: %v", err))
		}
	}
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error(fmt.Sprintf("Server forced to shutdown: %v", err))
	}
	appLogger.Info("Server gracefully stopped")
}
