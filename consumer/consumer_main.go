package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/harborcrm/crm-import-orchestrator/config"
	"github.com/harborcrm/crm-import-orchestrator/consumer/worker"
	infraPkg "github.com/harborcrm/crm-import-orchestrator/infra"
	"github.com/harborcrm/crm-import-orchestrator/repository"
	"github.com/joho/godotenv"
)

func main() {
	err := godotenv.Load("../staging.env")
	if err != nil {
		log.Println("No .env file found, continuing with environment variables")
	}

	cfg := config.NewConfig()
	infra := infraPkg.InitInfra(cfg)
	repo := repository.InitRepository(infra)

	// Initialize context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start Import Consumer (drives scheduled import jobs chunk by chunk)
	importConsumer := worker.NewImportConsumer(infra.RabbitMQ.Channel, cfg, infra, repo)
	if err := importConsumer.Start(ctx); err != nil {
		infra.Logger.ErrorWithContextf(ctx, err, "Failed to start Import consumer: %v", err)
		log.Fatalf("Failed to start Import consumer: %v", err)
	}

	// Start Export Consumer (builds and uploads export artifacts)
	exportConsumer := worker.NewExportConsumer(infra.RabbitMQ.Channel, cfg, infra, repo)
	if err := exportConsumer.Start(ctx); err != nil {
		infra.Logger.ErrorWithContextf(ctx, err, "Failed to start Export consumer: %v", err)
		log.Fatalf("Failed to start Export consumer: %v", err)
	}

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	infra.Logger.InfoWithContextf(ctx, "Shutting down consumer...")
	cancel() // Cancel context to stop consumers

	infra.Logger.InfoWithContextf(ctx, "Consumer exited properly")
}
