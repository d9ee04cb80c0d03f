package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/modulith/modulith/internal/api"
	"github.com/modulith/modulith/internal/audit"
	"github.com/modulith/modulith/internal/config"
	"github.com/modulith/modulith/internal/conversion"
	"github.com/modulith/modulith/internal/db"
	"github.com/modulith/modulith/internal/domain"
	"github.com/modulith/modulith/internal/export"
	"github.com/modulith/modulith/internal/middleware"
	"github.com/modulith/modulith/internal/records"
	"github.com/modulith/modulith/internal/repository"
	"github.com/modulith/modulith/internal/schema"
	"github.com/modulith/modulith/internal/workflow"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	if err := db.RunMigrations(cfg.Database, "./migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create repositories
	moduleConfigRepo := repository.NewModuleConfigRepository(conn.Pool)
	recordRepo := repository.NewRecordRepository(conn.Pool)
	activityRepo := repository.NewActivityRepository(conn.Pool)
	workflowRepo := repository.NewWorkflowRepository(conn.Pool)
	executionRepo := repository.NewWorkflowExecutionRepository(conn.Pool)

	auditor := audit.NewLogEmitter()

	// Wire the engines. The workflow engine writes back through the record
	// facade, so the mutation sink is attached after both exist.
	registry := schema.NewRegistry(moduleConfigRepo)
	recordService := records.NewService(registry, recordRepo, activityRepo, auditor)
	workflowEngine := workflow.NewEngine(workflowRepo, executionRepo, recordService,
		workflow.Collaborators{}, auditor, workflow.Options{
			MaxDepth:      cfg.Server.WorkflowDepth,
			ActionTimeout: cfg.Server.WorkflowTimeout,
		})
	recordService.SetMutationSink(workflowEngine)

	conversionEngine := conversion.NewEngine(recordService, recordRepo, auditor, domain.BuiltinFlows()...)
	exportService := export.NewService(recordService, cfg.Server.ExportPageSize)

	handler := api.NewHandler(registry, recordService, conversionEngine, exportService,
		workflowRepo, executionRepo)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      corsHandler.Handler(middleware.LoggingMiddleware(handler)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
