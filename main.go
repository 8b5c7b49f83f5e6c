package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/medtour/chatbot-service/config"
	"github.com/medtour/chatbot-service/controller"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	configureLogging(cfg.Log)
	gin.SetMode(cfg.Server.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info := controller.Info{
		Version:     version,
		VectorStore: cfg.VectorStore.Type,
		Port:        cfg.Server.Port,
	}

	// The server starts even without an engine so health checks can report it.
	var engine *controller.Engine
	p, err := buildPipeline(ctx, cfg)
	if err != nil {
		log.Errorf("Failed to initialize the RAG engine: %v", err)
	} else {
		defer p.close()
		engine = p.engine()
		info.LanguageModel = p.llm.ModelName()
		info.EmbeddingModel = p.embedder.ModelName()

		log.Info("Loading reference documents...")
		report, err := p.ingestion.Ingest(ctx)
		if err != nil {
			log.Warnf("Document loading failed, starting with limited functionality: %v", err)
		} else {
			log.WithField("stored", report.Stored).Info("Chatbot Service ready.")
		}

		if cfg.Documents.Watch {
			go p.ingestion.WatchDirectory(ctx, cfg.Documents.Dir, cfg.WatchDebounce())
		}
	}

	router := controller.NewRouter(controller.NewRAGController(engine, info))
	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: router}

	go func() {
		log.Printf("Go Gin backend server starting on http://localhost:%s", cfg.Server.Port)
		log.Printf("Health check available at: http://localhost:%s/health", cfg.Server.Port)
		log.Printf("  POST http://localhost:%s/chat", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down Chatbot Service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
	}
}

func configureLogging(cfg config.LogConfig) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", cfg.Level)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
		return
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}
