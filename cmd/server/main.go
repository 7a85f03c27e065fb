package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/knograph/knograph"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON)")
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	// Structured JSON logging.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var cfg knograph.Config
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			slog.Error("opening config", "error", err)
			os.Exit(1)
		}
		if err := json.NewDecoder(f).Decode(&cfg); err != nil {
			f.Close()
			slog.Error("parsing config", "error", err)
			os.Exit(1)
		}
		f.Close()
	}

	// Override from environment variables.
	if v := os.Getenv("KNOGRAPH_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	if v := os.Getenv("KNOGRAPH_EXTRACTION_PROVIDER"); v != "" {
		cfg.Extraction.Provider = v
	}
	if v := os.Getenv("KNOGRAPH_EXTRACTION_MODEL"); v != "" {
		cfg.Extraction.Model = v
	}
	if v := os.Getenv("KNOGRAPH_EXTRACTION_BASE_URL"); v != "" {
		cfg.Extraction.BaseURL = v
	}
	if v := os.Getenv("KNOGRAPH_EXTRACTION_API_KEY"); v != "" {
		cfg.Extraction.APIKey = v
	}
	if v := os.Getenv("KNOGRAPH_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("KNOGRAPH_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("KNOGRAPH_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("KNOGRAPH_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}

	// Fallback: the OpenAI key env var serves both providers.
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if cfg.Extraction.Provider == "openai" && cfg.Extraction.APIKey == "" {
			cfg.Extraction.APIKey = key
		}
		if cfg.Embedding.Provider == "openai" && cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = key
		}
	}

	apiKey := os.Getenv("KNOGRAPH_API_KEY")
	corsOrigins := os.Getenv("KNOGRAPH_CORS_ORIGINS")

	engine, err := knograph.New(cfg, knograph.Options{Logger: logger})
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	h := newHandler(engine)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /settings", h.handleGetSettings)
	mux.HandleFunc("PATCH /settings", h.handleUpdateSettings)

	mux.HandleFunc("GET /bases", h.handleListBases)
	mux.HandleFunc("POST /bases", h.handleCreateBase)
	mux.HandleFunc("GET /bases/{id}", h.handleGetBase)
	mux.HandleFunc("PATCH /bases/{id}", h.handleUpdateBase)
	mux.HandleFunc("DELETE /bases/{id}", h.handleDeleteBase)
	mux.HandleFunc("GET /bases/{id}/settings", h.handleGetBaseSettings)
	mux.HandleFunc("PATCH /bases/{id}/settings", h.handleUpdateBaseSettings)
	mux.HandleFunc("PUT /bases/{id}/tags", h.handleSetBaseTags)
	mux.HandleFunc("GET /bases/{id}/graph/stats", h.handleGraphStats)

	mux.HandleFunc("GET /tags", h.handleListTags)
	mux.HandleFunc("POST /tags", h.handleCreateTag)
	mux.HandleFunc("PATCH /tags/{id}", h.handleUpdateTag)
	mux.HandleFunc("DELETE /tags/{id}", h.handleDeleteTag)

	mux.HandleFunc("POST /documents", h.handleUpload)
	mux.HandleFunc("GET /documents", h.handleListDocuments)
	mux.HandleFunc("GET /documents/{id}", h.handleGetDocument)
	mux.HandleFunc("PUT /documents/{id}", h.handleUpdateDocument)
	mux.HandleFunc("PATCH /documents/{id}", h.handleUpdateMetadata)
	mux.HandleFunc("DELETE /documents/{id}", h.handleDeleteDocument)
	mux.HandleFunc("GET /documents/{id}/file", h.handleDownload)
	mux.HandleFunc("GET /documents/{id}/chunks", h.handleListChunks)
	mux.HandleFunc("GET /documents/{id}/graph/run", h.handleGraphRun)
	mux.HandleFunc("POST /documents/{id}/graph/refresh", h.handleGraphRefresh)
	mux.HandleFunc("GET /chunks/{id}", h.handleGetChunk)

	mux.HandleFunc("POST /graph/query", h.handleGraphQuery)
	mux.HandleFunc("GET /health", h.handleHealth)

	// Middleware chain: recovery -> cors -> auth -> logging -> mux
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = authMiddleware(apiKey, handler)
	handler = corsMiddleware(corsOrigins, handler)
	handler = recoveryMiddleware(handler)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // uploads with graph extraction can be long
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
