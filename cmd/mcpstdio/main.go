// Command mcpstdio runs the MCP server over the stdio transport, for
// clients that launch it as a subprocess rather than connecting over HTTP.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"ragcore/internal/agent"
	"ragcore/internal/analytics"
	"ragcore/internal/config"
	"ragcore/internal/health"
	"ragcore/internal/mcpserver"
	"ragcore/internal/metadatastore"
	"ragcore/internal/observability"
	"ragcore/internal/ollamaadmin"
	"ragcore/internal/rag/embedder"
	"ragcore/internal/rag/retrieval"
	"ragcore/internal/rag/vectorstore"
	"ragcore/internal/version"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}
	// A log file, not stdout, since stdout carries the JSON-RPC stream.
	observability.InitLogger("mcpstdio.log", "info")
	log.Info().Str("version", version.Version).Msg("ragcore mcpstdio starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := metadatastore.Open(cfg.DatabasePath, cfg.SettingsPassphrase)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open metadata store")
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate metadata store")
	}

	embed, err := embedder.NewFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build embedder")
	}

	vectors, err := vectorstore.NewFromConfig(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build vector store")
	}

	searcher := &retrieval.Searcher{Store: store, Embedder: embed, Vectors: vectors}

	healthRegistry := health.NewRegistry(
		health.Checker{Name: "metadatastore", Check: store.Ping},
		health.Checker{Name: "vectorstore", Check: vectors.Ping},
		health.Checker{Name: "embedder", Check: embed.Ping},
	)

	analyticsReader := analytics.NewReader(store, cfg.Analytics.CacheTTL, 0, nil)
	ollama := ollamaadmin.New(cfg.OllamaBaseUrl)

	tools := agent.BuildDefaultTools(store, searcher, cfg.Retrieval.MinScore, analyticsReader, healthRegistry)
	toolRegistry, err := agent.NewRegistry(tools...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build tool registry")
	}

	mcp := &mcpserver.Server{Tools: toolRegistry, Store: store, Health: healthRegistry, Ollama: ollama}

	log.Info().Msg("ragcore mcpstdio serving on stdin/stdout")
	if err := mcp.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("stdio transport failed")
	}
}
