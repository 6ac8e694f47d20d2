// Command server runs the HTTP API and the HTTP+SSE MCP transport over one
// configured set of backing components.
package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"ragcore/internal/agent"
	"ragcore/internal/analytics"
	"ragcore/internal/chat"
	"ragcore/internal/config"
	"ragcore/internal/documents"
	"ragcore/internal/health"
	"ragcore/internal/httpapi"
	"ragcore/internal/llm/registry"
	"ragcore/internal/mcpserver"
	"ragcore/internal/metadatastore"
	"ragcore/internal/observability"
	"ragcore/internal/ollamaadmin"
	"ragcore/internal/rag/chunker"
	"ragcore/internal/rag/embedder"
	"ragcore/internal/rag/ingest"
	"ragcore/internal/rag/retrieval"
	"ragcore/internal/rag/vectorstore"
	"ragcore/internal/realtime"
	"ragcore/internal/version"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}
	observability.InitLogger("", "info")
	log.Info().Str("version", version.Version).Msg("ragcore starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	shutdownTracing := observability.InitTracing("ragcore-server")
	defer func() { _ = shutdownTracing(context.Background()) }()

	ctx := context.Background()

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

	pipeline := &ingest.Pipeline{
		Store:    store,
		Parsers:  documents.NewFactory(),
		Embedder: embed,
		Vectors:  vectors,
		ChunkOptions: chunker.Options{
			CharacterLimit:   cfg.ChunkCharacterLimit,
			OverlapTokens:    cfg.ChunkOverlap,
			MaxCodeFenceSize: cfg.MaxCodeFenceSize,
		},
	}

	searcher := &retrieval.Searcher{Store: store, Embedder: embed, Vectors: vectors}

	healthRegistry := health.NewRegistry(
		health.Checker{Name: "metadatastore", Check: store.Ping},
		health.Checker{Name: "vectorstore", Check: vectors.Ping},
		health.Checker{Name: "embedder", Check: embed.Ping},
	)

	hub := realtime.NewHub(cfg.Realtime.MaxQueue, newRedisClient(ctx, cfg.Realtime.RedisUrl), cfg.Realtime.RedisChannel)
	defer hub.Close()

	var analyticsReader *analytics.Reader
	analyticsReader = analytics.NewReader(store, cfg.Analytics.CacheTTL, 0, func() {
		aggs, err := analyticsReader.Aggregates(ctx)
		if err != nil {
			return
		}
		hub.Broadcast(realtime.Event{Type: "analytics.updated", Data: aggs})
	})

	ollama := ollamaadmin.New(cfg.OllamaBaseUrl)

	tools := agent.BuildDefaultTools(store, searcher, cfg.Retrieval.MinScore, analyticsReader, healthRegistry)
	toolRegistry, err := agent.NewRegistry(tools...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build tool registry")
	}

	providers := registry.New(cfg)

	orchestrator := &chat.Orchestrator{
		Store:     store,
		Providers: providers,
		Searcher:  searcher,
		Tools:     toolRegistry,
		Analytics: analyticsReader,
		Delimiter: cfg.Retrieval.Delimiter,
	}

	api := httpapi.NewServer(store, pipeline, orchestrator, healthRegistry, analyticsReader, ollama, cfg.HttpTransport.Cors)

	mcp := &mcpserver.Server{Tools: toolRegistry, Store: store, Health: healthRegistry, Ollama: ollama}
	sse := mcpserver.NewSSEServer(mcp, cfg.HttpTransport.Cors, time.Duration(cfg.HttpTransport.SessionTimeoutMinutes)*time.Minute)

	reapCtx, cancelReap := context.WithCancel(ctx)
	defer cancelReap()
	go runSessionReaper(reapCtx, sse)

	mux := http.NewServeMux()
	mux.Handle("/sse", sse)
	mux.Handle("/message", sse)
	mux.HandleFunc("/ws/analytics", hub.ServeWS)
	mux.Handle("/", api)

	addr := cfg.HttpTransport.Host + ":" + strconv.Itoa(cfg.HttpTransport.Port)
	log.Info().Str("addr", addr).Msg("ragcore server listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

// newRedisClient builds a client from url, pinging it once so a
// misconfigured URL fails fast at startup rather than on first publish.
// An empty url disables cross-process realtime fan-out; the hub still
// serves local subscribers.
func newRedisClient(ctx context.Context, url string) *redis.Client {
	if url == "" {
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid realtime redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to reach realtime redis")
	}
	return client
}

func runSessionReaper(ctx context.Context, sse *mcpserver.SSEServer) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sse.ReapIdleSessions(ctx, now)
		}
	}
}
