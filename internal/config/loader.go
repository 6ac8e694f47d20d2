package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load resolves the configuration: a config.yaml (optional, searched in the
// working directory and /etc/ragcore) merged with a .env file, then process
// environment variables, which win over both. Defaults are applied for any
// key left unset, matching the stable defaults named in the external
// interface contract.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/ragcore")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(envReplacer{})

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config: read config file: %w", err)
		}
	}

	cfg := Config{
		DatabasePath: v.GetString("databasepath"),

		VectorStore: VectorStoreConfig{
			Provider: getStringDefault(v, "vectorstore.provider", "Qdrant"),
			Qdrant: QdrantConfig{
				Host:     getStringDefault(v, "vectorstore.qdrant.host", "localhost"),
				GRPCPort: getIntDefault(v, "vectorstore.qdrant.port", 6334),
				RESTPort: getIntDefault(v, "vectorstore.qdrant.healthport", 6333),
			},
			Mongo: MongoConfig{
				URI:       v.GetString("vectorstore.mongodb.uri"),
				Database:  getStringDefault(v, "vectorstore.mongodb.database", "ragcore"),
				IndexName: getStringDefault(v, "vectorstore.mongodb.indexname", "vector_index"),
			},
		},

		OllamaBaseUrl:        getStringDefault(v, "ollamabaseurl", "http://localhost:11434"),
		EmbeddingProvider:    getStringDefault(v, "embeddingprovider", "ollama"),
		OllamaEmbeddingModel: getStringDefault(v, "ollamaembeddingmodel", "nomic-embed-text"),
		EmbeddingBatchSize:   getIntDefault(v, "embeddingbatchsize", 16),

		ChunkCharacterLimit: getIntDefault(v, "chunkcharacterlimit", 1200),
		ChunkOverlap:        getIntDefault(v, "chunkoverlap", 200),
		MaxCodeFenceSize:    getIntDefault(v, "maxcodefencesize", 4000),

		SystemPrompt:           getStringDefault(v, "systemprompt", defaultSystemPrompt),
		SystemPromptWithCoding: getStringDefault(v, "systempromptwithcoding", defaultSystemPromptCoding),
		Temperature:            getFloatDefault(v, "temperature", 0.7),
		ChatMaxTurns:           getIntDefault(v, "chatmaxturns", 10),
		AgentMaxIterations:     getIntDefault(v, "agentmaxiterations", 5),

		Retrieval: RetrievalConfig{
			K:         getIntDefault(v, "retrieval.k", 8),
			MinScore:  getFloatDefault(v, "retrieval.minscore", 0.6),
			Delimiter: getStringDefault(v, "retrieval.delimiter", "\n---\n"),
		},

		HttpTransport: HttpTransportConfig{
			Host:                  getStringDefault(v, "httptransport.host", "0.0.0.0"),
			Port:                  getIntDefault(v, "httptransport.port", 8085),
			SessionTimeoutMinutes: getIntDefault(v, "httptransport.sessiontimeoutminutes", 30),
			Cors: CorsConfig{
				Enabled:          v.GetBool("httptransport.cors.enabled"),
				AllowedOrigins:   v.GetStringSlice("httptransport.cors.allowedorigins"),
				AllowCredentials: v.GetBool("httptransport.cors.allowcredentials"),
			},
		},

		OAuth: OAuthConfig{
			Enabled:                v.GetBool("oauth.enabled"),
			AuthorizationServerUrl: v.GetString("oauth.authorizationserverurl"),
			RequiredScopes:         v.GetStringSlice("oauth.requiredscopes"),
		},

		Realtime: RealtimeConfig{
			MaxQueue:     getIntDefault(v, "realtime.maxqueue", 256),
			RedisUrl:     v.GetString("realtime.redisurl"),
			RedisChannel: getStringDefault(v, "realtime.redischannel", "ragcore:analytics"),
		},

		Analytics: AnalyticsConfig{
			CacheTTL: getDurationDefault(v, "analytics.cachettlseconds", 30*time.Second),
		},

		Timeouts: TimeoutConfig{
			Embedding:          getDurationDefault(v, "timeouts.embeddingseconds", 30*time.Second),
			VectorSearch:       getDurationDefault(v, "timeouts.vectorsearchseconds", 10*time.Second),
			ProviderCompletion: getDurationDefault(v, "timeouts.providercompletionseconds", 120*time.Second),
			StreamKeepAlive:    getDurationDefault(v, "timeouts.streamkeepaliveseconds", 15*time.Second),
		},

		SettingsPassphrase: v.GetString("settingspassphrase"),

		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
	}

	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(appDataDir(), "knowledge.db")
	}

	return cfg, nil
}

// envReplacer maps CONFIG_SECTION_KEY style env vars onto the dotted viper
// keys used above (e.g. VECTORSTORE_PROVIDER -> vectorstore.provider).
type envReplacer struct{}

func (envReplacer) Replace(s string) string { return strings.ReplaceAll(s, ".", "_") }

func getStringDefault(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		if s := v.GetString(key); s != "" {
			return s
		}
	}
	return def
}

func getIntDefault(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		return v.GetInt(key)
	}
	return def
}

func getFloatDefault(v *viper.Viper, key string, def float64) float64 {
	if v.IsSet(key) {
		return v.GetFloat64(key)
	}
	return def
}

func getDurationDefault(v *viper.Viper, key string, def time.Duration) time.Duration {
	if v.IsSet(key) {
		return time.Duration(v.GetInt(key)) * time.Second
	}
	return def
}

func statContainerMarker() (os.FileInfo, error) {
	return os.Stat("/.dockerenv")
}

func userAppDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ragcore"), nil
}

const defaultSystemPrompt = "You are a helpful assistant answering questions using the supplied knowledge base context when present."

const defaultSystemPromptCoding = defaultSystemPrompt + " When the user asks about code, answer with precise, runnable examples and explain any non-obvious tradeoffs."
