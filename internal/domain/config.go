package domain

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `koanf:"server"`

	// Tier determines feature availability
	Tier Tier `koanf:"tier"`

	// Component configurations
	Repository RepositoryConfig `koanf:"repository"`
	Cache      CacheConfig      `koanf:"cache"`
	EventBus   EventBusConfig   `koanf:"eventBus"`

	// Analysis inputs loaded once at process start
	Model         ModelConfig   `koanf:"model"`
	KnowledgeBase KBConfig      `koanf:"knowledgeBase"`
	Opinion       OpinionConfig `koanf:"opinion"`
	Audit         AuditConfig   `koanf:"audit"`

	// Observability
	Logging LoggingConfig `koanf:"logging"`
	Tracing TracingConfig `koanf:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `koanf:"host"`
	Port         int    `koanf:"port"`
	ReadTimeout  int    `koanf:"readTimeoutSecs"`  // seconds
	WriteTimeout int    `koanf:"writeTimeoutSecs"` // seconds
}

// ModelConfig locates the trained fraud classifier artifact.
type ModelConfig struct {
	// Path to the serialized classifier. Absence is a fatal, reported
	// condition for scoring, never a silent fallback.
	Path string `koanf:"path"`
}

// KBConfig locates the legal knowledge base.
type KBConfig struct {
	Path string `koanf:"path"`
}

// OpinionConfig drives the external narrative-opinion generator.
type OpinionConfig struct {
	// Command and arguments of the external generator; the prompt is
	// appended as the final argument.
	Command []string `koanf:"command"`

	// TimeoutSecs bounds a single generator invocation.
	TimeoutSecs int `koanf:"timeoutSecs"`
}

// AuditConfig tunes audit post-processing.
type AuditConfig struct {
	// AlertRiskPercent triggers an alert event when any transaction
	// scores at or above it.
	AlertRiskPercent float64 `koanf:"alertRiskPercent"`

	// CacheTTLSecs is how long computed audits stay cached by digest.
	CacheTTLSecs int `koanf:"cacheTtlSecs"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `koanf:"enabled"`
	ServiceName  string `koanf:"serviceName"`
	ExporterType string `koanf:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `koanf:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTLSecs: 300, // 5 minutes
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Model: ModelConfig{
			Path: "./fraud_model.json",
		},
		KnowledgeBase: KBConfig{
			Path: "./legal_kb.json",
		},
		Opinion: OpinionConfig{
			Command:     []string{"ollama", "run", "mistral"},
			TimeoutSecs: 20,
		},
		Audit: AuditConfig{
			AlertRiskPercent: 80.0,
			CacheTTLSecs:     600,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTLSecs:   300,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
