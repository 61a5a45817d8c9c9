package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/spf13/viper"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Environment   string              `mapstructure:"environment"`
	Server        ServerConfig        `mapstructure:"server"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Agent         AgentConfig         `mapstructure:"agent"`
	Tools         ToolsConfig         `mapstructure:"tools"`
	Memory        MemoryConfig        `mapstructure:"memory"`
	Knowledge     KnowledgeConfig     `mapstructure:"knowledge"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Cache         CacheConfig         `mapstructure:"cache"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LLMConfig 描述大模型相关配置。
type LLMConfig struct {
	Provider     string        `mapstructure:"provider"`
	Model        string        `mapstructure:"model"`
	APIKey       string        `mapstructure:"api_key"`
	AccessKey    string        `mapstructure:"access_key"`
	SecretKey    string        `mapstructure:"secret_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Region       string        `mapstructure:"region"`
	Temperature  float64       `mapstructure:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RetryMax     int           `mapstructure:"retry_max"`
	RetryMinWait time.Duration `mapstructure:"retry_min_wait"`
	RetryMaxWait time.Duration `mapstructure:"retry_max_wait"`
}

// AgentConfig tunes the orchestration stages.
type AgentConfig struct {
	PersonaID                string  `mapstructure:"persona_id"`
	IntentTemperature        float64 `mapstructure:"intent_temperature"`
	ToolSelectionTemperature float64 `mapstructure:"tool_selection_temperature"`
	SearchK                  int     `mapstructure:"search_k"`
	ComparisonK              int     `mapstructure:"comparison_k"`
	SearchHistoryMessages    int     `mapstructure:"search_history_messages"`
	AnswerHistoryMessages    int     `mapstructure:"answer_history_messages"`
}

// ToolsConfig holds extraction defaults and premium pricing inputs.
type ToolsConfig struct {
	DefaultAge       int     `mapstructure:"default_age"`
	DefaultCoverage  int     `mapstructure:"default_coverage"`
	DefaultTerm      int     `mapstructure:"default_term"`
	PremiumBaseRate  float64 `mapstructure:"premium_base_rate"`
	SmokerMultiplier float64 `mapstructure:"smoker_multiplier"`
	PremiumFormula   string  `mapstructure:"premium_formula"`
	CriteriaK        int     `mapstructure:"criteria_k"`
}

type MemoryConfig struct {
	Backend    string `mapstructure:"backend"`
	MaxHistory int    `mapstructure:"max_history"`
}

type KnowledgeConfig struct {
	Backend        string  `mapstructure:"backend"`
	Dir            string  `mapstructure:"dir"`
	IndexPath      string  `mapstructure:"index_path"`
	Collection     string  `mapstructure:"collection"`
	ChunkSize      int     `mapstructure:"chunk_size"`
	ChunkOverlap   int     `mapstructure:"chunk_overlap"`
	ScoreThreshold float64 `mapstructure:"score_threshold"`
	EmbeddingModel string  `mapstructure:"embedding_model"`
	EmbeddingKey   string  `mapstructure:"embedding_api_key"`
	IndexOnStart   bool    `mapstructure:"index_on_start"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type PostgresConfig struct {
	DSN          string        `mapstructure:"dsn"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	ConnMaxLife  time.Duration `mapstructure:"conn_max_lifetime"`
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Calls   int           `mapstructure:"calls"`
	Period  time.Duration `mapstructure:"period"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	ServiceName    string `mapstructure:"service_name"`
}

// Load 从配置文件与环境变量加载配置，环境变量优先。
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("LIFELINE_CONFIG"))
}

// LoadFrom reads an optional YAML file, then overlays environment variables.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindLegacyEnv(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	addr, err := normalizeAddr(cfg.Server.Addr)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "local")

	v.SetDefault("server.addr", "8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("llm.provider", "ark")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.access_key", "")
	v.SetDefault("llm.secret_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.region", "cn-beijing")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.retry_max", 3)
	v.SetDefault("llm.retry_min_wait", 2*time.Second)
	v.SetDefault("llm.retry_max_wait", 10*time.Second)

	v.SetDefault("agent.persona_id", "life-advisor")
	v.SetDefault("agent.intent_temperature", 0.0)
	v.SetDefault("agent.tool_selection_temperature", 0.0)
	v.SetDefault("agent.search_k", 2)
	v.SetDefault("agent.comparison_k", 4)
	v.SetDefault("agent.search_history_messages", 2)
	v.SetDefault("agent.answer_history_messages", 4)

	v.SetDefault("tools.default_age", 35)
	v.SetDefault("tools.default_coverage", 500000)
	v.SetDefault("tools.default_term", 20)
	v.SetDefault("tools.premium_base_rate", 0.05)
	v.SetDefault("tools.smoker_multiplier", 2.5)
	v.SetDefault("tools.premium_formula", "(coverage / 1000) * base_rate * smoker_factor")
	v.SetDefault("tools.criteria_k", 3)

	v.SetDefault("memory.backend", "memory")
	v.SetDefault("memory.max_history", 10)

	v.SetDefault("knowledge.backend", "bleve")
	v.SetDefault("knowledge.dir", "./knowledge_base")
	v.SetDefault("knowledge.index_path", "")
	v.SetDefault("knowledge.collection", "life_insurance")
	v.SetDefault("knowledge.chunk_size", 1000)
	v.SetDefault("knowledge.chunk_overlap", 200)
	v.SetDefault("knowledge.score_threshold", 0.5)
	v.SetDefault("knowledge.embedding_model", "text-embedding-3-small")
	v.SetDefault("knowledge.embedding_api_key", "")
	v.SetDefault("knowledge.index_on_start", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "lifeline")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("elasticsearch.addresses", []string{"http://localhost:9200"})
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("elasticsearch.index", "life-insurance-kb")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.max_size", 1000)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.calls", 60)
	v.SetDefault("rate_limit.period", time.Minute)

	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "console")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.jaeger_endpoint", "")
	v.SetDefault("observability.service_name", "lifeline")
}

// bindLegacyEnv keeps the short variable names used by existing deployments.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("server.addr", "SERVER_ADDR", "PORT")
	_ = v.BindEnv("llm.api_key", "LLM_API_KEY", "ARK_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.access_key", "LLM_ACCESS_KEY", "ARK_ACCESS_KEY")
	_ = v.BindEnv("llm.secret_key", "LLM_SECRET_KEY", "ARK_SECRET_KEY")
	_ = v.BindEnv("llm.base_url", "LLM_BASE_URL", "ARK_BASE_URL")
	_ = v.BindEnv("llm.model", "LLM_MODEL", "MODEL")
	_ = v.BindEnv("knowledge.embedding_api_key", "KNOWLEDGE_EMBEDDING_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("postgres.dsn", "POSTGRES_DSN", "DATABASE_URL")
}

// normalizeAddr 允许用户直接传入 "8080"、":8080" 或 "127.0.0.1:8080"。
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}
	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}
	if strings.Contains(port, ":") {
		return port, nil
	}
	return ":" + port, nil
}

func (c *Config) validate() error {
	switch c.LLM.Provider {
	case "ark", "openai":
	default:
		return fmt.Errorf("llm.provider must be ark or openai, got %q", c.LLM.Provider)
	}
	switch c.Memory.Backend {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("memory.backend must be memory, redis or postgres, got %q", c.Memory.Backend)
	}
	switch c.Knowledge.Backend {
	case "bleve", "chromem", "elasticsearch":
	default:
		return fmt.Errorf("knowledge.backend must be bleve, chromem or elasticsearch, got %q", c.Knowledge.Backend)
	}
	if c.Memory.Backend == "postgres" && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required when memory.backend=postgres")
	}
	if c.Agent.SearchK < 1 || c.Agent.ComparisonK < 1 {
		return fmt.Errorf("agent.search_k and agent.comparison_k must be positive")
	}
	if c.Knowledge.ChunkOverlap >= c.Knowledge.ChunkSize {
		return fmt.Errorf("knowledge.chunk_overlap must be smaller than knowledge.chunk_size")
	}
	if c.Memory.MaxHistory < 1 {
		c.Memory.MaxHistory = 1
	}
	if c.RateLimit.Calls < 1 {
		c.RateLimit.Calls = 1
	}
	return nil
}

// Enabled 表示是否提供了必需的模型凭证。
func (c LLMConfig) Enabled() bool {
	if c.Model == "" {
		return false
	}
	if c.Provider == "openai" {
		return c.APIKey != ""
	}
	return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c LLMConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	temperature := float32(c.Temperature)
	var maxTokens *int
	if c.MaxTokens > 0 {
		val := c.MaxTokens
		maxTokens = &val
	}

	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = "https://ark.cn-beijing.volces.com/api/v3"
	}

	var timeout *time.Duration
	if c.Timeout > 0 {
		t := c.Timeout
		timeout = &t
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     baseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
		Timeout:     timeout,
	}

	return ark.NewChatModel(ctx, cfg)
}
