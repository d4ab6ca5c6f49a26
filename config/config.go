package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider identifiers shared by the embeddings and llm packages.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

type EmbeddingsConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type Config struct {
	// DataDir holds the aggregation output: documents.json, the plots/
	// directory and the local vector index file.
	DataDir string `yaml:"data_dir"`
	LogDir  string `yaml:"log_dir"`

	PostgresDSN string `yaml:"postgres_dsn"`

	OllamaHost    string `yaml:"ollama_host"`
	OpenAIAPIKey  string `yaml:"-"`
	OpenAIBaseURL string `yaml:"openai_base_url"`

	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	LLM        LLMConfig        `yaml:"llm"`

	// QueryTimeout bounds one full retrieve-and-generate call.
	QueryTimeout time.Duration `yaml:"-"`
	RetrievalK   int           `yaml:"retrieval_k"`

	// QueryTimeoutSecs is the YAML-facing form of QueryTimeout.
	QueryTimeoutSecs int `yaml:"query_timeout_secs"`
}

// Load builds the configuration from an optional YAML file (ASKBI_CONFIG,
// falling back to ./config.yaml when present) with environment variables
// taking precedence. A .env file in the working directory is honored.
// Credentials only ever come from the environment.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		DataDir:    "sales_data_statistics",
		LogDir:     "logs",
		OllamaHost: "http://localhost:11434",
		Embeddings: EmbeddingsConfig{
			Provider:  ProviderOpenAI,
			Model:     "text-embedding-3-small",
			Dimension: 1536,
		},
		LLM: LLMConfig{
			Provider: ProviderOpenAI,
			Model:    "gpt-4o-mini",
		},
		QueryTimeout: 60 * time.Second,
		RetrievalK:   6,
	}

	if path := configFilePath(); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			fmt.Fprintf(os.Stderr, "config file %s ignored: %v\n", path, err)
		}
	}
	if cfg.QueryTimeoutSecs > 0 {
		cfg.QueryTimeout = time.Duration(cfg.QueryTimeoutSecs) * time.Second
	}

	cfg.DataDir = getEnv("ASKBI_DATA_DIR", cfg.DataDir)
	cfg.LogDir = getEnv("ASKBI_LOG_DIR", cfg.LogDir)
	cfg.PostgresDSN = getEnv("POSTGRES_DSN", cfg.PostgresDSN)
	if cfg.PostgresDSN == "" {
		cfg.PostgresDSN = "postgres://localhost:5432/ask-bi?sslmode=disable"
	}
	cfg.OllamaHost = getEnv("OLLAMA_HOST", cfg.OllamaHost)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", "")
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.Embeddings.Provider = getEnv("ASKBI_EMBEDDING_PROVIDER", cfg.Embeddings.Provider)
	cfg.Embeddings.Model = getEnv("OPENAI_EMBEDDING_MODEL", cfg.Embeddings.Model)
	cfg.Embeddings.Dimension = getEnvInt("ASKBI_EMBEDDING_DIMENSION", cfg.Embeddings.Dimension)
	cfg.LLM.Provider = getEnv("ASKBI_LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.Model = getEnv("OPENAI_MODEL", cfg.LLM.Model)
	cfg.RetrievalK = getEnvInt("ASKBI_RETRIEVAL_K", cfg.RetrievalK)
	if secs := getEnvInt("ASKBI_QUERY_TIMEOUT_SECS", 0); secs > 0 {
		cfg.QueryTimeout = time.Duration(secs) * time.Second
	}

	return cfg
}

func configFilePath() string {
	if path := os.Getenv("ASKBI_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return ""
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
