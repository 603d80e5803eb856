package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	Vector  VectorConfig
	SQLite  SQLiteConfig
	Redis   RedisConfig
	LLM     LLMConfig
	Site    SiteConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type VectorConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
}

// SiteConfig is the site policy surface. It is loaded once at startup and
// passed by value into the components that need it.
type SiteConfig struct {
	AllowedFrontEndDomains []string
	Collections            map[string]CollectionPolicy
	IncludedLibraries      []string
	EnabledMediaTypes      []string
	QueriesPerUserPerDay   int
}

// CollectionPolicy carries the per-collection retrieval restrictions.
type CollectionPolicy struct {
	RestrictToAuthors []string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// HasCollection reports whether name is a configured collection.
func (s SiteConfig) HasCollection(name string) bool {
	_, ok := s.Collections[name]
	return ok
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/library-chat")

	viper.SetEnvPrefix("CHAT_API")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(config.Site.Collections) == 0 {
		config.Site.Collections = defaultCollections()
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 300)
	viper.SetDefault("server.bodyLimit", 1048576)

	viper.SetDefault("vector.endpoint", "localhost:19530")
	viper.SetDefault("vector.collectionName", "library_docs")
	viper.SetDefault("vector.vectorDim", 1536)

	viper.SetDefault("sqlite.path", "./data/chat.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("llm.model", "gpt-4o")
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-large")
	viper.SetDefault("llm.temperature", 0.3)
	viper.SetDefault("llm.maxTokens", 2048)
	viper.SetDefault("llm.timeoutSec", 120)

	viper.SetDefault("site.allowedFrontEndDomains", []string{"*.example.com"})
	viper.SetDefault("site.includedLibraries", []string{})
	viper.SetDefault("site.enabledMediaTypes", []string{"text", "audio", "youtube"})
	viper.SetDefault("site.queriesPerUserPerDay", 100)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}

func defaultCollections() map[string]CollectionPolicy {
	return map[string]CollectionPolicy{
		"master_swami": {
			RestrictToAuthors: []string{"Paramhansa Yogananda", "Swami Kriyananda"},
		},
		"whole_library": {},
	}
}
