// Package config loads the runtime configuration from environment
// variables (and an optional config file) and validates it.
package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Database holds PostgreSQL connection parameters.
type Database struct {
	Host     string `validate:"required"`
	Port     int    `validate:"gt=0,lte=65535"`
	Name     string `validate:"required"`
	User     string `validate:"required"`
	Password string
	SSLMode  string
	MinConns int32 `validate:"gte=0"`
	MaxConns int32 `validate:"gte=0"`
}

// Crawler holds crawler tuning.
type Crawler struct {
	Enabled           bool
	WorkerBatchSize   int `validate:"gt=0"`
	DualCrawl         bool
	FetchMode         string `validate:"oneof=browser static"`
	TargetURL         string
	AllowedPrefix     string `validate:"required,url"`
	ContentSelector   string
	DelayBeforeReturn time.Duration
	PageTimeout       time.Duration
}

// Processor holds processor tuning.
type Processor struct {
	Enabled          bool
	ContentFetchSize int `validate:"gt=0"`
	StorageThreshold int `validate:"gt=0"`
	MinChunkLength   int `validate:"gt=0"`
}

// Embedding holds embedding provider settings.
type Embedding struct {
	Provider  string `validate:"oneof=local api"`
	Model     string `validate:"required"`
	Dimension int    `validate:"gt=0"`
	BaseURL   string
	APIKey    string
	KeysFile  string
}

// Config is the full runtime configuration.
type Config struct {
	Database  Database
	Crawler   Crawler
	Processor Processor
	Embedding Embedding
}

// env key bindings; the keys are viper lookup names, the values are the
// environment variables of the configuration surface.
var envBindings = map[string]string{
	"database.host":     "POSTGRES_HOST",
	"database.port":     "POSTGRES_PORT",
	"database.name":     "POSTGRES_DB",
	"database.user":     "POSTGRES_USER",
	"database.password": "POSTGRES_PASSWORD",
	"database.sslmode":  "POSTGRES_SSLMODE",
	"database.minconns": "POSTGRES_MIN_CONNS",
	"database.maxconns": "POSTGRES_MAX_CONNS",

	"crawler.enabled":           "ENABLE_CRAWLER",
	"crawler.workerbatchsize":   "WORKER_BATCH_SIZE",
	"crawler.dualcrawl":         "CRAWLER_DUAL_CRAWL_ENABLED",
	"crawler.fetchmode":         "CRAWLER_FETCH_MODE",
	"crawler.targeturl":         "TARGET_URL",
	"crawler.allowedprefix":     "CRAWLER_ALLOWED_PREFIX",
	"crawler.contentselector":   "CRAWLER_CONTENT_SELECTOR",
	"crawler.delaybeforereturn": "CRAWLER_DELAY_BEFORE_RETURN",
	"crawler.pagetimeout":       "CRAWLER_PAGE_TIMEOUT",

	"processor.enabled":          "ENABLE_PROCESSOR",
	"processor.contentfetchsize": "CONTENT_FETCH_SIZE",
	"processor.storagethreshold": "STORAGE_THRESHOLD",
	"processor.minchunklength":   "PROCESSOR_MIN_CHUNK_LENGTH",

	"embedding.provider":  "EMBEDDING_PROVIDER",
	"embedding.model":     "EMBEDDING_MODEL",
	"embedding.dimension": "EMBEDDING_DIM",
	"embedding.baseurl":   "EMBEDDING_BASE_URL",
	"embedding.apikey":    "EMBEDDING_API_KEY",
	"embedding.keysfile":  "EMBEDDING_API_KEYS_FILE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "prefer")
	v.SetDefault("database.minconns", 2)
	v.SetDefault("database.maxconns", 10)

	v.SetDefault("crawler.enabled", true)
	v.SetDefault("crawler.workerbatchsize", 5)
	v.SetDefault("crawler.dualcrawl", false)
	v.SetDefault("crawler.fetchmode", "browser")
	v.SetDefault("crawler.allowedprefix", "https://developer.apple.com/documentation/")
	v.SetDefault("crawler.contentselector", "#app-main")
	v.SetDefault("crawler.delaybeforereturn", "5s")
	v.SetDefault("crawler.pagetimeout", "5000ms")

	v.SetDefault("processor.enabled", true)
	v.SetDefault("processor.contentfetchsize", 50)
	v.SetDefault("processor.storagethreshold", 10)
	v.SetDefault("processor.minchunklength", 128)

	v.SetDefault("embedding.provider", "local")
	v.SetDefault("embedding.model", "qwen3-embedding:4b")
	v.SetDefault("embedding.dimension", 2560)
}

// Load reads configuration from the environment (and the config file
// viper already has loaded, if any) and validates it.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	cfg := &Config{
		Database: Database{
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			Name:     v.GetString("database.name"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			SSLMode:  v.GetString("database.sslmode"),
			MinConns: v.GetInt32("database.minconns"),
			MaxConns: v.GetInt32("database.maxconns"),
		},
		Crawler: Crawler{
			Enabled:           v.GetBool("crawler.enabled"),
			WorkerBatchSize:   v.GetInt("crawler.workerbatchsize"),
			DualCrawl:         v.GetBool("crawler.dualcrawl"),
			FetchMode:         v.GetString("crawler.fetchmode"),
			TargetURL:         v.GetString("crawler.targeturl"),
			AllowedPrefix:     v.GetString("crawler.allowedprefix"),
			ContentSelector:   v.GetString("crawler.contentselector"),
			DelayBeforeReturn: delaySeconds(v, "crawler.delaybeforereturn"),
			PageTimeout:       timeoutMillis(v, "crawler.pagetimeout"),
		},
		Processor: Processor{
			Enabled:          v.GetBool("processor.enabled"),
			ContentFetchSize: v.GetInt("processor.contentfetchsize"),
			StorageThreshold: v.GetInt("processor.storagethreshold"),
			MinChunkLength:   v.GetInt("processor.minchunklength"),
		},
		Embedding: Embedding{
			Provider:  v.GetString("embedding.provider"),
			Model:     v.GetString("embedding.model"),
			Dimension: v.GetInt("embedding.dimension"),
			BaseURL:   v.GetString("embedding.baseurl"),
			APIKey:    v.GetString("embedding.apikey"),
			KeysFile:  v.GetString("embedding.keysfile"),
		},
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Embedding.Provider == "api" && cfg.Embedding.APIKey == "" && cfg.Embedding.KeysFile == "" {
		return nil, fmt.Errorf("invalid configuration: api embedding provider needs EMBEDDING_API_KEY or EMBEDDING_API_KEYS_FILE")
	}

	return cfg, nil
}

// delaySeconds reads a duration that may be given as a bare number of
// seconds (the documented form) or as a Go duration string.
func delaySeconds(v *viper.Viper, key string) time.Duration {
	return parseDuration(v.GetString(key), time.Second)
}

// timeoutMillis reads a duration that may be given as a bare number of
// milliseconds (the documented form) or as a Go duration string.
func timeoutMillis(v *viper.Viper, key string) time.Duration {
	return parseDuration(v.GetString(key), time.Millisecond)
}

func parseDuration(raw string, unit time.Duration) time.Duration {
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * unit
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return 0
}
