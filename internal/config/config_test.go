package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func baseViper() *viper.Viper {
	v := viper.New()
	// Minimum viable database settings.
	v.Set("database.host", "localhost")
	v.Set("database.name", "docharvest")
	v.Set("database.user", "docharvest")
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(baseViper())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Crawler.WorkerBatchSize != 5 {
		t.Errorf("worker batch size default = %d, want 5", cfg.Crawler.WorkerBatchSize)
	}
	if cfg.Crawler.DualCrawl {
		t.Error("dual crawl should default to off")
	}
	if cfg.Crawler.DelayBeforeReturn != 5*time.Second {
		t.Errorf("delay default = %v, want 5s", cfg.Crawler.DelayBeforeReturn)
	}
	if cfg.Crawler.PageTimeout != 5000*time.Millisecond {
		t.Errorf("page timeout default = %v, want 5s", cfg.Crawler.PageTimeout)
	}
	if cfg.Processor.ContentFetchSize != 50 {
		t.Errorf("content fetch size default = %d, want 50", cfg.Processor.ContentFetchSize)
	}
	if cfg.Processor.StorageThreshold != 10 {
		t.Errorf("storage threshold default = %d, want 10", cfg.Processor.StorageThreshold)
	}
	if cfg.Processor.MinChunkLength != 128 {
		t.Errorf("min chunk length default = %d, want 128", cfg.Processor.MinChunkLength)
	}
	if cfg.Embedding.Provider != "local" {
		t.Errorf("embedding provider default = %q, want local", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Dimension != 2560 {
		t.Errorf("embedding dimension default = %d, want 2560", cfg.Embedding.Dimension)
	}
	if !strings.HasPrefix(cfg.Crawler.AllowedPrefix, "https://developer.apple.com/") {
		t.Errorf("unexpected allowed prefix default: %q", cfg.Crawler.AllowedPrefix)
	}
	if !cfg.Crawler.Enabled || !cfg.Processor.Enabled {
		t.Error("both subsystems should be enabled by default")
	}
}

func TestLoad_BareNumberDurations(t *testing.T) {
	v := baseViper()
	v.Set("crawler.delaybeforereturn", "2")
	v.Set("crawler.pagetimeout", "7000")

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Crawler.DelayBeforeReturn != 2*time.Second {
		t.Errorf("bare delay = %v, want 2s", cfg.Crawler.DelayBeforeReturn)
	}
	if cfg.Crawler.PageTimeout != 7*time.Second {
		t.Errorf("bare timeout = %v, want 7s", cfg.Crawler.PageTimeout)
	}
}

func TestLoad_MissingDatabaseHost(t *testing.T) {
	v := viper.New()
	v.Set("database.name", "docharvest")
	v.Set("database.user", "docharvest")

	if _, err := Load(v); err == nil {
		t.Error("expected validation error for missing database host")
	}
}

func TestLoad_BadEmbeddingProvider(t *testing.T) {
	v := baseViper()
	v.Set("embedding.provider", "quantum")

	if _, err := Load(v); err == nil {
		t.Error("expected validation error for unknown embedding provider")
	}
}

func TestLoad_APIProviderNeedsCredentials(t *testing.T) {
	v := baseViper()
	v.Set("embedding.provider", "api")

	if _, err := Load(v); err == nil {
		t.Error("expected error for api provider without credentials")
	}

	v.Set("embedding.apikey", "sk-test")
	if _, err := Load(v); err != nil {
		t.Errorf("api provider with key should load: %v", err)
	}
}
