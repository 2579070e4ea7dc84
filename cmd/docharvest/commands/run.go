package commands

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/docharvest/docharvest/internal/chunker"
	"github.com/docharvest/docharvest/internal/config"
	"github.com/docharvest/docharvest/internal/crawler"
	"github.com/docharvest/docharvest/internal/embed"
	"github.com/docharvest/docharvest/internal/fetch"
	"github.com/docharvest/docharvest/internal/logger"
	"github.com/docharvest/docharvest/internal/processor"
	"github.com/docharvest/docharvest/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ingestion pipeline until interrupted",
	Long: `Run the enabled subsystems (crawler, processor, or both) against the
configured database until SIGINT or SIGTERM.`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	logger.Init(logger.Options{
		Debug: viper.GetBool("debug"),
		Quiet: viper.GetBool("quiet"),
		JSON:  viper.GetBool("log_json"),
	})

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		logger.Error("configuration error", "error", err)
		return err
	}

	if !cfg.Crawler.Enabled && !cfg.Processor.Enabled {
		err := fmt.Errorf("both subsystems disabled, nothing to run")
		logger.Error("configuration error", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, store.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		Database:     cfg.Database.Name,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		SSLMode:      cfg.Database.SSLMode,
		MinConns:     cfg.Database.MinConns,
		MaxConns:     cfg.Database.MaxConns,
		EmbeddingDim: cfg.Embedding.Dimension,
	})
	if err != nil {
		logger.Error("database initialization failed", "error", err)
		return err
	}
	defer db.Close()

	var wg sync.WaitGroup

	if cfg.Crawler.Enabled {
		fetcher, err := newFetcher(cfg)
		if err != nil {
			logger.Error("fetcher initialization failed", "error", err)
			return err
		}
		defer fetcher.Close()

		c := crawler.New(db, fetcher, crawler.Config{
			Workers:         cfg.Crawler.WorkerBatchSize,
			DualCrawl:       cfg.Crawler.DualCrawl,
			SeedURL:         cfg.Crawler.TargetURL,
			AllowedPrefix:   cfg.Crawler.AllowedPrefix,
			ContentSelector: cfg.Crawler.ContentSelector,
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Run(ctx); err != nil {
				logger.Error("crawler exited with error", "error", err)
				stop()
			}
		}()
	}

	if cfg.Processor.Enabled {
		embedder, err := newEmbedder(cfg)
		if err != nil {
			logger.Error("embedder initialization failed", "error", err)
			return err
		}

		p := processor.New(db, chunker.New(), embedder, processor.Config{
			ContentFetchSize: cfg.Processor.ContentFetchSize,
			StorageThreshold: cfg.Processor.StorageThreshold,
			MinChunkLength:   cfg.Processor.MinChunkLength,
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Run(ctx); err != nil {
				logger.Error("processor exited with error", "error", err)
				stop()
			}
		}()
	}

	wg.Wait()
	logger.Info("pipeline shut down cleanly")
	return nil
}

// newFetcher builds the configured fetcher: the stealth browser pool by
// default, or the static HTTP fetcher for sources that render without
// JavaScript.
func newFetcher(cfg *config.Config) (fetch.Fetcher, error) {
	if cfg.Crawler.FetchMode == "static" {
		return fetch.NewStaticFetcher(fetch.StaticConfig{}), nil
	}
	return fetch.NewBrowserPool(fetch.PoolConfig{
		Size:              cfg.Crawler.WorkerBatchSize,
		PageTimeout:       cfg.Crawler.PageTimeout,
		DelayBeforeReturn: cfg.Crawler.DelayBeforeReturn,
	})
}

// newEmbedder builds the configured embedding provider.
func newEmbedder(cfg *config.Config) (embed.Embedder, error) {
	if cfg.Embedding.Provider == "api" {
		return embed.NewAPIProvider(embed.APIConfig{
			BaseURL:   cfg.Embedding.BaseURL,
			Model:     cfg.Embedding.Model,
			Dimension: cfg.Embedding.Dimension,
			APIKey:    cfg.Embedding.APIKey,
			KeysFile:  cfg.Embedding.KeysFile,
		})
	}
	return embed.NewLocalProvider(embed.LocalConfig{
		BaseURL:   cfg.Embedding.BaseURL,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
	})
}
