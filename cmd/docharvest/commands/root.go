// Package commands implements the CLI commands for docharvest.
package commands

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "docharvest",
	Short: "Documentation ingestion pipeline for RAG corpora",
	Long: `Docharvest continuously crawls developer documentation, chunks and
embeds the content, and stores pages and vectors in PostgreSQL.

Two subsystems cooperate through the database: the crawler worker pool
fetches pages and discovers links, and the streamline processor turns
fresh content into embedded chunks. Either can run alone; multiple
instances can run against the same database.

Examples:
  # Run crawler and processor together
  docharvest run

  # Crawler only, seeded with a starting page
  TARGET_URL="https://developer.apple.com/documentation/swiftui" \
      ENABLE_PROCESSOR=false docharvest run

  # Processor only, against a remote embedding API
  ENABLE_CRAWLER=false EMBEDDING_PROVIDER=api \
      EMBEDDING_API_KEYS_FILE=config/api_keys.txt docharvest run`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default $HOME/.docharvest.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "only log errors")
	rootCmd.PersistentFlags().Bool("log-json", false, "log as JSON")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("log_json", rootCmd.PersistentFlags().Lookup("log-json"))
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".docharvest")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	// Config file is optional.
	_ = viper.ReadInConfig()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
