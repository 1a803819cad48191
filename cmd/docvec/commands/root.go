package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/viant/docvec/bootstrap"
	"github.com/viant/docvec/collection"
	"github.com/viant/docvec/config"
)

var (
	// Global flags
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "docvec",
	Short: "Semantic document store",
	Long: `docvec - store text documents with their embeddings and search them by meaning.

Backends are chosen in a YAML configuration file (see --config). Without one,
documents live in memory for the duration of the command and are embedded with
the offline hashing embedder.

Examples:
  # Create a collection with an indexed field
  docvec -c docvec.yaml collections create imdb_reviews --dimension 384 --field sentiment

  # Insert JSON-lines payloads
  docvec -c docvec.yaml insert imdb_reviews -f reviews.jsonl

  # Search one or several collections
  docvec -c docvec.yaml search "a gripping thriller" --in imdb_reviews --in tv_reviews -k 5 --filter sentiment=positive`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("DOCVEC_CONFIG"), "configuration file (env DOCVEC_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override log.format (text, json)")
}

// loadConfig reads --config, or returns the defaults when it is not set.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if configPath == "" {
		cfg = config.Default()
	} else {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, cfg.Validate()
}

// openEnv loads the configuration and opens the store. Logs go to stderr so
// stdout carries only command output.
func openEnv(cmd *cobra.Command) (*bootstrap.Env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := bootstrap.NewLogger(cfg.Log, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	return bootstrap.Open(cmd.Context(), cfg, logger)
}

func openCollection(cmd *cobra.Command, name string) (*bootstrap.Env, *collection.Collection, error) {
	env, err := openEnv(cmd)
	if err != nil {
		return nil, nil, err
	}
	c, err := env.Store.Collection(name)
	if err != nil {
		_ = env.Close()
		return nil, nil, err
	}
	return env, c, nil
}

// printJSON writes v as indented JSON to the command output.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
