// Package cli wires the shortlist commands.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/shortlist/internal/adapters/gemini"
	"github.com/okian/shortlist/internal/config"
	"github.com/okian/shortlist/internal/domain/analysis"
	"github.com/okian/shortlist/internal/secrets"
	"github.com/okian/shortlist/pkg/logger"
)

const app = "shortlist"

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configFile string
	debug      bool
	json       bool
}

// factories builds external dependencies; tests replace them.
type factories struct {
	generator func(ctx context.Context, cfg *config.Config) (analysis.Generator, error)
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd returns the shortlist command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(factories{generator: geminiGenerator})
}

func newRootCmd(f factories) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           app,
		Short:         "shortlist analyzes CVs against role descriptions and ranks the candidates",
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "a YAML config file (default is $"+config.EnvFile+")")
	root.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "verbose/debug output")
	root.PersistentFlags().BoolVarP(&opts.json, "json", "j", false, "json format for logging")

	root.AddCommand(
		newServeCmd(opts, f),
		newAnalyzeCmd(opts, f),
		newSeedCmd(),
		newVersionCmd(),
	)
	return root
}

// setup loads configuration and initializes the global logger. Flags win
// over configured logging settings.
func (o *rootOptions) setup(ctx context.Context) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(ctx, o.configFile)
	if err != nil {
		return nil, nil, err
	}
	if o.json {
		cfg.LogJSON = true
	}
	if o.debug {
		cfg.LogLevel = "debug"
	}

	if err := logger.Init(cfg.LogJSON); err != nil {
		return nil, nil, fmt.Errorf("initialize logging: %w", err)
	}
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, log, nil
}

func geminiGenerator(ctx context.Context, cfg *config.Config) (analysis.Generator, error) {
	key, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.Gemini.APIKey,
		File:  cfg.Gemini.APIKeyFile,
	})
	if err != nil {
		return nil, err
	}
	return gemini.NewGenerator(ctx, key,
		gemini.WithModel(cfg.Gemini.Model),
		gemini.WithTemperature(cfg.Gemini.Temperature),
		gemini.WithTimeout(time.Duration(cfg.Gemini.TimeoutMS)*time.Millisecond),
	)
}
