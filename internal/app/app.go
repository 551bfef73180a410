// Package app wires configuration, logging and the evaluation pipeline behind the
// reportjudge command line.
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"reportjudge/internal/config"
	"reportjudge/internal/httpx"
)

// cli holds the global flags and the logger shared by every subcommand.
type cli struct {
	configPath string
	verbose    bool
	logger     *zap.Logger
}

func Main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

// newRootCmd builds the command tree. A non-nil logger is used as is.
func newRootCmd(logger *zap.Logger) *cobra.Command {
	c := &cli{logger: logger}
	root := &cobra.Command{
		Use:   "reportjudge",
		Short: "Score generated research reports with an LLM judge",
		Long: `reportjudge evaluates a corpus of long-form reports.

Each report is scored for overall quality and for repetition between randomly
sampled section pairs. Progress is checkpointed so an interrupted batch resumes
where it stopped. The factcheck command verifies cited sentences against the
pages they cite.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.logger != nil {
				return nil
			}
			zcfg := zap.NewProductionConfig()
			if c.verbose {
				zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := zcfg.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "Config file (default config.yaml or $CONFIG_PATH)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newRunCmd(c), newFactcheckCmd(c))
	return root
}

// loadConfig reads the config file and applies the shared HTTP timeout.
func (c *cli) loadConfig() (config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	applied := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	c.logger.Info("config loaded",
		zap.String("provider", cfg.LLMProvider),
		zap.String("model", cfg.LLMModel),
		zap.String("checkpoint_backend", cfg.CheckpointBackend),
		zap.Int("repeat_nums", cfg.RepeatNums),
		zap.Int("pair_concurrency", cfg.PairConcurrency),
		zap.Duration("external_http_timeout", applied))
	return cfg, nil
}
