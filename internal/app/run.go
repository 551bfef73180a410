package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"reportjudge/internal/artifact"
	"reportjudge/internal/checkpoint"
	"reportjudge/internal/config"
	"reportjudge/internal/corpus"
	"reportjudge/internal/evaluator"
	"reportjudge/internal/integrations/llm"
	"reportjudge/internal/notify"
	"reportjudge/internal/oracle"
	"reportjudge/internal/runner"
	"reportjudge/internal/schedule"
	"reportjudge/internal/section"
)

type runFlags struct {
	input           string
	output          string
	resume          bool
	clearCheckpoint bool
	schedule        string
}

func newRunCmd(c *cli) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate every report in a JSONL corpus",
		Long: `Run reads {"topic", "report"} lines from --input, scores each report and writes
one JSON artifact per report into --output. Reports already recorded in the
checkpoint are skipped unless --resume=false.

With --schedule (or the schedule config key) the batch runs once immediately and
then again at every cron activation, always resuming.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runBatch(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "Corpus JSONL file (required)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output directory for artifacts and the checkpoint (default output_dir)")
	cmd.Flags().BoolVar(&f.resume, "resume", true, "Skip reports already in the checkpoint")
	cmd.Flags().BoolVar(&f.clearCheckpoint, "clear-checkpoint", false, "Drop stored progress before starting")
	cmd.Flags().StringVar(&f.schedule, "schedule", "", "5-field cron expression for repeated runs")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func (c *cli) runBatch(ctx context.Context, f runFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if f.output != "" {
		cfg.OutputDir = f.output
	}
	if f.schedule != "" {
		if _, err := schedule.Parse(f.schedule); err != nil {
			return err
		}
		cfg.Schedule = f.schedule
	}

	if _, err := os.Stat(f.input); err != nil {
		return fmt.Errorf("corpus %s: %w", f.input, err)
	}

	pipeline, err := c.buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer pipeline.close()

	err = pipeline.runOnce(ctx, f.input, runner.Options{
		RunID:           uuid.NewString(),
		Resume:          f.resume,
		ClearCheckpoint: f.clearCheckpoint,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("run interrupted, progress is checkpointed: %w", err)
		}
		return err
	}
	if cfg.Schedule == "" {
		return nil
	}

	c.logger.Info("scheduled runs enabled", zap.String("schedule", cfg.Schedule), zap.String("timezone", cfg.Timezone))
	err = schedule.Loop(ctx, cfg.Schedule, cfg.Location, c.logger, func(ctx context.Context) {
		runErr := pipeline.runOnce(ctx, f.input, runner.Options{RunID: uuid.NewString(), Resume: true})
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			c.logger.Error("scheduled run failed", zap.Error(runErr))
		}
	})
	if errors.Is(err, context.Canceled) {
		c.logger.Info("scheduler stopped")
		return nil
	}
	return err
}

// pipeline is the fully wired evaluation stack for one process.
type pipeline struct {
	oracle   *oracle.Client
	runner   *runner.Runner
	store    checkpoint.Store
	notifier notify.Notifier
	logger   *zap.Logger
}

func (c *cli) buildPipeline(ctx context.Context, cfg config.Config) (*pipeline, error) {
	completer, err := llm.NewCompleter(ctx, cfg, c.logger)
	if err != nil {
		return nil, err
	}
	judge := oracle.New(completer, oracle.Options{
		MaxAttempts: cfg.OracleMaxAttempts,
		Backoff:     cfg.RetryBackoff(),
	}, c.logger)
	eval := evaluator.New(judge, evaluator.Options{
		RepeatNums:      cfg.RepeatNums,
		PairConcurrency: cfg.PairConcurrency,
		MinSectionChars: cfg.MinSectionChars,
	}, c.logger)

	sectioner, err := section.New(cfg.HeadingPattern)
	if err != nil {
		return nil, err
	}
	arts, err := artifact.Open(cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	store, err := checkpoint.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	c.logger.Info("pipeline ready",
		zap.String("provider", completer.Name()),
		zap.String("output_dir", arts.Dir()),
		zap.String("checkpoint", cfg.ResolvedCheckpointPath()))

	return &pipeline{
		oracle:   judge,
		runner:   runner.New(sectioner, eval, arts, store, cfg.ParagraphSkipThreshold, c.logger),
		store:    store,
		notifier: notify.FromConfig(cfg, c.logger),
		logger:   c.logger,
	}, nil
}

// runOnce reloads the corpus, runs one batch and posts its summary.
func (p *pipeline) runOnce(ctx context.Context, input string, opts runner.Options) error {
	items, err := corpus.Load(input)
	if err != nil {
		return err
	}
	stats, runErr := p.runner.Run(ctx, items, opts)

	usage := p.oracle.Usage()
	p.logger.Info("oracle usage",
		zap.String("run_id", opts.RunID),
		zap.Int("calls", p.oracle.Calls()),
		zap.Int64("tokens_in", usage.InputTokens),
		zap.Int64("tokens_out", usage.OutputTokens),
		zap.Int64("tokens_total", usage.TotalTokens()))

	summary := runner.FormatRunSummary(stats)
	p.logger.Info(summary, zap.String("run_id", opts.RunID))
	if err := p.notifier.Notify(context.WithoutCancel(ctx), summary); err != nil {
		p.logger.Warn("run summary not posted", zap.Error(err))
	}
	return runErr
}

func (p *pipeline) close() {
	if err := p.store.Close(); err != nil {
		p.logger.Warn("checkpoint close failed", zap.Error(err))
	}
}
