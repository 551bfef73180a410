package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"reportjudge/internal/factcheck"
	"reportjudge/internal/integrations/llm"
	"reportjudge/internal/oracle"
)

type factcheckFlags struct {
	input    string
	output   string
	provider string
	task     string
}

func newFactcheckCmd(c *cli) *cobra.Command {
	var f factcheckFlags
	cmd := &cobra.Command{
		Use:   "factcheck",
		Short: "Verify cited sentences against the pages they cite",
		Long: `Factcheck streams JSONL records from --input to --output.

  judge   {url: {"contexts": [...]}} -> one {url, context, label} line per context
  scrape  {url: {...}} -> the same record with the page markdown under "md"
  cited   corpus {"topic", "report"} lines -> {report_id, topic, sentences}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runFactcheck(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "Input JSONL file (required)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "-", "Output JSONL file, - for stdout")
	cmd.Flags().StringVar(&f.provider, "provider", "", "Scraper: jina or firecrawl (default scrape_provider)")
	cmd.Flags().StringVar(&f.task, "task", factcheck.TaskJudge, "Task: judge, scrape or cited")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func (c *cli) runFactcheck(ctx context.Context, f factcheckFlags) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	opts := factcheck.Options{Task: f.task, Logger: c.logger}
	switch f.task {
	case factcheck.TaskJudge, factcheck.TaskScrape:
		fetcher, err := factcheck.NewFetcher(cfg, f.provider)
		if err != nil {
			return err
		}
		opts.Fetcher = fetcher
	case factcheck.TaskCited:
	default:
		return fmt.Errorf("unsupported task %q", f.task)
	}
	var client *oracle.Client
	if f.task == factcheck.TaskJudge {
		completer, err := llm.NewCompleter(ctx, cfg, c.logger)
		if err != nil {
			return err
		}
		client = oracle.New(completer, oracle.Options{
			MaxAttempts: cfg.OracleMaxAttempts,
			Backoff:     cfg.RetryBackoff(),
		}, c.logger)
		opts.Verifier = client
	}

	in, err := os.Open(f.input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	var out io.Writer = os.Stdout
	if f.output != "" && f.output != "-" {
		file, err := os.Create(f.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer func() {
			if cerr := file.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close output: %w", cerr)
			}
		}()
		out = file
	}

	stats, err := factcheck.Run(ctx, in, out, opts)
	if err != nil {
		return err
	}
	fields := []zap.Field{
		zap.String("task", f.task),
		zap.Int("lines", stats.Lines),
		zap.Int("judged", stats.Judged),
		zap.Int("judge_errors", stats.JudgeErrors),
		zap.Int("fetch_errors", stats.FetchErrors),
		zap.Int("parse_errors", stats.ParseErrors),
	}
	if client != nil {
		usage := client.Usage()
		fields = append(fields, zap.Int64("tokens_in", usage.InputTokens), zap.Int64("tokens_out", usage.OutputTokens),
			zap.Int64("tokens_total", usage.TotalTokens()))
	}
	c.logger.Info("factcheck finished", fields...)
	return nil
}
