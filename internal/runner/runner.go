// Package runner walks a corpus, evaluates each report once and records progress so an
// interrupted batch resumes where it stopped.
package runner

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"reportjudge/internal/checkpoint"
	"reportjudge/internal/config"
	"reportjudge/internal/domain"
	"reportjudge/internal/section"
)

// maxSummaryErrors caps how many per-item errors the run summary carries.
const maxSummaryErrors = 10

type Evaluator interface {
	Evaluate(ctx context.Context, runID string, report domain.Report, sections []domain.Section) (domain.EvaluationRecord, error)
}

type ArtifactWriter interface {
	Write(id string, rec domain.EvaluationRecord) (string, error)
	Exists(id string) bool
}

type Options struct {
	RunID string
	// Resume skips reports already in the checkpoint. Evaluated reports are marked either way.
	Resume bool
	// ClearCheckpoint drops stored progress before the first item.
	ClearCheckpoint bool
}

type Runner struct {
	sectioner     *section.Sectioner
	evaluator     Evaluator
	artifacts     ArtifactWriter
	checkpoint    checkpoint.Store
	paragraphSkip int
	logger        *zap.Logger
}

// New builds a Runner. Reports with at most paragraphSkip paragraphs are skipped; a
// negative value uses the default threshold.
func New(sectioner *section.Sectioner, evaluator Evaluator, artifacts ArtifactWriter, store checkpoint.Store, paragraphSkip int, logger *zap.Logger) *Runner {
	if sectioner == nil {
		sectioner = section.Default()
	}
	if paragraphSkip < 0 {
		paragraphSkip = config.DefaultParagraphSkip
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		sectioner:     sectioner,
		evaluator:     evaluator,
		artifacts:     artifacts,
		checkpoint:    store,
		paragraphSkip: paragraphSkip,
		logger:        logger,
	}
}

// Run processes items in order. Per-item failures are counted and logged; the returned
// error is set only when the run could not start or ctx was cancelled.
func (r *Runner) Run(ctx context.Context, items []domain.CorpusItem, opts Options) (domain.RunStats, error) {
	stats := domain.RunStats{RunID: opts.RunID, Total: len(items)}
	log := r.logger.With(zap.String("run_id", opts.RunID))

	if opts.ClearCheckpoint {
		if err := r.checkpoint.Clear(ctx); err != nil {
			return stats, fmt.Errorf("clear checkpoint: %w", err)
		}
		log.Info("checkpoint cleared")
	}
	snap, err := r.checkpoint.Snapshot(ctx)
	if err != nil {
		return stats, fmt.Errorf("read checkpoint: %w", err)
	}
	log.Info("run started",
		zap.Int("items", len(items)),
		zap.Bool("resume", opts.Resume),
		zap.Int("processed", len(snap.ProcessedIDs)),
		zap.Int("current_index", snap.CurrentIndex))

	for idx, item := range items {
		if err := ctx.Err(); err != nil {
			log.Warn("run interrupted", zap.Int("index", idx), zap.Error(err))
			return stats, err
		}
		r.processItem(ctx, idx, item, opts, &stats)
	}

	log.Info("run complete",
		zap.Int("evaluated", stats.Evaluated),
		zap.Int("already_processed", stats.AlreadyProcessed),
		zap.Int("skipped_invalid", stats.SkippedInvalid),
		zap.Int("malformed", stats.Malformed),
		zap.Int("failed", stats.Failed),
		zap.Int("persist_failed", stats.PersistFailed))
	return stats, nil
}

func (r *Runner) processItem(ctx context.Context, idx int, item domain.CorpusItem, opts Options, stats *domain.RunStats) {
	report := domain.NewReport(item)
	log := r.logger.With(zap.String("run_id", opts.RunID), zap.String("report_id", report.ID), zap.Int("index", idx))

	if opts.Resume {
		done, err := r.checkpoint.Has(ctx, report.ID)
		if err != nil {
			log.Error("checkpoint lookup failed", zap.Error(err))
			stats.Failed++
			addError(stats, report.ID, err)
			return
		}
		if done {
			log.Debug("already processed")
			stats.AlreadyProcessed++
			return
		}
	}

	if n := len(section.SplitParagraphs(report.RawText)); n <= r.paragraphSkip {
		log.Info("skipping report with too few paragraphs", zap.Int("paragraphs", n))
		stats.SkippedInvalid++
		return
	}

	sections, err := r.sectioner.Split(report.RawText)
	if err != nil {
		log.Warn("skipping malformed report", zap.Error(err))
		stats.Malformed++
		return
	}

	rec, err := r.evaluator.Evaluate(ctx, opts.RunID, report, sections)
	if err != nil {
		log.Warn("evaluation failed", zap.Error(err))
		stats.Failed++
		addError(stats, report.ID, err)
		return
	}

	// An artifact without a checkpoint entry is left over from an interrupted run.
	replaced := r.artifacts.Exists(report.ID)
	if replaced && opts.Resume {
		log.Info("replacing artifact from an interrupted run")
	}
	path, err := r.artifacts.Write(report.ID, rec)
	if err != nil {
		log.Error("artifact write failed", zap.Error(err))
		stats.PersistFailed++
		addError(stats, report.ID, err)
		return
	}
	// Finished work is recorded even if the run is being cancelled.
	if err := r.checkpoint.MarkProcessed(context.WithoutCancel(ctx), report.ID, idx, stats.Total); err != nil {
		log.Error("checkpoint update failed", zap.String("artifact", path), zap.Error(err))
		stats.PersistFailed++
		addError(stats, report.ID, err)
		return
	}
	stats.Evaluated++
	log.Info("report persisted", zap.String("artifact", path), zap.Bool("replaced", replaced))
}

func addError(stats *domain.RunStats, id string, err error) {
	if len(stats.Errors) >= maxSummaryErrors {
		return
	}
	stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", id, err))
}

// FormatRunSummary returns a human-readable summary of a RunStats.
func FormatRunSummary(stats domain.RunStats) string {
	if stats.Total == 0 {
		return "Corpus is empty, nothing to evaluate."
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("%d evaluated", stats.Evaluated))
	if stats.AlreadyProcessed > 0 {
		parts = append(parts, fmt.Sprintf("%d already processed", stats.AlreadyProcessed))
	}
	if stats.SkippedInvalid > 0 {
		parts = append(parts, fmt.Sprintf("%d too short", stats.SkippedInvalid))
	}
	if stats.Malformed > 0 {
		parts = append(parts, fmt.Sprintf("%d malformed", stats.Malformed))
	}
	if stats.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", stats.Failed))
	}
	if stats.PersistFailed > 0 {
		parts = append(parts, fmt.Sprintf("%d not saved", stats.PersistFailed))
	}

	msg := fmt.Sprintf("Processed %d reports: %s", stats.Total, strings.Join(parts, ", "))
	if stats.RunID != "" {
		msg += fmt.Sprintf(" (run %s)", stats.RunID)
	}
	msg += "."
	if len(stats.Errors) > 0 {
		msg += fmt.Sprintf("\nErrors:\n%s", strings.Join(stats.Errors, "\n"))
	}
	return msg
}
