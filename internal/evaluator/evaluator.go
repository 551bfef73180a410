// Package evaluator turns one sectioned report into an EvaluationRecord.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"reportjudge/internal/config"
	"reportjudge/internal/domain"
	"reportjudge/internal/oracle"
	"reportjudge/internal/sampling"
)

var (
	ErrQualityUnavailable = errors.New("quality judgment unavailable")
	ErrNoPairScores       = errors.New("no section pair could be scored")
)

// Judge is the subset of the oracle client the evaluator needs.
type Judge interface {
	Quality(ctx context.Context, topic, report string) oracle.Answer[domain.QualityJudgment]
	Repetition(ctx context.Context, passageA, passageB string) oracle.Answer[domain.RepetitionJudgment]
}

type Options struct {
	RepeatNums      int
	PairConcurrency int
	// MinSectionChars is the eligibility length floor. Zero disables it; negative uses
	// the default.
	MinSectionChars int
	// Rand drives pair sampling. Nil uses a time-seeded source per report.
	Rand *rand.Rand
	Now  func() time.Time
}

type Evaluator struct {
	judge  Judge
	opts   Options
	logger *zap.Logger
}

func New(judge Judge, opts Options, logger *zap.Logger) *Evaluator {
	if opts.RepeatNums <= 0 {
		opts.RepeatNums = config.DefaultRepeatNums
	}
	if opts.PairConcurrency <= 0 {
		opts.PairConcurrency = config.DefaultPairConcurrency
	}
	if opts.MinSectionChars < 0 {
		opts.MinSectionChars = config.DefaultMinSectionChars
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{judge: judge, opts: opts, logger: logger}
}

// Evaluate scores report quality, then the repetition of sampled section pairs.
// It fails with ErrQualityUnavailable or ErrNoPairScores when the record would be incomplete.
func (e *Evaluator) Evaluate(ctx context.Context, runID string, report domain.Report, sections []domain.Section) (domain.EvaluationRecord, error) {
	log := e.logger.With(zap.String("report_id", report.ID))

	quality := e.judge.Quality(ctx, report.Topic, report.RawText)
	if !quality.OK {
		return domain.EvaluationRecord{}, fmt.Errorf("%w: %w", ErrQualityUnavailable, quality.Err)
	}

	eligible := sampling.Eligible(sections, sampling.Filter{MinChars: e.opts.MinSectionChars})
	pairs := sampling.Pairs(len(eligible), e.opts.RepeatNums, e.opts.Rand)
	if len(pairs) == 0 {
		log.Info("nothing to compare", zap.Int("sections", len(sections)), zap.Int("eligible", len(eligible)))
		return domain.EvaluationRecord{}, fmt.Errorf("%w: %d of %d sections eligible", ErrNoPairScores, len(eligible), len(sections))
	}

	results := make([]domain.PairResult, len(pairs))
	scored := make([]bool, len(pairs))
	var g errgroup.Group
	g.SetLimit(e.opts.PairConcurrency)
	for i, p := range pairs {
		a, b := eligible[p.I], eligible[p.J]
		g.Go(func() error {
			passageA, passageB := a.Text(), b.Text()
			ans := e.judge.Repetition(ctx, passageA, passageB)
			if !ans.OK {
				log.Warn("pair judgment failed",
					zap.Int("section_a", a.Index),
					zap.Int("section_b", b.Index),
					zap.Int("attempts", ans.Attempts),
					zap.Error(ans.Err))
				return nil
			}
			results[i] = domain.PairResult{
				SectionA:           a.Index,
				SectionB:           b.Index,
				PassageA:           passageA,
				PassageB:           passageB,
				RepetitionJudgment: ans.Value,
			}
			scored[i] = true
			return nil
		})
	}
	_ = g.Wait()

	kept := make([]domain.PairResult, 0, len(pairs))
	sum := 0
	for i, ok := range scored {
		if ok {
			kept = append(kept, results[i])
			sum += results[i].Score
		}
	}
	if len(kept) == 0 {
		return domain.EvaluationRecord{}, fmt.Errorf("%w: all %d pair judgments failed", ErrNoPairScores, len(pairs))
	}

	rec := domain.EvaluationRecord{
		ReportID:        report.ID,
		Topic:           report.Topic,
		RunID:           runID,
		EvaluatedAt:     e.opts.Now().UTC(),
		QualityJudgment: quality.Value,
		RepeatScore:     float64(sum) / float64(len(kept)),
		PairsSampled:    len(pairs),
		PairsFailed:     len(pairs) - len(kept),
		RepeatResults:   kept,
	}
	log.Info("report evaluated",
		zap.Int("overall", rec.Overall),
		zap.Float64("repeat_score", rec.RepeatScore),
		zap.Int("pairs_sampled", rec.PairsSampled),
		zap.Int("pairs_failed", rec.PairsFailed))
	return rec, nil
}
