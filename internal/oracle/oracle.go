// Package oracle asks a language model for quality, repetition and fact-support judgments
// and turns its free-form replies into typed values.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"reportjudge/internal/config"
	"reportjudge/internal/domain"
	"reportjudge/internal/integrations/llm"
)

// ErrUnavailable is returned once every attempt for a judgment has failed.
var ErrUnavailable = errors.New("oracle unavailable")

const tracerName = "reportjudge/oracle"

// Answer is the outcome of one judgment request. Err is set only when OK is false.
type Answer[T any] struct {
	Value    T
	OK       bool
	Attempts int
	Err      error
}

type Options struct {
	MaxAttempts int
	// Backoff is the fixed wait between attempts. Zero retries immediately.
	Backoff time.Duration
	// Tracer defaults to the global otel tracer.
	Tracer trace.Tracer
}

type Client struct {
	completer   llm.Completer
	maxAttempts int
	backoff     time.Duration
	tracer      trace.Tracer
	logger      *zap.Logger

	mu    sync.Mutex
	usage llm.Usage
	calls int
}

func New(completer llm.Completer, opts Options, logger *zap.Logger) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = config.DefaultMaxAttempts
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		completer:   completer,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		tracer:      opts.Tracer,
		logger:      logger,
	}
}

func (c *Client) Quality(ctx context.Context, topic, report string) Answer[domain.QualityJudgment] {
	return ask(ctx, c, "quality", qualitySystemPrompt, qualityUserPrompt(topic, report), ParseQuality,
		attribute.Int("oracle.report_chars", len(report)))
}

func (c *Client) Repetition(ctx context.Context, passageA, passageB string) Answer[domain.RepetitionJudgment] {
	return ask(ctx, c, "repetition", repetitionSystemPrompt, repetitionUserPrompt(passageA, passageB), ParseRepetition)
}

func (c *Client) Verify(ctx context.Context, sentence, source string) Answer[domain.FactVerdict] {
	return ask(ctx, c, "verify", verifySystemPrompt, verifyUserPrompt(sentence, source), ParseVerdict,
		attribute.Int("oracle.source_chars", len(source)))
}

// Usage returns the token totals of every completion made so far.
func (c *Client) Usage() llm.Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// Calls returns the number of completion requests issued, including failed ones.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *Client) record(u llm.Usage) {
	c.mu.Lock()
	c.usage.Add(u)
	c.calls++
	c.mu.Unlock()
}

func ask[T any](ctx context.Context, c *Client, op, system, user string, parse func(string) Parsed[T], attrs ...attribute.KeyValue) Answer[T] {
	ctx, span := c.tracer.Start(ctx, "oracle."+op)
	defer span.End()
	span.SetAttributes(append(attrs,
		attribute.String("oracle.provider", c.completer.Name()),
		attribute.Int("oracle.max_attempts", c.maxAttempts),
	)...)

	var lastErr error
	attempt := 0
	for attempt < c.maxAttempts {
		attempt++
		text, usage, err := c.completer.Complete(ctx, system, user)
		c.record(usage)
		if err == nil {
			parsed := parse(text)
			if parsed.OK() {
				span.SetAttributes(attribute.Int("oracle.attempts", attempt), attribute.String("oracle.outcome", "ok"))
				span.SetStatus(codes.Ok, "")
				c.logger.Debug("oracle judgment",
					zap.String("op", op),
					zap.Int("attempt", attempt),
					zap.Int64("tokens_in", usage.InputTokens),
					zap.Int64("tokens_out", usage.OutputTokens))
				return Answer[T]{Value: parsed.Value, OK: true, Attempts: attempt}
			}
			err = parsed.Err()
		}
		lastErr = err
		c.logger.Warn("oracle attempt failed",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
			zap.Error(err))

		if attempt == c.maxAttempts {
			break
		}
		if waitErr := wait(ctx, c.backoff); waitErr != nil {
			lastErr = waitErr
			break
		}
	}

	err := fmt.Errorf("%w: %s after %d attempts: %w", ErrUnavailable, op, attempt, lastErr)
	span.SetAttributes(attribute.Int("oracle.attempts", attempt), attribute.String("oracle.outcome", "unavailable"))
	span.RecordError(err)
	span.SetStatus(codes.Error, "oracle unavailable")
	return Answer[T]{Attempts: attempt, Err: err}
}

func wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
