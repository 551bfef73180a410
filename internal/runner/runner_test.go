package runner

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reportjudge/internal/artifact"
	"reportjudge/internal/checkpoint"
	"reportjudge/internal/domain"
	"reportjudge/internal/evaluator"
)

type countingEvaluator struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (c *countingEvaluator) Evaluate(_ context.Context, runID string, report domain.Report, sections []domain.Section) (domain.EvaluationRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, report.Topic)
	if c.fail[report.Topic] {
		return domain.EvaluationRecord{}, evaluator.ErrNoPairScores
	}
	return domain.EvaluationRecord{
		ReportID:    report.ID,
		Topic:       report.Topic,
		RunID:       runID,
		RepeatScore: float64(len(sections)),
	}, nil
}

func (c *countingEvaluator) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type failingWriter struct{}

func (failingWriter) Write(string, domain.EvaluationRecord) (string, error) {
	return "", errors.New("disk full")
}

func (failingWriter) Exists(string) bool { return false }

// unreadableStore fails every Snapshot.
type unreadableStore struct {
	checkpoint.Store
}

func (unreadableStore) Snapshot(context.Context) (domain.Checkpoint, error) {
	return domain.Checkpoint{}, errors.New("corrupt checkpoint")
}

// flakyStore fails the first MarkProcessed call, as if the process died right after the
// artifact write.
type flakyStore struct {
	checkpoint.Store
	failed bool
}

func (f *flakyStore) MarkProcessed(ctx context.Context, id string, index, total int) error {
	if !f.failed {
		f.failed = true
		return errors.New("killed")
	}
	return f.Store.MarkProcessed(ctx, id, index, total)
}

func validReport(title string) string {
	return "Intro paragraph.\n\n## " + title + " one\nFirst body.\n\n## " + title + " two\nSecond body.\n\n## " + title + " three\nThird body."
}

func corpusItems() []domain.CorpusItem {
	return []domain.CorpusItem{
		{Topic: "alpha", Report: validReport("Alpha")},
		{Topic: "too short", Report: "one paragraph\n\ntwo paragraphs"},
		{Topic: "no headings", Report: "a\n\nb\n\nc\n\nd\n\ne"},
		{Topic: "beta", Report: validReport("Beta")},
	}
}

type fixture struct {
	dir       string
	eval      *countingEvaluator
	artifacts *artifact.Store
	store     checkpoint.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	arts, err := artifact.Open(dir)
	require.NoError(t, err)
	store, err := checkpoint.OpenFile(filepath.Join(dir, "checkpoint.json"))
	require.NoError(t, err)
	return &fixture{dir: dir, eval: &countingEvaluator{}, artifacts: arts, store: store}
}

func (f *fixture) runner() *Runner {
	return New(nil, f.eval, f.artifacts, f.store, 3, zap.NewNop())
}

func TestRunClassifiesItems(t *testing.T) {
	f := newFixture(t)

	stats, err := f.runner().Run(context.Background(), corpusItems(), Options{RunID: "r1", Resume: true})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStats{RunID: "r1", Total: 4, Evaluated: 2, SkippedInvalid: 1, Malformed: 1}, stats)
	assert.Equal(t, []string{"alpha", "beta"}, f.eval.calls)

	for _, topic := range []string{"alpha", "beta"} {
		id := domain.ReportID(topic)
		assert.True(t, f.artifacts.Exists(id))
		done, err := f.store.Has(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, done)
	}
	for _, topic := range []string{"too short", "no headings"} {
		done, err := f.store.Has(context.Background(), domain.ReportID(topic))
		require.NoError(t, err)
		assert.False(t, done, "%s must stay retry-eligible", topic)
	}

	snap, err := f.store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, snap.CurrentIndex)
	assert.Equal(t, 4, snap.TotalFiles)
}

func TestRerunMakesNoEvaluatorCalls(t *testing.T) {
	f := newFixture(t)
	items := corpusItems()

	_, err := f.runner().Run(context.Background(), items, Options{Resume: true})
	require.NoError(t, err)
	before := f.eval.Calls()

	stats, err := f.runner().Run(context.Background(), items, Options{Resume: true})
	require.NoError(t, err)
	assert.Equal(t, before, f.eval.Calls())
	assert.Equal(t, 2, stats.AlreadyProcessed)
	assert.Zero(t, stats.Evaluated)
}

func TestResumeDisabledReevaluates(t *testing.T) {
	f := newFixture(t)
	items := corpusItems()

	_, err := f.runner().Run(context.Background(), items, Options{Resume: true})
	require.NoError(t, err)
	stats, err := f.runner().Run(context.Background(), items, Options{Resume: false})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Evaluated)
	assert.Zero(t, stats.AlreadyProcessed)
	assert.Equal(t, 4, f.eval.Calls())
}

func TestClearCheckpointDropsProgress(t *testing.T) {
	f := newFixture(t)
	items := corpusItems()

	_, err := f.runner().Run(context.Background(), items, Options{Resume: true})
	require.NoError(t, err)
	stats, err := f.runner().Run(context.Background(), items, Options{Resume: true, ClearCheckpoint: true})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Evaluated)
	assert.Equal(t, 4, f.eval.Calls())
}

func TestEvaluationFailureLeavesItemUnmarked(t *testing.T) {
	f := newFixture(t)
	f.eval.fail = map[string]bool{"alpha": true}

	stats, err := f.runner().Run(context.Background(), corpusItems(), Options{Resume: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Evaluated)
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0], domain.ReportID("alpha"))

	done, err := f.store.Has(context.Background(), domain.ReportID("alpha"))
	require.NoError(t, err)
	assert.False(t, done)
	assert.False(t, f.artifacts.Exists(domain.ReportID("alpha")))

	f.eval.fail = nil
	stats, err = f.runner().Run(context.Background(), corpusItems(), Options{Resume: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Evaluated)
	assert.Equal(t, 1, stats.AlreadyProcessed)
}

func TestArtifactFailureLeavesItemUnmarked(t *testing.T) {
	f := newFixture(t)
	r := New(nil, f.eval, failingWriter{}, f.store, 3, zap.NewNop())

	stats, err := r.Run(context.Background(), corpusItems(), Options{Resume: true})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.PersistFailed)
	assert.Zero(t, stats.Evaluated)

	snap, err := f.store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.ProcessedIDs)
}

func TestCrashBetweenWriteAndMarkRecovers(t *testing.T) {
	f := newFixture(t)
	items := corpusItems()[:1]
	id := domain.ReportID("alpha")

	flaky := &flakyStore{Store: f.store}
	r := New(nil, f.eval, f.artifacts, flaky, 3, zap.NewNop())
	stats, err := r.Run(context.Background(), items, Options{RunID: "first", Resume: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PersistFailed)
	assert.True(t, f.artifacts.Exists(id))
	done, err := f.store.Has(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, done)

	stats, err = f.runner().Run(context.Background(), items, Options{RunID: "second", Resume: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Evaluated)

	data, err := os.ReadFile(f.artifacts.Path(id))
	require.NoError(t, err)
	var rec domain.EvaluationRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "second", rec.RunID)

	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	var artifacts int
	for _, e := range entries {
		if e.Name() == id+".json" {
			artifacts++
		}
	}
	assert.Equal(t, 1, artifacts)

	snap, err := f.store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{id}, snap.ProcessedIDs)
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := f.runner().Run(ctx, corpusItems(), Options{Resume: true})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.eval.Calls())
	assert.Equal(t, 4, stats.Total)
}

func TestFormatRunSummary(t *testing.T) {
	assert.Equal(t, "Corpus is empty, nothing to evaluate.", FormatRunSummary(domain.RunStats{}))

	msg := FormatRunSummary(domain.RunStats{RunID: "abc", Total: 5, Evaluated: 2, AlreadyProcessed: 1, Malformed: 1, Failed: 1, Errors: []string{"id1: boom"}})
	assert.True(t, strings.HasPrefix(msg, "Processed 5 reports: 2 evaluated, 1 already processed, 1 malformed, 1 failed (run abc)."))
	assert.Contains(t, msg, "\nErrors:\nid1: boom")
}

func TestParagraphSkipZeroEvaluatesShortReports(t *testing.T) {
	f := newFixture(t)
	items := []domain.CorpusItem{
		{Topic: "one paragraph", Report: "## Only\nA single paragraph under one heading."},
		{Topic: "empty", Report: "   "},
	}

	stats, err := New(nil, f.eval, f.artifacts, f.store, 0, zap.NewNop()).Run(context.Background(), items, Options{Resume: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Evaluated)
	assert.Equal(t, 1, stats.SkippedInvalid)

	stats, err = New(nil, f.eval, f.artifacts, f.store, -1, zap.NewNop()).Run(context.Background(), items, Options{Resume: false})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.SkippedInvalid, "a negative threshold falls back to the default")
}

func TestRunFailsWhenCheckpointUnreadable(t *testing.T) {
	f := newFixture(t)
	r := New(nil, f.eval, f.artifacts, unreadableStore{Store: f.store}, 3, zap.NewNop())

	stats, err := r.Run(context.Background(), corpusItems(), Options{RunID: "r1", Resume: true})
	require.ErrorContains(t, err, "read checkpoint")
	assert.Zero(t, f.eval.Calls())
	assert.Equal(t, domain.RunStats{RunID: "r1", Total: 4}, stats)
}
