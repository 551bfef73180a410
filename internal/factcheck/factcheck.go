// Package factcheck verifies cited report sentences against the pages they cite.
package factcheck

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"reportjudge/internal/corpus"
	"reportjudge/internal/domain"
	"reportjudge/internal/oracle"
)

const (
	TaskJudge  = "judge"
	TaskScrape = "scrape"
	// TaskCited lists the cited sentences of each corpus report.
	TaskCited = "cited"
)

const scrapeErrorTag = "__SCRAPE_ERROR__"

// Verifier grades one sentence against page text.
type Verifier interface {
	Verify(ctx context.Context, sentence, source string) oracle.Answer[domain.FactVerdict]
}

type Options struct {
	Task     string
	Fetcher  Fetcher
	Verifier Verifier
	Logger   *zap.Logger
}

type Stats struct {
	Lines       int
	ParseErrors int
	FetchErrors int
	Judged      int
	JudgeErrors int
}

var (
	urlCandidate  = regexp.MustCompile(`https?://[^\s)\]]+`)
	citedSentence = regexp.MustCompile(`[^。.!?]*\[\[\d+(?:,\d+)*\]\][^。.!?]*[。.!?]`)
)

// NormalizeURL returns the last http(s) URL inside raw, which is how markdown link
// keys such as "https://a.com/x](https://a.com/x)" resolve. Without a URL it returns
// raw trimmed.
func NormalizeURL(raw string) string {
	candidates := urlCandidate.FindAllString(raw, -1)
	if len(candidates) == 0 {
		return strings.TrimSpace(raw)
	}
	return candidates[len(candidates)-1]
}

// ExtractCitedSentences returns the sentences of text that carry [[n]] citation markers.
func ExtractCitedSentences(text string) []string {
	matches := citedSentence.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

type judgeLine struct {
	URL     string              `json:"url"`
	Context string              `json:"context"`
	Label   *domain.FactVerdict `json:"label,omitempty"`
	Error   string              `json:"error,omitempty"`
}

type parseErrorLine struct {
	Message string          `json:"__PARSE_ERROR__"`
	Raw     json.RawMessage `json:"__raw__"`
}

type citedLine struct {
	ReportID  string   `json:"report_id"`
	Topic     string   `json:"topic"`
	Sentences []string `json:"sentences"`
}

// Run streams JSONL records from in to out. For the judge and scrape tasks each record
// maps a cited URL to {"contexts": [...]}; for the cited task records are corpus items.
// Per-record failures are written as output lines; only I/O errors and cancellation
// stop the run.
func Run(ctx context.Context, in io.Reader, out io.Writer, opts Options) (Stats, error) {
	var stats Stats
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	switch opts.Task {
	case "", TaskJudge:
		opts.Task = TaskJudge
		if opts.Fetcher == nil || opts.Verifier == nil {
			return stats, fmt.Errorf("judge task needs a fetcher and a verifier")
		}
	case TaskScrape:
		if opts.Fetcher == nil {
			return stats, fmt.Errorf("scrape task needs a fetcher")
		}
	case TaskCited:
	default:
		return stats, fmt.Errorf("unsupported task %q", opts.Task)
	}

	bw := bufio.NewWriter(out)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 1<<20), corpus.MaxLineBytes)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			_ = bw.Flush()
			return stats, err
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.Lines++

		var err error
		switch opts.Task {
		case TaskJudge:
			err = judgeRecord(ctx, enc, line, opts, &stats, logger)
		case TaskScrape:
			err = scrapeRecord(ctx, bw, enc, line, opts, &stats, logger)
		case TaskCited:
			err = citedRecord(enc, line, &stats)
		}
		if err != nil {
			_ = bw.Flush()
			return stats, err
		}
	}
	if err := sc.Err(); err != nil {
		_ = bw.Flush()
		return stats, fmt.Errorf("read input: %w", err)
	}
	logger.Info("fact-check complete",
		zap.String("task", opts.Task),
		zap.Int("lines", stats.Lines),
		zap.Int("judged", stats.Judged),
		zap.Int("parse_errors", stats.ParseErrors),
		zap.Int("fetch_errors", stats.FetchErrors))
	return stats, bw.Flush()
}

func writeParseError(enc *json.Encoder, line []byte, msg string, stats *Stats) error {
	stats.ParseErrors++
	raw := json.RawMessage(line)
	if !json.Valid(line) {
		quoted, err := json.Marshal(string(line))
		if err != nil {
			return err
		}
		raw = quoted
	}
	return enc.Encode(parseErrorLine{Message: msg, Raw: raw})
}

func judgeRecord(ctx context.Context, enc *json.Encoder, line []byte, opts Options, stats *Stats, logger *zap.Logger) error {
	if !gjson.ValidBytes(line) {
		return writeParseError(enc, line, "invalid JSON", stats)
	}
	obj := gjson.ParseBytes(line)
	if !obj.IsObject() || len(obj.Map()) != 1 {
		return writeParseError(enc, line, "Each line must contain exactly one key (url).", stats)
	}

	var rawURL string
	var payload gjson.Result
	obj.ForEach(func(k, v gjson.Result) bool {
		rawURL, payload = k.String(), v
		return false
	})
	url := NormalizeURL(rawURL)
	contexts := stringContexts(payload)

	page, fetchErr := opts.Fetcher.Fetch(ctx, url)
	if fetchErr != nil {
		stats.FetchErrors++
		logger.Warn("page fetch failed", zap.String("url", url), zap.Error(fetchErr))
	}
	for _, c := range contexts {
		out := judgeLine{URL: url, Context: c}
		if fetchErr != nil {
			out.Error = fmt.Sprintf("%s: %v", scrapeErrorTag, fetchErr)
		} else {
			ans := opts.Verifier.Verify(ctx, c, page)
			if ans.OK {
				verdict := ans.Value
				out.Label = &verdict
				stats.Judged++
			} else {
				out.Error = ans.Err.Error()
				stats.JudgeErrors++
			}
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	return nil
}

func scrapeRecord(ctx context.Context, w io.Writer, enc *json.Encoder, line []byte, opts Options, stats *Stats, logger *zap.Logger) error {
	if !gjson.ValidBytes(line) {
		return writeParseError(enc, line, "invalid JSON", stats)
	}
	obj := gjson.ParseBytes(line)
	if !obj.IsObject() {
		return writeParseError(enc, line, "line must be a JSON object keyed by url", stats)
	}

	// Build the output object by hand to keep the input key order.
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	var buildErr error
	obj.ForEach(func(k, v gjson.Result) bool {
		url := NormalizeURL(k.String())
		page, err := opts.Fetcher.Fetch(ctx, url)
		if err != nil {
			stats.FetchErrors++
			logger.Warn("page fetch failed", zap.String("url", url), zap.Error(err))
			page = fmt.Sprintf("%s: %v", scrapeErrorTag, err)
		}
		base := v.Raw
		if !v.IsObject() {
			base = "{}"
		}
		merged, err := sjson.Set(base, "md", page)
		if err != nil {
			buildErr = err
			return false
		}
		key, err := json.Marshal(url)
		if err != nil {
			buildErr = err
			return false
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(merged)
		return true
	})
	if buildErr != nil {
		return buildErr
	}
	buf.WriteString("}\n")
	_, err := w.Write(buf.Bytes())
	return err
}

func citedRecord(enc *json.Encoder, line []byte, stats *Stats) error {
	var item domain.CorpusItem
	if err := json.Unmarshal(line, &item); err != nil {
		return writeParseError(enc, line, err.Error(), stats)
	}
	return enc.Encode(citedLine{
		ReportID:  domain.ReportID(item.Topic),
		Topic:     item.Topic,
		Sentences: ExtractCitedSentences(item.Report),
	})
}

func stringContexts(payload gjson.Result) []string {
	var out []string
	for _, c := range payload.Get("contexts").Array() {
		if c.Type == gjson.String {
			out = append(out, c.Str)
		}
	}
	return out
}
