package oracle

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"reportjudge/internal/domain"
)

// ErrParse marks an oracle reply that could not be turned into a judgment.
var ErrParse = errors.New("unparseable oracle response")

// Parsed is either a decoded value or the raw reply with the reason it was rejected.
type Parsed[T any] struct {
	Value  T
	Raw    string
	Reason string
	ok     bool
}

func (p Parsed[T]) OK() bool { return p.ok }

func (p Parsed[T]) Err() error {
	if p.ok {
		return nil
	}
	raw := p.Raw
	if len(raw) > 512 {
		raw = raw[:512] + fmt.Sprintf("... [truncated, total_length=%d]", len(p.Raw))
	}
	return fmt.Errorf("%w: %s (response: %s)", ErrParse, p.Reason, raw)
}

func parsedOK[T any](raw string, v T) Parsed[T] {
	return Parsed[T]{Value: v, Raw: raw, ok: true}
}

func malformed[T any](raw, reason string) Parsed[T] {
	return Parsed[T]{Raw: raw, Reason: reason}
}

func ParseQuality(raw string) Parsed[domain.QualityJudgment] {
	obj, reason := locateObject(raw)
	if reason != "" {
		return malformed[domain.QualityJudgment](raw, reason)
	}
	fields := fieldsOf(obj)

	var q domain.QualityJudgment
	scores := []struct {
		dst  *int
		keys []string
	}{
		{&q.Comprehensiveness, []string{"comprehensiveness_score", "comprehensiveness"}},
		{&q.Coherence, []string{"coherence_score", "coherence"}},
		{&q.Clarity, []string{"clarity_score", "clarity"}},
		{&q.Insight, []string{"insightfulness_score", "insight_score", "insightfulness", "insight"}},
		{&q.Overall, []string{"overall_score", "overall"}},
	}
	for _, s := range scores {
		v, reason := scoreField(fields, s.keys...)
		if reason != "" {
			return malformed[domain.QualityJudgment](raw, reason)
		}
		*s.dst = v
	}
	reasonField, ok := lookup(fields, "reason", "quality_reason")
	if !ok {
		return malformed[domain.QualityJudgment](raw, "missing field reason")
	}
	q.Reason = strings.TrimSpace(reasonField.String())
	return parsedOK(raw, q)
}

func ParseRepetition(raw string) Parsed[domain.RepetitionJudgment] {
	obj, reason := locateObject(raw)
	if reason != "" {
		return malformed[domain.RepetitionJudgment](raw, reason)
	}
	fields := fieldsOf(obj)

	score, reason := scoreField(fields, "score")
	if reason != "" {
		return malformed[domain.RepetitionJudgment](raw, reason)
	}
	expl, ok := lookup(fields, "explanation")
	if !ok {
		return malformed[domain.RepetitionJudgment](raw, "missing field explanation")
	}
	found, ok := lookup(fields, "repetitions_found")
	if !ok {
		return malformed[domain.RepetitionJudgment](raw, "missing field repetitions_found")
	}
	confRaw, ok := lookup(fields, "confidence")
	if !ok {
		return malformed[domain.RepetitionJudgment](raw, "missing field confidence")
	}
	conf, err := parseConfidence(confRaw)
	if err != nil {
		return malformed[domain.RepetitionJudgment](raw, err.Error())
	}

	return parsedOK(raw, domain.RepetitionJudgment{
		Score:             score,
		Explanation:       strings.TrimSpace(expl.String()),
		RepeatedFragments: stringList(found),
		Confidence:        conf,
	})
}

func ParseVerdict(raw string) Parsed[domain.FactVerdict] {
	obj, reason := locateObject(raw)
	if reason != "" {
		return malformed[domain.FactVerdict](raw, reason)
	}
	fields := fieldsOf(obj)

	v, ok := lookup(fields, "is_factual")
	if !ok {
		return malformed[domain.FactVerdict](raw, "missing field is_factual")
	}
	n, err := integer(v)
	if err != nil {
		return malformed[domain.FactVerdict](raw, "is_factual: "+err.Error())
	}
	level := domain.SupportLevel(n)
	if !level.Valid() {
		return malformed[domain.FactVerdict](raw, fmt.Sprintf("is_factual %d out of range", n))
	}

	var evidence string
	if s, ok := lookup(fields, "sentence_support"); ok {
		evidence = strings.Join(stringList(s), "\n")
	}
	return parsedOK(raw, domain.FactVerdict{SupportLevel: level, EvidenceSentence: evidence})
}

// locateObject finds the judgment object in a model reply. A list yields its last
// element and a lone "result" wrapper is unwrapped.
func locateObject(raw string) (gjson.Result, string) {
	text := stripFences(raw)
	if text == "" {
		return gjson.Result{}, "empty response"
	}
	if !gjson.Valid(text) {
		embedded, ok := embeddedJSON(text)
		if !ok {
			return gjson.Result{}, "no JSON value found"
		}
		text = embedded
	}

	v := gjson.Parse(text)
	for range 2 {
		if v.IsArray() {
			items := v.Array()
			if len(items) == 0 {
				return gjson.Result{}, "empty list"
			}
			v = items[len(items)-1]
		}
		if !v.IsObject() {
			break
		}
		inner := v.Get("result")
		if !inner.Exists() || !(inner.IsObject() || inner.IsArray()) {
			break
		}
		v = inner
	}
	if !v.IsObject() {
		return gjson.Result{}, "expected a JSON object"
	}
	return v, ""
}

// embeddedJSON returns the first valid JSON object or list inside surrounding prose.
// Earlier starts win, and for each start the longest valid slice wins.
func embeddedJSON(text string) (string, bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' && text[start] != '[' {
			continue
		}
		for end := len(text); end > start; end-- {
			c := text[end-1]
			if c != '}' && c != ']' {
				continue
			}
			if gjson.Valid(text[start:end]) {
				return text[start:end], true
			}
		}
	}
	return "", false
}

func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	open := strings.Index(text, "```")
	if open < 0 || gjson.Valid(text) {
		return text
	}
	body := text[open+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	}
	if closing := strings.Index(body, "```"); closing >= 0 {
		body = body[:closing]
	}
	return strings.TrimSpace(body)
}

// fieldsOf indexes top-level keys case-insensitively.
func fieldsOf(obj gjson.Result) map[string]gjson.Result {
	fields := make(map[string]gjson.Result)
	obj.ForEach(func(key, value gjson.Result) bool {
		fields[strings.ToLower(strings.TrimSpace(key.String()))] = value
		return true
	})
	return fields
}

func lookup(fields map[string]gjson.Result, keys ...string) (gjson.Result, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok && v.Type != gjson.Null {
			return v, true
		}
	}
	return gjson.Result{}, false
}

func scoreField(fields map[string]gjson.Result, keys ...string) (int, string) {
	v, ok := lookup(fields, keys...)
	if !ok {
		return 0, "missing field " + keys[0]
	}
	n, err := integer(v)
	if err != nil {
		return 0, keys[0] + ": " + err.Error()
	}
	if n < domain.MinScore || n > domain.MaxScore {
		return 0, fmt.Sprintf("%s %d out of range", keys[0], n)
	}
	return n, ""
}

func number(v gjson.Result) (float64, error) {
	switch v.Type {
	case gjson.Number:
		return v.Float(), nil
	case gjson.String:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v.Str), "%"))
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", v.Str)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("not a number: %s", v.Raw)
	}
}

func integer(v gjson.Result) (int, error) {
	f, err := number(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %v", f)
	}
	return int(f), nil
}

// parseConfidence accepts "95%", 95 and 0.95 and returns a percentage. A bare value
// in (0, 1] is a fraction, so 1 and 1.0 both mean 100. Values with a percent sign are
// never scaled.
func parseConfidence(v gjson.Result) (float64, error) {
	f, err := number(v)
	if err != nil {
		return 0, fmt.Errorf("confidence: %w", err)
	}
	percent := v.Type == gjson.String && strings.HasSuffix(strings.TrimSpace(v.Str), "%")
	if !percent && f > 0 && f <= 1 {
		f *= 100
	}
	if f < 0 || f > 100 {
		return 0, fmt.Errorf("confidence %v out of range", f)
	}
	return f, nil
}

func stringList(v gjson.Result) []string {
	out := []string{}
	if !v.IsArray() {
		if s := strings.TrimSpace(v.String()); s != "" {
			out = append(out, s)
		}
		return out
	}
	for _, item := range v.Array() {
		if s := strings.TrimSpace(item.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}
