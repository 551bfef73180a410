package oracle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportjudge/internal/domain"
)

const qualityJSON = `{
    "Reason": "solid coverage, thin analysis",
    "Comprehensiveness_Score": 3,
    "Coherence_Score": 2,
    "Clarity_Score": "3",
    "Insightfulness_Score": 1,
    "Overall_Score": 2
}`

func TestParseQualityPlainObject(t *testing.T) {
	p := ParseQuality(qualityJSON)
	require.True(t, p.OK(), p.Reason)
	assert.Equal(t, domain.QualityJudgment{
		Comprehensiveness: 3,
		Coherence:         2,
		Clarity:           3,
		Insight:           1,
		Overall:           2,
		Reason:            "solid coverage, thin analysis",
	}, p.Value)
	assert.NoError(t, p.Err())
}

func TestParseQualityFencedWithProse(t *testing.T) {
	raw := "Here is my assessment.\n```json\n" + qualityJSON + "\n```\nLet me know if you need more."
	p := ParseQuality(raw)
	require.True(t, p.OK(), p.Reason)
	assert.Equal(t, 3, p.Value.Comprehensiveness)
}

func TestParseQualityEmbeddedInProse(t *testing.T) {
	p := ParseQuality("My scores: " + qualityJSON + " Thanks.")
	require.True(t, p.OK(), p.Reason)
	assert.Equal(t, 2, p.Value.Overall)
}

func TestParseSkipsBracesInLeadingProse(t *testing.T) {
	p := ParseRepetition(`I weigh {coverage} first. {"score": 3, "explanation": "x", "repetitions_found": [], "confidence": 90}`)
	require.True(t, p.OK(), p.Reason)
	assert.Equal(t, 3, p.Value.Score)
	assert.InDelta(t, 90, p.Value.Confidence, 1e-9)

	q := ParseQuality("Weights [depth, clarity] {equal}: " + qualityJSON + " See {notes}.")
	require.True(t, q.OK(), q.Reason)
	assert.Equal(t, 2, q.Value.Overall)
	assert.Equal(t, "solid coverage, thin analysis", q.Value.Reason)
}

func TestParseRepetitionListTakesLastElement(t *testing.T) {
	raw := `[
		{"score": 1, "explanation": "draft", "repetitions_found": [], "confidence": 50},
		{"score": 3, "explanation": "final", "repetitions_found": ["same statistic"], "confidence": 90}
	]`
	p := ParseRepetition(raw)
	require.True(t, p.OK(), p.Reason)
	assert.Equal(t, 3, p.Value.Score)
	assert.Equal(t, "final", p.Value.Explanation)
	assert.Equal(t, []string{"same statistic"}, p.Value.RepeatedFragments)
	assert.InDelta(t, 90, p.Value.Confidence, 1e-9)
}

func TestParseRepetitionEmptyListIsMalformed(t *testing.T) {
	p := ParseRepetition("[]")
	assert.False(t, p.OK())
	assert.Equal(t, "empty list", p.Reason)
	assert.True(t, errors.Is(p.Err(), ErrParse))
}

func TestParseRepetitionUnwrapsResult(t *testing.T) {
	raw := `{"result": {"score": "4", "explanation": "distinct", "repetitions_found": [], "confidence": "80%"}}`
	p := ParseRepetition(raw)
	require.True(t, p.OK(), p.Reason)
	assert.Equal(t, 4, p.Value.Score)
	assert.InDelta(t, 80, p.Value.Confidence, 1e-9)
	assert.Empty(t, p.Value.RepeatedFragments)
}

func TestParseRepetitionConfidenceForms(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{`"95%"`, 95},
		{`95`, 95},
		{`0.95`, 95},
		{`"0.5"`, 50},
		{`100`, 100},
		{`0`, 0},
		{`0.99`, 99},
		{`1`, 100},
		{`1.0`, 100},
		{`"1"`, 100},
		{`"1%"`, 1},
		{`50`, 50},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p := ParseRepetition(`{"score": 2, "explanation": "x", "repetitions_found": [], "confidence": ` + tt.raw + `}`)
			require.True(t, p.OK(), p.Reason)
			assert.InDelta(t, tt.want, p.Value.Confidence, 1e-9)
		})
	}
}

func TestParseRejectsBadReplies(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{"empty", "   ", "empty response"},
		{"no json", "I cannot grade this report.", "no JSON value found"},
		{"broken json", `{"score": 3,`, "no JSON value found"},
		{"missing score", `{"explanation": "x", "repetitions_found": [], "confidence": 90}`, "missing field score"},
		{"missing confidence", `{"score": 2, "explanation": "x", "repetitions_found": []}`, "missing field confidence"},
		{"score too high", `{"score": 5, "explanation": "x", "repetitions_found": [], "confidence": 90}`, "score 5 out of range"},
		{"negative score", `{"score": -1, "explanation": "x", "repetitions_found": [], "confidence": 90}`, "score -1 out of range"},
		{"fractional score", `{"score": 2.5, "explanation": "x", "repetitions_found": [], "confidence": 90}`, "not an integer"},
		{"word score", `{"score": "high", "explanation": "x", "repetitions_found": [], "confidence": 90}`, "not a number"},
		{"confidence too high", `{"score": 2, "explanation": "x", "repetitions_found": [], "confidence": 140}`, "out of range"},
		{"scalar", `42`, "expected a JSON object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ParseRepetition(tt.raw)
			require.False(t, p.OK())
			assert.Contains(t, p.Reason, tt.reason)
			assert.ErrorIs(t, p.Err(), ErrParse)
		})
	}
}

func TestParseQualityMissingDimension(t *testing.T) {
	p := ParseQuality(`{"Reason": "x", "Comprehensiveness_Score": 3, "Coherence_Score": 2, "Clarity_Score": 3, "Overall_Score": 2}`)
	require.False(t, p.OK())
	assert.Contains(t, p.Reason, "insightfulness_score")
}

func TestParseQualityRequiresReason(t *testing.T) {
	p := ParseQuality(`{"Comprehensiveness_Score": 3, "Coherence_Score": 2, "Clarity_Score": 3, "Insightfulness_Score": 1, "Overall_Score": 2}`)
	require.False(t, p.OK())
	assert.Contains(t, p.Reason, "missing field reason")

	p = ParseQuality(`{"Quality_Reason": "fine", "Comprehensiveness_Score": 3, "Coherence_Score": 2, "Clarity_Score": 3, "Insightfulness_Score": 1, "Overall_Score": 2}`)
	require.True(t, p.OK(), p.Reason)
	assert.Equal(t, "fine", p.Value.Reason)
}

func TestParseVerdict(t *testing.T) {
	p := ParseVerdict("```\n{\"is_factual\": -1, \"sentence_support\": \"\"}\n```")
	require.True(t, p.OK(), p.Reason)
	assert.Equal(t, domain.NotSupported, p.Value.SupportLevel)

	p = ParseVerdict(`{"is_factual": "1", "sentence_support": ["Revenue rose 12%.", "It was a record."]}`)
	require.True(t, p.OK(), p.Reason)
	assert.Equal(t, domain.FullySupported, p.Value.SupportLevel)
	assert.Equal(t, "Revenue rose 12%.\nIt was a record.", p.Value.EvidenceSentence)

	p = ParseVerdict(`{"is_factual": 2}`)
	assert.False(t, p.OK())
	assert.Contains(t, p.Reason, "out of range")

	p = ParseVerdict(`{"sentence_support": "x"}`)
	assert.False(t, p.OK())
	assert.Contains(t, p.Reason, "missing field is_factual")
}

func TestParseErrTruncatesLongReplies(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'a'
	}
	err := ParseRepetition(string(long)).Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "total_length=2000")
}
