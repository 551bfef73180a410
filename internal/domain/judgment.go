package domain

import "time"

const (
	MinScore = 0
	MaxScore = 4
)

type QualityJudgment struct {
	Comprehensiveness int    `json:"comprehensiveness_score"`
	Coherence         int    `json:"coherence_score"`
	Clarity           int    `json:"clarity_score"`
	Insight           int    `json:"insight_score"`
	Overall           int    `json:"overall_score"`
	Reason            string `json:"quality_reason"`
}

type RepetitionJudgment struct {
	Score             int      `json:"score"`
	Explanation       string   `json:"explanation"`
	RepeatedFragments []string `json:"repetitions_found"`
	// Confidence is a percentage in [0, 100].
	Confidence float64 `json:"confidence"`
}

type PairResult struct {
	SectionA int    `json:"section_a"`
	SectionB int    `json:"section_b"`
	PassageA string `json:"passage_a"`
	PassageB string `json:"passage_b"`
	RepetitionJudgment
}

type EvaluationRecord struct {
	ReportID    string    `json:"report_id"`
	Topic       string    `json:"topic"`
	RunID       string    `json:"run_id"`
	EvaluatedAt time.Time `json:"evaluated_at"`

	QualityJudgment

	RepeatScore   float64      `json:"repeat_score"`
	PairsSampled  int          `json:"pairs_sampled"`
	PairsFailed   int          `json:"pairs_failed"`
	RepeatResults []PairResult `json:"repeat_results"`
}

// SupportLevel grades how well a source backs a sentence.
type SupportLevel int

const (
	NotSupported       SupportLevel = -1
	PartiallySupported SupportLevel = 0
	FullySupported     SupportLevel = 1
)

func (l SupportLevel) Valid() bool {
	return l >= NotSupported && l <= FullySupported
}

type FactVerdict struct {
	SupportLevel     SupportLevel `json:"support_level"`
	EvidenceSentence string       `json:"evidence_sentence"`
}
