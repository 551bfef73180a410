package domain

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// PreambleTitle labels the text that precedes the first heading.
const PreambleTitle = "Beginning of the report"

type CorpusItem struct {
	Topic  string `json:"topic"`
	Report string `json:"report"`
}

type Report struct {
	ID      string
	Topic   string
	RawText string
}

// ReportID derives the stable checkpoint key and artifact name from the topic text.
func ReportID(topic string) string {
	sum := md5.Sum([]byte(topic))
	return hex.EncodeToString(sum[:])
}

func NewReport(item CorpusItem) Report {
	return Report{
		ID:      ReportID(item.Topic),
		Topic:   item.Topic,
		RawText: item.Report,
	}
}

// Section is a heading-delimited span of a report. Heading is empty for the preamble.
type Section struct {
	Index   int
	Heading string
	Body    string
}

func (s Section) IsPreamble() bool {
	return s.Heading == ""
}

func (s Section) Title() string {
	if s.IsPreamble() {
		return PreambleTitle
	}
	return s.Heading
}

// Text is the passage shown to the oracle: title line followed by the body.
func (s Section) Text() string {
	var b strings.Builder
	b.Grow(len(s.Title()) + 1 + len(s.Body))
	b.WriteString(s.Title())
	b.WriteByte('\n')
	b.WriteString(s.Body)
	return b.String()
}

// SectionPair is an unordered pair of positions with I < J.
type SectionPair struct {
	I int
	J int
}
