package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReportIDIsMD5OfTopic(t *testing.T) {
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", ReportID("abc"))
	assert.Equal(t, ReportID("same topic"), ReportID("same topic"))
	assert.NotEqual(t, ReportID("topic a"), ReportID("topic b"))
}

func TestNewReportCarriesID(t *testing.T) {
	r := NewReport(CorpusItem{Topic: "abc", Report: "body"})
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", r.ID)
	assert.Equal(t, "body", r.RawText)
}

func TestSectionTextUsesPreambleTitle(t *testing.T) {
	pre := Section{Index: 0, Body: "intro"}
	assert.True(t, pre.IsPreamble())
	assert.Equal(t, "Beginning of the report\nintro", pre.Text())

	sec := Section{Index: 1, Heading: "## Findings", Body: "details"}
	assert.False(t, sec.IsPreamble())
	assert.Equal(t, "## Findings\ndetails", sec.Text())
}

func TestSupportLevelValid(t *testing.T) {
	assert.True(t, NotSupported.Valid())
	assert.True(t, FullySupported.Valid())
	assert.False(t, SupportLevel(2).Valid())
}
