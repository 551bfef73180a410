// Package section splits report text into heading-delimited sections.
package section

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"reportjudge/internal/domain"
)

// ErrMalformedDocument is returned when a document contains no top-level heading.
var ErrMalformedDocument = errors.New("malformed document: no top-level headings")

const DefaultHeadingPattern = `^## .*$`

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

type Sectioner struct {
	heading *regexp.Regexp
}

// New compiles pattern in multi-line mode so ^ and $ anchor at line boundaries.
func New(pattern string) (*Sectioner, error) {
	if pattern == "" {
		pattern = DefaultHeadingPattern
	}
	re, err := regexp.Compile("(?m)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling heading pattern: %w", err)
	}
	return &Sectioner{heading: re}, nil
}

// Default returns a Sectioner for "## " headings.
func Default() *Sectioner {
	s, _ := New(DefaultHeadingPattern)
	return s
}

// Split partitions text into ordered sections. Each heading opens a section that runs
// to the next heading or the end of the document. Non-blank text before the first
// heading becomes a preamble section with an empty heading.
func (s *Sectioner) Split(text string) ([]domain.Section, error) {
	// Matches are found left to right, each search resuming at the previous
	// match's end, so repeated heading text never resolves to an earlier line.
	locs := s.heading.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil, ErrMalformedDocument
	}

	sections := make([]domain.Section, 0, len(locs)+1)
	if preamble := strings.TrimSpace(text[:locs[0][0]]); preamble != "" {
		sections = append(sections, domain.Section{Index: 0, Body: preamble})
	}

	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		sections = append(sections, domain.Section{
			Index:   len(sections),
			Heading: strings.TrimSpace(text[loc[0]:loc[1]]),
			Body:    strings.TrimSpace(text[loc[1]:end]),
		})
	}
	return sections, nil
}

// SplitParagraphs splits on blank lines and drops empty paragraphs.
func SplitParagraphs(text string) []string {
	parts := paragraphBreak.Split(strings.TrimSpace(text), -1)
	paragraphs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}
