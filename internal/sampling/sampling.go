// Package sampling picks the section pairs that get compared for repetition.
package sampling

import (
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"reportjudge/internal/domain"
)

const DefaultMinChars = 200

// urlMarkers flag sections that quote sources; those are left out of comparisons.
var urlMarkers = []string{"http://", "https://"}

type Filter struct {
	// MinChars is the minimum rendered length, in runes, of an eligible section.
	MinChars int
}

// Eligible drops the first and last section of the document, then any section whose
// rendered text contains a URL or is shorter than f.MinChars.
func Eligible(sections []domain.Section, f Filter) []domain.Section {
	if len(sections) <= 2 {
		return nil
	}
	inner := sections[1 : len(sections)-1]
	out := make([]domain.Section, 0, len(inner))
	for _, s := range inner {
		text := s.Text()
		if containsURL(text) {
			continue
		}
		if utf8.RuneCountInString(text) < f.MinChars {
			continue
		}
		out = append(out, s)
	}
	return out
}

func containsURL(text string) bool {
	for _, m := range urlMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// MaxPairs returns n*(n-1)/2.
func MaxPairs(n int) int {
	if n < 2 {
		return 0
	}
	return n * (n - 1) / 2
}

// Pairs draws up to k distinct unordered pairs over n items. When k covers the whole
// pair space every pair is returned in lexicographic order; otherwise k pairs are drawn
// uniformly without replacement. A nil rng uses a time-seeded source.
func Pairs(n, k int, rng *rand.Rand) []domain.SectionPair {
	total := MaxPairs(n)
	if total == 0 || k <= 0 {
		return []domain.SectionPair{}
	}

	all := make([]domain.SectionPair, 0, total)
	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			all = append(all, domain.SectionPair{I: i, J: j})
		}
	}
	if k >= total {
		return all
	}

	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	// Partial Fisher-Yates: the first k slots end up a uniform sample.
	for i := 0; i < k; i++ {
		j := i + rng.IntN(total-i)
		all[i], all[j] = all[j], all[i]
	}
	return all[:k]
}
