package sampling

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportjudge/internal/domain"
)

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

func assertValidPairs(t *testing.T, n int, pairs []domain.SectionPair) {
	t.Helper()
	seen := make(map[domain.SectionPair]bool, len(pairs))
	for _, p := range pairs {
		require.Less(t, p.I, p.J, "pair must be ordered i<j: %+v", p)
		require.GreaterOrEqual(t, p.I, 0)
		require.Less(t, p.J, n)
		require.False(t, seen[p], "duplicate pair %+v", p)
		seen[p] = true
	}
}

func TestPairsSubsetIsDistinct(t *testing.T) {
	pairs := Pairs(5, 3, seeded(7))
	require.Len(t, pairs, 3)
	assertValidPairs(t, 5, pairs)
}

func TestPairsAllWhenRequestCoversSpace(t *testing.T) {
	for _, k := range []int{10, 11, 100} {
		pairs := Pairs(5, k, seeded(1))
		require.Len(t, pairs, 10)
		assertValidPairs(t, 5, pairs)
	}
	assert.Equal(t, []domain.SectionPair{{I: 0, J: 1}, {I: 0, J: 2}, {I: 1, J: 2}}, Pairs(3, 3, nil))
}

func TestPairsManySeedsNeverRepeat(t *testing.T) {
	for seed := uint64(0); seed < 200; seed++ {
		n := 2 + int(seed%9)
		k := 1 + int(seed%7)
		pairs := Pairs(n, k, seeded(seed))
		want := k
		if m := MaxPairs(n); want > m {
			want = m
		}
		require.Len(t, pairs, want)
		assertValidPairs(t, n, pairs)
	}
}

func TestPairsIsReproducibleWithSeed(t *testing.T) {
	assert.Equal(t, Pairs(8, 5, seeded(42)), Pairs(8, 5, seeded(42)))
}

func TestPairsCoversSpaceUniformly(t *testing.T) {
	rng := seeded(99)
	counts := map[domain.SectionPair]int{}
	const draws = 6000
	for i := 0; i < draws; i++ {
		for _, p := range Pairs(4, 1, rng) {
			counts[p]++
		}
	}
	require.Len(t, counts, 6)
	for p, c := range counts {
		assert.InDelta(t, draws/6, c, 200, "pair %+v drawn %d times", p, c)
	}
}

func TestPairsDegenerateInputs(t *testing.T) {
	assert.Empty(t, Pairs(0, 5, nil))
	assert.Empty(t, Pairs(1, 5, nil))
	assert.Empty(t, Pairs(5, 0, nil))
	assert.NotNil(t, Pairs(1, 5, nil))
}

func section(i int, heading, body string) domain.Section {
	return domain.Section{Index: i, Heading: heading, Body: body}
}

func TestEligibleAppliesFilters(t *testing.T) {
	long := strings.Repeat("word ", 60)
	sections := []domain.Section{
		section(0, "", long),
		section(1, "## Keep A", long),
		section(2, "## Cites", long+" see https://example.com/x"),
		section(3, "## Short", "tiny"),
		section(4, "## Plain http", long+" http://example.org"),
		section(5, "## Keep B", long),
		section(6, "## Last", long),
	}
	got := Eligible(sections, Filter{MinChars: 200})
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Index)
	assert.Equal(t, 5, got[1].Index)
}

func TestEligibleCountsRunes(t *testing.T) {
	body := strings.Repeat("é", 95)
	sections := []domain.Section{
		section(0, "## First", "x"),
		section(1, "## H", body),
		section(2, "## Last", "x"),
	}
	// "## H\n" is 5 runes; 95 two-byte runes make 100 runes but 195 bytes.
	assert.Len(t, Eligible(sections, Filter{MinChars: 100}), 1)
	assert.Empty(t, Eligible(sections, Filter{MinChars: 101}))
}

func TestEligibleNeedsInnerSections(t *testing.T) {
	long := strings.Repeat("x", 300)
	assert.Empty(t, Eligible([]domain.Section{section(0, "## A", long), section(1, "## B", long)}, Filter{}))
	assert.Empty(t, Eligible(nil, Filter{}))
}

func TestNothingToCompareYieldsNoPairs(t *testing.T) {
	long := strings.Repeat("x", 300)
	sections := []domain.Section{section(0, "## A", long), section(1, "## B", long), section(2, "## C", long)}
	eligible := Eligible(sections, Filter{MinChars: 200})
	require.Len(t, eligible, 1)
	assert.Empty(t, Pairs(len(eligible), 30, nil))
}
