package prism

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestPrism(t *testing.T) *Prism {
	t.Helper()
	p := New()
	require.NoError(t, p.Build([]string{"h", "ha", "hao", "ma"}))
	return p
}

func TestCommonPrefixSearch(t *testing.T) {
	p := buildTestPrism(t)

	matches := p.CommonPrefixSearch("hao")
	require.Len(t, matches, 3)

	byLength := map[int]int32{}
	for _, m := range matches {
		byLength[m.Length] = m.Value
	}
	assert.Contains(t, byLength, 1)
	assert.Contains(t, byLength, 2)
	assert.Contains(t, byLength, 3)
}

func TestCommonPrefixSearchNoMatch(t *testing.T) {
	p := buildTestPrism(t)
	assert.Empty(t, p.CommonPrefixSearch("xyz"))
}

func TestExpandSearchOrdersByLength(t *testing.T) {
	p := New()
	require.NoError(t, p.Build([]string{"ma", "mama", "man"}))

	matches := p.ExpandSearch("ma", 512)
	require.Len(t, matches, 3)
	assert.Equal(t, 2, matches[0].Length)
	assert.LessOrEqual(t, matches[0].Length, matches[1].Length)
	assert.LessOrEqual(t, matches[1].Length, matches[2].Length)
}

func TestExpandSearchRespectsLimit(t *testing.T) {
	p := New()
	require.NoError(t, p.Build([]string{"ma", "mab", "mac", "mad"}))

	matches := p.ExpandSearch("ma", 2)
	assert.Len(t, matches, 2)
}

func TestHasKeyAndGetValue(t *testing.T) {
	p := buildTestPrism(t)

	assert.True(t, p.HasKey("hao"))
	assert.False(t, p.HasKey("ha0"))

	v, ok := p.GetValue("ha")
	require.True(t, ok)
	assert.EqualValues(t, 1, v)

	_, ok = p.GetValue("h a")
	assert.False(t, ok)
}

func TestQuerySpellingDefaultsToNormal(t *testing.T) {
	p := buildTestPrism(t)
	v, ok := p.GetValue("hao")
	require.True(t, ok)

	entries := p.QuerySpelling(v)
	require.Len(t, entries, 1)
	assert.Equal(t, Normal, entries[0].Properties.Type)
	assert.Equal(t, 1.0, entries[0].Properties.Credibility)
	assert.Equal(t, v, entries[0].SyllableID)
}

func TestQuerySpellingAlgebraOverride(t *testing.T) {
	p := buildTestPrism(t)
	v, ok := p.GetValue("ha")
	require.True(t, ok)

	p.AddAlgebra(v, []SpellingEntry{
		{SyllableID: v, Properties: SpellingProperties{Type: Normal, Credibility: 1}},
		{SyllableID: v, Properties: SpellingProperties{Type: Fuzzy, Credibility: 0.5}},
	})

	entries := p.QuerySpelling(v)
	require.Len(t, entries, 2)
	assert.Equal(t, Fuzzy, entries[1].Properties.Type)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.prism.bin")

	p := buildTestPrism(t)
	require.NoError(t, p.Save(path))

	loaded := New()
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, p.Len(), loaded.Len())
	for _, spelling := range []string{"h", "ha", "hao", "ma"} {
		want, ok := p.GetValue(spelling)
		require.True(t, ok)
		got, ok := loaded.GetValue(spelling)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestBuildRejectsUnsortedInput(t *testing.T) {
	p := New()
	err := p.Build([]string{"hao", "ha"})
	assert.Error(t, err)
}
