package userdict

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Leon0824/rimeime/pkg/syllable"
)

func openTestDict(t *testing.T) *UserDictionary {
	t.Helper()
	dir := t.TempDir()
	u, err := Open(filepath.Join(dir, "user.db"))
	require.NoError(t, err)
	t.Cleanup(func() { u.Close() })
	return u
}

func straightGraph() *syllable.Graph {
	return &syllable.Graph{
		InterpretedLength: 4,
		Vertices:          map[int]syllable.SpellingType{0: syllable.Normal, 2: syllable.Normal, 4: syllable.Normal},
		Edges: map[int]map[int]map[int32]syllable.Properties{
			0: {2: {1: {EndPos: 2, Type: syllable.Normal, Credibility: 1}}},
			2: {4: {2: {EndPos: 4, Type: syllable.Normal, Credibility: 1}}},
		},
	}
}

func TestUpdateEntryThenLookup(t *testing.T) {
	u := openTestDict(t)
	g := straightGraph()

	require.NoError(t, u.UpdateEntry([]int32{1, 2}, "好吗", 1))

	collector := u.DfsLookup(g, 0)
	require.Contains(t, collector, 4)
	entry, ok := collector[4].Next()
	require.True(t, ok)
	assert.Equal(t, "好吗", entry.Text)
	assert.Greater(t, entry.Weight, 0.0)
}

func TestUpdateEntryNegativeCommitHidesEntry(t *testing.T) {
	u := openTestDict(t)
	g := straightGraph()

	require.NoError(t, u.UpdateEntry([]int32{1, 2}, "好吗", 1))
	require.NoError(t, u.UpdateEntry([]int32{1, 2}, "好吗", -1))

	collector := u.DfsLookup(g, 0)
	it, ok := collector[4]
	if ok {
		_, hasEntry := it.Next()
		assert.False(t, hasEntry)
	}
}

func TestDfsLookupDistinguishesPrefixSiblings(t *testing.T) {
	u := openTestDict(t)
	require.NoError(t, u.UpdateEntry([]int32{1}, "哈", 1))
	require.NoError(t, u.UpdateEntry([]int32{10}, "蛤", 1))

	g := &syllable.Graph{
		InterpretedLength: 2,
		Vertices:          map[int]syllable.SpellingType{0: syllable.Normal, 2: syllable.Normal},
		Edges: map[int]map[int]map[int32]syllable.Properties{
			0: {
				2: {
					1:  {EndPos: 2, Type: syllable.Normal, Credibility: 1},
					10: {EndPos: 2, Type: syllable.Normal, Credibility: 1},
				},
			},
		},
	}

	collector := u.DfsLookup(g, 0)
	require.Contains(t, collector, 2)
	var texts []string
	for {
		e, ok := collector[2].Next()
		if !ok {
			break
		}
		texts = append(texts, e.Text)
	}
	assert.ElementsMatch(t, []string{"哈", "蛤"}, texts)
}

func TestFormulaDMonotonicallyDecaysWithElapsedTicks(t *testing.T) {
	near := formulaD(0, 100, 10, 90)
	far := formulaD(0, 1000, 10, 90)
	assert.Greater(t, near, far)
}

func TestFormatValueRoundTrips(t *testing.T) {
	v, err := parseValue(formatValue(3, 1.5, 42))
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.c)
	assert.Equal(t, 42, int(v.t))
}
