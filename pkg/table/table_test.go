package table

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTestTable assembles a small table over syllables {ha=0, hao=1, ma=2}
// with entries ("ha","哈",1.0), ("hao","好",1.0), ("hao ma","好吗",2.0).
func buildTestTable(t *testing.T) *Table {
	t.Helper()
	syllabary := []string{"ha", "hao", "ma"}
	root := NewBuildNode()
	root.Insert(Code{0}, "哈", 1.0, 0)
	root.Insert(Code{1}, "好", 1.0, 0)
	root.Insert(Code{1, 2}, "好吗", 2.0, 0)

	data, err := Encode(syllabary, root, 3)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "test.table.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	tbl, err := Load(path)
	require.NoError(t, err)
	t.Cleanup(func() { tbl.Close() })
	return tbl
}

func TestQueryWords(t *testing.T) {
	tbl := buildTestTable(t)

	entries := tbl.QueryWords(0)
	var got []Row
	for {
		row, _, ok := entries.Next()
		if !ok {
			break
		}
		got = append(got, row)
	}
	require.Len(t, got, 1)
	assert.Equal(t, "哈", got[0].Entry.Text)
}

func TestQueryPhrasesExactLengths(t *testing.T) {
	tbl := buildTestTable(t)

	single := tbl.QueryPhrases(Code{1})
	require.Len(t, single, 1)
	assert.Equal(t, "好", single[0].Text)

	pair := tbl.QueryPhrases(Code{1, 2})
	require.Len(t, pair, 1)
	assert.Equal(t, "好吗", pair[0].Text)
	assert.InDelta(t, 2.0, pair[0].Weight, 1e-9)
}

func TestQueryPhrasesNoMatch(t *testing.T) {
	tbl := buildTestTable(t)
	assert.Empty(t, tbl.QueryPhrases(Code{2, 0}))
}

func TestSyllableAndDecode(t *testing.T) {
	tbl := buildTestTable(t)

	s, ok := tbl.Syllable(1)
	require.True(t, ok)
	assert.Equal(t, "hao", s)

	decoded := tbl.Decode(Code{0, 2})
	assert.Equal(t, []string{"ha", "ma"}, decoded)
}

func TestLoadRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.table.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 64), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

// TestQueryFollowsGraphEdges exercises the breadth-first Query path used
// by pkg/dictionary, over a graph with edge [0,2)->{hao} (id=1) and a
// continuation [2,6)->{ma} (id=2) reachable only once the visitor has
// walked past "hao".
func TestQueryFollowsGraphEdges(t *testing.T) {
	tbl := buildTestTable(t)

	edgesByPos := map[int][]SyllableAt{
		0: {{SyllableID: 1, EndPos: 2, Credibility: 1}},
		2: {{SyllableID: 2, EndPos: 6, Credibility: 1}},
	}
	result := tbl.Query(0, 6, func(pos int) []SyllableAt { return edgesByPos[pos] })

	require.Contains(t, result, 2)
	row, _, ok := result[2].Next()
	require.True(t, ok)
	assert.Equal(t, "好", row.Entry.Text)

	require.Contains(t, result, 6)
	row, _, ok = result[6].Next()
	require.True(t, ok)
	assert.Equal(t, "好吗", row.Entry.Text)
}
