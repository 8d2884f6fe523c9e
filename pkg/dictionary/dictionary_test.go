package dictionary

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Leon0824/rimeime/pkg/syllable"
	"github.com/Leon0824/rimeime/pkg/vocabulary"
)

const testSource = "哈\tha\t1.0\n好\thao\t1.0\n好吗\thao ma\t2.0\n"

func compileTestDict(t *testing.T) (*Dictionary, func()) {
	t.Helper()
	entries, err := vocabulary.ParseSource(strings.NewReader(testSource))
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, Compile(dir, "test", entries))

	d, err := Load(dir, "test")
	require.NoError(t, err)
	return d, func() { d.Close() }
}

func TestLookupWordsExact(t *testing.T) {
	d, cleanup := compileTestDict(t)
	defer cleanup()

	got := d.LookupWords("hao ma", false)
	require.Len(t, got, 1)
	assert.Equal(t, "好吗", got[0].Text)
}

func TestLookupWordsUnresolvableSpelling(t *testing.T) {
	d, cleanup := compileTestDict(t)
	defer cleanup()

	assert.Nil(t, d.LookupWords("zzz", false))
}

func TestLoadSharesRegistryAcrossCallers(t *testing.T) {
	d1, cleanup := compileTestDict(t)
	defer cleanup()

	dirName := d1.name
	d2, err := Load(".", dirName)
	// Load ignores dir on a registry hit, so this should succeed and
	// share the same underlying entry rather than trying (and failing)
	// to open "./test.table.bin".
	require.NoError(t, err)
	assert.Same(t, d1.entry, d2.entry)
	require.NoError(t, d2.Close())
}

func TestLookupWalksSyllableGraph(t *testing.T) {
	d, cleanup := compileTestDict(t)
	defer cleanup()

	g := &syllable.Graph{
		InterpretedLength: 6,
		Vertices:          map[int]syllable.SpellingType{0: syllable.Normal, 2: syllable.Normal, 6: syllable.Normal},
		Edges: map[int]map[int]map[int32]syllable.Properties{
			0: {2: {1: {EndPos: 2, Type: syllable.Normal, Credibility: 1}}},
			2: {6: {2: {EndPos: 6, Type: syllable.Normal, Credibility: 1}}},
		},
	}

	collector := d.Lookup(g, 0)
	require.Contains(t, collector, 2)
	entry, ok := collector[2].Next()
	require.True(t, ok)
	assert.Equal(t, "好", entry.Text)

	require.Contains(t, collector, 6)
	entry, ok = collector[6].Next()
	require.True(t, ok)
	assert.Equal(t, "好吗", entry.Text)
}
