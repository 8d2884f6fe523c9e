package vocabulary

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Leon0824/rimeime/pkg/table"
)

const testSource = "哈\tha\t1.0\n好\thao\t1.0\n好吗\thao ma\t2.0\n"

func TestParseSource(t *testing.T) {
	entries, err := ParseSource(strings.NewReader(testSource))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"hao", "ma"}, entries[2].Spelling)
	assert.Equal(t, "好吗", entries[2].Text)
	assert.InDelta(t, float32(2.0), entries[2].Weight, 1e-6)
}

func TestParseSourceSkipsMalformed(t *testing.T) {
	src := "只有一列\n好\thao\t1.0\n"
	entries, err := ParseSource(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestBuildRoundTrip(t *testing.T) {
	entries, err := ParseSource(strings.NewReader(testSource))
	require.NoError(t, err)

	v := New()
	v.AddAll(entries)

	compiled, err := v.Build()
	require.NoError(t, err)

	dir := t.TempDir()
	tablePath := filepath.Join(dir, "test.table.bin")
	prismPath := filepath.Join(dir, "test.prism.bin")
	require.NoError(t, compiled.Save(tablePath, prismPath))

	tbl, err := table.Load(tablePath)
	require.NoError(t, err)
	defer tbl.Close()

	haoID, ok := compiled.Prism.GetValue("hao")
	require.True(t, ok)
	maID, ok := compiled.Prism.GetValue("ma")
	require.True(t, ok)

	result := tbl.QueryPhrases(table.Code{haoID, maID})
	require.Len(t, result, 1)
	assert.Equal(t, "好吗", result[0].Text)
}
