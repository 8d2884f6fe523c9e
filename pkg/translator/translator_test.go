package translator

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Leon0824/rimeime/pkg/dictionary"
	"github.com/Leon0824/rimeime/pkg/syllable"
	"github.com/Leon0824/rimeime/pkg/userdict"
	"github.com/Leon0824/rimeime/pkg/vocabulary"
)

const testSource = "哈\tha\t1.0\n好\thao\t1.0\n好吗\thao ma\t2.0\n"

func buildTestTranslator(t *testing.T) (*Translator, func()) {
	t.Helper()
	entries, err := vocabulary.ParseSource(strings.NewReader(testSource))
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, dictionary.Compile(dir, "test", entries))
	d, err := dictionary.Load(dir, "test")
	require.NoError(t, err)

	u, err := userdict.Open(filepath.Join(dir, "user.db"))
	require.NoError(t, err)

	tr := &Translator{Dict: d, UserDict: u, EnableUserDict: true, Delimiters: " "}
	return tr, func() { d.Close(); u.Close() }
}

func straightGraph() *syllable.Graph {
	return &syllable.Graph{
		InterpretedLength: 6,
		Vertices:          map[int]syllable.SpellingType{0: syllable.Normal, 2: syllable.Normal, 6: syllable.Normal},
		Edges: map[int]map[int]map[int32]syllable.Properties{
			0: {2: {1: {EndPos: 2, Type: syllable.Normal, Credibility: 1}}},
			2: {6: {2: {EndPos: 6, Type: syllable.Normal, Credibility: 1}}},
		},
	}
}

func TestTranslateRanksByEndPosition(t *testing.T) {
	tr, cleanup := buildTestTranslator(t)
	defer cleanup()

	translation := tr.Translate(straightGraph(), 0)
	candidates := translation.Candidates()
	require.NotEmpty(t, candidates)
	assert.Equal(t, "好吗", candidates[0].Text)
}

func TestTranslateUserPhraseWinsTie(t *testing.T) {
	tr, cleanup := buildTestTranslator(t)
	defer cleanup()

	g := &syllable.Graph{
		InterpretedLength: 2,
		Vertices:          map[int]syllable.SpellingType{0: syllable.Normal, 2: syllable.Normal},
		Edges: map[int]map[int]map[int32]syllable.Properties{
			0: {2: {1: {EndPos: 2, Type: syllable.Normal, Credibility: 1}}},
		},
	}
	require.NoError(t, tr.UserDict.UpdateEntry([]int32{1}, "哈", 1))

	translation := tr.Translate(g, 0)
	candidates := translation.Candidates()
	require.NotEmpty(t, candidates)
	assert.Equal(t, "user_phrase", candidates[0].Type)
	assert.Equal(t, "哈", candidates[0].Text)
}

func TestTextDedupDropsRepeatedText(t *testing.T) {
	tr, cleanup := buildTestTranslator(t)
	defer cleanup()
	// Same code (1, "hao"'s id) and text the table dictionary already
	// produces at this end position, so without dedup this would
	// surface "好" twice: once from the table, once from the user dict.
	require.NoError(t, tr.UserDict.UpdateEntry([]int32{1}, "好", 5))

	g := &syllable.Graph{
		InterpretedLength: 3,
		Vertices:          map[int]syllable.SpellingType{0: syllable.Normal, 3: syllable.Normal},
		Edges: map[int]map[int]map[int32]syllable.Properties{
			0: {3: {1: {EndPos: 3, Type: syllable.Normal, Credibility: 1}}},
		},
	}
	translation := tr.Translate(g, 0)
	count := 0
	for _, c := range translation.Candidates() {
		if c.Text == "好" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestRenderPreeditInsertsDelimiterAtAmbiguousJoint(t *testing.T) {
	g := &syllable.Graph{
		InterpretedLength: 5,
		Vertices:          map[int]syllable.SpellingType{0: syllable.Normal, 2: syllable.Normal, 5: syllable.Normal},
		Edges: map[int]map[int]map[int32]syllable.Properties{
			0: {2: {1: {EndPos: 2, Type: syllable.Normal, Credibility: 1}}},
			2: {5: {2: {EndPos: 5, Type: syllable.Normal, Credibility: 1}}},
		},
		Indices: map[int]map[int32][]syllable.Properties{
			0: {1: {{EndPos: 2, Type: syllable.Normal, Credibility: 1}}},
			2: {2: {{EndPos: 5, Type: syllable.Normal, Credibility: 1}}},
		},
	}
	// "haoma" has no literal separator between "ha" and "oma", so
	// RenderPreedit inserts one to disambiguate the joint.
	out := RenderPreedit(g, "haoma", []int32{1, 2}, " ")
	assert.Equal(t, "ha oma", out)
}

func TestRenderPreeditKeepsLiteralDelimiter(t *testing.T) {
	// "ha'oma": the syllabifier skips the literal "'" between edges, so
	// the second edge's vertex sits at position 3, not 2.
	g := &syllable.Graph{
		InterpretedLength: 6,
		Vertices:          map[int]syllable.SpellingType{0: syllable.Normal, 3: syllable.Normal, 6: syllable.Normal},
		Edges: map[int]map[int]map[int32]syllable.Properties{
			0: {2: {1: {EndPos: 2, Type: syllable.Normal, Credibility: 1}}},
			3: {6: {2: {EndPos: 6, Type: syllable.Normal, Credibility: 1}}},
		},
		Indices: map[int]map[int32][]syllable.Properties{
			0: {1: {{EndPos: 2, Type: syllable.Normal, Credibility: 1}}},
			3: {2: {{EndPos: 6, Type: syllable.Normal, Credibility: 1}}},
		},
	}
	out := RenderPreedit(g, "ha'oma", []int32{1, 2}, "'")
	assert.Equal(t, "ha'oma", out)
}
