package engine

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Leon0824/rimeime/internal/keysym"
	"github.com/Leon0824/rimeime/pkg/dictionary"
	"github.com/Leon0824/rimeime/pkg/prism"
	"github.com/Leon0824/rimeime/pkg/syllable"
	"github.com/Leon0824/rimeime/pkg/translator"
	"github.com/Leon0824/rimeime/pkg/userdict"
	"github.com/Leon0824/rimeime/pkg/vocabulary"
)

const testSource = "哈\tha\t1.0\n好\thao\t1.0\n好吗\thao ma\t2.0\n"

func buildTestEngine(t *testing.T) (*Engine, func()) {
	t.Helper()
	entries, err := vocabulary.ParseSource(strings.NewReader(testSource))
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, dictionary.Compile(dir, "test", entries))
	d, err := dictionary.Load(dir, "test")
	require.NoError(t, err)

	u, err := userdict.Open(filepath.Join(dir, "user.db"))
	require.NoError(t, err)

	p := prism.New()
	require.NoError(t, p.Build([]string{"ha", "hao", "ma"}))
	syllabifier := syllable.New(p, " ", false)

	tr := &translator.Translator{Dict: d, UserDict: u, EnableUserDict: true, Delimiters: " "}
	e := New(syllabifier, tr, " ")
	return e, func() { d.Close(); u.Close() }
}

func TestTypingProducesCandidates(t *testing.T) {
	e, cleanup := buildTestEngine(t)
	defer cleanup()

	for _, r := range "hao" {
		e.ProcessKey(keysym.KeyEvent{KeyCode: uint32(r)})
	}

	status := e.Status()
	assert.True(t, status.IsComposing)
	assert.True(t, status.HasCandidates)

	seg := e.Context.Composition.LastSegment()
	require.NotNil(t, seg)
	assert.Equal(t, "好", seg.Menu.Candidates()[0].Text)
}

func TestSelectAndCommitClearsContext(t *testing.T) {
	e, cleanup := buildTestEngine(t)
	defer cleanup()

	for _, r := range "hao" {
		e.ProcessKey(keysym.KeyEvent{KeyCode: uint32(r)})
	}
	require.True(t, e.Select(0))
	require.True(t, e.ConfirmCurrentSelection())

	text := e.Commit()
	assert.Equal(t, "好", text)
	assert.False(t, e.Context.IsComposing())
	assert.Empty(t, e.Context.Composition.Segments)
}

func TestCommitRecordsUserDictionaryEntry(t *testing.T) {
	e, cleanup := buildTestEngine(t)
	defer cleanup()

	require.True(t, e.SimulateKeySequence("hao"))
	require.True(t, e.Select(0))
	require.True(t, e.ConfirmCurrentSelection())
	e.Commit()

	tick := e.Translator.UserDict
	require.NotNil(t, tick)

	haoID, ok := e.Syllabifier.Prism.GetValue("hao")
	require.True(t, ok)

	g := &syllable.Graph{
		InterpretedLength: 3,
		Vertices:          map[int]syllable.SpellingType{0: syllable.Normal, 3: syllable.Normal},
		Edges: map[int]map[int]map[int32]syllable.Properties{
			0: {3: {haoID: {EndPos: 3, Type: syllable.Normal, Credibility: 1}}},
		},
	}
	collector := tick.DfsLookup(g, 0)
	require.Contains(t, collector, 3)
	entry, ok := collector[3].Next()
	require.True(t, ok)
	assert.Equal(t, "好", entry.Text)
}

func TestBackspaceShrinksInputAndResegments(t *testing.T) {
	e, cleanup := buildTestEngine(t)
	defer cleanup()

	require.True(t, e.SimulateKeySequence("hao"))
	require.True(t, e.ProcessKey(keysym.KeyEvent{KeyCode: keysym.KeyBackSpace}))
	assert.Equal(t, "ha", e.Context.Input())
}

func TestEscapeClearsComposition(t *testing.T) {
	e, cleanup := buildTestEngine(t)
	defer cleanup()

	require.True(t, e.SimulateKeySequence("hao"))
	require.True(t, e.ProcessKey(keysym.KeyEvent{KeyCode: keysym.KeyEscape}))
	assert.False(t, e.Context.IsComposing())
}

func TestSimulateKeySequenceRejectsNonAscii(t *testing.T) {
	e, cleanup := buildTestEngine(t)
	defer cleanup()
	assert.False(t, e.SimulateKeySequence("hao你"))
}
