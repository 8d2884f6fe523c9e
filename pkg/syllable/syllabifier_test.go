package syllable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Leon0824/rimeime/pkg/prism"
)

func buildTestPrism(t *testing.T) *prism.Prism {
	t.Helper()
	p := prism.New()
	require.NoError(t, p.Build([]string{"ha", "hao", "ma"}))
	return p
}

// graph soundness: every vertex lies on some path from 0 to
// InterpretedLength, and every edge's endpoints are both vertices.
func assertGraphSound(t *testing.T, g *Graph) {
	t.Helper()
	for start, byEnd := range g.Edges {
		_, ok := g.Vertices[start]
		assert.Truef(t, ok, "edge starts at non-vertex position %d", start)
		for end := range byEnd {
			_, ok := g.Vertices[end]
			assert.Truef(t, ok, "edge ends at non-vertex position %d", end)
		}
	}
}

func TestSyllabifyUnambiguous(t *testing.T) {
	p := buildTestPrism(t)
	s := New(p, "", false)

	g := s.Syllabify("hao")
	assertGraphSound(t, g)

	assert.Equal(t, 3, g.InterpretedLength)
	require.Contains(t, g.Vertices, 0)
	require.Contains(t, g.Vertices, 3)
	assert.Equal(t, Normal, g.Vertices[3])

	edges := g.EdgesFrom(0)
	require.Len(t, edges, 1)
	assert.Equal(t, 3, edges[0].End)
}

func TestSyllabifyMarksAmbiguousJoint(t *testing.T) {
	// "hama" decomposes both as a single run through "ha"+"ma" and,
	// because "ha" is itself a prefix of "hao", only one normal path
	// exists here — use "hama" to exercise the two-edge decomposition
	// [0,4) = [0,2)+[2,4) instead, which is the case this prism can
	// actually produce two distinct Normal decompositions for.
	p := prism.New()
	require.NoError(t, p.Build([]string{"ha", "hama", "ma"}))
	s := New(p, "", false)

	g := s.Syllabify("hama")
	assertGraphSound(t, g)

	// "hama" is itself a normal spelling reaching position 4 directly,
	// and also reachable via "ha"+"ma" through the joint at position 2:
	// that joint must be marked Ambiguous, not pruned away.
	require.Contains(t, g.Vertices, 2)
	assert.Equal(t, Ambiguous, g.Vertices[2])
}

func TestSyllabifyPrunesDeadEnds(t *testing.T) {
	p := buildTestPrism(t)
	s := New(p, "", false)

	// "haz" only matches "ha", leaving "z" uninterpretable; the
	// syllabifier should still produce a sound graph up to its
	// farthest reach (position 2) without panicking on the dangling
	// suffix.
	g := s.Syllabify("haz")
	assertGraphSound(t, g)
	assert.Equal(t, 2, g.InterpretedLength)
	assert.NotContains(t, g.Vertices, 3)
}

func TestSyllabifyDelimiterSkipped(t *testing.T) {
	p := buildTestPrism(t)
	s := New(p, "'", false)

	g := s.Syllabify("ha'ma")
	assertGraphSound(t, g)
	assert.Equal(t, 5, g.InterpretedLength)

	edges := g.EdgesFrom(0)
	require.Len(t, edges, 1)
	assert.Equal(t, 3, edges[0].End) // "ha" (2 bytes) + delimiter (1 byte)
}

func TestSyllabifyCompletion(t *testing.T) {
	p := buildTestPrism(t)
	s := New(p, "", true)

	// "h" alone can't resolve to any syllable, so CommonPrefixSearch
	// finds nothing and the graph would otherwise stop at position 0;
	// completion should extend reachability to the full input via an
	// ExpandSearch match.
	g := s.Syllabify("h")
	assertGraphSound(t, g)
	assert.Equal(t, 1, g.InterpretedLength)

	edges := g.EdgesFrom(0)
	require.NotEmpty(t, edges)
	for _, e := range edges {
		assert.Equal(t, Completion, e.Properties.Type)
		assert.Equal(t, 1, e.End)
	}
}

func TestSyllabifyIndicesLongestFirst(t *testing.T) {
	p := buildTestPrism(t)
	s := New(p, "", false)

	g := s.Syllabify("hao")
	byID, ok := g.Indices[0]
	require.True(t, ok)
	list, ok := byID[1] // "hao"
	require.True(t, ok)
	require.NotEmpty(t, list)
	for i := 1; i < len(list); i++ {
		assert.GreaterOrEqual(t, list[i-1].EndPos, list[i].EndPos)
	}
}
