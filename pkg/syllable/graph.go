// Package syllable turns a raw spelling string into a SyllableGraph: a
// DAG over byte positions whose edges are labeled with the syllables
// that can span them, built by a best-first exploration of a Prism.
package syllable

import "github.com/Leon0824/rimeime/pkg/prism"

// SpellingType and SpellingProperties are re-exported from pkg/prism so
// callers of this package never need to import prism directly just to
// read a graph.
type SpellingType = prism.SpellingType

const (
	Normal       = prism.Normal
	Fuzzy        = prism.Fuzzy
	Abbreviation = prism.Abbreviation
	Completion   = prism.Completion
	Ambiguous    = prism.Ambiguous
	Invalid      = prism.Invalid
)

// Properties describes one way a spelling resolves at a specific graph
// edge: where that edge ends, under what type, and with what
// credibility. Unlike prism.SpellingProperties, EndPos here is always
// populated — it is filled in as the edge is discovered.
type Properties struct {
	EndPos      int
	Type        SpellingType
	Credibility float64
}

// Graph is the syllabifier's output: a DAG over byte positions in the
// input, pruned so that every surviving vertex lies on some path from
// 0 to InterpretedLength.
type Graph struct {
	InputLength       int
	InterpretedLength int

	// Vertices maps position -> best (smallest) SpellingType reaching it.
	Vertices map[int]SpellingType

	// Edges maps start -> end -> syllable id -> properties.
	Edges map[int]map[int]map[int32]Properties

	// Indices is the transpose of Edges: start -> syllable id -> ordered
	// list of Properties, longest end_pos first.
	Indices map[int]map[int32][]Properties
}

func newGraph(inputLength int) *Graph {
	return &Graph{
		InputLength: inputLength,
		Vertices:    make(map[int]SpellingType),
		Edges:       make(map[int]map[int]map[int32]Properties),
		Indices:     make(map[int]map[int32][]Properties),
	}
}

func (g *Graph) addEdge(start, end int, id int32, props Properties) {
	byEnd, ok := g.Edges[start]
	if !ok {
		byEnd = make(map[int]map[int32]Properties)
		g.Edges[start] = byEnd
	}
	byID, ok := byEnd[end]
	if !ok {
		byID = make(map[int32]Properties)
		byEnd[end] = byID
	}
	byID[id] = props
}

func (g *Graph) removeEdge(start, end int, id int32) {
	byEnd, ok := g.Edges[start]
	if !ok {
		return
	}
	byID, ok := byEnd[end]
	if !ok {
		return
	}
	delete(byID, id)
	if len(byID) == 0 {
		delete(byEnd, end)
	}
	if len(byEnd) == 0 {
		delete(g.Edges, start)
	}
}

// EdgesFrom returns every (end, id, props) triple starting at pos, a
// convenience for callers (Table.Query's syllablesAt callback, the
// translator's preedit DFS) that don't want to walk the nested maps
// themselves.
func (g *Graph) EdgesFrom(pos int) []struct {
	End        int
	SyllableID int32
	Properties Properties
} {
	var out []struct {
		End        int
		SyllableID int32
		Properties Properties
	}
	for end, byID := range g.Edges[pos] {
		for id, props := range byID {
			out = append(out, struct {
				End        int
				SyllableID int32
				Properties Properties
			}{end, id, props})
		}
	}
	return out
}

// buildIndices populates Indices from Edges: for each start, group by
// syllable id, ordered with longer end_pos first (spec.md §3 requires
// indices be iterated longest-match-first).
func (g *Graph) buildIndices() {
	for start, byEnd := range g.Edges {
		for end, byID := range byEnd {
			for id, props := range byID {
				props.EndPos = end
				byStart, ok := g.Indices[start]
				if !ok {
					byStart = make(map[int32][]Properties)
					g.Indices[start] = byStart
				}
				byStart[id] = append(byStart[id], props)
			}
		}
	}
	for _, byID := range g.Indices {
		for id, list := range byID {
			sortPropertiesByEndDesc(list)
			byID[id] = list
		}
	}
}

func sortPropertiesByEndDesc(list []Properties) {
	for i := 1; i < len(list); i++ {
		for j := i; j > 0 && list[j-1].EndPos < list[j].EndPos; j-- {
			list[j-1], list[j] = list[j], list[j-1]
		}
	}
}
