package syllable

// pruneGraph drops every vertex and edge that isn't co-reachable with
// farthest, walking backward from farthest to 0. Along the way it marks
// ambiguous joints: a vertex j is Ambiguous iff some surviving edge
// [i,e) is also decomposable as [i,j)+[j,e) with both halves Normal.
//
// last_type starts at the type of farthest and is only ever raised, never
// lowered, once an Ambiguous mark has been made — this is the later-revision
// behavior the spec calls out explicitly (see DESIGN.md), chosen so an
// ambiguous joint is never itself pruned by a subsequent, stricter last_type.
func pruneGraph(g *Graph, farthest int) {
	lastType, ok := g.Vertices[farthest]
	if !ok {
		lastType = Normal
	}
	good := map[int]bool{farthest: true}

	for i := farthest - 1; i >= 0; i-- {
		byEnd, hasEdges := g.Edges[i]
		if hasEdges {
			for end, byID := range byEnd {
				if !good[end] {
					delete(byEnd, end)
					continue
				}
				for id, props := range byID {
					if props.Type > lastType {
						delete(byID, id)
					}
				}
				if len(byID) == 0 {
					delete(byEnd, end)
				}
			}
			if len(byEnd) == 0 {
				delete(g.Edges, i)
			}
		}

		for end, byID := range g.Edges[i] {
			if edgeBestType(byID) != Normal {
				continue
			}
			for j := i + 1; j < end; j++ {
				if !edgeHasNormalAt(g.Edges[i], j) {
					continue
				}
				if !edgeHasNormalAt(g.Edges[j], end) {
					continue
				}
				g.Vertices[j] = Ambiguous
				if lastType < Ambiguous {
					lastType = Ambiguous
				}
			}
		}

		vtype, seen := g.Vertices[i]
		keep := i == 0 || (seen && vtype <= lastType && len(g.Edges[i]) > 0)
		if keep {
			good[i] = true
		} else {
			delete(g.Vertices, i)
			delete(g.Edges, i)
		}
	}

	for start := range g.Edges {
		if !good[start] {
			delete(g.Edges, start)
		}
	}
	for pos := range g.Vertices {
		if !good[pos] {
			delete(g.Vertices, pos)
		}
	}
}

// edgeBestType returns the smallest SpellingType among an edge's
// candidate syllables, or Invalid if the edge has none left.
func edgeBestType(byID map[int32]Properties) SpellingType {
	best := Invalid
	seen := false
	for _, p := range byID {
		if !seen || p.Type < best {
			best = p.Type
			seen = true
		}
	}
	return best
}

// edgeHasNormalAt reports whether byEnd holds an edge ending at end
// whose best remaining type is exactly Normal.
func edgeHasNormalAt(byEnd map[int]map[int32]Properties, end int) bool {
	byID, ok := byEnd[end]
	if !ok {
		return false
	}
	return edgeBestType(byID) == Normal
}
