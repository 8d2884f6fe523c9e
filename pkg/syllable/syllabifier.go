package syllable

import (
	"container/heap"
	"strings"
	"unicode/utf8"

	"github.com/Leon0824/rimeime/internal/logger"
	"github.com/Leon0824/rimeime/internal/utils"
	"github.com/Leon0824/rimeime/pkg/prism"
)

var log = logger.New("syllable")

// Syllabifier turns an input letter string into a Graph by a best-first
// exploration of a Prism, then prunes it to the subgraph that's
// reachable from 0 and co-reachable with the farthest position
// actually interpreted.
type Syllabifier struct {
	Prism            *prism.Prism
	Delimiters       string
	EnableCompletion bool
}

// New returns a Syllabifier over p. delimiters is the configured set of
// ASCII characters ignored between syllables (spec.md §4.3); an empty
// string disables delimiter handling entirely.
func New(p *prism.Prism, delimiters string, enableCompletion bool) *Syllabifier {
	return &Syllabifier{Prism: p, Delimiters: delimiters, EnableCompletion: enableCompletion}
}

// Syllabify builds and prunes the Graph for input. Input that isn't
// worth syllabifying at all -- empty, pure digits, or carrying
// punctuation other than utils.IsSeparator's fixed set (space, ', -,
// _), whatever s.Delimiters holds -- short-circuits to an empty graph
// instead of running the prefix search.
func (s *Syllabifier) Syllabify(input string) *Graph {
	if !utils.IsValidInput(input) {
		g := newGraph(len(input))
		g.Vertices[0] = Normal
		g.buildIndices()
		return g
	}
	g, farthest := s.explore(input)
	g.InterpretedLength = farthest
	pruneGraph(g, farthest)
	s.addCompletions(g, farthest, input)
	g.buildIndices()
	return g
}

type queueItem struct {
	pos   int
	vtype SpellingType
}

type priorityQueue []queueItem

func (q priorityQueue) Len() int { return len(q) }
func (q priorityQueue) Less(i, j int) bool {
	if q[i].vtype != q[j].vtype {
		return q[i].vtype < q[j].vtype
	}
	return q[i].pos < q[j].pos
}
func (q priorityQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *priorityQueue) Push(x any)   { *q = append(*q, x.(queueItem)) }
func (q *priorityQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// explore runs the best-first Dijkstra-like walk over byte positions,
// returning the unpruned graph and the farthest position it reached.
func (s *Syllabifier) explore(input string) (*Graph, int) {
	g := newGraph(len(input))
	best := map[int]SpellingType{0: Normal}
	pq := &priorityQueue{{pos: 0, vtype: Normal}}
	heap.Init(pq)

	farthest := 0
	for pq.Len() > 0 {
		item := heap.Pop(pq).(queueItem)
		if item.vtype > best[item.pos] {
			continue // stale: a better visit to this position already happened
		}
		pos := item.pos
		if pos > farthest {
			farthest = pos
		}
		if pos >= len(input) {
			continue
		}

		matches := s.Prism.CommonPrefixSearch(input[pos:])
		for _, m := range matches {
			if m.Length == 0 {
				continue
			}
			end := skipDelimiters(input, pos+m.Length, s.Delimiters)

			entries := s.Prism.QuerySpelling(m.Value)
			if len(entries) == 0 {
				continue
			}
			edgeBest := Invalid
			for _, se := range entries {
				props := Properties{
					EndPos:      end,
					Type:        se.Properties.Type,
					Credibility: se.Properties.Credibility,
				}
				g.addEdge(pos, end, se.SyllableID, props)
				if props.Type < edgeBest {
					edgeBest = props.Type
				}
			}

			combined := edgeBest
			if cur, ok := best[end]; ok && cur < combined {
				combined = cur
			}
			if cur, ok := best[end]; !ok || combined < cur {
				best[end] = combined
				heap.Push(pq, queueItem{pos: end, vtype: combined})
			}
		}
	}

	for pos, t := range best {
		g.Vertices[pos] = t
	}
	return g, farthest
}

// skipDelimiters advances pos past any run of delimiter runes.
func skipDelimiters(input string, pos int, delimiters string) int {
	if delimiters == "" {
		return pos
	}
	for pos < len(input) {
		r, size := utf8.DecodeRuneInString(input[pos:])
		if !strings.ContainsRune(delimiters, r) {
			break
		}
		pos += size
	}
	return pos
}

// addCompletions appends best-effort edges [farthest, len(input)) from
// expanding-search matches, when enabled and the input wasn't fully
// interpreted. Completion edges never participate in ambiguity marking
// and are added after pruning, so they can't be pruned away themselves.
func (s *Syllabifier) addCompletions(g *Graph, farthest int, input string) {
	if !s.EnableCompletion || farthest >= len(input) {
		return
	}
	matches := s.Prism.ExpandSearch(input[farthest:], 512)
	remaining := len(input) - farthest

	added := false
	for _, m := range matches {
		if m.Length < remaining {
			continue
		}
		for _, se := range s.Prism.QuerySpelling(m.Value) {
			props := Properties{
				EndPos:      len(input),
				Type:        Completion,
				Credibility: se.Properties.Credibility * 0.5,
			}
			g.addEdge(farthest, len(input), se.SyllableID, props)
			added = true
		}
	}
	if !added {
		return
	}
	if cur, ok := g.Vertices[len(input)]; !ok || cur > Completion {
		g.Vertices[len(input)] = Completion
	}
	g.InterpretedLength = len(input)
	log.Debugf("completion extended interpreted length to %d", len(input))
}
