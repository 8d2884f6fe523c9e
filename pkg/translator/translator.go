// Package translator turns a syllable.Graph into ranked Candidates: it
// merges table-dictionary and user-dictionary lookups by the spec's
// ranking rule, falls back to a sentence-making DP when neither
// dictionary covers the whole input, and renders a candidate's code
// back into a preedit string (spec.md §4.6).
package translator

import (
	"math"
	"sort"
	"strings"

	"github.com/Leon0824/rimeime/internal/logger"
	"github.com/Leon0824/rimeime/internal/utils"
	"github.com/Leon0824/rimeime/pkg/dictionary"
	"github.com/Leon0824/rimeime/pkg/syllable"
	"github.com/Leon0824/rimeime/pkg/userdict"
)

var log = logger.New("translator")

const (
	// kMaxSyllablesInSentenceMakingUserPhrases caps how many syllables a
	// user phrase may span before sentence-making stops considering it,
	// so one long-forgotten user phrase can't dominate every sentence.
	kMaxSyllablesInSentenceMakingUserPhrases = 5

	// kMaxSentenceMakingHomophones caps how many candidates sentence
	// making keeps per word position; spec.md names this 1 — only the
	// single best homophone at each node participates in the DP.
	kMaxSentenceMakingHomophones = 1

	sentenceEpsilon = 1e-30
	sentencePenalty = 1e-8
)

// Candidate is one ranked translation output.
type Candidate struct {
	Text    string
	Code    []int32
	Type    string // "table", "user_phrase", or "sentence"
	Weight  float64
	EndPos  int
	Preedit string
}

// Translation is the ordered candidate list produced by one Translate
// call, plus a cursor for Menu pagination.
type Translation struct {
	candidates []Candidate
	pos        int
}

// Next returns the next Candidate, or ok=false once exhausted.
func (tr *Translation) Next() (Candidate, bool) {
	if tr == nil || tr.pos >= len(tr.candidates) {
		return Candidate{}, false
	}
	c := tr.candidates[tr.pos]
	tr.pos++
	return c, true
}

// Candidates returns every candidate produced, without consuming the
// cursor.
func (tr *Translation) Candidates() []Candidate {
	return tr.candidates
}

// Translator merges a table Dictionary and an optional UserDictionary
// into ranked Translations.
type Translator struct {
	Dict             *dictionary.Dictionary
	UserDict         *userdict.UserDictionary
	EnableUserDict   bool
	EnableCompletion bool
	Delimiters       string
}

// Translate produces the ranked Translation for the syllables spanning
// [startPos, g.InterpretedLength).
func (t *Translator) Translate(g *syllable.Graph, startPos int) *Translation {
	phraseFlat := flattenDict(t.Dict.Lookup(g, startPos))

	var userFlat []flatEntry
	if t.EnableUserDict && t.UserDict != nil {
		userFlat = flattenUser(t.UserDict.DfsLookup(g, startPos))
	}

	merged := mergeRanked(phraseFlat, userFlat)

	dedup := utils.NewTextDedup()
	var candidates []Candidate
	maxEnd := startPos
	for _, e := range merged {
		if !dedup.ShouldEmit(e.text) {
			continue
		}
		kind := "table"
		if e.isUser {
			kind = "user_phrase"
		}
		candidates = append(candidates, Candidate{
			Text: e.text, Code: e.code, Type: kind, Weight: e.weight, EndPos: e.endPos,
		})
		if e.endPos > maxEnd {
			maxEnd = e.endPos
		}
	}

	if maxEnd < g.InterpretedLength && len(g.Edges) >= 2 {
		if sentence, ok := t.buildSentence(g, startPos); ok && dedup.ShouldEmit(sentence.Text) {
			candidates = append(candidates, sentence)
		}
	}

	return &Translation{candidates: candidates}
}

// flatEntry is a single candidate flattened out of a DictEntryCollector
// or userdict.Collector, ready to be merged by end position.
type flatEntry struct {
	text   string
	code   []int32
	weight float64
	endPos int
	isUser bool
}

func flattenDict(c dictionary.DictEntryCollector) []flatEntry {
	ends := make([]int, 0, len(c))
	for end := range c {
		ends = append(ends, end)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ends)))

	var out []flatEntry
	for _, end := range ends {
		it := c[end]
		for {
			e, ok := it.Next()
			if !ok {
				break
			}
			out = append(out, flatEntry{text: e.Text, code: e.Code, weight: e.Weight, endPos: end})
		}
	}
	return out
}

func flattenUser(c userdict.Collector) []flatEntry {
	ends := make([]int, 0, len(c))
	for end := range c {
		ends = append(ends, end)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ends)))

	var out []flatEntry
	for _, end := range ends {
		it := c[end]
		for {
			e, ok := it.Next()
			if !ok {
				break
			}
			out = append(out, flatEntry{text: e.Text, code: e.Code, weight: e.Weight, endPos: end, isUser: true})
		}
	}
	return out
}

// mergeRanked merges two end-position-descending flat lists: at each
// step the entry with the larger end position is emitted; ties favor
// the user-phrase side (spec.md §4.6's ranking rule).
func mergeRanked(phrase, user []flatEntry) []flatEntry {
	out := make([]flatEntry, 0, len(phrase)+len(user))
	i, j := 0, 0
	for i < len(phrase) || j < len(user) {
		if j >= len(user) || (i < len(phrase) && phrase[i].endPos > user[j].endPos) {
			out = append(out, phrase[i])
			i++
			continue
		}
		out = append(out, user[j])
		j++
	}
	return out
}

// buildSentence runs the forward sentence-making DP from startPos: at
// each reachable position it re-queries both dictionaries, keeps only
// the single best homophone per end position (kMaxSentenceMakingHomophones),
// and tracks the highest-weight running sentence per position.
func (t *Translator) buildSentence(g *syllable.Graph, startPos int) (Candidate, bool) {
	type state struct {
		text   string
		weight float64
	}
	dp := map[int]state{startPos: {text: "", weight: 1}}

	for pos := startPos; pos < g.InterpretedLength; pos++ {
		cur, ok := dp[pos]
		if !ok {
			continue
		}

		best := make(map[int]flatEntry)

		phraseCollector := t.Dict.Lookup(g, pos)
		for end, it := range phraseCollector {
			if e, ok := it.Next(); ok {
				best[end] = flatEntry{text: e.Text, weight: e.Weight, endPos: end}
			}
		}

		if t.EnableUserDict && t.UserDict != nil {
			userCollector := t.UserDict.DfsLookup(g, pos)
			for end, it := range userCollector {
				e, ok := it.Next()
				if !ok {
					continue
				}
				if len(e.Code) > kMaxSyllablesInSentenceMakingUserPhrases {
					continue
				}
				if existing, ok := best[end]; !ok || e.Weight > existing.weight {
					best[end] = flatEntry{text: e.Text, weight: e.Weight, endPos: end, isUser: true}
				}
			}
		}

		for end, entry := range best {
			weight := cur.weight * math.Max(entry.weight, sentenceEpsilon) * sentencePenalty
			next := state{text: cur.text + entry.text, weight: weight}
			if existing, ok := dp[end]; !ok || weight > existing.weight {
				dp[end] = next
			}
		}
	}

	final, ok := dp[g.InterpretedLength]
	if !ok || final.text == "" {
		return Candidate{}, false
	}
	log.Debugf("sentence-making produced %q for input up to %d", final.text, g.InterpretedLength)
	return Candidate{Text: final.text, Type: "sentence", Weight: final.weight, EndPos: g.InterpretedLength}, true
}

// RenderPreedit walks g's Indices from pos 0 following code, emitting
// rawInput's own substrings edge by edge and preferring the longest
// edge recorded for each syllable id. Between edges, a literal
// delimiter byte already present in rawInput is kept and consumed;
// otherwise one is synthesized so an ambiguous joint still reads
// unambiguously (spec.md §4.6).
func RenderPreedit(g *syllable.Graph, rawInput string, code []int32, delimiters string) string {
	var b strings.Builder
	pos := 0
	for _, id := range code {
		sep, start := "", pos
		if b.Len() > 0 && delimiters != "" {
			switch {
			case pos < len(rawInput) && strings.ContainsRune(delimiters, rune(rawInput[pos])):
				sep, start = rawInput[pos:pos+1], pos+1
			case !strings.ContainsRune(delimiters, rune(rawInput[pos-1])):
				sep = delimiters[:1]
			}
		}
		byID, ok := g.Indices[start]
		if !ok {
			break
		}
		props, ok := byID[id]
		if !ok || len(props) == 0 {
			break
		}
		end := props[0].EndPos // longest-first, per Graph.buildIndices

		b.WriteString(sep)
		b.WriteString(rawInput[start:end])
		pos = end
	}
	return b.String()
}
