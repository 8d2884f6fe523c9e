// Package userdict is the learning layer above pkg/userdb: it records
// a commit as a reinforced, decaying counter keyed by the romanization
// code plus text (spec.md §4.5, §3), and answers DfsLookup queries by
// walking a syllable.Graph in step with the store's sorted keyspace.
package userdict

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/Leon0824/rimeime/internal/logger"
	"github.com/Leon0824/rimeime/pkg/syllable"
	"github.com/Leon0824/rimeime/pkg/userdb"
)

var log = logger.New("userdict")

const (
	// halfLife is the number of ticks over which a phrase's decayed
	// expectation drops by half, absent further commits. spec.md §9
	// leaves the exact closed form open beyond monotonicity (property
	// 5); this is the Open Question's resolution, picked for the same
	// reason librime's own default schema tunes recency over a few
	// hundred commits rather than a handful or a lifetime.
	halfLife = 200.0

	// epsilon floors a weight so a cold or fully-decayed entry never
	// contributes exactly zero (spec.md §7: numeric underflow clamps
	// rather than propagating).
	epsilon = 1e-30

	// maxDepth bounds how many syllables deep DfsLookup descends,
	// matching librime's own default cap on user-phrase length.
	maxDepth = 8
)

// Entry is one user-phrase hit: its text, the code (syllable ids) it
// was recorded under, and its effective weight at the present tick.
type Entry struct {
	Text   string
	Code   []int32
	Weight float64
}

// EntryIterator hands out Entry values in descending weight order.
type EntryIterator struct {
	entries []Entry
	pos     int
}

// Next returns the next Entry, or ok=false once exhausted.
func (it *EntryIterator) Next() (Entry, bool) {
	if it == nil || it.pos >= len(it.entries) {
		return Entry{}, false
	}
	e := it.entries[it.pos]
	it.pos++
	return e, true
}

// Collector groups EntryIterators by the end position they were found
// at, the same shape dictionary.DictEntryCollector uses so a
// translator can merge the two uniformly.
type Collector map[int]*EntryIterator

// UserDictionary is the learning dictionary for one schema, backed by
// a userdb.UserDb keyed by "<code ids, space-joined>\t<text>".
type UserDictionary struct {
	db *userdb.UserDb
}

// Open opens (or creates) the user dictionary store at path.
func Open(path string) (*UserDictionary, error) {
	db, err := userdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("userdict: %w", err)
	}
	return &UserDictionary{db: db}, nil
}

// Close releases the underlying store.
func (u *UserDictionary) Close() error {
	return u.db.Close()
}

// formula_d computes the decayed expectation d' from a stored d last
// touched at lastTick, as of presentTick. c0 is reserved (the spec's
// signature carries it for parity with formula_p; this closed form
// doesn't need it). Exponential decay is the simplest function that is
// monotonically non-increasing in elapsed ticks for fixed d, satisfying
// spec.md §8 property 5.
func formulaD(c0 float64, presentTick, d, lastTick float64) float64 {
	_ = c0
	elapsed := presentTick - lastTick
	if elapsed < 0 {
		elapsed = 0
	}
	decayed := d * math.Pow(0.5, elapsed/halfLife)
	if decayed < epsilon {
		return epsilon
	}
	return decayed
}

// formula_p combines commit frequency and decayed expectation into the
// weight SaveEntry reports, before the caller's prefix credibility is
// folded in. c0 is reserved, matching the spec's call shape.
func formulaP(c0 float64, freq, presentTick, dPrime float64) float64 {
	_ = c0
	_ = presentTick
	w := freq + dPrime
	if w < epsilon {
		return epsilon
	}
	return w
}

// UpdateEntry records a commit (or, for commit < 0, a deletion) of the
// phrase spelled by code with the given text. Every call bumps the
// store's global tick (spec.md §4.5).
func (u *UserDictionary) UpdateEntry(code []int32, text string, commit int) error {
	key := formatKey(code, text)
	present := u.db.Tick()

	var c int64
	var d float64
	var lastTick uint64 = present
	if raw, ok := u.db.Get(key); ok {
		parsed, err := parseValue(raw)
		if err != nil {
			log.Warnf("userdict: skipping unparsable entry %q: %v", key, err)
		} else {
			c, d, lastTick = parsed.c, parsed.d, parsed.t
		}
	}

	switch {
	case commit > 0:
		c += int64(commit)
	case commit < 0:
		if c > -1 {
			c = -c
		}
		if c > -1 {
			c = -1
		}
	}

	decayed := formulaD(0, float64(present), d, float64(lastTick))
	newD := decayed + 1
	if err := u.db.Set(key, formatValue(c, newD, present)); err != nil {
		return fmt.Errorf("userdict: update %q: %w", key, err)
	}
	if _, err := u.db.IncrementTick(); err != nil {
		return fmt.Errorf("userdict: update %q: %w", key, err)
	}
	return nil
}

// dfsState carries the in-progress code path and its accumulated
// credibility down the recursion, mirroring spec.md §4.5's pseudocode.
type dfsState struct {
	code        []int32
	credibility []float64
}

// DfsLookup walks g's syllable graph from startPos, matching every
// prefix of the walked code against the store's sorted keyspace via a
// single Accessor kept in lockstep with the DFS (spec.md §4.5).
func (u *UserDictionary) DfsLookup(g *syllable.Graph, startPos int) Collector {
	collector := make(Collector)
	acc := u.db.NewAccessor()
	defer acc.Close()

	present := u.db.Tick()
	state := &dfsState{credibility: []float64{1}}
	u.dfs(g, startPos, "", state, acc, collector, present)

	for _, it := range collector {
		sort.SliceStable(it.entries, func(i, j int) bool {
			return it.entries[i].Weight > it.entries[j].Weight
		})
	}
	return collector
}

// dfs processes every outgoing edge at pos. It always re-Forward-seeks
// the accessor to each edge's own code prefix before scanning, rather
// than tracking whether the cursor happens to already be positioned
// there — correct regardless of sibling order, at the cost of one
// extra Seek per edge over the pseudocode's conditional Forward.
func (u *UserDictionary) dfs(g *syllable.Graph, pos int, prefix string, state *dfsState, acc *userdb.Accessor, collector Collector, present uint64) {
	edges := g.EdgesFrom(pos)
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].End > edges[j].End })

	for _, edge := range edges {
		state.code = append(state.code, edge.SyllableID)
		parentCred := state.credibility[len(state.credibility)-1]
		state.credibility = append(state.credibility, parentCred*edge.Properties.Credibility)

		codePrefix := joinCode(state.code)
		acc.Forward(codePrefix)

		matchPrefix := codePrefix + "\t"
		for strings.HasPrefix(acc.Key(), matchPrefix) {
			text := strings.TrimPrefix(acc.Key(), matchPrefix)
			raw, ok := acc.Value()
			if !ok {
				acc.Advance()
				continue
			}
			parsed, err := parseValue(raw)
			if err != nil {
				log.Warnf("userdict: skipping unparsable entry %q: %v", acc.Key(), err)
				acc.Advance()
				continue
			}
			if parsed.c > 0 {
				dPrime := formulaD(0, float64(present), parsed.d, float64(parsed.t))
				freq := float64(parsed.c) / math.Max(float64(present), 1)
				weight := formulaP(0, freq, float64(present), dPrime) * state.credibility[len(state.credibility)-1]
				entry := Entry{Text: text, Code: append([]int32{}, state.code...), Weight: weight}
				it, ok := collector[edge.End]
				if !ok {
					it = &EntryIterator{}
					collector[edge.End] = it
				}
				it.entries = append(it.entries, entry)
			}
			acc.Advance()
		}

		if len(state.code) < maxDepth {
			u.dfs(g, edge.End, codePrefix, state, acc, collector, present)
		}

		state.code = state.code[:len(state.code)-1]
		state.credibility = state.credibility[:len(state.credibility)-1]
	}
	acc.Forward(prefix)
}

// joinCode renders a code as fixed-width, zero-padded decimal ids
// joined by spaces, so the resulting keys' lexicographic order matches
// numeric id order — real Rime keys phrases by spelling text, which
// already sorts consistently; this store keys by syllable id instead,
// so padding is required to keep prefix-seek semantics correct.
func joinCode(code []int32) string {
	parts := make([]string, len(code))
	for i, id := range code {
		parts[i] = fmt.Sprintf("%08d", id)
	}
	return strings.Join(parts, " ")
}

func formatKey(code []int32, text string) string {
	return joinCode(code) + "\t" + text
}

type value struct {
	c int64
	d float64
	t uint64
}

// formatValue renders a stored value as "c=<int> d=<float> t=<uint>",
// the token format spec.md §3 names.
func formatValue(c int64, d float64, t uint64) string {
	return fmt.Sprintf("c=%d d=%g t=%d", c, d, t)
}

func parseValue(raw string) (value, error) {
	var v value
	for _, tok := range strings.Fields(raw) {
		key, val, ok := strings.Cut(tok, "=")
		if !ok {
			continue
		}
		switch key {
		case "c":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return value{}, fmt.Errorf("userdict: bad c token %q: %w", tok, err)
			}
			v.c = n
		case "d":
			n, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return value{}, fmt.Errorf("userdict: bad d token %q: %w", tok, err)
			}
			v.d = n
		case "t":
			n, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return value{}, fmt.Errorf("userdict: bad t token %q: %w", tok, err)
			}
			v.t = n
		}
	}
	return v, nil
}
