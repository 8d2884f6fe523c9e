// Package prism implements the spelling trie: a sorted set of spelling
// strings mapped to 32-bit syllable ids, with common-prefix and
// expanding search. The storage is a patricia trie
// (github.com/tchap/go-patricia/v2), the same library the teacher uses
// for its own prefix-search trie, repurposed here from word-completion
// to spelling-to-syllable-id lookup. The double-array/Aho-Corasick
// construction the original format implies is treated as a black box;
// the patricia trie is sorted-order equivalent for every query this
// package exposes.
package prism

import (
	"fmt"
	"os"
	"sort"

	"github.com/tchap/go-patricia/v2/patricia"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Leon0824/rimeime/internal/logger"
)

var log = logger.New("prism")

// SpellingType ranks how a spelling reached a position; smaller values
// are preferred when a position is reachable by more than one type.
type SpellingType int

const (
	Normal SpellingType = iota
	Fuzzy
	Abbreviation
	Completion
	Ambiguous
	Invalid
)

func (t SpellingType) String() string {
	switch t {
	case Normal:
		return "normal"
	case Fuzzy:
		return "fuzzy"
	case Abbreviation:
		return "abbreviation"
	case Completion:
		return "completion"
	case Ambiguous:
		return "ambiguous"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// SpellingProperties describes one way a spelling match resolves to a
// syllable. end_pos is filled in by the caller (the syllabifier), not
// by Prism itself; Prism only ever hands out the type/credibility pair.
type SpellingProperties struct {
	EndPos      int
	Type        SpellingType
	Credibility float64
}

// Match is one hit from CommonPrefixSearch or ExpandSearch: the
// syllable id stored under a key of the given byte length.
type Match struct {
	Value  int32
	Length int
}

// SpellingEntry is one row of a QuerySpelling result: which syllable
// this spelling resolves to, and under what properties.
type SpellingEntry struct {
	SyllableID int32
	Properties SpellingProperties
}

// Prism stores a sorted set of spelling strings mapped to syllable ids.
// Reads are safe for concurrent use once Load/Build has returned;
// Prism is never mutated afterward (spec: read-only after load).
type Prism struct {
	trie *patricia.Trie
	// algebra holds additional (fuzzy/abbreviation) spellings that
	// resolve to a syllable id beyond its own canonical Normal entry.
	// Empty unless a spelling algebra was configured with AddAlgebra.
	algebra map[int32][]SpellingEntry
}

// onDiskPrism is the Save/Load wire format: the sorted unique spelling
// list. Syllable ids are each spelling's index in this list, so no id
// column needs to be persisted separately.
type onDiskPrism struct {
	Spellings []string `msgpack:"spellings"`
}

// New returns an empty, unbuilt Prism.
func New() *Prism {
	return &Prism{trie: patricia.NewTrie()}
}

// Build indexes sorted_unique_spellings, assigning syllable id i to
// spellings[i]. The caller is responsible for sorting and
// deduplicating; Build does not re-sort (matching Table's syllabary,
// which is built from the identical ordered set).
func (p *Prism) Build(spellings []string) error {
	if !sort.StringsAreSorted(spellings) {
		return fmt.Errorf("prism: Build requires a sorted spelling list")
	}
	trie := patricia.NewTrie()
	for i, s := range spellings {
		if s == "" {
			continue
		}
		trie.Insert(patricia.Prefix(s), int32(i))
	}
	p.trie = trie
	log.Debugf("built prism with %d spellings", len(spellings))
	return nil
}

// AddAlgebra registers extra (syllable_id, properties) resolutions for
// a spelling's trie value, consulted by QuerySpelling. Used for fuzzy
// or abbreviation spelling classes; absent any calls, QuerySpelling
// falls back to the single implicit Normal entry spec.md §4.1 requires.
func (p *Prism) AddAlgebra(value int32, entries []SpellingEntry) {
	if p.algebra == nil {
		p.algebra = make(map[int32][]SpellingEntry)
	}
	p.algebra[value] = entries
}

// Save serializes the sorted spelling list to path.
func (p *Prism) Save(path string) error {
	spellings := p.sortedSpellings()
	data, err := msgpack.Marshal(onDiskPrism{Spellings: spellings})
	if err != nil {
		return fmt.Errorf("prism: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("prism: write %s: %w", path, err)
	}
	return nil
}

// Load reads a Prism previously written by Save. Load fails, leaving p
// unchanged, if the file cannot be read or decoded.
func (p *Prism) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("prism: read %s: %w", path, err)
	}
	var disk onDiskPrism
	if err := msgpack.Unmarshal(data, &disk); err != nil {
		return fmt.Errorf("prism: decode %s: %w", path, err)
	}
	return p.Build(disk.Spellings)
}

func (p *Prism) sortedSpellings() []string {
	out := make([]string, p.trie.Len())
	_ = p.trie.Visit(func(prefix patricia.Prefix, item patricia.Item) error {
		id, ok := item.(int32)
		if !ok || int(id) >= len(out) || id < 0 {
			return nil
		}
		out[id] = string(prefix)
		return nil
	})
	return out
}

// CommonPrefixSearch returns every key in the trie that is a prefix of
// s, i.e. every point along s where a spelling ends.
func (p *Prism) CommonPrefixSearch(s string) []Match {
	var matches []Match
	_ = p.trie.VisitPrefixes(patricia.Prefix(s), func(prefix patricia.Prefix, item patricia.Item) error {
		id, ok := item.(int32)
		if !ok {
			return nil
		}
		matches = append(matches, Match{Value: id, Length: len(prefix)})
		return nil
	})
	return matches
}

// ExpandSearch returns up to limit keys that start with s, ordered
// primarily by key length ascending.
func (p *Prism) ExpandSearch(s string, limit int) []Match {
	var matches []Match
	_ = p.trie.VisitSubtree(patricia.Prefix(s), func(prefix patricia.Prefix, item patricia.Item) error {
		id, ok := item.(int32)
		if !ok {
			return nil
		}
		matches = append(matches, Match{Value: id, Length: len(prefix)})
		return nil
	})
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Length < matches[j].Length
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// HasKey reports whether s is itself a spelling in the trie.
func (p *Prism) HasKey(s string) bool {
	return p.trie.Match(patricia.Prefix(s))
}

// GetValue returns the syllable id stored under s, if any.
func (p *Prism) GetValue(s string) (int32, bool) {
	item := p.trie.Get(patricia.Prefix(s))
	if item == nil {
		return 0, false
	}
	id, ok := item.(int32)
	return id, ok
}

// QuerySpelling resolves a trie value (as returned by CommonPrefixSearch
// or GetValue) to the syllables it stands for. With no spelling algebra
// configured this yields exactly one entry: the value itself, type
// Normal, credibility 1.
func (p *Prism) QuerySpelling(value int32) []SpellingEntry {
	if entries, ok := p.algebra[value]; ok {
		return entries
	}
	return []SpellingEntry{{
		SyllableID: value,
		Properties: SpellingProperties{Type: Normal, Credibility: 1},
	}}
}

// Len reports the number of distinct spellings indexed.
func (p *Prism) Len() int {
	return p.trie.Len()
}
