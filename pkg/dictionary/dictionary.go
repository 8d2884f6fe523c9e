// Package dictionary wraps a Table and Prism pair into the query-time
// lookup surface the translator calls: Lookup walks a syllable graph
// breadth-first via Table.Query, LookupWords takes a direct code path,
// and Decode resolves a code back to its spelling.
//
// Table/Prism mmaps are expensive to open repeatedly, so Dictionary.Load
// shares them across callers that name the same dictionary through a
// process-wide weak registry, refcounted rather than garbage-collected:
// the last Dictionary to Close its handle unmaps the files.
package dictionary

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Leon0824/rimeime/internal/logger"
	"github.com/Leon0824/rimeime/internal/utils"
	"github.com/Leon0824/rimeime/pkg/prism"
	"github.com/Leon0824/rimeime/pkg/syllable"
	"github.com/Leon0824/rimeime/pkg/table"
	"github.com/Leon0824/rimeime/pkg/vocabulary"
)

var log = logger.New("dictionary")

// DictEntry is one resolved phrase candidate: its text, the code it was
// found under, its effective weight (table weight times the path's
// accumulated credibility), and bookkeeping fields the translator and
// context fill in as a candidate is selected. Homophones (same code)
// order by Weight descending, then Text ascending.
type DictEntry struct {
	Text                string
	Code                table.Code
	Weight              float64
	CommitCount         int32
	ConsumedInputLength int
	Comment             string
	Preedit             string
}

// Less orders two DictEntry values for homophone disambiguation.
func (e DictEntry) Less(other DictEntry) bool {
	if e.Weight != other.Weight {
		return e.Weight > other.Weight
	}
	return e.Text < other.Text
}

// DictEntryIterator lazily materializes DictEntry values for one
// end-position, in table-weight order descending.
type DictEntryIterator struct {
	code        table.Code
	endPos      int
	rows        []table.Row
	credibility float64
	pos         int
}

func newDictEntryIterator(code table.Code, endPos int, acc *table.TableAccessor) *DictEntryIterator {
	it := &DictEntryIterator{code: code, endPos: endPos, credibility: acc.Credibility()}
	for {
		row, _, ok := acc.Next()
		if !ok {
			break
		}
		it.rows = append(it.rows, row)
	}
	sort.SliceStable(it.rows, func(i, j int) bool {
		return it.rows[i].Entry.Weight > it.rows[j].Entry.Weight
	})
	return it
}

// Next returns the next DictEntry in descending table-weight order, or
// ok=false once exhausted.
func (it *DictEntryIterator) Next() (DictEntry, bool) {
	if it == nil || it.pos >= len(it.rows) {
		return DictEntry{}, false
	}
	row := it.rows[it.pos]
	it.pos++
	return DictEntry{
		Text:                row.Entry.Text,
		Code:                it.code,
		Weight:              it.credibility * float64(row.Entry.Weight),
		ConsumedInputLength: it.endPos,
	}, true
}

// DictEntryCollector groups DictEntryIterators by the end position they
// were found at.
type DictEntryCollector map[int]*DictEntryIterator

// Dictionary borrows a shared Table/Prism pair and exposes the lookup
// operations over them. It owns nothing persistent itself.
type Dictionary struct {
	name  string
	entry *registryEntry
}

type registryEntry struct {
	table *table.Table
	prism *prism.Prism
	refs  int
}

var (
	registryMu sync.Mutex
	registry   = make(map[string]*registryEntry)
)

// Load opens (or reuses, via the shared registry) the Table/Prism pair
// named name under dir (expects dir/name.table.bin and
// dir/name.prism.bin).
func Load(dir, name string) (*Dictionary, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if e, ok := registry[name]; ok {
		e.refs++
		log.Debugf("dictionary %s: reusing shared mmap (refs=%d)", name, e.refs)
		return &Dictionary{name: name, entry: e}, nil
	}

	tablePath := filepath.Join(dir, name+".table.bin")
	prismPath := filepath.Join(dir, name+".prism.bin")

	tbl, err := table.Load(tablePath)
	if err != nil {
		return nil, fmt.Errorf("dictionary: load table for %s: %w", name, err)
	}
	p := prism.New()
	if err := p.Load(prismPath); err != nil {
		tbl.Close()
		return nil, fmt.Errorf("dictionary: load prism for %s: %w", name, err)
	}

	e := &registryEntry{table: tbl, prism: p, refs: 1}
	registry[name] = e
	log.Debugf("dictionary %s: opened fresh mmap (%s syllables)", name, utils.FormatWithCommas(tbl.NumSyllables()))
	return &Dictionary{name: name, entry: e}, nil
}

// Exists reports whether name's Table/Prism pair is present under dir.
func Exists(dir, name string) bool {
	_, err1 := os.Stat(filepath.Join(dir, name+".table.bin"))
	_, err2 := os.Stat(filepath.Join(dir, name+".prism.bin"))
	return err1 == nil && err2 == nil
}

// Remove deletes name's Table/Prism files from dir. It refuses while any
// Dictionary still holds the shared mmap open.
func Remove(dir, name string) error {
	registryMu.Lock()
	_, inUse := registry[name]
	registryMu.Unlock()
	if inUse {
		return fmt.Errorf("dictionary: %s is still open", name)
	}
	if err := os.Remove(filepath.Join(dir, name+".table.bin")); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("dictionary: remove table for %s: %w", name, err)
	}
	if err := os.Remove(filepath.Join(dir, name+".prism.bin")); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("dictionary: remove prism for %s: %w", name, err)
	}
	return nil
}

// Compile builds name's Table/Prism pair from a plain-text vocabulary
// source and writes it under dir.
func Compile(dir, name string, entries []vocabulary.SourceEntry) error {
	v := vocabulary.New()
	v.AddAll(entries)
	compiled, err := v.Build()
	if err != nil {
		return fmt.Errorf("dictionary: compile %s: %w", name, err)
	}
	tablePath := filepath.Join(dir, name+".table.bin")
	prismPath := filepath.Join(dir, name+".prism.bin")
	if err := compiled.Save(tablePath, prismPath); err != nil {
		return fmt.Errorf("dictionary: save %s: %w", name, err)
	}
	return nil
}

// Close releases this Dictionary's share of the mmap, unmapping it once
// the last holder has closed.
func (d *Dictionary) Close() error {
	registryMu.Lock()
	defer registryMu.Unlock()
	e := d.entry
	e.refs--
	if e.refs > 0 {
		return nil
	}
	delete(registry, d.name)
	err := e.table.Close()
	log.Debugf("dictionary %s: last handle closed, mmap released", d.name)
	return err
}

// Decode resolves code back to its spelling list.
func (d *Dictionary) Decode(code table.Code) []string {
	return d.entry.table.Decode(code)
}

// Prism returns the shared Prism backing this Dictionary, for building
// a Syllabifier over the same spelling set (pkg/server's session setup).
func (d *Dictionary) Prism() *prism.Prism {
	return d.entry.prism
}

// Lookup walks g breadth-first from startPos via Table.Query, grouping
// results by end position into a DictEntryCollector.
func (d *Dictionary) Lookup(g *syllable.Graph, startPos int) DictEntryCollector {
	result := d.entry.table.Query(startPos, g.InterpretedLength, func(pos int) []table.SyllableAt {
		edges := g.EdgesFrom(pos)
		out := make([]table.SyllableAt, 0, len(edges))
		for _, e := range edges {
			out = append(out, table.SyllableAt{
				SyllableID:  e.SyllableID,
				EndPos:      e.End,
				Credibility: e.Properties.Credibility,
			})
		}
		return out
	})

	collector := make(DictEntryCollector, len(result))
	for endPos, acc := range result {
		collector[endPos] = newDictEntryIterator(nil, endPos, acc)
	}
	return collector
}

// LookupWords is the direct non-graph lookup path: it resolves strCode
// (space-joined syllables) via the Prism and returns the Table entries
// whose code is exactly the resolved code, sorted by DictEntry.Less.
// With predictive and a single syllable it reads that syllable's
// head-level entries, which are the same exact-code entries; phrases
// whose code merely starts with the resolved code are not returned.
func (d *Dictionary) LookupWords(strCode string, predictive bool) []DictEntry {
	ids, ok := d.resolveCode(strCode)
	if !ok {
		return nil
	}

	var rows []table.Row
	if predictive && len(ids) == 1 {
		acc := d.entry.table.QueryWords(ids[0])
		for {
			row, _, ok := acc.Next()
			if !ok {
				break
			}
			rows = append(rows, row)
		}
	} else {
		for _, e := range d.entry.table.QueryPhrases(ids) {
			rows = append(rows, table.Row{Entry: e})
		}
	}

	out := make([]DictEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, DictEntry{Text: r.Entry.Text, Code: ids, Weight: float64(r.Entry.Weight)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (d *Dictionary) resolveCode(strCode string) (table.Code, bool) {
	var ids table.Code
	start := 0
	for i := 0; i <= len(strCode); i++ {
		if i == len(strCode) || strCode[i] == ' ' {
			if i > start {
				id, ok := d.entry.prism.GetValue(strCode[start:i])
				if !ok {
					return nil, false
				}
				ids = append(ids, id)
			}
			start = i + 1
		}
	}
	if len(ids) == 0 {
		return nil, false
	}
	return ids, true
}
