// Package vocabulary builds the Table and Prism files the runtime reads:
// it parses a plain-text phrase source, derives the sorted syllable
// set, assigns syllable ids, and emits a Table binary plus a matching
// Prism file. This is the build-time side of the phrase index; the
// query-time side lives in pkg/table and pkg/prism.
package vocabulary

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Leon0824/rimeime/internal/logger"
	"github.com/Leon0824/rimeime/pkg/prism"
	"github.com/Leon0824/rimeime/pkg/table"
)

var log = logger.New("vocabulary")

// SourceEntry is one parsed phrase row: spelling as a space-joined
// syllable sequence, the phrase text, and its base weight.
type SourceEntry struct {
	Spelling []string
	Text     string
	Weight   float32
}

// ParseSource reads tab-separated rows of "text\tspelling\tweight"
// (weight optional, defaulting to 1.0), one phrase per line, blank
// lines and lines starting with '#' ignored. This mirrors the layout
// librime dictionary YAML bodies use beneath their header, flattened
// to plain TSV since schema YAML parsing itself is out of scope.
func ParseSource(r io.Reader) ([]SourceEntry, error) {
	var entries []SourceEntry
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 2 {
			log.Warnf("vocabulary: skipping malformed line %d: %q", lineNo, line)
			continue
		}
		text := cols[0]
		spelling := strings.Fields(cols[1])
		if len(spelling) == 0 {
			log.Warnf("vocabulary: skipping line %d with empty spelling", lineNo)
			continue
		}
		weight := float32(1.0)
		if len(cols) >= 3 {
			w, err := strconv.ParseFloat(strings.TrimSpace(cols[2]), 32)
			if err != nil {
				log.Warnf("vocabulary: line %d has unparsable weight %q, defaulting to 1.0", lineNo, cols[2])
			} else {
				weight = float32(w)
			}
		}
		entries = append(entries, SourceEntry{Spelling: spelling, Text: text, Weight: weight})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("vocabulary: scan source: %w", err)
	}
	return entries, nil
}

// Vocabulary accumulates source entries and the syllable set they use,
// ready to be compiled into a Table+Prism pair.
type Vocabulary struct {
	entries   []SourceEntry
	syllables map[string]struct{}
}

// New returns an empty Vocabulary.
func New() *Vocabulary {
	return &Vocabulary{syllables: make(map[string]struct{})}
}

// Add records one source entry and folds its syllables into the set.
func (v *Vocabulary) Add(e SourceEntry) {
	v.entries = append(v.entries, e)
	for _, s := range e.Spelling {
		v.syllables[s] = struct{}{}
	}
}

// AddAll records every entry from ParseSource.
func (v *Vocabulary) AddAll(entries []SourceEntry) {
	for _, e := range entries {
		v.Add(e)
	}
}

// Compiled holds the built Prism and the Table bytes ready to be
// written to disk by Save.
type Compiled struct {
	Prism      *prism.Prism
	TableBytes []byte
}

// Build assigns syllable ids (by sorted spelling order, matching
// Prism's own sorted-key requirement), resolves every entry's code,
// and produces the Table byte layout plus the matching Prism.
func (v *Vocabulary) Build() (*Compiled, error) {
	syllabary := make([]string, 0, len(v.syllables))
	for s := range v.syllables {
		syllabary = append(syllabary, s)
	}
	sort.Strings(syllabary)

	p := prism.New()
	if err := p.Build(syllabary); err != nil {
		return nil, fmt.Errorf("vocabulary: build prism: %w", err)
	}

	root := table.NewBuildNode()
	skipped := 0
	for _, e := range v.entries {
		code := make(table.Code, 0, len(e.Spelling))
		ok := true
		for _, s := range e.Spelling {
			id, found := p.GetValue(s)
			if !found {
				ok = false
				break
			}
			code = append(code, id)
		}
		if !ok {
			skipped++
			continue
		}
		root.Insert(code, e.Text, e.Weight, 0)
	}
	if skipped > 0 {
		log.Warnf("vocabulary: skipped %d entries with unresolved syllables", skipped)
	}

	data, err := table.Encode(syllabary, root, len(v.entries)-skipped)
	if err != nil {
		return nil, fmt.Errorf("vocabulary: encode table: %w", err)
	}
	log.Debugf("compiled vocabulary: %d syllables, %d entries", len(syllabary), len(v.entries)-skipped)
	return &Compiled{Prism: p, TableBytes: data}, nil
}

// Save writes the compiled Table and Prism to tablePath/prismPath.
func (c *Compiled) Save(tablePath, prismPath string) error {
	if err := os.WriteFile(tablePath, c.TableBytes, 0o644); err != nil {
		return fmt.Errorf("vocabulary: write table %s: %w", tablePath, err)
	}
	if err := c.Prism.Save(prismPath); err != nil {
		return fmt.Errorf("vocabulary: write prism %s: %w", prismPath, err)
	}
	return nil
}
