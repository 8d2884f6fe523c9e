package engine

import (
	"sort"

	"github.com/Leon0824/rimeime/pkg/translator"
)

// Menu merges one or more Translations into a single ordered candidate
// list, paginated on demand (spec.md §4.8).
type Menu struct {
	translations []*translator.Translation
	comparator   func(a, b translator.Candidate) bool
	cached       []translator.Candidate
}

// NewMenu creates a Menu with cmp as its ordering, or DefaultCompare if
// cmp is nil.
func NewMenu(cmp func(a, b translator.Candidate) bool) *Menu {
	if cmp == nil {
		cmp = DefaultCompare
	}
	return &Menu{comparator: cmp}
}

// DefaultCompare orders candidates by (type, -weight, text), matching
// spec.md §4.8's default comparator.
func DefaultCompare(a, b translator.Candidate) bool {
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	if a.Weight != b.Weight {
		return a.Weight > b.Weight
	}
	return a.Text < b.Text
}

// AddTranslation appends a lazily-sourced candidate stream to the menu.
func (m *Menu) AddTranslation(t *translator.Translation) {
	m.translations = append(m.translations, t)
	m.cached = nil
}

// CreatePage returns the first pageSize candidates (or all of them, if
// pageSize <= 0), merge-sorting every added Translation by comparator.
func (m *Menu) CreatePage(pageSize int) []translator.Candidate {
	if m.cached == nil {
		var all []translator.Candidate
		for _, t := range m.translations {
			all = append(all, t.Candidates()...)
		}
		sort.SliceStable(all, func(i, j int) bool { return m.comparator(all[i], all[j]) })
		m.cached = all
	}
	if pageSize <= 0 || pageSize >= len(m.cached) {
		return m.cached
	}
	return m.cached[:pageSize]
}

// Candidates returns every candidate in the menu, in ranked order.
func (m *Menu) Candidates() []translator.Candidate {
	return m.CreatePage(0)
}
