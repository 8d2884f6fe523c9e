package engine

import (
	"github.com/Leon0824/rimeime/pkg/syllable"
	"github.com/Leon0824/rimeime/pkg/translator"
)

// SelectionState is a segment's place in the per-segment state machine
// spec.md §4.7 names: Void -> Guess -> Selected -> Confirmed.
type SelectionState int

const (
	Void SelectionState = iota
	Guess
	Selected
	Confirmed
)

// Segment is one span of the composition, carrying the Menu of
// candidates translated for it and which one (if any) is selected.
type Segment struct {
	Start, End    int
	Selection     SelectionState
	Menu          *Menu
	SelectedIndex int

	// Graph is the syllable graph this segment was translated over,
	// in the segment's own local (0-based) coordinates. It is kept
	// around after the segment is Confirmed so Engine.Commit can still
	// reconstruct a candidate's syllable code for user-dictionary
	// learning even though table-sourced DictEntry values don't carry
	// one (see the "Known simplification" note under pkg/dictionary in
	// DESIGN.md).
	Graph *syllable.Graph
}

// SelectedCandidate returns the segment's chosen candidate, if any.
func (s *Segment) SelectedCandidate() (translator.Candidate, bool) {
	if s.Menu == nil {
		return translator.Candidate{}, false
	}
	candidates := s.Menu.Candidates()
	if s.SelectedIndex < 0 || s.SelectedIndex >= len(candidates) {
		return translator.Candidate{}, false
	}
	return candidates[s.SelectedIndex], true
}

// Composition is the full segmentation of the current input.
type Composition struct {
	Segments []*Segment
}

// LastSegment returns the most recently appended segment, or nil.
func (c *Composition) LastSegment() *Segment {
	if len(c.Segments) == 0 {
		return nil
	}
	return c.Segments[len(c.Segments)-1]
}
