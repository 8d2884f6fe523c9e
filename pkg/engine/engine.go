// Package engine drives one composition session: Context holds the
// raw input, Engine reacts to its input-change notifications by
// re-segmenting and re-translating, and exposes the processor-facing
// operations a session wraps (process_key, commit, status) per
// spec.md §4.7/§6.
package engine

import (
	"sort"
	"strings"

	"github.com/Leon0824/rimeime/internal/keysym"
	"github.com/Leon0824/rimeime/internal/logger"
	"github.com/Leon0824/rimeime/pkg/syllable"
	"github.com/Leon0824/rimeime/pkg/translator"
)

var log = logger.New("engine")

const caretGlyph = "‹"

// Status mirrors librime's own get_status() fields: whether a
// composition is in progress and whether it is ready to commit.
type Status struct {
	IsComposing   bool
	IsDisabled    bool
	HasCandidates bool
}

// Engine owns one Context and the Syllabifier/Translator pair driving
// it. It is not safe for concurrent use — spec.md §5 specifies one
// session is handled by one goroutine at a time.
type Engine struct {
	Context     *Context
	Syllabifier *syllable.Syllabifier
	Translator  *translator.Translator
	Delimiters  string

	// DictClose, if set, releases the Dictionary handle this Engine's
	// Translator was built over. pkg/server calls it from
	// DestroySession; it is nil when an Engine is built directly (as
	// in tests) against a Dictionary the caller manages itself.
	DictClose func() error

	graph *syllable.Graph
}

// New creates an Engine over a fresh Context, wiring Context's
// input-change notification to the Engine's own re-segmentation.
func New(syllabifier *syllable.Syllabifier, tr *translator.Translator, delimiters string) *Engine {
	e := &Engine{
		Context:     NewContext(),
		Syllabifier: syllabifier,
		Translator:  tr,
		Delimiters:  delimiters,
	}
	e.Context.OnUpdate(e.resegment)
	return e
}

// confirmedEnd returns the input offset up to which segments are
// Confirmed; re-segmentation never touches anything before it.
func (e *Engine) confirmedEnd() int {
	end := 0
	for _, seg := range e.Context.Composition.Segments {
		if seg.Selection != Confirmed {
			break
		}
		end = seg.End
	}
	return end
}

// resegment implements spec.md §4.7's input-change pipeline: wipe every
// non-confirmed segment, build a fresh Segmentation/Graph over the
// remaining input, and re-translate into a new Menu.
func (e *Engine) resegment() {
	input := e.Context.input
	kept := e.confirmedSegments()
	confirmed := e.confirmedEnd()

	if confirmed >= len(input) {
		e.Context.Composition.Segments = kept
		e.graph = nil
		return
	}

	remaining := input[confirmed:]
	graph := e.Syllabifier.Syllabify(remaining)
	e.graph = graph

	seg := &Segment{Start: confirmed, End: confirmed + graph.InterpretedLength, Selection: Guess, Graph: graph}
	translation := e.Translator.Translate(graph, 0)
	menu := NewMenu(nil)
	menu.AddTranslation(translation)
	seg.Menu = menu
	if len(menu.Candidates()) > 0 {
		seg.SelectedIndex = 0
		seg.Selection = Guess
	}

	e.Context.Composition.Segments = append(kept, seg)
}

func (e *Engine) confirmedSegments() []*Segment {
	var kept []*Segment
	for _, seg := range e.Context.Composition.Segments {
		if seg.Selection != Confirmed {
			break
		}
		kept = append(kept, seg)
	}
	return kept
}

// Select marks the trailing segment's candidate at index chosen,
// advancing it to Selected (spec.md §4.7's state machine).
func (e *Engine) Select(index int) bool {
	seg := e.Context.Composition.LastSegment()
	if seg == nil || seg.Menu == nil {
		return false
	}
	if index < 0 || index >= len(seg.Menu.Candidates()) {
		return false
	}
	seg.SelectedIndex = index
	seg.Selection = Selected
	return true
}

// ConfirmCurrentSelection advances the trailing Selected segment to
// Confirmed and, if input remains, opens a fresh trailing segment.
func (e *Engine) ConfirmCurrentSelection() bool {
	seg := e.Context.Composition.LastSegment()
	if seg == nil || seg.Selection != Selected {
		return false
	}
	seg.Selection = Confirmed
	e.resegment()
	return true
}

// ReopenPreviousSegment pops a zero-width trailing segment, the
// librime behavior for backing out of a composition that has nothing
// left to segment (spec.md §4.7).
func (e *Engine) ReopenPreviousSegment() bool {
	segs := e.Context.Composition.Segments
	if len(segs) == 0 {
		return false
	}
	last := segs[len(segs)-1]
	if last.Start != last.End {
		return false
	}
	e.Context.Composition.Segments = segs[:len(segs)-1]
	return true
}

// ReopenPreviousSelection rewinds the most recently Selected segment
// back to Void and discards everything selected after it.
func (e *Engine) ReopenPreviousSelection() bool {
	segs := e.Context.Composition.Segments
	for i := len(segs) - 1; i >= 0; i-- {
		if segs[i].Selection == Selected {
			segs[i].Selection = Void
			e.Context.Composition.Segments = segs[:i+1]
			e.resegment()
			return true
		}
	}
	return false
}

// Commit concatenates every segment's selected candidate text, emits
// the commit notification, records one user-dictionary update per
// contiguous block of romanization candidates, and clears the Context.
func (e *Engine) Commit() string {
	var out strings.Builder
	var blockCode []int32
	var blockText strings.Builder

	flush := func() {
		if len(blockCode) == 0 {
			return
		}
		if e.Translator.EnableUserDict && e.Translator.UserDict != nil {
			if err := e.Translator.UserDict.UpdateEntry(blockCode, blockText.String(), 1); err != nil {
				log.Warnf("engine: commit user-dict update failed: %v", err)
			}
		}
		blockCode = nil
		blockText.Reset()
	}

	for _, seg := range e.Context.Composition.Segments {
		cand, ok := seg.SelectedCandidate()
		if !ok {
			continue
		}
		out.WriteString(cand.Text)
		if cand.Type == "sentence" {
			flush()
			continue
		}
		code := cand.Code
		if len(code) == 0 && seg.Graph != nil {
			code = pathCode(seg.Graph, 0, cand.EndPos)
		}
		if len(code) == 0 {
			flush()
			continue
		}
		blockCode = append(blockCode, code...)
		blockText.WriteString(cand.Text)
	}
	flush()

	text := out.String()
	e.Context.notifyCommit(text)
	e.Context.Clear()
	return text
}

// Preedit renders the composition for display: every segment's
// selected candidate text (or its Preedit override), with the caret
// glyph placed before the first segment starting at or after the
// caret. Caret placement is snapped to segment boundaries rather than
// interpolated into a candidate's own text.
func (e *Engine) Preedit() string {
	var b strings.Builder
	caret := e.Context.caret
	inserted := false
	for _, seg := range e.Context.Composition.Segments {
		if !inserted && caret <= seg.Start {
			b.WriteString(caretGlyph)
			inserted = true
		}
		if cand, ok := seg.SelectedCandidate(); ok {
			if cand.Preedit != "" {
				b.WriteString(cand.Preedit)
			} else {
				b.WriteString(cand.Text)
			}
		}
	}
	if !inserted {
		b.WriteString(caretGlyph)
	}
	return b.String()
}

// Status reports the Context's current composing/candidate state.
func (e *Engine) Status() Status {
	seg := e.Context.Composition.LastSegment()
	return Status{
		IsComposing:   e.Context.IsComposing(),
		HasCandidates: seg != nil && seg.Menu != nil && len(seg.Menu.Candidates()) > 0,
	}
}

// ProcessKey applies one decoded key event to the session, returning
// whether it was consumed. Printable keys insert into Context; the
// rest dispatch to the editing/selection operations above.
func (e *Engine) ProcessKey(ev keysym.KeyEvent) bool {
	if ev.Release() {
		return false
	}
	switch ev.KeyCode {
	case keysym.KeyBackSpace:
		return e.Context.PopInput()
	case keysym.KeyDelete:
		return e.Context.DeleteInput()
	case keysym.KeyEscape:
		if e.Context.IsComposing() {
			e.Context.Clear()
			return true
		}
		return false
	case keysym.KeyReturn:
		if !e.Context.IsComposing() {
			return false
		}
		if seg := e.Context.Composition.LastSegment(); seg != nil && seg.Selection != Selected {
			e.Select(0)
		}
		e.ConfirmCurrentSelection()
		e.Commit()
		return true
	case keysym.KeyLeft:
		e.Context.SetCaretPos(e.Context.caret - 1)
		return true
	case keysym.KeyRight:
		e.Context.SetCaretPos(e.Context.caret + 1)
		return true
	case keysym.KeyHome:
		e.Context.SetCaretPos(0)
		return true
	case keysym.KeyEnd:
		e.Context.SetCaretPos(len(e.Context.input))
		return true
	case keysym.KeySpace:
		if !e.Context.IsComposing() {
			return false
		}
		if e.Select(0) {
			e.ConfirmCurrentSelection()
		}
		return true
	}

	if r, ok := keysym.ToRune(ev.KeyCode); ok {
		if r >= '1' && r <= '9' && e.Context.IsComposing() {
			if e.Select(int(r - '1')) {
				e.ConfirmCurrentSelection()
				return true
			}
		}
		e.Context.PushInput(r)
		return true
	}
	return false
}

// pathCode greedily reconstructs a syllable-id path from start to end
// over g, preferring the longest edge at each step. It is used to
// recover a committed candidate's code when the candidate itself
// didn't carry one (table-sourced DictEntry values leave Code nil).
func pathCode(g *syllable.Graph, start, end int) []int32 {
	if start == end {
		return nil
	}
	edges := g.EdgesFrom(start)
	sort.Slice(edges, func(i, j int) bool { return edges[i].End > edges[j].End })
	for _, e := range edges {
		if e.End > end {
			continue
		}
		if e.End == end {
			return []int32{e.SyllableID}
		}
		if rest := pathCode(g, e.End, end); rest != nil {
			return append([]int32{e.SyllableID}, rest...)
		}
	}
	return nil
}

// SimulateKeySequence feeds str through ProcessKey one rune at a time,
// as printable ASCII keycodes, failing without mutating state on the
// first unmappable rune (spec.md §7).
func (e *Engine) SimulateKeySequence(str string) bool {
	for _, r := range str {
		if r < 0x20 || r > 0x7e {
			return false
		}
	}
	for _, r := range str {
		e.ProcessKey(keysym.KeyEvent{KeyCode: uint32(r)})
	}
	return true
}
