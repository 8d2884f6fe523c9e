package server

import (
	"sync"
	"time"

	"github.com/Leon0824/rimeime/internal/utils"
	"github.com/Leon0824/rimeime/pkg/engine"
)

// Session pairs one live Engine with the bookkeeping a host needs to
// drive it over the wire: when it was last touched (for
// cleanup_stale_sessions), which schema it was created against, and the
// pending commit text get_commit drains.
type Session struct {
	ID         string
	SchemaID   string
	Engine     *engine.Engine
	LastActive time.Time

	mu            sync.Mutex
	pendingCommit string
}

func newSession(id, schemaID string, e *engine.Engine) *Session {
	s := &Session{ID: id, SchemaID: schemaID, Engine: e, LastActive: time.Now()}
	e.Context.OnCommit(func(text string) {
		s.mu.Lock()
		s.pendingCommit += text
		s.mu.Unlock()
	})
	return s
}

func (s *Session) touch() { s.LastActive = time.Now() }

// drainCommit returns and clears the pending commit text (spec.md §6:
// "after read, commit text resets").
func (s *Session) drainCommit() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := s.pendingCommit
	s.pendingCommit = ""
	return text
}

// CompositionView mirrors get_context's composition{} sub-object.
type CompositionView struct {
	IsComposing bool   `msgpack:"is_composing"`
	Preedit     string `msgpack:"preedit"`
	CursorPos   int    `msgpack:"cursor_pos"`
	SelStart    int    `msgpack:"sel_start"`
	SelEnd      int    `msgpack:"sel_end"`
}

// CandidateView is one entry of get_context's menu.candidates[]. Rank
// is the candidate's 1-based position in the page, for host UIs that
// display it alongside the text rather than inferring it from order.
type CandidateView struct {
	Text    string `msgpack:"text"`
	Comment string `msgpack:"comment"`
	Rank    uint16 `msgpack:"rank"`
}

// MenuView mirrors get_context's menu{} sub-object.
type MenuView struct {
	PageSize         int             `msgpack:"page_size"`
	PageNo           int             `msgpack:"page_no"`
	IsLastPage       bool            `msgpack:"is_last_page"`
	HighlightedIndex int             `msgpack:"highlighted_index"`
	Candidates       []CandidateView `msgpack:"candidates"`
}

// ContextView is the full get_context(id) response.
type ContextView struct {
	Composition CompositionView `msgpack:"composition"`
	Menu        MenuView        `msgpack:"menu"`
}

const defaultPageSize = 5

// Context renders the session's current composition/menu state, per
// spec.md §6's get_context shape.
func (s *Session) Context() ContextView {
	s.mu.Lock()
	defer s.mu.Unlock()

	comp := CompositionView{
		IsComposing: s.Engine.Context.IsComposing(),
		Preedit:     s.Engine.Preedit(),
		CursorPos:   s.Engine.Context.CaretPos(),
	}

	seg := s.Engine.Context.Composition.LastSegment()
	menu := MenuView{PageSize: defaultPageSize}
	if seg != nil && seg.Menu != nil {
		all := seg.Menu.Candidates()
		comp.SelStart = seg.Start
		comp.SelEnd = seg.End
		end := defaultPageSize
		if end > len(all) {
			end = len(all)
		}
		menu.IsLastPage = end >= len(all)
		menu.HighlightedIndex = seg.SelectedIndex
		ranks := utils.CreateRankList(end)
		for i, c := range all[:end] {
			menu.Candidates = append(menu.Candidates, CandidateView{Text: c.Text, Rank: ranks[i]})
		}
	} else {
		menu.IsLastPage = true
	}

	return ContextView{Composition: comp, Menu: menu}
}

// StatusView is the full get_status(id) response.
type StatusView struct {
	SchemaID   string     `msgpack:"schema_id"`
	SchemaName string     `msgpack:"schema_name"`
	Flags      StatusFlag `msgpack:"flags"`
}

// StatusFlag mirrors get_status's flags{} sub-object. AsciiMode is
// driven by a dedicated processor in the real pipeline (SPEC_FULL.md
// §12); this server exposes the field without implementing the ASCII
// toggle itself, since no such processor is wired into this session
// core yet.
type StatusFlag struct {
	Disabled   bool `msgpack:"disabled"`
	AsciiMode  bool `msgpack:"ascii_mode"`
	Simplified bool `msgpack:"simplified"`
	Composing  bool `msgpack:"composing"`
	FullShape  bool `msgpack:"full_shape"`
}

// Status reports the session's schema identity and composing flags.
func (s *Session) Status() StatusView {
	st := s.Engine.Status()
	return StatusView{
		SchemaID:   s.SchemaID,
		SchemaName: s.SchemaID,
		Flags: StatusFlag{
			Composing: st.IsComposing,
		},
	}
}
