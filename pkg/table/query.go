package table

// TableAccessor is a forward iterator over phrase Rows, carrying a
// credibility multiplier to be applied to each entry's weight at read
// time rather than baked into the stored weight.
type TableAccessor struct {
	rows        []Row
	pos         int
	credibility float64
}

func newAccessor(rows []Row, credibility float64) *TableAccessor {
	if credibility == 0 {
		credibility = 1
	}
	return &TableAccessor{rows: rows, credibility: credibility}
}

// Next returns the next row and the accessor's credibility multiplier,
// or ok=false once exhausted.
func (a *TableAccessor) Next() (Row, float64, bool) {
	if a == nil || a.pos >= len(a.rows) {
		return Row{}, 0, false
	}
	r := a.rows[a.pos]
	a.pos++
	return r, a.credibility, true
}

// Len reports the number of rows remaining (including the current one
// if iteration has not started).
func (a *TableAccessor) Len() int {
	if a == nil {
		return 0
	}
	return len(a.rows) - a.pos
}

// Credibility returns the accessor's running credibility multiplier.
func (a *TableAccessor) Credibility() float64 {
	if a == nil {
		return 0
	}
	return a.credibility
}

// QueryWords returns the entries at the head level for syllableID —
// phrases whose entire code is that single syllable.
func (t *Table) QueryWords(syllableID int32) *TableAccessor {
	eOff, eCount, _, ok := t.headNode(syllableID)
	if !ok {
		return newAccessor(nil, 1)
	}
	return newAccessor(toRows(t.entries(eOff, eCount)), 1)
}

// QueryPhrases resolves code directly: entries matching it exactly
// if |code| <= IndexDepth, or a TailIndex scan by extra_code beyond
// IndexDepth otherwise.
func (t *Table) QueryPhrases(code Code) []Entry {
	if len(code) == 0 {
		return nil
	}
	eOff, eCount, nextOff, ok := t.headNode(code[0])
	if !ok {
		return nil
	}
	if len(code) == 1 {
		return t.entries(eOff, eCount)
	}

	depth := 1
	for depth < len(code) && depth < IndexDepth {
		if nextOff == 0 {
			return nil
		}
		eOff, eCount, nextOff, ok = t.trunkNode(nextOff, code[depth])
		if !ok {
			return nil
		}
		depth++
		if depth == len(code) {
			return t.entries(eOff, eCount)
		}
	}

	if len(code) > IndexDepth {
		if nextOff == 0 {
			return nil
		}
		return t.tailEntries(nextOff, code[IndexDepth:])
	}
	return t.entries(eOff, eCount)
}

func toRows(entries []Entry) []Row {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]Row, len(entries))
	for i, e := range entries {
		rows[i] = Row{Entry: e}
	}
	return rows
}

// TableVisitor walks the index tree level by level while a breadth-
// first Query traversal is in progress. It is an immutable value: Walk
// returns a new, descended visitor rather than mutating the receiver,
// so callers can freely branch to sibling syllables from the same
// parent visitor without needing to undo a walk afterward.
type TableVisitor struct {
	depth            int
	curOff           int32 // 0 at the root; otherwise a trunk/tail offset
	indexCode        Code
	credibilityStack []float64
}

// rootVisitor is the starting point for a Query at the head level.
func rootVisitor() TableVisitor {
	return TableVisitor{credibilityStack: []float64{1}}
}

// Depth reports how many syllables have been consumed so far.
func (v TableVisitor) Depth() int { return v.depth }

// Credibility returns the running product of per-step credibilities.
func (v TableVisitor) Credibility() float64 {
	return v.credibilityStack[len(v.credibilityStack)-1]
}

// Access returns the entries reachable by taking syllableID from v's
// current position, without descending v itself. Pass -1 at Depth()
// == IndexDepth to read every row of the TailIndex at this position.
func (v TableVisitor) Access(t *Table, syllableID int32) *TableAccessor {
	if v.depth == IndexDepth {
		if syllableID != -1 || v.curOff == 0 {
			return newAccessor(nil, v.Credibility())
		}
		return newAccessor(t.allTailRows(v.curOff), v.Credibility())
	}
	var eOff, eCount, _ int32
	var ok bool
	if v.depth == 0 {
		eOff, eCount, _, ok = t.headNode(syllableID)
	} else {
		eOff, eCount, _, ok = t.trunkNode(v.curOff, syllableID)
	}
	if !ok {
		return newAccessor(nil, v.Credibility())
	}
	return newAccessor(toRows(t.entries(eOff, eCount)), v.Credibility())
}

// Walk descends v by syllableID, multiplying in credibility, and
// returns the new visitor to enqueue. ok is false if syllableID has no
// child at v's current position.
func (v TableVisitor) Walk(t *Table, syllableID int32, credibility float64) (TableVisitor, bool) {
	if v.depth >= IndexDepth {
		return TableVisitor{}, false
	}
	var nextOff int32
	var ok bool
	if v.depth == 0 {
		_, _, nextOff, ok = t.headNode(syllableID)
	} else {
		_, _, nextOff, ok = t.trunkNode(v.curOff, syllableID)
	}
	if !ok || nextOff == 0 {
		return TableVisitor{}, false
	}
	next := TableVisitor{
		depth:            v.depth + 1,
		curOff:           nextOff,
		indexCode:        append(append(Code{}, v.indexCode...), syllableID),
		credibilityStack: append(append([]float64{}, v.credibilityStack...), v.Credibility()*credibility),
	}
	return next, true
}

// Backdate is a no-op: Walk never mutates its receiver, so there is no
// parent state to restore before exploring a sibling syllable.
func (v TableVisitor) Backdate() {}

// QueryResult maps an end position to the accessors that produced
// entries there.
type QueryResult map[int]*TableAccessor

// SyllableAt is the minimal view of a SyllableGraph edge the Query
// breadth-first walk needs at a given start position: the syllables
// reachable from there, each with the position it ends at and a
// credibility to fold in.
type SyllableAt struct {
	SyllableID  int32
	EndPos      int
	Credibility float64
}

// Query performs the breadth-first table walk spec.md §4.2 describes:
// starting at startPos, for every syllable edge leaving a position,
// contribute that position's table entries to the result, and if the
// visitor can still descend, push the end position onward using the
// same credibility-folding visitor.
//
// syllablesAt supplies, for a given byte position, the outgoing
// syllable edges (id, end_pos, credibility) the caller's syllable
// graph recorded there; it is called once per queue position.
func (t *Table) Query(startPos, interpretedLength int, syllablesAt func(pos int) []SyllableAt) QueryResult {
	result := make(QueryResult)

	type queueItem struct {
		pos     int
		visitor TableVisitor
	}
	queue := []queueItem{{pos: startPos, visitor: rootVisitor()}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		for _, edge := range syllablesAt(item.pos) {
			if item.visitor.depth < IndexDepth {
				acc := item.visitor.Access(t, edge.SyllableID)
				if acc.Len() > 0 {
					mergeAccessor(result, edge.EndPos, acc)
				}
				if next, ok := item.visitor.Walk(t, edge.SyllableID, edge.Credibility); ok && edge.EndPos < interpretedLength {
					queue = append(queue, queueItem{pos: edge.EndPos, visitor: next})
				}
				item.visitor.Backdate()
			} else {
				acc := item.visitor.Access(t, -1)
				if acc.Len() > 0 {
					mergeAccessor(result, edge.EndPos, acc)
				}
			}
		}
	}
	return result
}

// mergeAccessor appends acc's rows into result[pos], combining with any
// accessor already recorded there by concatenating rows rather than
// overwriting, since multiple queue items can reach the same end_pos.
func mergeAccessor(result QueryResult, pos int, acc *TableAccessor) {
	if existing, ok := result[pos]; ok {
		existing.rows = append(existing.rows, acc.rows...)
		return
	}
	result[pos] = acc
}
