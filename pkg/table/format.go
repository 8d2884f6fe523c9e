package table

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// FormatMagic is the required prefix of Metadata.Format (spec.md §6).
const FormatMagic = "Rime::Table/1.0"

// IndexDepth is K: the first IndexDepth syllables of a Code form the
// index code, resolved by walking the dense head level plus IndexDepth-1
// sorted trunk levels; everything beyond is extra code in the tail
// level (glossary: "Index code", "Extra code").
const IndexDepth = 3

const headerSize = 52

// Metadata mirrors the fixed-size header at the start of a Table file.
type Metadata struct {
	Format         [32]byte
	ChecksumValue  uint32
	NumSyllables   int32
	NumEntries     int32
	SyllabaryOff   int32
	IndexOff       int32
}

// Entry is one phrase row: text plus its base weight.
type Entry struct {
	Text   string
	Weight float32
}

// Code is an ordered sequence of syllable ids identifying a phrase.
type Code []int32

// BuildEntry is a phrase terminating at a particular tree depth,
// supplied by pkg/vocabulary while assembling a BuildNode tree.
type BuildEntry struct {
	Text   string
	Weight float32
}

// BuildTailEntry is a phrase whose code is longer than IndexDepth; its
// positions beyond IndexDepth are carried as ExtraCode in the tail
// level rather than as further tree depth.
type BuildTailEntry struct {
	ExtraCode []int32
	Entry     BuildEntry
}

// BuildNode is the in-memory tree pkg/vocabulary constructs before
// Encode flattens it into the mmap'able arena. At depth < IndexDepth,
// Children maps the next syllable id to its subtree; at depth ==
// IndexDepth, Tail holds the extra-code-qualified leaves instead.
type BuildNode struct {
	Entries  []BuildEntry
	Children map[int32]*BuildNode
	Tail     []BuildTailEntry
}

// NewBuildNode returns an empty node ready to accumulate entries.
func NewBuildNode() *BuildNode {
	return &BuildNode{Children: make(map[int32]*BuildNode)}
}

// Insert places code/text/weight into the tree rooted at n, creating
// intermediate nodes as needed. depth is n's own depth in the overall
// tree (0 for the root / head level).
func (n *BuildNode) Insert(code Code, text string, weight float32, depth int) {
	if depth == len(code) {
		n.Entries = append(n.Entries, BuildEntry{Text: text, Weight: weight})
		return
	}
	if depth >= IndexDepth {
		n.Tail = append(n.Tail, BuildTailEntry{
			ExtraCode: append([]int32(nil), code[depth:]...),
			Entry:     BuildEntry{Text: text, Weight: weight},
		})
		return
	}
	id := code[depth]
	child, ok := n.Children[id]
	if !ok {
		child = NewBuildNode()
		n.Children[id] = child
	}
	child.Insert(code, text, weight, depth+1)
}

// arena accumulates the serialized index/syllabary bytes; offsets
// recorded during encoding are relative to the start of the arena and
// rebased to absolute file offsets once the header length is known.
type arena struct {
	buf bytes.Buffer
}

func (a *arena) offset() int32 { return int32(a.buf.Len()) }

func (a *arena) writeU32(v uint32) { _ = binary.Write(&a.buf, binary.LittleEndian, v) }
func (a *arena) writeI32(v int32)  { _ = binary.Write(&a.buf, binary.LittleEndian, v) }
func (a *arena) writeF32(v float32) {
	_ = binary.Write(&a.buf, binary.LittleEndian, math.Float32bits(v))
}

func (a *arena) writeString(s string) (off int32, length int32) {
	off = a.offset()
	a.buf.WriteString(s)
	return off, int32(len(s))
}

// writeEntries writes a flat Entry list and returns its offset/count.
func (a *arena) writeEntries(entries []BuildEntry) (off int32, count int32) {
	if len(entries) == 0 {
		return 0, 0
	}
	off = a.offset()
	for _, e := range entries {
		textOff, textLen := a.writeTextPooled(e.Text)
		a.writeI32(textOff)
		a.writeI32(textLen)
		a.writeF32(e.Weight)
	}
	return off, int32(len(entries))
}

// writeTextPooled writes entry text inline in the arena; called from
// writeEntries, so text bytes are interleaved with entry records. This
// is simpler than a separate string pool and still a single bounded
// mmap region, consistent with the "arena + index" design note.
func (a *arena) writeTextPooled(s string) (int32, int32) {
	return a.writeString(s)
}

// writeExtraCode writes a Code slice and returns its offset/count.
func (a *arena) writeExtraCode(code []int32) (off int32, count int32) {
	if len(code) == 0 {
		return 0, 0
	}
	off = a.offset()
	for _, id := range code {
		a.writeI32(id)
	}
	return off, int32(len(code))
}

// encodeSubtree writes node (and everything beneath it) to a, writing
// children first so their offsets are known when the parent's own
// record is emitted (post-order, no forward references). It returns
// the offset and count of node's entry list (0, 0 if it has none) and
// node's "next level" offset (0 if node has no children/tail, i.e. is
// a leaf).
func (a *arena) encodeSubtree(node *BuildNode, depth int) (entriesOff, entriesCount, nextOff int32) {
	entriesOff, entriesCount = a.writeEntries(node.Entries)

	switch {
	case depth == IndexDepth:
		nextOff = a.encodeTailIndex(node.Tail)
	case len(node.Children) > 0:
		nextOff = a.encodeTrunkIndex(node.Children, depth+1)
	}
	return entriesOff, entriesCount, nextOff
}

func (a *arena) encodeTailIndex(tail []BuildTailEntry) int32 {
	if len(tail) == 0 {
		return 0
	}
	// Written in insertion order; the Translator matches extra_code by
	// value, not by position, so no ordering invariant is required.
	type encoded struct {
		extraOff, extraLen int32
		textOff, textLen   int32
		weight             float32
	}
	rows := make([]encoded, len(tail))
	for i, t := range tail {
		extraOff, extraLen := a.writeExtraCode(t.ExtraCode)
		textOff, textLen := a.writeString(t.Entry.Text)
		rows[i] = encoded{extraOff, extraLen, textOff, textLen, t.Entry.Weight}
	}
	off := a.offset()
	a.writeU32(uint32(len(rows)))
	for _, r := range rows {
		a.writeI32(r.extraOff)
		a.writeI32(r.extraLen)
		a.writeI32(r.textOff)
		a.writeI32(r.textLen)
		a.writeF32(r.weight)
	}
	return off
}

func (a *arena) encodeTrunkIndex(children map[int32]*BuildNode, depth int) int32 {
	keys := make([]int32, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	type encoded struct {
		key                        int32
		entriesOff, entriesCount   int32
		nextOff                    int32
	}
	rows := make([]encoded, len(keys))
	for i, k := range keys {
		eOff, eCount, next := a.encodeSubtree(children[k], depth)
		rows[i] = encoded{k, eOff, eCount, next}
	}
	off := a.offset()
	a.writeU32(uint32(len(rows)))
	for _, r := range rows {
		a.writeI32(r.key)
		a.writeI32(r.entriesOff)
		a.writeI32(r.entriesCount)
		a.writeI32(r.nextOff)
	}
	return off
}

// encodeHeadIndex writes the dense, num_syllables-long head level.
func (a *arena) encodeHeadIndex(root *BuildNode, numSyllables int) int32 {
	type encoded struct{ entriesOff, entriesCount, nextOff int32 }
	rows := make([]encoded, numSyllables)
	for id := 0; id < numSyllables; id++ {
		child, ok := root.Children[int32(id)]
		if !ok {
			continue
		}
		eOff, eCount, next := a.encodeSubtree(child, 1)
		rows[id] = encoded{eOff, eCount, next}
	}
	off := a.offset()
	for _, r := range rows {
		a.writeI32(r.entriesOff)
		a.writeI32(r.entriesCount)
		a.writeI32(r.nextOff)
	}
	return off
}

// Encode flattens syllabary and root into the Table on-disk byte
// layout described in spec.md §6, ready to be written to a file and
// later mmapped by Table.Load.
func Encode(syllabary []string, root *BuildNode, numEntries int) ([]byte, error) {
	if root == nil {
		return nil, fmt.Errorf("table: Encode requires a non-nil root")
	}
	numSyllables := len(syllabary)

	var idx arena
	headOff := idx.encodeHeadIndex(root, numSyllables)

	// Syllabary layout: [size:u32][directory: numSyllables*(off,len)][text pool].
	// The directory always starts right after the size field and the
	// text pool always starts right after the directory, so Load needs
	// no extra stored pointer to find either.
	var syl arena
	syl.writeU32(uint32(numSyllables))
	type sylRow struct{ off, length int32 }
	rows := make([]sylRow, numSyllables)
	var pool bytes.Buffer
	for i, s := range syllabary {
		rows[i] = sylRow{off: int32(pool.Len()), length: int32(len(s))}
		pool.WriteString(s)
	}
	for _, r := range rows {
		syl.writeI32(r.off)
		syl.writeI32(r.length)
	}
	syl.buf.Write(pool.Bytes())

	var out bytes.Buffer
	out.Write(make([]byte, headerSize))

	syllabaryAbsOff := int32(out.Len())
	out.Write(syl.buf.Bytes())

	indexAbsOff := int32(out.Len())
	out.Write(idx.buf.Bytes())

	var meta Metadata
	copy(meta.Format[:], FormatMagic)
	meta.NumSyllables = int32(numSyllables)
	meta.NumEntries = int32(numEntries)
	meta.SyllabaryOff = syllabaryAbsOff
	meta.IndexOff = indexAbsOff + headOff

	header := make([]byte, headerSize)
	copy(header[0:32], meta.Format[:])
	binary.LittleEndian.PutUint32(header[32:36], meta.ChecksumValue)
	binary.LittleEndian.PutUint32(header[36:40], uint32(meta.NumSyllables))
	binary.LittleEndian.PutUint32(header[40:44], uint32(meta.NumEntries))
	binary.LittleEndian.PutUint32(header[44:48], uint32(meta.SyllabaryOff))
	binary.LittleEndian.PutUint32(header[48:52], uint32(meta.IndexOff))

	b := out.Bytes()
	copy(b[0:headerSize], header)

	return b, nil
}
