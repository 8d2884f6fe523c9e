package table

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"golang.org/x/sys/unix"

	"github.com/Leon0824/rimeime/internal/logger"
)

var log = logger.New("table")

// Table is a read-only mmap'd phrase index keyed by syllable-id codes.
// It is immutable after Load and safe to share across sessions without
// synchronization (spec.md §5), the same way kho-fslm mmaps its model
// file with PROT_READ|MAP_SHARED and never writes back through it.
type Table struct {
	file *os.File
	data []byte
	meta Metadata
}

// Load opens path, mmaps it read-only, and verifies the header. Load
// fails, without partially initializing t, if the magic or bounds are
// wrong (spec.md §7: format errors collapse to "not loaded").
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("table: open %s: %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("table: stat %s: %w", path, err)
	}
	size := stat.Size()
	if size < headerSize {
		f.Close()
		return nil, fmt.Errorf("table: %s too small to hold a header", path)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("table: mmap %s: %w", path, err)
	}

	t := &Table{file: f, data: data}
	if err := t.parseHeader(); err != nil {
		unix.Munmap(data)
		f.Close()
		return nil, err
	}
	log.Debugf("loaded table %s: %d syllables, %d entries", path, t.meta.NumSyllables, t.meta.NumEntries)
	return t, nil
}

func (t *Table) parseHeader() error {
	format := string(t.data[0:32])
	trimmed := format
	for i, b := range []byte(format) {
		if b == 0 {
			trimmed = format[:i]
			break
		}
	}
	if len(trimmed) < len(FormatMagic) || trimmed[:len(FormatMagic)] != FormatMagic {
		return fmt.Errorf("table: bad format magic %q", trimmed)
	}
	copy(t.meta.Format[:], format)
	t.meta.ChecksumValue = binary.LittleEndian.Uint32(t.data[32:36])
	t.meta.NumSyllables = int32(binary.LittleEndian.Uint32(t.data[36:40]))
	t.meta.NumEntries = int32(binary.LittleEndian.Uint32(t.data[40:44]))
	t.meta.SyllabaryOff = int32(binary.LittleEndian.Uint32(t.data[44:48]))
	t.meta.IndexOff = int32(binary.LittleEndian.Uint32(t.data[48:52]))
	if t.meta.SyllabaryOff < headerSize || int(t.meta.SyllabaryOff) > len(t.data) {
		return fmt.Errorf("table: syllabary offset out of bounds")
	}
	if t.meta.IndexOff < headerSize || int(t.meta.IndexOff) > len(t.data) {
		return fmt.Errorf("table: index offset out of bounds")
	}
	return nil
}

// Close unmaps the file and releases its descriptor.
func (t *Table) Close() error {
	err1 := unix.Munmap(t.data)
	err2 := t.file.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// NumSyllables reports the syllabary size recorded in the header.
func (t *Table) NumSyllables() int { return int(t.meta.NumSyllables) }

// bounds-checked views ------------------------------------------------

func (t *Table) view(off, length int32) ([]byte, error) {
	if off < 0 || length < 0 || int64(off)+int64(length) > int64(len(t.data)) {
		return nil, fmt.Errorf("table: offset %d/len %d outside mapped region (size %d)", off, length, len(t.data))
	}
	return t.data[off : off+length], nil
}

func (t *Table) i32At(off int32) int32 {
	return int32(binary.LittleEndian.Uint32(t.data[off : off+4]))
}

func (t *Table) u32At(off int32) uint32 {
	return binary.LittleEndian.Uint32(t.data[off : off+4])
}

func (t *Table) f32At(off int32) float32 {
	return math.Float32frombits(t.u32At(off))
}

// Syllabary -------------------------------------------------------------

// Syllable returns the spelling text for id, as recorded at Build time.
func (t *Table) Syllable(id int32) (string, bool) {
	if id < 0 || id >= t.meta.NumSyllables {
		return "", false
	}
	dirOff := t.meta.SyllabaryOff + 4 + id*8
	textOff := t.i32At(dirOff)
	textLen := t.i32At(dirOff + 4)
	poolStart := t.meta.SyllabaryOff + 4 + t.meta.NumSyllables*8
	text, err := t.view(poolStart+textOff, textLen)
	if err != nil {
		return "", false
	}
	return string(text), true
}

// Decode resolves a Code back to its spelling list via the syllabary,
// used to reconstruct a human-readable phrase key.
func (t *Table) Decode(code Code) []string {
	out := make([]string, 0, len(code))
	for _, id := range code {
		s, ok := t.Syllable(id)
		if !ok {
			s = ""
		}
		out = append(out, s)
	}
	return out
}

// entries reads an Entry list given its offset/count, exactly as
// written by arena.writeEntries.
func (t *Table) entries(off, count int32) []Entry {
	if count == 0 {
		return nil
	}
	out := make([]Entry, 0, count)
	cur := off
	for i := int32(0); i < count; i++ {
		textOff := t.i32At(cur)
		textLen := t.i32At(cur + 4)
		weight := t.f32At(cur + 8)
		cur += 12
		text, err := t.view(textOff, textLen)
		if err != nil {
			log.Warnf("table: skipping entry with bad text offset: %v", err)
			continue
		}
		out = append(out, Entry{Text: string(text), Weight: weight})
	}
	return out
}

// headNode reads HeadIndex[id] as (entriesOff, entriesCount, nextOff).
func (t *Table) headNode(id int32) (int32, int32, int32, bool) {
	if id < 0 || id >= t.meta.NumSyllables {
		return 0, 0, 0, false
	}
	off := t.meta.IndexOff + id*12
	return t.i32At(off), t.i32At(off + 4), t.i32At(off + 8), true
}

// trunkNode binary-searches a TrunkIndex array at off for key.
func (t *Table) trunkNode(off int32, key int32) (int32, int32, int32, bool) {
	size := int32(t.u32At(off))
	rowsStart := off + 4
	lo, hi := int32(0), size-1
	for lo <= hi {
		mid := (lo + hi) / 2
		rowOff := rowsStart + mid*16
		k := t.i32At(rowOff)
		switch {
		case k == key:
			return t.i32At(rowOff + 4), t.i32At(rowOff + 8), t.i32At(rowOff + 12), true
		case k < key:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return 0, 0, 0, false
}

// tailEntries linearly scans a TailIndex array at off for rows whose
// extra_code matches extraCode exactly.
func (t *Table) tailEntries(off int32, extraCode []int32) []Entry {
	size := int32(t.u32At(off))
	rowsStart := off + 4
	var out []Entry
	for i := int32(0); i < size; i++ {
		rowOff := rowsStart + i*20
		extraOff := t.i32At(rowOff)
		extraLen := t.i32At(rowOff + 4)
		textOff := t.i32At(rowOff + 8)
		textLen := t.i32At(rowOff + 12)
		weight := t.f32At(rowOff + 16)

		if !t.extraCodeEquals(extraOff, extraLen, extraCode) {
			continue
		}
		text, err := t.view(textOff, textLen)
		if err != nil {
			continue
		}
		out = append(out, Entry{Text: string(text), Weight: weight})
	}
	return out
}

func (t *Table) extraCodeEquals(off, count int32, want []int32) bool {
	if int(count) != len(want) {
		return false
	}
	for i, id := range want {
		if t.i32At(off+int32(i)*4) != id {
			return false
		}
	}
	return true
}

// Row is one table hit: an Entry plus, for rows that came out of a
// TailIndex, the ExtraCode a caller must match against the remaining
// code sequence itself (the tail level stores every row under a given
// index code regardless of what follows it).
type Row struct {
	Entry     Entry
	ExtraCode Code
}

// allTailRows returns every row under a TailIndex at off, each carrying
// its own ExtraCode for the caller to match.
func (t *Table) allTailRows(off int32) []Row {
	size := int32(t.u32At(off))
	rowsStart := off + 4
	out := make([]Row, 0, size)
	for i := int32(0); i < size; i++ {
		rowOff := rowsStart + i*20
		extraOff := t.i32At(rowOff)
		extraLen := t.i32At(rowOff + 4)
		textOff := t.i32At(rowOff + 8)
		textLen := t.i32At(rowOff + 12)
		weight := t.f32At(rowOff + 16)
		text, err := t.view(textOff, textLen)
		if err != nil {
			continue
		}
		extra := make(Code, extraLen)
		for j := int32(0); j < extraLen; j++ {
			extra[j] = t.i32At(extraOff + j*4)
		}
		out = append(out, Row{Entry: Entry{Text: string(text), Weight: weight}, ExtraCode: extra})
	}
	return out
}
