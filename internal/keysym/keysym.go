// Package keysym converts X11 KeySym codes and modifier masks, the wire
// encoding process_key(id, keycode, mask) uses (spec.md §6), into the rune
// and modifier flags pkg/engine's processors consume. The numeric ranges
// mirror the X11 keysym layout other_examples' goviet-ime composition
// engine relies on for its own keysymToRune.
package keysym

// Mask bits carried alongside a keycode, per spec.md §6.
const (
	MaskShift   = 1
	MaskControl = 4
	MaskAlt     = 8
	MaskRelease = 0x40000000
)

// Named keysyms for the non-printable keys processors dispatch on.
// Values match the X11 keysymdef.h codes the host IME layer forwards.
const (
	KeyBackSpace = 0xff08
	KeyTab       = 0xff09
	KeyReturn    = 0xff0d
	KeyEscape    = 0xff1b
	KeyDelete    = 0xffff
	KeySpace     = 0x0020
	KeyLeft      = 0xff51
	KeyUp        = 0xff52
	KeyRight     = 0xff53
	KeyDown      = 0xff54
	KeyHome      = 0xff50
	KeyEnd       = 0xff57
	KeyPageUp    = 0xff55
	KeyPageDown  = 0xff56
)

// KeyEvent is the decoded form of a single process_key call.
type KeyEvent struct {
	KeyCode uint32
	Mask    uint32
}

// Shift reports whether the Shift modifier bit is set.
func (e KeyEvent) Shift() bool { return e.Mask&MaskShift != 0 }

// Control reports whether the Ctrl modifier bit is set.
func (e KeyEvent) Control() bool { return e.Mask&MaskControl != 0 }

// Alt reports whether the Alt modifier bit is set.
func (e KeyEvent) Alt() bool { return e.Mask&MaskAlt != 0 }

// Release reports whether this event is a key-up rather than a key-down.
// Processors act on key-down only; key-up events are acknowledged unhandled.
func (e KeyEvent) Release() bool { return e.Mask&MaskRelease != 0 }

// ToRune converts a printable-range keysym to the rune it represents,
// returning (0, false) for keysyms with no direct character (function
// keys, navigation keys, and so on), which callers dispatch on KeyCode
// directly instead.
func ToRune(keycode uint32) (rune, bool) {
	switch {
	case keycode >= 0x0020 && keycode <= 0x007e:
		// ASCII printable range.
		return rune(keycode), true
	case keycode >= 0x00a0 && keycode <= 0x00ff:
		// Latin-1 supplement range.
		return rune(keycode), true
	case keycode >= 0x01000000 && keycode <= 0x0110ffff:
		// Unicode keysyms: 0x01000000 + codepoint.
		return rune(keycode - 0x01000000), true
	default:
		return 0, false
	}
}

// IsPrintable reports whether keycode maps to a character a syllabifier
// would accept, as opposed to an editing or navigation key.
func IsPrintable(keycode uint32) bool {
	_, ok := ToRune(keycode)
	return ok
}
