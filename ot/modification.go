package ot

import (
	"fmt"
	"unicode/utf8"
)

// OffsetUnit is the measurement basis for every offset and length in a session.
type OffsetUnit int

const (
	// Bytes measures offsets in raw UTF-8 bytes. It is the default when a peer never declares.
	Bytes OffsetUnit = iota

	// Chars measures offsets in code points.
	Chars
)

// String returns the wire name of the unit.
func (u OffsetUnit) String() string {
	switch u {
	case Bytes:
		return "bytes"
	case Chars:
		return "chars"
	default:
		return fmt.Sprintf("OffsetUnit(%d)", int(u))
	}
}

// ParseOffsetUnit parses a wire name ("bytes" or "chars").
func ParseOffsetUnit(s string) (OffsetUnit, error) {
	switch s {
	case "bytes":
		return Bytes, nil
	case "chars":
		return Chars, nil
	}
	return Bytes, fmt.Errorf("unknown offset format %q", s)
}

// Len returns the length of s measured in u.
func (u OffsetUnit) Len(s string) int {
	if u == Chars {
		return utf8.RuneCountInString(s)
	}
	return len(s)
}

// byteIndex converts an offset measured in u into a byte index of s.
// It reports false when the offset is past the end of s, or when a byte offset
// would split a UTF-8 sequence.
func (u OffsetUnit) byteIndex(s string, offset int) (int, bool) {
	if offset < 0 {
		return 0, false
	}

	if u == Chars {
		n := 0
		for i := range s {
			if n == offset {
				return i, true
			}
			n++
		}
		return len(s), n == offset
	}

	if offset > len(s) {
		return 0, false
	}
	if offset < len(s) && !utf8.RuneStart(s[offset]) {
		return 0, false
	}
	return offset, true
}

// TextModification replaces the span [Offset, Offset+Delete) with Text.
type TextModification struct {
	// Offset is where the modification starts, in the session's offset unit.
	Offset int `json:"offset"`

	// Delete is how many units are removed starting at Offset.
	Delete int `json:"delete"`

	// Text is inserted at Offset once the span has been removed.
	Text string `json:"text"`
}

// IsNoop reports whether m leaves every buffer unchanged.
func (m TextModification) IsNoop() bool {
	return m.Delete == 0 && m.Text == ""
}

func (m TextModification) String() string {
	return fmt.Sprintf("{offset: %d, delete: %d, text: %q}", m.Offset, m.Delete, m.Text)
}
