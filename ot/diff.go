package ot

import "unicode/utf8"

// Diff returns a single modification turning before into after, found by
// trimming the common prefix and suffix. The boundaries never split a UTF-8
// sequence.
func Diff(unit OffsetUnit, before, after string) TextModification {
	prefix := 0
	for prefix < len(before) && prefix < len(after) {
		_, n1 := utf8.DecodeRuneInString(before[prefix:])
		_, n2 := utf8.DecodeRuneInString(after[prefix:])
		if n1 != n2 || before[prefix:prefix+n1] != after[prefix:prefix+n2] {
			break
		}
		prefix += n1
	}

	suffix := 0
	for suffix < len(before)-prefix && suffix < len(after)-prefix {
		b := before[:len(before)-suffix]
		a := after[:len(after)-suffix]
		_, n1 := utf8.DecodeLastRuneInString(b)
		_, n2 := utf8.DecodeLastRuneInString(a)
		if n1 != n2 || n1 > len(b)-prefix || n2 > len(a)-prefix || b[len(b)-n1:] != a[len(a)-n2:] {
			break
		}
		suffix += n1
	}

	return TextModification{
		Offset: unit.Len(before[:prefix]),
		Delete: unit.Len(before[prefix : len(before)-suffix]),
		Text:   after[prefix : len(after)-suffix],
	}
}
