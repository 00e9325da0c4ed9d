// Package ot holds the document model and the operational transform engine
// used to keep replicas of a flat text buffer convergent.
package ot

import (
	"errors"
	"fmt"
)

var (
	// ErrOffsetOutOfRange indicates that a modification's span does not fit the buffer it is applied to.
	ErrOffsetOutOfRange = errors.New("offset out of range")
)

// span resolves m against s and returns the byte range it deletes.
func span(unit OffsetUnit, s string, m TextModification) (int, int, error) {
	if m.Offset < 0 || m.Delete < 0 {
		return 0, 0, fmt.Errorf("%w: %v", ErrOffsetOutOfRange, m)
	}

	start, ok := unit.byteIndex(s, m.Offset)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %v on %d %s", ErrOffsetOutOfRange, m, unit.Len(s), unit)
	}

	length, ok := unit.byteIndex(s[start:], m.Delete)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %v on %d %s", ErrOffsetOutOfRange, m, unit.Len(s), unit)
	}

	return start, start + length, nil
}

// Apply returns s with m applied.
func Apply(unit OffsetUnit, s string, m TextModification) (string, error) {
	start, end, err := span(unit, s, m)
	if err != nil {
		return s, err
	}
	return s[:start] + m.Text + s[end:], nil
}

// Invert returns the modification that undoes m, where s is the text m is applied to.
func Invert(unit OffsetUnit, s string, m TextModification) (TextModification, error) {
	start, end, err := span(unit, s, m)
	if err != nil {
		return TextModification{}, err
	}
	return TextModification{Offset: m.Offset, Delete: unit.Len(m.Text), Text: s[start:end]}, nil
}

// Convert re-expresses m, measured in from against s, in the to unit.
func Convert(s string, m TextModification, from, to OffsetUnit) (TextModification, error) {
	start, end, err := span(from, s, m)
	if err != nil {
		return TextModification{}, err
	}
	if from == to {
		return m, nil
	}
	return TextModification{Offset: to.Len(s[:start]), Delete: to.Len(s[start:end]), Text: m.Text}, nil
}

// ConvertAll converts an ordered change list, each change measured against the
// text produced by the previous one, starting from s.
func ConvertAll(s string, changes []TextModification, from, to OffsetUnit) ([]TextModification, error) {
	out := make([]TextModification, 0, len(changes))
	for _, m := range changes {
		c, err := Convert(s, m, from, to)
		if err != nil {
			return nil, err
		}
		if s, err = Apply(from, s, m); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Document is a text buffer with a revision counter and a fixed offset unit.
type Document struct {
	text     string
	revision int
	unit     OffsetUnit
}

// NewDocument returns an empty document at revision 0.
func NewDocument(unit OffsetUnit) *Document {
	return &Document{unit: unit}
}

// Text returns the content of the document.
func (d *Document) Text() string {
	return d.text
}

// Revision returns how many modifications have been applied to the document.
func (d *Document) Revision() int {
	return d.revision
}

// Unit returns the offset unit of the document.
func (d *Document) Unit() OffsetUnit {
	return d.unit
}

// Len returns the length of the document in its offset unit.
func (d *Document) Len() int {
	return d.unit.Len(d.text)
}

// Reset replaces the content and revision wholesale.
func (d *Document) Reset(text string, revision int) {
	d.text = text
	d.revision = revision
}

// Clone returns an independent copy of the document.
func (d *Document) Clone() *Document {
	c := *d
	return &c
}

// Apply applies m and increments the revision. On failure the document is unchanged.
func (d *Document) Apply(m TextModification) error {
	text, err := Apply(d.unit, d.text, m)
	if err != nil {
		return fmt.Errorf("apply to document r%d: %w", d.revision, err)
	}
	d.text = text
	d.revision++
	return nil
}

// ApplyAll applies changes in order and returns their inverses. It is atomic:
// if any change fails, the document is left untouched.
func (d *Document) ApplyAll(changes []TextModification) ([]TextModification, error) {
	text := d.text
	inverses := make([]TextModification, 0, len(changes))
	for i, m := range changes {
		inv, err := Invert(d.unit, text, m)
		if err != nil {
			return nil, fmt.Errorf("apply change %d to document r%d: %w", i, d.revision, err)
		}
		text, _ = Apply(d.unit, text, m)
		inverses = append(inverses, inv)
	}
	d.text = text
	d.revision += len(changes)
	return inverses, nil
}

// Invert returns the modification undoing m against the current content.
func (d *Document) Invert(m TextModification) (TextModification, error) {
	return Invert(d.unit, d.text, m)
}
