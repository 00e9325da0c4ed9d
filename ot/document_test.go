package ot

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDocument(t *testing.T) {
	doc := NewDocument(Chars)

	// A new document is empty and at revision 0.
	if doc.Text() != "" || doc.Revision() != 0 {
		t.Errorf("got != want; got = (%q, %v), expected = (\"\", 0)\n", doc.Text(), doc.Revision())
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		description string
		unit        OffsetUnit
		text        string
		mod         TextModification
		expected    string
	}{
		{description: "insert into empty", unit: Bytes, text: "", mod: TextModification{Offset: 0, Text: "foo"}, expected: "foo"},
		{description: "append", unit: Bytes, text: "hello", mod: TextModification{Offset: 5, Text: " world"}, expected: "hello world"},
		{description: "replace", unit: Bytes, text: "hello", mod: TextModification{Offset: 0, Delete: 5, Text: "HI"}, expected: "HI"},
		{description: "delete middle", unit: Bytes, text: "foobar", mod: TextModification{Offset: 2, Delete: 2}, expected: "foar"},
		{description: "chars after multibyte", unit: Chars, text: "héllo", mod: TextModification{Offset: 2, Delete: 1, Text: "L"}, expected: "héLlo"},
		{description: "bytes after multibyte", unit: Bytes, text: "héllo", mod: TextModification{Offset: 3, Delete: 1, Text: "L"}, expected: "héLlo"},
		{description: "chars at end", unit: Chars, text: "日本", mod: TextModification{Offset: 2, Text: "語"}, expected: "日本語"},
	}

	for _, tc := range tests {
		got, err := Apply(tc.unit, tc.text, tc.mod)
		if err != nil {
			t.Errorf("(%s) error: %v\n", tc.description, err)
			continue
		}
		if got != tc.expected {
			t.Errorf("(%s) got != expected; got = %q, expected = %q\n", tc.description, got, tc.expected)
		}
	}
}

func TestApplyOutOfRange(t *testing.T) {
	tests := []struct {
		description string
		unit        OffsetUnit
		text        string
		mod         TextModification
	}{
		{description: "offset past end", unit: Bytes, text: "hello", mod: TextModification{Offset: 6, Text: "x"}},
		{description: "delete past end", unit: Bytes, text: "hello", mod: TextModification{Offset: 3, Delete: 3}},
		{description: "negative offset", unit: Bytes, text: "hello", mod: TextModification{Offset: -1}},
		{description: "negative delete", unit: Chars, text: "hello", mod: TextModification{Offset: 1, Delete: -1}},
		{description: "split utf-8 sequence", unit: Bytes, text: "héllo", mod: TextModification{Offset: 2, Text: "x"}},
		{description: "chars past end", unit: Chars, text: "héllo", mod: TextModification{Offset: 4, Delete: 2}},
	}

	for _, tc := range tests {
		_, err := Apply(tc.unit, tc.text, tc.mod)
		if !errors.Is(err, ErrOffsetOutOfRange) {
			t.Errorf("(%s) got = %v, expected = %v\n", tc.description, err, ErrOffsetOutOfRange)
		}
	}
}

// TestDocumentRejectsOutOfRange checks that a rejected modification leaves the buffer untouched.
func TestDocumentRejectsOutOfRange(t *testing.T) {
	doc := NewDocument(Bytes)
	doc.Reset("hello", 3)

	err := doc.Apply(TextModification{Offset: doc.Len() + 1, Text: "x"})
	if !errors.Is(err, ErrOffsetOutOfRange) {
		t.Fatalf("got = %v, expected = %v\n", err, ErrOffsetOutOfRange)
	}

	got := []any{doc.Text(), doc.Revision()}
	want := []any{"hello", 3}
	if !cmp.Equal(got, want) {
		t.Errorf("got != want; diff = %v\n", cmp.Diff(got, want))
	}
}

func TestDocumentRevision(t *testing.T) {
	doc := NewDocument(Bytes)

	for i, m := range []TextModification{{Text: "a"}, {Offset: 1, Text: "b"}, {Offset: 0, Delete: 1}} {
		if err := doc.Apply(m); err != nil {
			t.Fatalf("error: %v\n", err)
		}
		if doc.Revision() != i+1 {
			t.Errorf("got != want; got = %v, expected = %v\n", doc.Revision(), i+1)
		}
	}

	if _, err := doc.ApplyAll([]TextModification{{Offset: 1, Text: "cd"}, {Offset: 0, Delete: 1}}); err != nil {
		t.Fatalf("error: %v\n", err)
	}

	got := []any{doc.Text(), doc.Revision()}
	want := []any{"cd", 5}
	if !cmp.Equal(got, want) {
		t.Errorf("got != want; diff = %v\n", cmp.Diff(got, want))
	}
}

// TestApplyAllAtomic checks that a failing change in a list leaves the document unchanged.
func TestApplyAllAtomic(t *testing.T) {
	doc := NewDocument(Bytes)
	doc.Reset("hello", 0)

	_, err := doc.ApplyAll([]TextModification{{Offset: 0, Delete: 5, Text: "HI"}, {Offset: 4, Text: "!"}})
	if !errors.Is(err, ErrOffsetOutOfRange) {
		t.Fatalf("got = %v, expected = %v\n", err, ErrOffsetOutOfRange)
	}

	got := []any{doc.Text(), doc.Revision()}
	want := []any{"hello", 0}
	if !cmp.Equal(got, want) {
		t.Errorf("got != want; diff = %v\n", cmp.Diff(got, want))
	}
}

// TestInvertRoundTrip checks that applying invert(m) right after m restores the buffer.
func TestInvertRoundTrip(t *testing.T) {
	tests := []struct {
		description string
		unit        OffsetUnit
		text        string
		mod         TextModification
	}{
		{description: "insert", unit: Bytes, text: "hello", mod: TextModification{Offset: 5, Text: " world"}},
		{description: "delete", unit: Bytes, text: "hello", mod: TextModification{Offset: 1, Delete: 3}},
		{description: "replace", unit: Bytes, text: "hello", mod: TextModification{Offset: 0, Delete: 5, Text: "HI"}},
		{description: "multibyte chars", unit: Chars, text: "héllo wörld", mod: TextModification{Offset: 1, Delete: 7, Text: "ü"}},
		{description: "multibyte bytes", unit: Bytes, text: "héllo", mod: TextModification{Offset: 1, Delete: 2, Text: "日本"}},
		{description: "noop", unit: Chars, text: "abc", mod: TextModification{Offset: 2}},
	}

	for _, tc := range tests {
		doc := NewDocument(tc.unit)
		doc.Reset(tc.text, 0)

		inv, err := doc.Invert(tc.mod)
		if err != nil {
			t.Fatalf("(%s) error: %v\n", tc.description, err)
		}
		if err := doc.Apply(tc.mod); err != nil {
			t.Fatalf("(%s) error: %v\n", tc.description, err)
		}
		if err := doc.Apply(inv); err != nil {
			t.Fatalf("(%s) error: %v\n", tc.description, err)
		}

		if doc.Text() != tc.text {
			t.Errorf("(%s) got != expected; got = %q, expected = %q\n", tc.description, doc.Text(), tc.text)
		}
	}
}

func TestConvert(t *testing.T) {
	text := "héllo wörld"

	got, err := Convert(text, TextModification{Offset: 7, Delete: 2, Text: "ö"}, Chars, Bytes)
	if err != nil {
		t.Fatalf("error: %v\n", err)
	}
	want := TextModification{Offset: 8, Delete: 3, Text: "ö"}
	if !cmp.Equal(got, want) {
		t.Errorf("got != want; diff = %v\n", cmp.Diff(got, want))
	}

	back, err := Convert(text, got, Bytes, Chars)
	if err != nil {
		t.Fatalf("error: %v\n", err)
	}
	want = TextModification{Offset: 7, Delete: 2, Text: "ö"}
	if !cmp.Equal(back, want) {
		t.Errorf("got != want; diff = %v\n", cmp.Diff(back, want))
	}
}

// TestConvertAll checks that each change is measured against the text produced by the previous one.
func TestConvertAll(t *testing.T) {
	changes := []TextModification{
		{Offset: 0, Text: "日本"},
		{Offset: 3, Delete: 1},
	}

	got, err := ConvertAll("héllo", changes, Chars, Bytes)
	if err != nil {
		t.Fatalf("error: %v\n", err)
	}
	want := []TextModification{
		{Offset: 0, Text: "日本"},
		{Offset: 7, Delete: 2},
	}
	if !cmp.Equal(got, want) {
		t.Errorf("got != want; diff = %v\n", cmp.Diff(got, want))
	}

	if _, err := ConvertAll("abc", []TextModification{{Offset: 4}}, Chars, Bytes); !errors.Is(err, ErrOffsetOutOfRange) {
		t.Errorf("got = %v, expected = %v\n", err, ErrOffsetOutOfRange)
	}
}

func TestParseOffsetUnit(t *testing.T) {
	for _, u := range []OffsetUnit{Bytes, Chars} {
		got, err := ParseOffsetUnit(u.String())
		if err != nil || got != u {
			t.Errorf("got != want; got = (%v, %v), expected = %v\n", got, err, u)
		}
	}

	if _, err := ParseOffsetUnit("utf16"); err == nil {
		t.Errorf("expected an error for an unknown format")
	}
}
