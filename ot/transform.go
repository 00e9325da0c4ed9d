package ot

// primitive is either an insertion or a deletion. Every TextModification is
// decomposed into an insertion at Offset followed by a deletion right after
// the inserted text, so text inserted at the end of a replaced span keeps
// its place after the replacement.
type primitive struct {
	insert bool
	pos    int
	n      int // units deleted, or units inserted
	text   string
}

func insertion(unit OffsetUnit, pos int, text string) primitive {
	return primitive{insert: true, pos: pos, n: unit.Len(text), text: text}
}

func deletion(pos, n int) primitive {
	return primitive{pos: pos, n: n}
}

func (p primitive) at(pos int) primitive {
	p.pos = pos
	return p
}

func (p primitive) shift(delta int) primitive {
	p.pos += delta
	return p
}

func (p primitive) isNoop() bool {
	return p.n == 0
}

func decompose(unit OffsetUnit, changes []TextModification) []primitive {
	ps := make([]primitive, 0, 2*len(changes))
	for _, m := range changes {
		ins := insertion(unit, m.Offset, m.Text)
		if !ins.isNoop() {
			ps = append(ps, ins)
		}
		if m.Delete > 0 {
			ps = append(ps, deletion(m.Offset+ins.n, m.Delete))
		}
	}
	return ps
}

// recompose folds an insertion followed by a deletion right after the
// inserted text back into one modification. A deletion followed by an
// insertion stays two modifications, so decompose gives back the same
// primitives.
func recompose(ps []primitive) []TextModification {
	out := make([]TextModification, 0, len(ps))
	for i := 0; i < len(ps); i++ {
		p := ps[i]
		if !p.insert {
			out = append(out, TextModification{Offset: p.pos, Delete: p.n})
			continue
		}

		m := TextModification{Offset: p.pos, Text: p.text}
		if i+1 < len(ps) && !ps[i+1].insert && ps[i+1].pos == p.pos+p.n {
			m.Delete = ps[i+1].n
			i++
		}
		out = append(out, m)
	}
	return out
}

func one(p primitive) []primitive {
	if p.isNoop() {
		return nil
	}
	return []primitive{p}
}

// transformInsertDelete derives the bottom two sides of the OT diamond, where
// the top two sides are an insert and a delete.
func transformInsertDelete(ins, del primitive) (insP, delP []primitive) {
	switch {
	case ins.pos <= del.pos:
		// Insert before delete. Delete shifts forward.
		return one(ins), one(del.shift(ins.n))
	case ins.pos >= del.pos+del.n:
		// Insert after delete. Insert shifts backward.
		return one(ins.shift(-del.n)), one(del)
	default:
		// Insert inside the deleted span. The insertion survives at the start
		// of the span and the deletion splits around it.
		before := ins.pos - del.pos
		return one(ins.at(del.pos)), append(one(deletion(del.pos, before)), one(deletion(del.pos+ins.n, del.n-before))...)
	}
}

// transformPrimitive transforms (a, b) into (a', b'), where a' applies after b
// and b' applies after a. aFirst breaks insert-insert ties: the winner's text
// ends up first.
func transformPrimitive(a, b primitive, aFirst bool) (ap, bp []primitive) {
	switch {
	case a.insert && b.insert:
		if a.pos < b.pos || (a.pos == b.pos && aFirst) {
			return one(a), one(b.shift(a.n))
		}
		return one(a.shift(b.n)), one(b)

	case a.insert:
		return transformInsertDelete(a, b)

	case b.insert:
		bp, ap = transformInsertDelete(b, a)
		return ap, bp
	}

	aEnd, bEnd := a.pos+a.n, b.pos+b.n
	switch {
	case aEnd <= b.pos:
		return one(a), one(b.shift(-a.n))
	case bEnd <= a.pos:
		return one(a.shift(-b.n)), one(b)
	}

	// Deletions overlap. Text removed by one side is dropped from the other.
	pos := min(a.pos, b.pos)
	overlap := min(aEnd, bEnd) - max(a.pos, b.pos)
	return one(deletion(pos, a.n-overlap)), one(deletion(pos, b.n-overlap))
}

func transformLists(a, b []primitive, aFirst bool) (ap, bp []primitive) {
	switch {
	case len(a) == 0 || len(b) == 0:
		return a, b

	case len(a) == 1 && len(b) == 1:
		return transformPrimitive(a[0], b[0], aFirst)

	case len(a) > 1:
		head, b1 := transformLists(a[:1], b, aFirst)
		tail, b2 := transformLists(a[1:], b1, aFirst)
		return append(head, tail...), b2

	default:
		a1, head := transformLists(a, b[:1], aFirst)
		a2, tail := transformLists(a1, b[1:], aFirst)
		return a2, append(head, tail...)
	}
}

// Transform derives the bottom two sides of the OT diamond for two
// modifications made against the same state: ap applies after b, bp applies
// after a. When aFirst is set, a is the authoritative side and wins ties.
// Either result may hold zero or several modifications.
func Transform(unit OffsetUnit, a, b TextModification, aFirst bool) (ap, bp []TextModification) {
	return TransformPatch(unit, []TextModification{a}, []TextModification{b}, aFirst)
}

// TransformPatch is Transform for ordered change lists.
func TransformPatch(unit OffsetUnit, a, b []TextModification, aFirst bool) (ap, bp []TextModification) {
	pa, pb := transformLists(decompose(unit, a), decompose(unit, b), aFirst)
	return recompose(pa), recompose(pb)
}
