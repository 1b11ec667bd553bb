package traverse

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/hupe1980/rulecache/internal/graph"
)

// maxKeyDepth bounds semantic keys of (acyclic) type terms.
const maxKeyDepth = 256

// Key returns a memoization key for the record at p: a semantic key for
// texts and types, the record identity otherwise.
func Key(sp graph.Space, p graph.Ptr) (string, error) {
	if p.IsNil() {
		return "nil", nil
	}
	rec, err := graph.Load(sp, p)
	if err != nil {
		return "", err
	}
	k, err := semanticKey(sp, rec, 0)
	if err != nil {
		return "", err
	}
	if k == "" {
		k = "#" + strconv.FormatUint(uint64(p), 16)
	}
	return k, nil
}

// semanticKey returns "" for records keyed by identity.
func semanticKey(sp graph.Space, rec graph.Record, depth int) (string, error) {
	switch rec.Tag() {
	case graph.TagText:
		return "t:" + strconv.Quote(string(rec.TailBytes())), nil
	case graph.TagType:
		var sb strings.Builder
		if err := typeKey(sp, rec, &sb, depth); err != nil {
			return "", err
		}
		return sb.String(), nil
	default:
		return "", nil
	}
}

func typeKey(sp graph.Space, rec graph.Record, sb *strings.Builder, depth int) error {
	if depth > maxKeyDepth {
		return fmt.Errorf("%w: type term nested deeper than %d", ErrCorruptBuffer, maxKeyDepth)
	}
	t := graph.Type{Record: rec}
	fmt.Fprintf(sb, "y:%d", t.Ctor())
	if t.IsVar() {
		fmt.Fprintf(sb, "?%d", t.VarID())
	}
	if n := t.Name(); !n.IsNil() {
		name, err := graph.TextString(sp, n)
		if err != nil {
			return err
		}
		sb.WriteString(strconv.Quote(name))
	}
	sb.WriteByte('(')
	for i, a := range t.Args() {
		if i > 0 {
			sb.WriteByte(',')
		}
		if a.IsNil() {
			sb.WriteString("nil")
			continue
		}
		arg, err := graph.LoadAs(sp, a, graph.TagType)
		if err != nil {
			return err
		}
		if err := typeKey(sp, arg, sb, depth+1); err != nil {
			return err
		}
	}
	sb.WriteByte(')')
	return nil
}

// Equal reports whether the graphs at a in sa and b in sb are structurally
// equal. Transient fields are ignored. Sharing and cycles are tolerated.
func Equal(sa graph.Space, a graph.Ptr, sb graph.Space, b graph.Ptr) (bool, error) {
	e := equaler{sa: sa, sb: sb, seen: make(map[[2]graph.Ptr]struct{})}
	return e.equal(a, b, 0)
}

type equaler struct {
	sa, sb graph.Space
	seen   map[[2]graph.Ptr]struct{}
}

func (e *equaler) equal(a, b graph.Ptr, aux uint16) (bool, error) {
	if a.IsNil() || b.IsNil() {
		return a.IsNil() && b.IsNil(), nil
	}
	pair := [2]graph.Ptr{a, b}
	if _, ok := e.seen[pair]; ok {
		return true, nil
	}
	e.seen[pair] = struct{}{}

	ra, err := graph.Load(e.sa, a)
	if err != nil {
		return false, err
	}
	rb, err := graph.Load(e.sb, b)
	if err != nil {
		return false, err
	}
	if ra.Tag() != rb.Tag() || ra.Sub() != rb.Sub() || ra.Count() != rb.Count() {
		return false, nil
	}

	l := ra.Layout()
	inner := aux
	if l.Container {
		inner = ra.Sub()
	}

	for _, f := range l.Fields {
		switch f.Kind {
		case graph.FieldScalar, graph.FieldFixedArray:
			if !bytes.Equal(ra.Bytes()[f.Offset:f.Offset+f.Size], rb.Bytes()[f.Offset:f.Offset+f.Size]) {
				return false, nil
			}
		case graph.FieldTransient:
		case graph.FieldOwned:
			if ok, err := e.equal(ra.PtrAt(f.Offset), rb.PtrAt(f.Offset), inner); err != nil || !ok {
				return false, err
			}
		case graph.FieldOwnedAux:
			if graph.AuxIsPointer(aux) {
				if ok, err := e.equal(ra.PtrAt(f.Offset), rb.PtrAt(f.Offset), inner); err != nil || !ok {
					return false, err
				}
			} else if ra.Word(f.Offset) != rb.Word(f.Offset) {
				return false, nil
			}
		default:
			return false, unknownField(ra.Tag(), f)
		}
	}

	if l.Tail == nil {
		return true, nil
	}
	if l.Tail.Elem != graph.ElemPtr {
		return bytes.Equal(ra.Bytes()[l.Fixed:], rb.Bytes()[l.Fixed:]), nil
	}
	for i := range ra.Count() {
		off := l.Tail.Offset + i*graph.WordSize
		if ok, err := e.equal(ra.PtrAt(off), rb.PtrAt(off), inner); err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
