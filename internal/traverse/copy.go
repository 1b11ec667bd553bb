package traverse

import (
	"github.com/hupe1980/rulecache/internal/graph"
)

// ObjectMap maps already-copied source records to their copies. It lives
// for one or more calls of CopyInto against the same destination.
type ObjectMap map[graph.Ptr]graph.Ptr

// CopyInto deep-copies the graph at p from src into dest and returns the
// copy of p. Records found in objs are referenced instead of copied again.
// Transient fields are zeroed.
func CopyInto(src graph.Space, p graph.Ptr, dest graph.Heap, objs ObjectMap) (graph.Ptr, error) {
	if objs == nil {
		objs = make(ObjectMap)
	}
	c := copier{src: src, dest: dest, objs: objs}
	return c.copy(p, 0)
}

// Promote is CopyInto for moving a unit's results into a longer-lived heap:
// records already owned by dest are referenced as they are.
func Promote(src graph.Space, p graph.Ptr, dest graph.Heap) (graph.Ptr, error) {
	c := copier{src: src, dest: dest, objs: make(ObjectMap), skipOwned: true}
	return c.copy(p, 0)
}

// PromoteAll promotes several roots sharing one object map, so records
// reachable from more than one root are copied once.
func PromoteAll(src graph.Space, dest graph.Heap, roots ...graph.Ptr) ([]graph.Ptr, error) {
	c := copier{src: src, dest: dest, objs: make(ObjectMap), skipOwned: true}
	out := make([]graph.Ptr, len(roots))
	for i, p := range roots {
		q, err := c.copy(p, 0)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}

type copier struct {
	src       graph.Space
	dest      graph.Heap
	objs      ObjectMap
	skipOwned bool
}

func (c *copier) copy(p graph.Ptr, aux uint16) (graph.Ptr, error) {
	if p.IsNil() {
		return 0, nil
	}
	if c.skipOwned && c.dest.Owns(p) {
		return p, nil
	}
	if q, ok := c.objs[p]; ok {
		return q, nil
	}

	rec, err := graph.Load(c.src, p)
	if err != nil {
		return 0, err
	}
	out, err := graph.New(c.dest, rec.Tag(), rec.Sub(), rec.Count())
	if err != nil {
		return 0, err
	}
	copy(out.Bytes(), rec.Bytes())
	c.objs[p] = out.Ptr()

	l := rec.Layout()
	inner := aux
	if l.Container {
		inner = rec.Sub()
	}

	for _, f := range l.Fields {
		switch f.Kind {
		case graph.FieldScalar, graph.FieldFixedArray:
		case graph.FieldTransient:
			out.SetWord(f.Offset, 0)
		case graph.FieldOwned:
			if err := c.field(rec, out, f.Offset, inner); err != nil {
				return 0, err
			}
		case graph.FieldOwnedAux:
			if graph.AuxIsPointer(aux) {
				if err := c.field(rec, out, f.Offset, inner); err != nil {
					return 0, err
				}
			}
		default:
			return 0, unknownField(rec.Tag(), f)
		}
	}

	if l.Tail != nil && l.Tail.Elem == graph.ElemPtr {
		for i := range rec.Count() {
			if err := c.field(rec, out, l.Tail.Offset+i*graph.WordSize, inner); err != nil {
				return 0, err
			}
		}
	}
	return out.Ptr(), nil
}

func (c *copier) field(rec, out graph.Record, off int, aux uint16) error {
	q, err := c.copy(rec.PtrAt(off), aux)
	if err != nil {
		return err
	}
	out.SetWord(off, uint64(q))
	return nil
}
