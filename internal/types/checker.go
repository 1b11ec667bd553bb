package types

import (
	"fmt"
	"strconv"

	"github.com/hupe1980/rulecache/internal/graph"
	"github.com/hupe1980/rulecache/internal/traverse"
)

// MaxDepth bounds the nesting of type terms and node trees.
const MaxDepth = 4096

// Checker unifies and infers types inside one heap. It is not safe for
// concurrent use; independent units use independent checkers.
type Checker struct {
	heap  graph.Heap
	space graph.Space
	subst *graph.Map
	objs  traverse.ObjectMap

	nextVar uint64
	prims   map[graph.Ctor]graph.Ptr
	errs    []error
}

// Option configures a Checker.
type Option func(*Checker)

// WithSource makes terms not owned by the checker's heap resolve through
// src, e.g. a function index inside an attached cache.
func WithSource(src graph.Space) Option {
	return func(c *Checker) {
		if src != nil {
			c.space = mixedSpace{heap: c.heap, src: src}
		}
	}
}

// WithFirstVar starts variable numbering at id.
func WithFirstVar(id uint64) Option {
	return func(c *Checker) { c.nextVar = id }
}

// NewChecker creates a checker allocating in h.
func NewChecker(h graph.Heap, opts ...Option) (*Checker, error) {
	subst, err := graph.NewMap(h, 32, graph.MapGrowable)
	if err != nil {
		return nil, err
	}
	c := &Checker{
		heap:  h,
		space: h,
		subst: subst,
		objs:  make(traverse.ObjectMap),
		prims: make(map[graph.Ctor]graph.Ptr),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Heap returns the heap the checker allocates in.
func (c *Checker) Heap() graph.Heap { return c.heap }

// Space returns the space the checker reads through.
func (c *Checker) Space() graph.Space { return c.space }

// Substitution returns the substitution table.
func (c *Checker) Substitution() *graph.Map { return c.subst }

// NextVar returns the id the next fresh variable will get.
func (c *Checker) NextVar() uint64 { return c.nextVar }

// Errors returns the failures recorded by CheckRuleSet.
func (c *Checker) Errors() []error { return c.errs }

// FreshVar mints a new unbound type variable.
func (c *Checker) FreshVar() (graph.Ptr, error) {
	id := c.nextVar
	c.nextVar++
	return graph.NewVarType(c.heap, id)
}

// Prim returns the checker's shared instance of a nullary constructor.
func (c *Checker) Prim(ctor graph.Ctor) (graph.Ptr, error) {
	if p, ok := c.prims[ctor]; ok {
		return p, nil
	}
	p, err := graph.NewPrimType(c.heap, ctor)
	if err != nil {
		return 0, err
	}
	c.prims[ctor] = p
	return p, nil
}

// ErrorType returns the error sentinel.
func (c *Checker) ErrorType() (graph.Ptr, error) { return c.Prim(graph.CtorError) }

func varKey(id uint64) string { return "?" + strconv.FormatUint(id, 10) }

// Binding returns the value bound to variable id.
func (c *Checker) Binding(id uint64) (graph.Ptr, bool, error) {
	v, ok, err := c.subst.Lookup(varKey(id))
	return graph.Ptr(v), ok, err
}

func (c *Checker) bind(id uint64, t graph.Ptr) error {
	return c.subst.Insert(varKey(id), uint64(t))
}

func (c *Checker) load(p graph.Ptr) (graph.Type, error) {
	return graph.LoadType(c.space, p)
}

// local returns p if the checker's heap owns it and a copy otherwise.
func (c *Checker) local(p graph.Ptr) (graph.Ptr, error) {
	if p.IsNil() || c.heap.Owns(p) {
		return p, nil
	}
	return traverse.CopyInto(c.space, p, c.heap, c.objs)
}

// Dereference follows variable bindings and returns a term owned by the
// checker's heap whose variables are all unbound. Compound terms are rebuilt
// only when an argument changes.
func (c *Checker) Dereference(t graph.Ptr) (graph.Ptr, error) {
	return c.deref(t, 0)
}

func (c *Checker) deref(t graph.Ptr, depth int) (graph.Ptr, error) {
	if depth > MaxDepth {
		return 0, ErrTooDeep
	}
	t, err := c.local(t)
	if err != nil {
		return 0, err
	}
	ty, err := c.load(t)
	if err != nil {
		return 0, err
	}
	if ty.IsVar() {
		b, ok, err := c.Binding(ty.VarID())
		if err != nil || !ok {
			return t, err
		}
		return c.deref(b, depth+1)
	}
	if ty.Arity() == 0 {
		return t, nil
	}

	args := ty.Args()
	changed := false
	for i, a := range args {
		d, err := c.deref(a, depth+1)
		if err != nil {
			return 0, err
		}
		if d != a {
			args[i] = d
			changed = true
		}
	}
	if !changed {
		return t, nil
	}
	return graph.NewType(c.heap, ty.Ctor(), 0, ty.Name(), args...)
}

// occurs reports whether variable id occurs in t under the substitution.
func (c *Checker) occurs(id uint64, t graph.Ptr, depth int) (bool, error) {
	if depth > MaxDepth {
		return false, ErrTooDeep
	}
	ty, err := c.load(t)
	if err != nil {
		return false, err
	}
	if ty.IsVar() {
		if ty.VarID() == id {
			return true, nil
		}
		b, ok, err := c.Binding(ty.VarID())
		if err != nil || !ok {
			return false, err
		}
		return c.occurs(id, b, depth+1)
	}
	for _, a := range ty.Args() {
		if ok, err := c.occurs(id, a, depth+1); err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// Instantiate dereferences t and renames every remaining variable to a
// fresh one. Occurrences of one variable map to the same fresh variable.
func (c *Checker) Instantiate(t graph.Ptr) (graph.Ptr, error) {
	d, err := c.Dereference(t)
	if err != nil {
		return 0, err
	}
	return c.rename(d, make(map[uint64]graph.Ptr), 0)
}

func (c *Checker) rename(t graph.Ptr, fresh map[uint64]graph.Ptr, depth int) (graph.Ptr, error) {
	if depth > MaxDepth {
		return 0, ErrTooDeep
	}
	ty, err := c.load(t)
	if err != nil {
		return 0, err
	}
	if ty.IsVar() {
		if v, ok := fresh[ty.VarID()]; ok {
			return v, nil
		}
		v, err := c.FreshVar()
		if err != nil {
			return 0, err
		}
		fresh[ty.VarID()] = v
		return v, nil
	}
	if ty.Arity() == 0 {
		return t, nil
	}
	args := ty.Args()
	changed := false
	for i, a := range args {
		r, err := c.rename(a, fresh, depth+1)
		if err != nil {
			return 0, err
		}
		if r != a {
			args[i] = r
			changed = true
		}
	}
	if !changed {
		return t, nil
	}
	return graph.NewType(c.heap, ty.Ctor(), 0, ty.Name(), args...)
}

// Format renders t after dereferencing it.
func (c *Checker) Format(t graph.Ptr) string {
	d, err := c.Dereference(t)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	s, err := graph.FormatType(c.space, d)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return s
}

// TypeEqSyntactic compares two terms structurally without consulting any
// substitution.
func TypeEqSyntactic(sp graph.Space, a, b graph.Ptr) (bool, error) {
	for _, p := range []graph.Ptr{a, b} {
		if !p.IsNil() {
			if _, err := graph.LoadType(sp, p); err != nil {
				return false, err
			}
		}
	}
	return traverse.Equal(sp, a, sp, b)
}

type mixedSpace struct {
	heap graph.Heap
	src  graph.Space
}

func (s mixedSpace) Bytes(p graph.Ptr) ([]byte, error) {
	if s.heap.Owns(p) {
		return s.heap.Bytes(p)
	}
	return s.src.Bytes(p)
}
