package types

import (
	"github.com/hupe1980/rulecache/internal/graph"
)

// Unify makes t and expected equal under the substitution and returns the
// unified term. Two variables are resolved by binding the larger id to the
// smaller. Dynamic and the error type unify with anything; an error operand
// is returned as is so one failure does not cascade.
func (c *Checker) Unify(t, expected graph.Ptr) (graph.Ptr, error) {
	return c.unify(t, expected, false, 0)
}

// UnifyFlex is Unify for a value of type t used where expected is wanted.
// It also accepts t when it widens to expected: integer to double, and
// constructors or tuples whose arguments widen pairwise. The returned term
// is expected after unification.
func (c *Checker) UnifyFlex(t, expected graph.Ptr) (graph.Ptr, error) {
	return c.unify(t, expected, true, 0)
}

// widens reports whether a value of a may be used as b.
func widens(a, b graph.Ctor) bool {
	return a == graph.CtorInt && b == graph.CtorDouble
}

func (c *Checker) unify(t, expected graph.Ptr, flex bool, depth int) (graph.Ptr, error) {
	if depth > MaxDepth {
		return 0, ErrTooDeep
	}
	a, err := c.Dereference(t)
	if err != nil {
		return 0, err
	}
	b, err := c.Dereference(expected)
	if err != nil {
		return 0, err
	}
	if a == b {
		return a, nil
	}
	ta, err := c.load(a)
	if err != nil {
		return 0, err
	}
	tb, err := c.load(b)
	if err != nil {
		return 0, err
	}

	switch {
	case ta.IsVar() && tb.IsVar():
		if ta.VarID() == tb.VarID() {
			return a, nil
		}
		if ta.VarID() > tb.VarID() {
			return b, c.bind(ta.VarID(), b)
		}
		return a, c.bind(tb.VarID(), a)
	case ta.IsVar():
		return b, c.bindChecked(ta.VarID(), b)
	case tb.IsVar():
		return a, c.bindChecked(tb.VarID(), a)
	case ta.Ctor() == graph.CtorError:
		return a, nil
	case tb.Ctor() == graph.CtorError:
		return b, nil
	case ta.Ctor() == graph.CtorDynamic:
		return b, nil
	case tb.Ctor() == graph.CtorDynamic:
		return a, nil
	}

	if flex && widens(ta.Ctor(), tb.Ctor()) {
		return b, nil
	}
	if ta.Ctor() != tb.Ctor() || ta.Arity() != tb.Arity() {
		return 0, c.mismatch(b, a)
	}
	if same, err := c.sameName(ta, tb); err != nil || !same {
		if err != nil {
			return 0, err
		}
		return 0, c.mismatch(b, a)
	}

	// Function terms stay invariant under flex.
	flex = flex && ta.Ctor() != graph.CtorFunc
	argsA, argsB := ta.Args(), tb.Args()
	for i := range argsA {
		if _, err := c.unify(argsA[i], argsB[i], flex, depth+1); err != nil {
			return 0, err
		}
	}
	if flex {
		return c.Dereference(b)
	}
	return c.Dereference(a)
}

func (c *Checker) bindChecked(id uint64, t graph.Ptr) error {
	occ, err := c.occurs(id, t, 0)
	if err != nil {
		return err
	}
	if occ {
		return &InfiniteTypeError{Var: id, Type: c.Format(t)}
	}
	return c.bind(id, t)
}

func (c *Checker) sameName(a, b graph.Type) (bool, error) {
	if a.Ctor() != graph.CtorCons && a.Ctor() != graph.CtorPath {
		return true, nil
	}
	na, err := graph.TextString(c.space, a.Name())
	if err != nil {
		return false, err
	}
	nb, err := graph.TextString(c.space, b.Name())
	if err != nil {
		return false, err
	}
	return na == nb, nil
}

func (c *Checker) mismatch(expected, actual graph.Ptr) error {
	return &TypeMismatchError{Expected: c.Format(expected), Actual: c.Format(actual)}
}
