package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rulecache/internal/arena"
	"github.com/hupe1980/rulecache/internal/graph"
)

func newRegion(t *testing.T, reg *arena.Registry) *graph.Region {
	t.Helper()
	a, err := reg.NewArena(8192)
	require.NoError(t, err)
	return graph.NewRegion(a)
}

func newChecker(t *testing.T) (*Checker, *graph.Region) {
	t.Helper()
	reg := arena.NewRegistry()
	t.Cleanup(func() { _ = reg.Close() })
	r := newRegion(t, reg)
	c, err := NewChecker(r)
	require.NoError(t, err)
	return c, r
}

func must(t *testing.T) func(graph.Ptr, error) graph.Ptr {
	return func(p graph.Ptr, err error) graph.Ptr {
		t.Helper()
		require.NoError(t, err)
		return p
	}
}

func varIDs(t *testing.T, sp graph.Space, p graph.Ptr, out map[uint64]struct{}) {
	t.Helper()
	ty, err := graph.LoadType(sp, p)
	require.NoError(t, err)
	if ty.IsVar() {
		out[ty.VarID()] = struct{}{}
		return
	}
	for _, a := range ty.Args() {
		varIDs(t, sp, a, out)
	}
}

func TestUnify_XPlusOne(t *testing.T) {
	c, r := newChecker(t)

	v0 := must(t)(c.FreshVar())
	integer := must(t)(c.Prim(graph.CtorInt))

	got, err := c.Unify(v0, integer)
	require.NoError(t, err)
	assert.Equal(t, integer, got)

	bound, ok, err := c.Binding(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, integer, bound)

	d, err := c.Dereference(v0)
	require.NoError(t, err)
	eq, err := TypeEqSyntactic(r, d, integer)
	require.NoError(t, err)
	assert.True(t, eq)
}

func TestInfer_XPlusOne(t *testing.T) {
	c, r := newChecker(t)

	v0 := must(t)(c.FreshVar())
	integer := must(t)(c.Prim(graph.CtorInt))
	plus := must(t)(graph.NewFuncType(r, integer, integer, integer))

	scope, err := graph.NewMap(r, 8, 0)
	require.NoError(t, err)
	require.NoError(t, scope.Insert("x", uint64(v0)))
	require.NoError(t, scope.Insert("+", uint64(plus)))
	env := must(t)(graph.NewEnv(r, scope.Ptr(), 0))

	x := must(t)(graph.NewIdent(r, "x"))
	one := must(t)(graph.NewIntLit(r, 1))
	expr := must(t)(graph.NewApply(r, "+", x, one))

	got, err := c.Infer(expr, env)
	require.NoError(t, err)
	assert.Equal(t, "integer", c.Format(got))
	assert.Equal(t, "integer", c.Format(v0))

	require.NoError(t, c.Resolve(expr))
	xn, err := graph.LoadNode(r, x)
	require.NoError(t, err)
	assert.Equal(t, integer, xn.Type())
}

func TestUnify_OccursCheck(t *testing.T) {
	c, r := newChecker(t)

	a := must(t)(c.FreshVar())
	list := must(t)(graph.NewConsType(r, "list", a))

	_, err := c.Unify(a, list)
	require.ErrorIs(t, err, ErrInfiniteType)
	var ite *InfiniteTypeError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, uint64(0), ite.Var)
	assert.Equal(t, "list(?0)", ite.Type)

	_, err = c.Unify(list, a)
	assert.ErrorIs(t, err, ErrInfiniteType)

	// Indirect: b := list(a), then a ~ b.
	b := must(t)(c.FreshVar())
	_, err = c.Unify(b, list)
	require.NoError(t, err)
	_, err = c.Unify(a, b)
	assert.ErrorIs(t, err, ErrInfiniteType)
}

func TestUnify_VarVarTieBreak(t *testing.T) {
	c, _ := newChecker(t)

	v0 := must(t)(c.FreshVar())
	v1 := must(t)(c.FreshVar())

	got, err := c.Unify(v1, v0)
	require.NoError(t, err)
	assert.Equal(t, v0, got)

	bound, ok, err := c.Binding(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, v0, bound)
	_, ok, err = c.Binding(0)
	require.NoError(t, err)
	assert.False(t, ok)

	// Idempotent, also with swapped operands.
	got, err = c.Unify(v0, v1)
	require.NoError(t, err)
	assert.Equal(t, v0, got)
	n, err := c.Substitution().Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUnify_Reflexivity(t *testing.T) {
	c, r := newChecker(t)

	build := func() graph.Ptr {
		i := must(t)(graph.NewPrimType(r, graph.CtorInt))
		v := must(t)(graph.NewVarType(r, 7))
		list := must(t)(graph.NewConsType(r, "list", v))
		b := must(t)(graph.NewPrimType(r, graph.CtorBool))
		return must(t)(graph.NewFuncType(r, b, i, list))
	}
	tt := build()

	got, err := c.Unify(tt, tt)
	require.NoError(t, err)
	eq, err := TypeEqSyntactic(r, got, tt)
	require.NoError(t, err)
	assert.True(t, eq)

	other := build()
	got, err = c.Unify(tt, other)
	require.NoError(t, err)
	eq, err = TypeEqSyntactic(r, got, tt)
	require.NoError(t, err)
	assert.True(t, eq)
}

func TestUnify_Mismatch(t *testing.T) {
	c, r := newChecker(t)

	i := must(t)(c.Prim(graph.CtorInt))
	b := must(t)(c.Prim(graph.CtorBool))

	_, err := c.Unify(i, b)
	require.ErrorIs(t, err, ErrTypeMismatch)
	var tm *TypeMismatchError
	require.ErrorAs(t, err, &tm)
	assert.Equal(t, "boolean", tm.Expected)
	assert.Equal(t, "integer", tm.Actual)

	l := must(t)(graph.NewConsType(r, "list", i))
	s := must(t)(graph.NewConsType(r, "set", i))
	_, err = c.Unify(l, s)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	f1 := must(t)(graph.NewFuncType(r, i, i))
	f2 := must(t)(graph.NewFuncType(r, i, i, i))
	_, err = c.Unify(f1, f2)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestUnifyFlex_Widening(t *testing.T) {
	c, r := newChecker(t)

	i := must(t)(c.Prim(graph.CtorInt))
	d := must(t)(c.Prim(graph.CtorDouble))

	got, err := c.UnifyFlex(i, d)
	require.NoError(t, err)
	assert.Equal(t, d, got)

	_, err = c.Unify(i, d)
	assert.ErrorIs(t, err, ErrTypeMismatch, "strict unification does not widen")
	_, err = c.UnifyFlex(d, i)
	assert.ErrorIs(t, err, ErrTypeMismatch, "no narrowing")

	li := must(t)(graph.NewConsType(r, "list", i))
	ld := must(t)(graph.NewConsType(r, "list", d))
	got, err = c.UnifyFlex(li, ld)
	require.NoError(t, err)
	assert.Equal(t, "list(double)", c.Format(got))

	fi := must(t)(graph.NewFuncType(r, i, i))
	fd := must(t)(graph.NewFuncType(r, d, d))
	_, err = c.UnifyFlex(fi, fd)
	assert.ErrorIs(t, err, ErrTypeMismatch, "function terms are invariant")

	v := must(t)(c.FreshVar())
	got, err = c.UnifyFlex(v, d)
	require.NoError(t, err)
	assert.Equal(t, d, got)
	assert.Equal(t, "double", c.Format(v))
}

func TestUnify_DynamicAndError(t *testing.T) {
	c, _ := newChecker(t)

	i := must(t)(c.Prim(graph.CtorInt))
	dyn := must(t)(c.Prim(graph.CtorDynamic))
	et := must(t)(c.ErrorType())

	got, err := c.Unify(dyn, i)
	require.NoError(t, err)
	assert.Equal(t, i, got)

	got, err = c.Unify(i, et)
	require.NoError(t, err)
	assert.Equal(t, et, got)
}

func TestInstantiate_Freshness(t *testing.T) {
	c, r := newChecker(t)

	a := must(t)(c.FreshVar())
	b := must(t)(c.FreshVar())
	sig := must(t)(graph.NewFuncType(r, b, a, a))

	i1, err := c.Instantiate(sig)
	require.NoError(t, err)
	i2, err := c.Instantiate(sig)
	require.NoError(t, err)

	ids1, ids2 := map[uint64]struct{}{}, map[uint64]struct{}{}
	varIDs(t, r, i1, ids1)
	varIDs(t, r, i2, ids2)
	assert.Len(t, ids1, 2, "a maps to one fresh var within a call")
	assert.Len(t, ids2, 2)
	for id := range ids1 {
		assert.NotContains(t, ids2, id)
		assert.GreaterOrEqual(t, id, uint64(2))
	}

	// The signature itself is untouched.
	orig := map[uint64]struct{}{}
	varIDs(t, r, sig, orig)
	assert.Equal(t, map[uint64]struct{}{0: {}, 1: {}}, orig)
}

func TestDereference_CopiesForeignTerms(t *testing.T) {
	reg := arena.NewRegistry()
	defer reg.Close()
	home := newRegion(t, reg)
	foreign := newRegion(t, reg)

	c, err := NewChecker(home, WithFirstVar(100))
	require.NoError(t, err)

	i := must(t)(graph.NewPrimType(foreign, graph.CtorInt))
	list := must(t)(graph.NewConsType(foreign, "list", i))

	d, err := c.Dereference(list)
	require.NoError(t, err)
	assert.True(t, home.Owns(d))
	eq, err := TypeEqSyntactic(home, d, list)
	require.NoError(t, err)
	assert.True(t, eq)

	again, err := c.Dereference(list)
	require.NoError(t, err)
	assert.Equal(t, d, again)

	v := must(t)(c.FreshVar())
	vt, err := graph.LoadType(home, v)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), vt.VarID())
}

func buildEnv(t *testing.T, c *Checker, r *graph.Region) graph.Ptr {
	t.Helper()
	i := must(t)(c.Prim(graph.CtorInt))
	b := must(t)(c.Prim(graph.CtorBool))
	a := must(t)(graph.NewVarType(r, 1000))

	scope, err := graph.NewMap(r, 8, 0)
	require.NoError(t, err)
	require.NoError(t, scope.Insert("+", uint64(must(t)(graph.NewFuncType(r, i, i, i)))))
	require.NoError(t, scope.Insert("==", uint64(must(t)(graph.NewFuncType(r, b, a, a)))))
	require.NoError(t, scope.Insert("true", uint64(b)))
	return must(t)(graph.NewEnv(r, scope.Ptr(), 0))
}

func TestInfer_PolymorphicCalls(t *testing.T) {
	c, r := newChecker(t)
	env := buildEnv(t, c, r)

	// (1 == 2, "a" == "b") needs two independent instantiations of ==.
	eqInts := must(t)(graph.NewApply(r, "==", must(t)(graph.NewIntLit(r, 1)), must(t)(graph.NewIntLit(r, 2))))
	eqStrs := must(t)(graph.NewApply(r, "==", must(t)(graph.NewStringLit(r, "a")), must(t)(graph.NewStringLit(r, "b"))))
	tup := must(t)(graph.NewNode(r, graph.NodeSpec{Kind: graph.NodeTuple, Children: []graph.Ptr{eqInts, eqStrs}}))

	got, err := c.Infer(tup, env)
	require.NoError(t, err)
	assert.Equal(t, "(boolean, boolean)", c.Format(got))
}

func TestInfer_LetAndIf(t *testing.T) {
	c, r := newChecker(t)
	env := buildEnv(t, c, r)

	y := must(t)(graph.NewIdent(r, "y"))
	body := must(t)(graph.NewApply(r, "+", y, must(t)(graph.NewIntLit(r, 1))))
	yText := must(t)(graph.NewText(r, "y"))
	let := must(t)(graph.NewNode(r, graph.NodeSpec{
		Kind: graph.NodeLet, Text: yText,
		Children: []graph.Ptr{must(t)(graph.NewIntLit(r, 41)), body},
	}))
	got, err := c.Infer(let, env)
	require.NoError(t, err)
	assert.Equal(t, "integer", c.Format(got))

	// y is scoped to the let body.
	_, err = c.Infer(must(t)(graph.NewIdent(r, "y")), env)
	assert.ErrorIs(t, err, ErrUnbound)

	bad := must(t)(graph.NewNode(r, graph.NodeSpec{
		Kind: graph.NodeIf,
		Children: []graph.Ptr{
			must(t)(graph.NewIdent(r, "true")),
			must(t)(graph.NewIntLit(r, 1)),
			must(t)(graph.NewStringLit(r, "no")),
		},
	}))
	_, err = c.Infer(bad, env)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	n, err := graph.LoadNode(r, bad)
	require.NoError(t, err)
	assert.Equal(t, "error", c.Format(n.Type()))
}

func TestInfer_FirstFailingChildAbortsSiblings(t *testing.T) {
	c, r := newChecker(t)
	env := buildEnv(t, c, r)

	later := must(t)(graph.NewIntLit(r, 3))
	expr := must(t)(graph.NewApply(r, "+", must(t)(graph.NewIdent(r, "true")), later))

	_, err := c.Infer(expr, env)
	require.ErrorIs(t, err, ErrTypeMismatch)
	var ne *NodeError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, graph.NodeApply, ne.Kind)

	n, err := graph.LoadNode(r, later)
	require.NoError(t, err)
	assert.True(t, n.Type().IsNil(), "sibling after the failure is not checked")
}

func TestCheckRuleSet_AccumulatesErrors(t *testing.T) {
	c, r := newChecker(t)
	env := buildEnv(t, c, r)

	good := must(t)(graph.NewApply(r, "+", must(t)(graph.NewIntLit(r, 1)), must(t)(graph.NewIntLit(r, 2))))
	bad := must(t)(graph.NewApply(r, "+", must(t)(graph.NewIdent(r, "true")), must(t)(graph.NewIntLit(r, 1))))
	unbound := must(t)(graph.NewIdent(r, "nope"))
	declared := must(t)(c.Prim(graph.CtorBool))

	rules := []graph.Ptr{
		must(t)(graph.NewRule(r, graph.RuleSpec{ID: 1, Node: good})),
		must(t)(graph.NewRule(r, graph.RuleSpec{ID: 2, Node: bad})),
		must(t)(graph.NewRule(r, graph.RuleSpec{ID: 3, Node: unbound})),
		must(t)(graph.NewRule(r, graph.RuleSpec{ID: 4, Node: good, Type: declared})),
		must(t)(graph.NewRule(r, graph.RuleSpec{ID: 5, Node: good})),
	}
	rs := must(t)(graph.NewRuleSet(r, rules...))

	err := c.CheckRuleSet(rs, env)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.ErrorIs(t, err, ErrUnbound)

	var ids []int64
	for _, e := range c.Errors() {
		var re *RuleError
		require.True(t, errors.As(e, &re))
		ids = append(ids, re.RuleID)
	}
	assert.Equal(t, []int64{2, 3, 4}, ids)

	want := map[int64]string{1: "integer", 2: "error", 3: "error", 4: "error", 5: "integer"}
	for _, p := range rules {
		rule, err := graph.LoadRule(r, p)
		require.NoError(t, err)
		assert.Equal(t, want[rule.ID()], c.Format(rule.Type()), "rule %d", rule.ID())
	}
}

func TestInfer_CoercesArguments(t *testing.T) {
	c, r := newChecker(t)

	d := must(t)(c.Prim(graph.CtorDouble))
	scope, err := graph.NewMap(r, 8, 0)
	require.NoError(t, err)
	require.NoError(t, scope.Insert("sqrt", uint64(must(t)(graph.NewFuncType(r, d, d)))))
	env := must(t)(graph.NewEnv(r, scope.Ptr(), 0))

	two := must(t)(graph.NewIntLit(r, 2))
	call := must(t)(graph.NewApply(r, "sqrt", two))
	got, err := c.Infer(call, env)
	require.NoError(t, err)
	assert.Equal(t, "double", c.Format(got))
	require.NoError(t, c.Resolve(call))

	n, err := graph.LoadNode(r, two)
	require.NoError(t, err)
	assert.Equal(t, "integer", c.Format(n.Type()))
	assert.Equal(t, "double", c.Format(n.Coerce()))

	half := must(t)(graph.NewNode(r, graph.NodeSpec{Kind: graph.NodeDouble, DVal: 0.5}))
	_, err = c.Infer(must(t)(graph.NewApply(r, "sqrt", half)), env)
	require.NoError(t, err)
	n, err = graph.LoadNode(r, half)
	require.NoError(t, err)
	assert.True(t, n.Coerce().IsNil(), "no widening needed")

	_, err = c.Infer(must(t)(graph.NewApply(r, "sqrt", must(t)(graph.NewStringLit(r, "x")))), env)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}
