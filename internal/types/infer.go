package types

import (
	"errors"
	"fmt"

	"github.com/hupe1980/rulecache/internal/graph"
)

// Infer computes the type of the expression at node under env, an Env chain
// whose maps bind names to Type pointers. Children are checked left to
// right; the first failing child aborts its siblings. Every node owned by the
// checker's heap is annotated, failed ones with the error type.
func (c *Checker) Infer(node, env graph.Ptr) (graph.Ptr, error) {
	return c.infer(node, env, 0)
}

func (c *Checker) infer(p, env graph.Ptr, depth int) (graph.Ptr, error) {
	if depth > MaxDepth {
		return 0, ErrTooDeep
	}
	n, err := graph.LoadNode(c.space, p)
	if err != nil {
		return 0, err
	}

	t, err := c.inferNode(n, env, depth)
	if err != nil {
		var ne *NodeError
		if !errors.As(err, &ne) {
			err = &NodeError{Kind: n.Kind(), Span: n.Span(), Err: err}
		}
		if c.heap.Owns(p) {
			if et, eerr := c.ErrorType(); eerr == nil {
				n.SetType(et)
			}
		}
		return 0, err
	}
	if c.heap.Owns(p) {
		n.SetType(t)
	}
	return t, nil
}

func (c *Checker) inferNode(n graph.Node, env graph.Ptr, depth int) (graph.Ptr, error) {
	switch n.Kind() {
	case graph.NodeInt:
		return c.Prim(graph.CtorInt)
	case graph.NodeDouble:
		return c.Prim(graph.CtorDouble)
	case graph.NodeBool:
		return c.Prim(graph.CtorBool)
	case graph.NodeString:
		return c.Prim(graph.CtorString)
	case graph.NodeDateTime:
		return c.Prim(graph.CtorDateTime)
	case graph.NodeIdent:
		name, err := graph.TextString(c.space, n.Text())
		if err != nil {
			return 0, err
		}
		t, err := c.lookup(env, name)
		if err != nil {
			return 0, err
		}
		return c.Dereference(t)
	case graph.NodeApply:
		return c.inferApply(n, env, depth)
	case graph.NodeTuple:
		args := make([]graph.Ptr, n.Arity())
		for i := range args {
			child, _ := n.Child(i)
			t, err := c.infer(child, env, depth+1)
			if err != nil {
				return 0, err
			}
			args[i] = t
		}
		if len(args) == 0 {
			return c.Prim(graph.CtorUnit)
		}
		return graph.NewType(c.heap, graph.CtorTuple, 0, 0, args...)
	case graph.NodeIf:
		return c.inferIf(n, env, depth)
	case graph.NodeLet:
		return c.inferLet(n, env, depth)
	default:
		return 0, fmt.Errorf("%w: node kind %s", graph.ErrUnknownTag, n.Kind())
	}
}

func (c *Checker) lookup(env graph.Ptr, name string) (graph.Ptr, error) {
	v, ok, err := graph.LookupInEnv(c.space, env, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnbound, name)
	}
	if v == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNotType, name)
	}
	return graph.Ptr(v), nil
}

func (c *Checker) inferApply(n graph.Node, env graph.Ptr, depth int) (graph.Ptr, error) {
	name, err := graph.TextString(c.space, n.Text())
	if err != nil {
		return 0, err
	}
	sigRef, err := c.lookup(env, name)
	if err != nil {
		return 0, err
	}
	sig, err := c.Instantiate(sigRef)
	if err != nil {
		return 0, err
	}
	st, err := c.load(sig)
	if err != nil {
		return 0, err
	}

	if st.Ctor() == graph.CtorFunc && st.Arity() == n.Arity()+1 {
		params := st.Args()
		for i := range n.Arity() {
			child, _ := n.Child(i)
			at, err := c.infer(child, env, depth+1)
			if err != nil {
				return 0, err
			}
			want, err := c.UnifyFlex(at, params[i])
			if err != nil {
				return 0, err
			}
			if err := c.markCoercion(child, at, want); err != nil {
				return 0, err
			}
		}
		return c.Dereference(params[len(params)-1])
	}

	// Unknown arity or a non-function signature: unify against the call's shape.
	args := make([]graph.Ptr, n.Arity())
	for i := range args {
		child, _ := n.Child(i)
		if args[i], err = c.infer(child, env, depth+1); err != nil {
			return 0, err
		}
	}
	result, err := c.FreshVar()
	if err != nil {
		return 0, err
	}
	call, err := graph.NewFuncType(c.heap, result, args...)
	if err != nil {
		return 0, err
	}
	if _, err := c.Unify(call, sig); err != nil {
		return 0, err
	}
	return c.Dereference(result)
}

// markCoercion records want on the argument node at p when its type got
// differs from it after unification.
func (c *Checker) markCoercion(p, got, want graph.Ptr) error {
	if !c.heap.Owns(p) {
		return nil
	}
	d, err := c.Dereference(got)
	if err != nil {
		return err
	}
	w, err := c.Dereference(want)
	if err != nil {
		return err
	}
	eq, err := TypeEqSyntactic(c.space, d, w)
	if err != nil || eq {
		return err
	}
	n, err := graph.LoadNode(c.space, p)
	if err != nil {
		return err
	}
	n.SetCoerce(w)
	return nil
}

func (c *Checker) inferIf(n graph.Node, env graph.Ptr, depth int) (graph.Ptr, error) {
	if n.Arity() != 3 {
		return 0, fmt.Errorf("%w: if with %d operands", graph.ErrIndex, n.Arity())
	}
	boolean, err := c.Prim(graph.CtorBool)
	if err != nil {
		return 0, err
	}
	cond, _ := n.Child(0)
	ct, err := c.infer(cond, env, depth+1)
	if err != nil {
		return 0, err
	}
	if _, err := c.Unify(ct, boolean); err != nil {
		return 0, err
	}
	then, _ := n.Child(1)
	tt, err := c.infer(then, env, depth+1)
	if err != nil {
		return 0, err
	}
	els, _ := n.Child(2)
	et, err := c.infer(els, env, depth+1)
	if err != nil {
		return 0, err
	}
	return c.Unify(et, tt)
}

func (c *Checker) inferLet(n graph.Node, env graph.Ptr, depth int) (graph.Ptr, error) {
	if n.Arity() != 2 {
		return 0, fmt.Errorf("%w: let with %d operands", graph.ErrIndex, n.Arity())
	}
	name, err := graph.TextString(c.space, n.Text())
	if err != nil {
		return 0, err
	}
	value, _ := n.Child(0)
	vt, err := c.infer(value, env, depth+1)
	if err != nil {
		return 0, err
	}
	inner, frame, err := graph.PushFrame(c.heap, env, 0)
	if err != nil {
		return 0, err
	}
	if err := frame.Insert(name, uint64(vt)); err != nil {
		return 0, err
	}
	body, _ := n.Child(1)
	return c.infer(body, inner, depth+1)
}

// CheckRuleSet infers every rule of the rule set at rs under funcEnv. A
// rule's declared type, if any, is unified with the inferred one. Failures
// are collected per rule and returned joined; the rule's type is set to the
// error type and checking continues with the next rule.
func (c *Checker) CheckRuleSet(rs, funcEnv graph.Ptr) error {
	set, err := graph.LoadRuleSet(c.space, rs)
	if err != nil {
		return err
	}
	rules, err := set.Rules(c.space)
	if err != nil {
		return err
	}

	var errs []error
	for _, rule := range rules {
		t, err := c.checkRule(rule, funcEnv)
		writable := c.heap.Owns(rule.Ptr())
		if err != nil {
			err = &RuleError{RuleID: rule.ID(), Err: err}
			errs = append(errs, err)
			c.errs = append(c.errs, err)
			if writable {
				if et, eerr := c.ErrorType(); eerr == nil {
					rule.SetType(et)
				}
			}
			continue
		}
		if writable {
			rule.SetType(t)
		}
	}
	return errors.Join(errs...)
}

func (c *Checker) checkRule(rule graph.Rule, funcEnv graph.Ptr) (graph.Ptr, error) {
	if rule.Node().IsNil() {
		if rule.Type().IsNil() {
			return c.Prim(graph.CtorUnit)
		}
		return c.Dereference(rule.Type())
	}
	t, err := c.Infer(rule.Node(), funcEnv)
	if err != nil {
		return 0, err
	}
	if declared := rule.Type(); !declared.IsNil() {
		return c.Unify(t, declared)
	}
	return t, nil
}

// Resolve rewrites the type annotation of every node reachable from node
// with its dereferenced form, so readers need no substitution.
func (c *Checker) Resolve(node graph.Ptr) error {
	return c.resolve(node, make(map[graph.Ptr]struct{}), 0)
}

func (c *Checker) resolve(p graph.Ptr, seen map[graph.Ptr]struct{}, depth int) error {
	if p.IsNil() {
		return nil
	}
	if depth > MaxDepth {
		return ErrTooDeep
	}
	if _, ok := seen[p]; ok {
		return nil
	}
	seen[p] = struct{}{}

	n, err := graph.LoadNode(c.space, p)
	if err != nil {
		return err
	}
	if c.heap.Owns(p) {
		if t := n.Type(); !t.IsNil() {
			d, err := c.Dereference(t)
			if err != nil {
				return err
			}
			n.SetType(d)
		}
		if t := n.Coerce(); !t.IsNil() {
			d, err := c.Dereference(t)
			if err != nil {
				return err
			}
			n.SetCoerce(d)
		}
	}
	for i := range n.Arity() {
		child, _ := n.Child(i)
		if err := c.resolve(child, seen, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// ResolveRuleSet resolves every rule of the rule set at rs.
func (c *Checker) ResolveRuleSet(rs graph.Ptr) error {
	set, err := graph.LoadRuleSet(c.space, rs)
	if err != nil {
		return err
	}
	rules, err := set.Rules(c.space)
	if err != nil {
		return err
	}
	for _, rule := range rules {
		if err := c.Resolve(rule.Node()); err != nil {
			return err
		}
		if t := rule.Type(); !t.IsNil() && c.heap.Owns(rule.Ptr()) {
			d, err := c.Dereference(t)
			if err != nil {
				return err
			}
			rule.SetType(d)
		}
	}
	return nil
}
