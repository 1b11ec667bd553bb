package types

import (
	"errors"
	"fmt"

	"github.com/hupe1980/rulecache/internal/graph"
)

var (
	// ErrInfiniteType is matched by every InfiniteTypeError.
	ErrInfiniteType = errors.New("types: infinite type")
	// ErrTypeMismatch is matched by every TypeMismatchError.
	ErrTypeMismatch = errors.New("types: type mismatch")
	// ErrUnbound is returned for identifiers without a binding.
	ErrUnbound = errors.New("types: unbound identifier")
	// ErrNotType is returned when a binding does not reference a type.
	ErrNotType = errors.New("types: binding is not a type")
	// ErrTooDeep is returned for type terms or node trees beyond MaxDepth.
	ErrTooDeep = errors.New("types: nesting too deep")
)

// InfiniteTypeError reports a binding that would make a variable occur in
// its own value.
type InfiniteTypeError struct {
	Var  uint64
	Type string
}

func (e *InfiniteTypeError) Error() string {
	return fmt.Sprintf("infinite type: ?%d occurs in %s", e.Var, e.Type)
}

func (e *InfiniteTypeError) Unwrap() error { return ErrInfiniteType }

// TypeMismatchError reports two concrete terms that cannot be unified.
type TypeMismatchError struct {
	Expected string
	Actual   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch: expected %s, got %s", e.Expected, e.Actual)
}

func (e *TypeMismatchError) Unwrap() error { return ErrTypeMismatch }

// NodeError attaches a source span to an inference failure.
type NodeError struct {
	Kind graph.NodeKind
	Span graph.Span
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s at %d-%d: %v", e.Kind, e.Span.Start, e.Span.End, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// RuleError reports the failure of one rule of a rule set.
type RuleError struct {
	RuleID int64
	Err    error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %d: %v", e.RuleID, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }
