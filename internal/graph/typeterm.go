package graph

import (
	"fmt"
	"strings"
)

// Ctor is a type constructor stored in a Type record's sub field.
type Ctor uint16

const (
	CtorInvalid Ctor = iota
	CtorVar
	CtorInt
	CtorBool
	CtorDouble
	CtorDateTime
	CtorString
	// CtorPath is a named opaque object type.
	CtorPath
	// CtorDynamic unifies with anything.
	CtorDynamic
	// CtorError is the sentinel substituted for ill-typed expressions.
	CtorError
	CtorUnit
	CtorTuple
	// CtorFunc has arguments params..., result.
	CtorFunc
	// CtorCons is a named constructor such as list.
	CtorCons
	numCtors
)

var ctorNames = [...]string{
	CtorInvalid:  "invalid",
	CtorVar:      "var",
	CtorInt:      "integer",
	CtorBool:     "boolean",
	CtorDouble:   "double",
	CtorDateTime: "datetime",
	CtorString:   "string",
	CtorPath:     "path",
	CtorDynamic:  "dynamic",
	CtorError:    "error",
	CtorUnit:     "unit",
	CtorTuple:    "tuple",
	CtorFunc:     "func",
	CtorCons:     "cons",
}

func (c Ctor) String() string {
	if c < numCtors {
		return ctorNames[c]
	}
	return fmt.Sprintf("ctor(%d)", uint16(c))
}

// Valid reports whether c is a known constructor.
func (c Ctor) Valid() bool { return c > CtorInvalid && c < numCtors }

const (
	typeVar   = 8
	typeName  = 16
	typeFixed = 24
)

// NewType allocates a Type record.
func NewType(h Heap, c Ctor, varID uint64, name Ptr, args ...Ptr) (Ptr, error) {
	if !c.Valid() {
		return 0, fmt.Errorf("%w: constructor %d", ErrUnknownTag, uint16(c))
	}
	r, err := New(h, TagType, uint16(c), len(args))
	if err != nil {
		return 0, err
	}
	r.SetWord(typeVar, varID)
	r.SetWord(typeName, uint64(name))
	for i, a := range args {
		r.SetWord(typeFixed+i*WordSize, uint64(a))
	}
	return r.Ptr(), nil
}

// NewVarType builds the type variable with the given id.
func NewVarType(h Heap, id uint64) (Ptr, error) {
	return NewType(h, CtorVar, id, 0)
}

// NewPrimType builds a nullary constructor such as integer.
func NewPrimType(h Heap, c Ctor) (Ptr, error) {
	return NewType(h, c, 0, 0)
}

// NewFuncType builds params... -> result.
func NewFuncType(h Heap, result Ptr, params ...Ptr) (Ptr, error) {
	args := make([]Ptr, 0, len(params)+1)
	args = append(args, params...)
	args = append(args, result)
	return NewType(h, CtorFunc, 0, 0, args...)
}

// NewConsType builds a named constructor application such as list(a).
func NewConsType(h Heap, name string, args ...Ptr) (Ptr, error) {
	n, err := NewText(h, name)
	if err != nil {
		return 0, err
	}
	return NewType(h, CtorCons, 0, n, args...)
}

// NewPathType builds a named opaque object type.
func NewPathType(h Heap, name string) (Ptr, error) {
	n, err := NewText(h, name)
	if err != nil {
		return 0, err
	}
	return NewType(h, CtorPath, 0, n)
}

// Type is a read view of a Type record.
type Type struct {
	Record
}

// LoadType reads the Type at p.
func LoadType(sp Space, p Ptr) (Type, error) {
	r, err := LoadAs(sp, p, TagType)
	if err != nil {
		return Type{}, err
	}
	t := Type{r}
	if !t.Ctor().Valid() {
		return Type{}, fmt.Errorf("%w: constructor %d", ErrUnknownTag, r.Sub())
	}
	return t, nil
}

func (t Type) Ctor() Ctor { return Ctor(t.Sub()) }
func (t Type) Arity() int { return t.Count() }
func (t Type) VarID() uint64 { return t.Word(typeVar) }
func (t Type) Name() Ptr { return t.PtrAt(typeName) }
func (t Type) IsVar() bool { return t.Ctor() == CtorVar }
func (t Type) Arg(i int) (Ptr, error) { return t.TailPtr(i) }

// Args returns all argument pointers.
func (t Type) Args() []Ptr {
	out := make([]Ptr, t.Count())
	for i := range out {
		out[i] = t.PtrAt(typeFixed + i*WordSize)
	}
	return out
}

// FormatType renders the type at p, e.g. "func(integer, ?3) -> boolean".
func FormatType(sp Space, p Ptr) (string, error) {
	return formatType(sp, p, 0)
}

const maxFormatDepth = 64

func formatType(sp Space, p Ptr, depth int) (string, error) {
	if p.IsNil() {
		return "<nil>", nil
	}
	if depth > maxFormatDepth {
		return "...", nil
	}
	t, err := LoadType(sp, p)
	if err != nil {
		return "", err
	}
	args := make([]string, t.Arity())
	for i, a := range t.Args() {
		if args[i], err = formatType(sp, a, depth+1); err != nil {
			return "", err
		}
	}
	switch t.Ctor() {
	case CtorVar:
		return fmt.Sprintf("?%d", t.VarID()), nil
	case CtorFunc:
		if len(args) == 0 {
			return "func()", nil
		}
		return fmt.Sprintf("func(%s) -> %s", strings.Join(args[:len(args)-1], ", "), args[len(args)-1]), nil
	case CtorTuple:
		return fmt.Sprintf("(%s)", strings.Join(args, ", ")), nil
	case CtorCons, CtorPath:
		name, err := TextString(sp, t.Name())
		if err != nil {
			return "", err
		}
		if len(args) == 0 {
			return name, nil
		}
		return fmt.Sprintf("%s(%s)", name, strings.Join(args, ", ")), nil
	default:
		return t.Ctor().String(), nil
	}
}
