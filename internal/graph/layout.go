package graph

import "fmt"

// Tag discriminates record types.
type Tag uint16

const (
	TagInvalid Tag = iota
	TagText
	TagNode
	TagType
	TagRule
	TagRuleSet
	TagSnapshot
	TagMap
	TagBuckets
	TagBucket
	TagEnv
	numTags
)

var tagNames = [...]string{
	TagInvalid:  "invalid",
	TagText:     "text",
	TagNode:     "node",
	TagType:     "type",
	TagRule:     "rule",
	TagRuleSet:  "ruleset",
	TagSnapshot: "snapshot",
	TagMap:      "map",
	TagBuckets:  "buckets",
	TagBucket:   "bucket",
	TagEnv:      "env",
}

func (t Tag) String() string {
	if t < numTags {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", uint16(t))
}

// Valid reports whether t names a known record type.
func (t Tag) Valid() bool { return t > TagInvalid && t < numTags }

// FieldKind classifies how traversals treat a field.
type FieldKind uint8

const (
	// FieldScalar is copied bit for bit.
	FieldScalar FieldKind = iota
	// FieldFixedArray is an inline array copied bit for bit.
	FieldFixedArray
	// FieldTail is the trailing array whose length is the header count.
	FieldTail
	// FieldOwned is a pointer to a record that is copied along.
	FieldOwned
	// FieldOwnedAux is a word whose interpretation is decided by the
	// enclosing container (see AuxIsPointer).
	FieldOwnedAux
	// FieldTransient is only valid inside its arena. It is zeroed on copy and
	// never followed.
	FieldTransient
)

func (k FieldKind) String() string {
	switch k {
	case FieldScalar:
		return "scalar"
	case FieldFixedArray:
		return "fixed"
	case FieldTail:
		return "tail"
	case FieldOwned:
		return "owned"
	case FieldOwnedAux:
		return "owned-aux"
	case FieldTransient:
		return "transient"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ElemKind is the element type of a tail.
type ElemKind uint8

const (
	ElemByte ElemKind = iota
	ElemWord
	ElemPtr
)

// Size returns the element size in bytes.
func (e ElemKind) Size() int {
	if e == ElemByte {
		return 1
	}
	return WordSize
}

// Field describes one field of a record layout.
type Field struct {
	Name   string
	Kind   FieldKind
	Offset int
	Size   int
	Elem   ElemKind // FieldTail only
}

// Layout is the declarative description of a record type.
type Layout struct {
	Tag    Tag
	Fixed  int
	Fields []Field
	// Tail is nil for records without a trailing array.
	Tail *Field
	// Container marks records whose sub flags decide FieldOwnedAux words of
	// the records reachable through them.
	Container bool
}

// Size returns the aligned record size for a tail of count elements.
func (l *Layout) Size(count int) int {
	n := l.Fixed
	if l.Tail != nil {
		n += count * l.Tail.Elem.Size()
	}
	return align(n)
}

// Pointers reports whether the layout has any field a traversal must follow.
func (l *Layout) Pointers() bool {
	if l.Tail != nil && l.Tail.Elem == ElemPtr {
		return true
	}
	for _, f := range l.Fields {
		if f.Kind == FieldOwned || f.Kind == FieldOwnedAux {
			return true
		}
	}
	return false
}

const (
	// WordSize is the size of scalars and pointers.
	WordSize = 8
	// HeaderSize is the size of the record header.
	HeaderSize = 8
)

func scalar(name string, off int) Field {
	return Field{Name: name, Kind: FieldScalar, Offset: off, Size: WordSize}
}

func owned(name string, off int) Field {
	return Field{Name: name, Kind: FieldOwned, Offset: off, Size: WordSize}
}

func tail(off int, elem ElemKind) *Field {
	return &Field{Name: "tail", Kind: FieldTail, Offset: off, Elem: elem}
}

var layouts = [numTags]*Layout{
	TagText: {
		Tag:   TagText,
		Fixed: HeaderSize,
		Tail:  tail(HeaderSize, ElemByte),
	},
	TagNode: {
		Tag:   TagNode,
		Fixed: nodeFixed,
		Fields: []Field{
			scalar("ival", nodeIVal),
			scalar("dval", nodeDVal),
			scalar("lval", nodeLVal),
			{Name: "span", Kind: FieldFixedArray, Offset: nodeSpan, Size: 8},
			owned("text", nodeText),
			owned("type", nodeType),
			{Name: "ext", Kind: FieldTransient, Offset: nodeExt, Size: WordSize},
			owned("coerce", nodeCoerce),
		},
		Tail: tail(nodeFixed, ElemPtr),
	},
	TagType: {
		Tag:   TagType,
		Fixed: typeFixed,
		Fields: []Field{
			scalar("var", typeVar),
			owned("name", typeName),
		},
		Tail: tail(typeFixed, ElemPtr),
	},
	TagRule: {
		Tag:   TagRule,
		Fixed: ruleFixed,
		Fields: []Field{
			scalar("id", ruleID),
			scalar("flags", ruleFlags),
			owned("name", ruleName),
			owned("node", ruleNode),
			owned("type", ruleType),
		},
	},
	TagRuleSet: {
		Tag:   TagRuleSet,
		Fixed: HeaderSize,
		Tail:  tail(HeaderSize, ElemPtr),
	},
	TagSnapshot: {
		Tag:   TagSnapshot,
		Fixed: snapFixed,
		Fields: []Field{
			scalar("generation", snapGeneration),
			scalar("timestamp", snapTimestamp),
			owned("rule_base", snapRuleBase),
			owned("digest", snapDigest),
			owned("rules", snapRules),
			owned("app_rules", snapAppRules),
			owned("func_index", snapFuncIndex),
			owned("type_env", snapTypeEnv),
		},
	},
	TagMap: {
		Tag:   TagMap,
		Fixed: mapFixed,
		Fields: []Field{
			scalar("size", mapSize),
			owned("buckets", mapBuckets),
			{Name: "sub_arena", Kind: FieldTransient, Offset: mapSub, Size: WordSize},
		},
		Container: true,
	},
	TagBuckets: {
		Tag:   TagBuckets,
		Fixed: HeaderSize,
		Tail:  tail(HeaderSize, ElemPtr),
	},
	TagBucket: {
		Tag:   TagBucket,
		Fixed: bucketFixed,
		Fields: []Field{
			owned("key", bucketKey),
			{Name: "value", Kind: FieldOwnedAux, Offset: bucketValue, Size: WordSize},
			owned("next", bucketNext),
		},
	},
	TagEnv: {
		Tag:   TagEnv,
		Fixed: envFixed,
		Fields: []Field{
			owned("current", envCurrent),
			owned("previous", envPrevious),
		},
	},
}

// LayoutOf returns the layout of t.
func LayoutOf(t Tag) (*Layout, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTag, uint16(t))
	}
	return layouts[t], nil
}

// AuxIsPointer decides how a FieldOwnedAux word is treated below a
// container record with the given sub flags.
func AuxIsPointer(containerSub uint16) bool {
	return MapFlags(containerSub)&MapScalarValues == 0
}

func align(n int) int {
	return (n + WordSize - 1) &^ (WordSize - 1)
}
