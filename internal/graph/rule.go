package graph

// RuleKind is stored in a Rule's sub field.
type RuleKind uint16

const (
	// RuleRule is an ordinary rule of the rule base.
	RuleRule RuleKind = iota
	// RuleFunc is a function definition callable from other rules.
	RuleFunc
	// RuleApp is an application-level rule that is loaded on demand.
	RuleApp
)

const (
	ruleID    = 8
	ruleFlags = 16
	ruleName  = 24
	ruleNode  = 32
	ruleType  = 40
	ruleFixed = 48
)

// RuleSpec describes a rule to build.
type RuleSpec struct {
	Kind  RuleKind
	ID    int64
	Flags uint64
	Name  Ptr
	Node  Ptr
	Type  Ptr
}

// NewRule allocates a Rule record.
func NewRule(h Heap, spec RuleSpec) (Ptr, error) {
	r, err := New(h, TagRule, uint16(spec.Kind), 0)
	if err != nil {
		return 0, err
	}
	r.SetWord(ruleID, uint64(spec.ID)) //nolint:gosec // bit pattern
	r.SetWord(ruleFlags, spec.Flags)
	r.SetWord(ruleName, uint64(spec.Name))
	r.SetWord(ruleNode, uint64(spec.Node))
	r.SetWord(ruleType, uint64(spec.Type))
	return r.Ptr(), nil
}

// Rule is a read view of a Rule record.
type Rule struct {
	Record
}

// LoadRule reads the Rule at p.
func LoadRule(sp Space, p Ptr) (Rule, error) {
	r, err := LoadAs(sp, p, TagRule)
	return Rule{r}, err
}

func (r Rule) Kind() RuleKind { return RuleKind(r.Sub()) }
func (r Rule) ID() int64 { return int64(r.Word(ruleID)) } //nolint:gosec // bit pattern
func (r Rule) Flags() uint64 { return r.Word(ruleFlags) }
func (r Rule) Name() Ptr { return r.PtrAt(ruleName) }
func (r Rule) Node() Ptr { return r.PtrAt(ruleNode) }
func (r Rule) Type() Ptr { return r.PtrAt(ruleType) }

// SetType records the rule's inferred type.
func (r Rule) SetType(t Ptr) { r.SetWord(ruleType, uint64(t)) }

// NewRuleSet allocates a RuleSet holding rules in order.
func NewRuleSet(h Heap, rules ...Ptr) (Ptr, error) {
	r, err := New(h, TagRuleSet, 0, len(rules))
	if err != nil {
		return 0, err
	}
	for i, p := range rules {
		r.SetWord(HeaderSize+i*WordSize, uint64(p))
	}
	return r.Ptr(), nil
}

// RuleSet is a read view of a RuleSet record.
type RuleSet struct {
	Record
}

// LoadRuleSet reads the RuleSet at p.
func LoadRuleSet(sp Space, p Ptr) (RuleSet, error) {
	r, err := LoadAs(sp, p, TagRuleSet)
	return RuleSet{r}, err
}

// Len returns the number of rules.
func (s RuleSet) Len() int { return s.Count() }

// At returns the i-th rule pointer.
func (s RuleSet) At(i int) (Ptr, error) { return s.TailPtr(i) }

// Rules loads every rule in order.
func (s RuleSet) Rules(sp Space) ([]Rule, error) {
	out := make([]Rule, s.Len())
	for i := range out {
		p, err := s.At(i)
		if err != nil {
			return nil, err
		}
		if out[i], err = LoadRule(sp, p); err != nil {
			return nil, err
		}
	}
	return out, nil
}

const (
	snapGeneration = 8
	snapTimestamp  = 16
	snapRuleBase   = 24
	snapDigest     = 32
	snapRules      = 40
	snapAppRules   = 48
	snapFuncIndex  = 56
	snapTypeEnv    = 64
	snapFixed      = 72
)

// SnapshotGenerationOffset is the byte offset of the generation stamp
// inside a Snapshot record.
const SnapshotGenerationOffset = snapGeneration

// SnapshotSpec describes a compiled rule base.
type SnapshotSpec struct {
	Generation uint64
	Timestamp  int64
	RuleBase   Ptr // Text
	Digest     Ptr // Text
	Rules      Ptr // RuleSet
	AppRules   Ptr // RuleSet
	FuncIndex  Ptr // Env
	TypeEnv    Ptr // Map
}

// NewSnapshot allocates a Snapshot record.
func NewSnapshot(h Heap, spec SnapshotSpec) (Ptr, error) {
	r, err := New(h, TagSnapshot, 0, 0)
	if err != nil {
		return 0, err
	}
	r.SetWord(snapGeneration, spec.Generation)
	r.SetWord(snapTimestamp, uint64(spec.Timestamp)) //nolint:gosec // bit pattern
	r.SetWord(snapRuleBase, uint64(spec.RuleBase))
	r.SetWord(snapDigest, uint64(spec.Digest))
	r.SetWord(snapRules, uint64(spec.Rules))
	r.SetWord(snapAppRules, uint64(spec.AppRules))
	r.SetWord(snapFuncIndex, uint64(spec.FuncIndex))
	r.SetWord(snapTypeEnv, uint64(spec.TypeEnv))
	return r.Ptr(), nil
}

// Snapshot is a read view of a Snapshot record.
type Snapshot struct {
	Record
}

// LoadSnapshot reads the Snapshot at p.
func LoadSnapshot(sp Space, p Ptr) (Snapshot, error) {
	r, err := LoadAs(sp, p, TagSnapshot)
	return Snapshot{r}, err
}

func (s Snapshot) Generation() uint64 { return s.Word(snapGeneration) }
func (s Snapshot) Timestamp() int64 { return int64(s.Word(snapTimestamp)) } //nolint:gosec // bit pattern
func (s Snapshot) RuleBase() Ptr { return s.PtrAt(snapRuleBase) }
func (s Snapshot) Digest() Ptr { return s.PtrAt(snapDigest) }
func (s Snapshot) Rules() Ptr { return s.PtrAt(snapRules) }
func (s Snapshot) AppRules() Ptr { return s.PtrAt(snapAppRules) }
func (s Snapshot) FuncIndex() Ptr { return s.PtrAt(snapFuncIndex) }
func (s Snapshot) TypeEnv() Ptr { return s.PtrAt(snapTypeEnv) }
