package graph

import (
	"errors"
	"fmt"
)

const (
	envCurrent  = 8
	envPrevious = 16
	envFixed    = 24

	// MaxEnvDepth bounds frame chains walked by LookupInEnv.
	MaxEnvDepth = 1 << 16
)

// ErrEnvTooDeep is returned when a frame chain exceeds MaxEnvDepth, which
// only happens for corrupt or cyclic chains.
var ErrEnvTooDeep = errors.New("graph: environment chain too deep")

// NewEnv allocates an Env frame with the given current Map and enclosing Env.
func NewEnv(h Heap, current, previous Ptr) (Ptr, error) {
	r, err := New(h, TagEnv, 0, 0)
	if err != nil {
		return 0, err
	}
	r.SetWord(envCurrent, uint64(current))
	r.SetWord(envPrevious, uint64(previous))
	return r.Ptr(), nil
}

// EnvFrame returns the current Map and enclosing Env of the frame at env.
func EnvFrame(sp Space, env Ptr) (current, previous Ptr, err error) {
	r, err := LoadAs(sp, env, TagEnv)
	if err != nil {
		return 0, 0, err
	}
	return r.PtrAt(envCurrent), r.PtrAt(envPrevious), nil
}

// LookupInEnv searches the current frame, then the enclosing chain, and
// returns the first binding of key.
func LookupInEnv(sp Space, env Ptr, key string) (uint64, bool, error) {
	for depth := 0; !env.IsNil(); depth++ {
		if depth >= MaxEnvDepth {
			return 0, false, ErrEnvTooDeep
		}
		cur, prev, err := EnvFrame(sp, env)
		if err != nil {
			return 0, false, err
		}
		if !cur.IsNil() {
			v, ok, err := MapLookup(sp, cur, key)
			if err != nil || ok {
				return v, ok, err
			}
		}
		env = prev
	}
	return 0, false, nil
}

// PushFrame opens a new scope on top of env and returns it with its map.
func PushFrame(h Heap, env Ptr, flags MapFlags) (Ptr, *Map, error) {
	m, err := NewMap(h, DefaultMapSize, flags)
	if err != nil {
		return 0, nil, err
	}
	frame, err := NewEnv(h, m.Ptr(), env)
	if err != nil {
		return 0, nil, err
	}
	return frame, m, nil
}

// PopFrame discards the innermost scope of env and returns the enclosing one.
func PopFrame(sp Space, env Ptr) (Ptr, error) {
	if env.IsNil() {
		return 0, fmt.Errorf("%w: pop of empty environment", ErrNilPtr)
	}
	_, prev, err := EnvFrame(sp, env)
	return prev, err
}
