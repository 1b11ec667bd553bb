package rulecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/rulecache/internal/arena"
	"github.com/hupe1980/rulecache/internal/graph"
	"github.com/hupe1980/rulecache/internal/manifest"
	"github.com/hupe1980/rulecache/internal/snapshot"
	"github.com/hupe1980/rulecache/internal/traverse"
	"github.com/hupe1980/rulecache/internal/types"
)

// Unit is one independently checked part of a rule base. Build fills h
// with the unit's parsed rules and returns their RuleSet.
type Unit struct {
	Name   string
	Source snapshot.Source
	Build  func(h Heap) (Ptr, error)
}

// Builtins fills env, the type environment of a snapshot, with the types
// of built-in functions and values.
type Builtins func(h Heap, env *graph.Map) error

// unitVarStride separates the type variable ids of concurrently checked
// units.
const unitVarStride = 1 << 32

// Compiled is a compiled snapshot. Its memory belongs to the manager until
// Close is called.
type Compiled struct {
	cache *snapshot.Cache
	arena *arena.Arena
	rules int
}

// Cache returns the live snapshot.
func (c *Compiled) Cache() *snapshot.Cache { return c.cache }

// Generation returns the snapshot generation.
func (c *Compiled) Generation() uint64 { return c.cache.Generation() }

// Rules returns the number of compiled rules, application rules included.
func (c *Compiled) Rules() int { return c.rules }

// Close destroys the snapshot's arena.
func (c *Compiled) Close() error {
	err := c.cache.Release()
	c.arena.Destroy()
	return err
}

type unitResult struct {
	arena  *arena.Arena
	region *graph.Region
	rules  graph.Ptr
	err    error
}

// Compile type-checks units concurrently, each in its own arena, and
// promotes their rules into a new snapshot of ruleBase. The generation is
// one past the published one. Type errors of all units are reported
// together as UnitErrors.
func (m *Manager) Compile(ctx context.Context, ruleBase string, units []Unit) (*Compiled, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	start := time.Now()

	gen, err := m.nextGeneration(ctx)
	if err != nil {
		return nil, err
	}
	c, err := m.compile(ctx, gen, ruleBase, units)
	rules := 0
	if c != nil {
		rules = c.rules
	}
	m.logger.LogCompile(ctx, gen, len(units), rules, err)
	m.opts.metricsCollector.RecordCompile(rules, time.Since(start), err)
	return c, translateError(err)
}

func (m *Manager) nextGeneration(ctx context.Context) (uint64, error) {
	mf, err := m.manifests.Load(ctx)
	var published uint64
	switch {
	case err == nil:
		published = mf.Generation
	case errors.Is(err, manifest.ErrNotFound):
	default:
		return 0, err
	}
	return published + 1, nil
}

func (m *Manager) newArena() (*arena.Arena, error) {
	return m.reg.NewArena(m.opts.chunkSize,
		arena.WithMemoryAcquirer(m.rc),
		arena.WithChunkSize(m.opts.chunkSize),
	)
}

func (m *Manager) compile(ctx context.Context, gen uint64, ruleBase string, units []Unit) (*Compiled, error) {
	snap, err := m.newArena()
	if err != nil {
		return nil, err
	}
	region := graph.NewRegion(snap)
	results := make([]unitResult, len(units))
	defer func() {
		for _, res := range results {
			if res.arena != nil {
				res.arena.Destroy()
			}
		}
	}()

	c, err := m.build(ctx, gen, ruleBase, units, region, results)
	if err != nil {
		snap.Destroy()
		return nil, err
	}
	c.arena = snap
	return c, nil
}

func (m *Manager) build(ctx context.Context, gen uint64, ruleBase string, units []Unit, region *graph.Region, results []unitResult) (*Compiled, error) {
	typeEnv, err := graph.NewMap(region, graph.DefaultMapSize, graph.MapGrowable)
	if err != nil {
		return nil, err
	}
	if m.opts.builtins != nil {
		if err := m.opts.builtins(region, typeEnv); err != nil {
			return nil, fmt.Errorf("builtins: %w", err)
		}
	}
	builtinEnv, err := graph.NewEnv(region, typeEnv.Ptr(), 0)
	if err != nil {
		return nil, err
	}

	// The snapshot region is only read until every unit is checked.
	g, gctx := errgroup.WithContext(ctx)
	for i, u := range units {
		g.Go(func() error {
			if err := m.rc.AcquireUnit(gctx); err != nil {
				return err
			}
			defer m.rc.ReleaseUnit()
			if err := m.checkUnit(u, uint64(i), region, builtinEnv, &results[i]); err != nil {
				return &UnitError{Unit: u.Name, cause: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var typeErrs []error
	for i, res := range results {
		if res.err != nil {
			typeErrs = append(typeErrs, &UnitError{Unit: units[i].Name, cause: res.err})
		}
	}
	if len(typeErrs) > 0 {
		return nil, errors.Join(typeErrs...)
	}

	// Functions are a frame over the builtins; a later unit's function
	// replaces an earlier one of the same name.
	funcIndex, funcs, err := graph.PushFrame(region, builtinEnv, graph.MapGrowable)
	if err != nil {
		return nil, err
	}
	var rules, appRules []graph.Ptr
	for i := range results {
		res := &results[i]
		promoted, err := traverse.Promote(res.region, res.rules, region)
		if err != nil {
			return nil, &UnitError{Unit: units[i].Name, cause: err}
		}
		res.arena.Destroy()
		res.arena = nil

		set, err := graph.LoadRuleSet(region, promoted)
		if err != nil {
			return nil, err
		}
		unitRules, err := set.Rules(region)
		if err != nil {
			return nil, err
		}
		for _, rule := range unitRules {
			if rule.Kind() == graph.RuleApp {
				appRules = append(appRules, rule.Ptr())
			} else {
				rules = append(rules, rule.Ptr())
			}
			if rule.Kind() == graph.RuleFunc && !rule.Name().IsNil() {
				name, err := graph.TextString(region, rule.Name())
				if err != nil {
					return nil, err
				}
				if err := funcs.Update(name, uint64(rule.Ptr())); err != nil {
					return nil, err
				}
			}
		}
	}

	root, err := m.newSnapshot(region, gen, ruleBase, units, funcIndex, typeEnv, rules, appRules)
	if err != nil {
		return nil, err
	}
	cache, err := snapshot.Build(region, root)
	if err != nil {
		return nil, err
	}
	return &Compiled{cache: cache, rules: len(rules) + len(appRules)}, nil
}

func (m *Manager) checkUnit(u Unit, index uint64, src graph.Space, env graph.Ptr, res *unitResult) error {
	if u.Build == nil {
		return errors.New("unit has no build function")
	}
	a, err := m.newArena()
	if err != nil {
		return err
	}
	res.arena = a
	r := graph.NewRegion(a)

	rs, err := u.Build(r)
	if err != nil {
		return err
	}
	c, err := types.NewChecker(r, types.WithSource(src), types.WithFirstVar(index*unitVarStride))
	if err != nil {
		return err
	}
	if err := c.CheckRuleSet(rs, env); err != nil {
		res.err = err
		return nil
	}
	if err := c.ResolveRuleSet(rs); err != nil {
		return err
	}
	res.region = r
	res.rules = rs
	return nil
}

func (m *Manager) newSnapshot(
	region *graph.Region,
	gen uint64,
	ruleBase string,
	units []Unit,
	funcIndex graph.Ptr,
	typeEnv *graph.Map,
	rules, appRules []graph.Ptr,
) (graph.Ptr, error) {
	sources := make([]snapshot.Source, 0, len(units))
	for _, u := range units {
		if u.Source.Name != "" {
			sources = append(sources, u.Source)
		}
	}

	base, err := graph.NewText(region, ruleBase)
	if err != nil {
		return 0, err
	}
	digest, err := graph.NewText(region, snapshot.Digest(sources))
	if err != nil {
		return 0, err
	}
	ruleSet, err := graph.NewRuleSet(region, rules...)
	if err != nil {
		return 0, err
	}
	appSet, err := graph.NewRuleSet(region, appRules...)
	if err != nil {
		return 0, err
	}
	return graph.NewSnapshot(region, graph.SnapshotSpec{
		Generation: gen,
		Timestamp:  snapshot.MaxModified(sources),
		RuleBase:   base,
		Digest:     digest,
		Rules:      ruleSet,
		AppRules:   appSet,
		FuncIndex:  funcIndex,
		TypeEnv:    typeEnv.Ptr(),
	})
}
