package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rulecache"
	"github.com/hupe1980/rulecache/blobstore"
	"github.com/hupe1980/rulecache/internal/arena"
	"github.com/hupe1980/rulecache/internal/compress"
	"github.com/hupe1980/rulecache/internal/graph"
	"github.com/hupe1980/rulecache/internal/snapshot"
)

func must(t *testing.T) func(graph.Ptr, error) graph.Ptr {
	return func(p graph.Ptr, err error) graph.Ptr {
		t.Helper()
		require.NoError(t, err)
		return p
	}
}

// writeBuffer serializes a snapshot with two rules of declared types.
func writeBuffer(t *testing.T, dir string, ct compress.Type) string {
	t.Helper()
	reg := arena.NewRegistry()
	t.Cleanup(func() { _ = reg.Close() })
	a, err := reg.NewArena(0)
	require.NoError(t, err)
	r := graph.NewRegion(a)

	i := must(t)(graph.NewPrimType(r, graph.CtorInt))
	s := must(t)(graph.NewPrimType(r, graph.CtorString))
	r1 := must(t)(graph.NewRule(r, graph.RuleSpec{Kind: graph.RuleFunc, ID: 1, Name: must(t)(graph.NewText(r, "inc")), Type: must(t)(graph.NewFuncType(r, i, i))}))
	r2 := must(t)(graph.NewRule(r, graph.RuleSpec{ID: 2, Name: must(t)(graph.NewText(r, "greet")), Type: s}))
	root := must(t)(graph.NewSnapshot(r, graph.SnapshotSpec{
		Generation: 9,
		RuleBase:   must(t)(graph.NewText(r, "core")),
		Rules:      must(t)(graph.NewRuleSet(r, r1, r2)),
		AppRules:   must(t)(graph.NewRuleSet(r)),
	}))

	c, err := snapshot.Build(r, root)
	require.NoError(t, err)
	buf, err := snapshot.Serialize(c)
	require.NoError(t, err)
	data, err := compress.Compress(buf, ct)
	require.NoError(t, err)

	path := filepath.Join(dir, "cache.bin")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"inspect", "verify", "generation", "history"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, "generation", "--format", "yaml")
	assert.ErrorContains(t, err, "invalid format")
}

func TestInspect(t *testing.T) {
	tests := []struct {
		name string
		ct   compress.Type
	}{
		{"plain", compress.None},
		{"zstd", compress.ZSTD},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeBuffer(t, t.TempDir(), tt.ct)
			out, err := run(t, "inspect", path, "--format", "json", "--compression", tt.ct.String())
			require.NoError(t, err)

			var r Report
			require.NoError(t, json.Unmarshal([]byte(out), &r))
			assert.Equal(t, snapshot.FormatVersion, r.FormatVersion)
			assert.Equal(t, uint64(9), r.Generation)
			assert.Equal(t, "snapshot", r.RootTag)
			assert.Equal(t, "core", r.RuleBase)
			assert.Equal(t, []RuleReport{
				{ID: 1, Kind: "func", Name: "inc", Type: "func(integer) -> integer"},
				{ID: 2, Kind: "rule", Name: "greet", Type: "string"},
			}, r.Rules)
		})
	}
}

func TestInspect_Text(t *testing.T) {
	path := writeBuffer(t, t.TempDir(), compress.None)
	out, err := run(t, "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, out, "generation:     9")
	assert.Contains(t, out, "greet : string")
}

func TestVerify(t *testing.T) {
	path := writeBuffer(t, t.TempDir(), compress.None)
	out, err := run(t, "verify", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ok: generation 9")

	// A pointer location past the payload is rejected before relocation.
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	h, err := snapshot.ParseHeader(b)
	require.NoError(t, err)
	require.Positive(t, h.PointerCount)
	b[snapshot.HeaderSize] = 0xff
	b[snapshot.HeaderSize+1] = 0xff
	b[snapshot.HeaderSize+2] = 0xff
	require.NoError(t, os.WriteFile(path, b, 0o600))
	_, err = run(t, "verify", path)
	assert.ErrorIs(t, err, snapshot.ErrCorruptBuffer)
}

func TestGenerationAndHistory(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "rulecache.yaml")
	storeDir := filepath.Join(dir, "store")
	require.NoError(t, os.WriteFile(cfgPath, []byte("name: test\ncompression: lz4\nstore:\n  type: local\n  path: "+storeDir+"\n"), 0o600))

	_, err := run(t, "generation", "-c", cfgPath)
	assert.ErrorIs(t, err, rulecache.ErrNotPublished)

	ctx := context.Background()
	builtins := func(h rulecache.Heap, env *graph.Map) error {
		b, err := graph.NewPrimType(h, graph.CtorBool)
		if err != nil {
			return err
		}
		return env.Insert("true", uint64(b))
	}
	m := rulecache.New(blobstore.NewLocalStore(storeDir), rulecache.WithCompression(compress.LZ4), rulecache.WithBuiltins(builtins))
	defer func() { require.NoError(t, m.Close()) }()
	unit := rulecache.Unit{
		Name: "a.re",
		Build: func(h rulecache.Heap) (rulecache.Ptr, error) {
			typ, err := graph.NewPrimType(h, graph.CtorBool)
			if err != nil {
				return 0, err
			}
			name, err := graph.NewText(h, "yes")
			if err != nil {
				return 0, err
			}
			rule, err := graph.NewRule(h, graph.RuleSpec{Kind: graph.RuleFunc, ID: 1, Name: name, Type: typ})
			if err != nil {
				return 0, err
			}
			return graph.NewRuleSet(h, rule)
		},
	}
	compiled, err := m.Compile(ctx, "core", []rulecache.Unit{unit})
	require.NoError(t, err)
	defer func() { require.NoError(t, compiled.Close()) }()
	_, err = m.Publish(ctx, compiled.Cache())
	require.NoError(t, err)

	out, err := run(t, "generation", "-c", cfgPath, "--format", "json")
	require.NoError(t, err)
	var g GenerationReport
	require.NoError(t, json.Unmarshal([]byte(out), &g))
	assert.Equal(t, uint64(1), g.Generation)
	assert.Equal(t, "lz4", g.Compression)
	assert.Equal(t, "core", g.RuleBase)

	out, err = run(t, "history", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, g.Blob)

	out, err = run(t, "inspect", "-c", cfgPath, "--format", "json")
	require.NoError(t, err)
	var r Report
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, []RuleReport{{ID: 1, Kind: "func", Name: "yes", Type: "boolean"}}, r.Rules)
	assert.Equal(t, 1, r.Functions)
	assert.Equal(t, 1, r.Builtins)

	out, err = run(t, "verify", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "ok: generation 1")
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Store.Type)
	assert.Equal(t, "none", cfg.Compression)

	_, err = (&Config{Compression: "brotli"}).Options()
	assert.Error(t, err)

	_, err = (&Config{Store: StoreConfig{Type: "ftp"}}).OpenStore(context.Background())
	assert.Error(t, err)
}
