package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/rulecache/internal/compress"
	"github.com/hupe1980/rulecache/internal/graph"
	"github.com/hupe1980/rulecache/internal/snapshot"
)

// RuleReport describes one rule of a buffer.
type RuleReport struct {
	ID   int64  `json:"id"`
	Kind string `json:"kind"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Report describes a cache buffer.
type Report struct {
	FormatVersion uint32       `json:"format_version"`
	OriginalBase  uint64       `json:"original_base"`
	PayloadSize   uint64       `json:"payload_size"`
	PointerCount  uint64       `json:"pointer_count"`
	Generation    uint64       `json:"generation"`
	RootTag       string       `json:"root_tag"`
	RuleBase      string       `json:"rule_base,omitempty"`
	Digest        string       `json:"digest,omitempty"`
	Timestamp     int64        `json:"timestamp,omitempty"`
	AppRules      int          `json:"app_rules"`
	Functions     int          `json:"functions"`
	Builtins      int          `json:"builtins"`
	Rules         []RuleReport `json:"rules"`
}

var ruleKindNames = map[graph.RuleKind]string{
	graph.RuleRule: "rule",
	graph.RuleFunc: "func",
	graph.RuleApp:  "app",
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	var compression string
	cmd := &cobra.Command{
		Use:   "inspect [buffer-file]",
		Short: "Show the header and rules of a cache buffer",
		Long: `Show the header and rules of a cache buffer.

Without a file the published snapshot of the configured store is inspected.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, orig, release, err := openBuffer(cmd.Context(), rootOpts, args, compression)
			if err != nil {
				return err
			}
			defer release()

			report, err := Describe(orig, c)
			if err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd.OutOrStdout()).Emit(report, report.write)
		},
	}
	cmd.Flags().StringVar(&compression, "compression", "none", "envelope of the buffer file (none|lz4|zstd)")
	return cmd
}

// openBuffer attaches the buffer file in args, or the published snapshot.
// The returned header is the one read before relocation.
func openBuffer(ctx context.Context, opts *RootOptions, args []string, compression string) (*snapshot.Cache, snapshot.Header, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(args) == 1 {
		buf, err := readBuffer(args[0], compression)
		if err != nil {
			return nil, snapshot.Header{}, nil, err
		}
		h, err := snapshot.ParseHeader(buf)
		if err != nil {
			return nil, snapshot.Header{}, nil, err
		}
		c, err := snapshot.Attach(buf)
		if err != nil {
			return nil, snapshot.Header{}, nil, err
		}
		return c, h, func() { _ = c.Release() }, nil
	}

	m, _, err := opts.Manager(ctx)
	if err != nil {
		return nil, snapshot.Header{}, nil, err
	}
	c, err := m.Load(ctx)
	if err != nil {
		_ = m.Close()
		return nil, snapshot.Header{}, nil, err
	}
	h, err := snapshot.ParseHeader(c.Buffer())
	if err != nil {
		_ = c.Release()
		_ = m.Close()
		return nil, snapshot.Header{}, nil, err
	}
	return c, h, func() {
		_ = c.Release()
		_ = m.Close()
	}, nil
}

func readBuffer(path, compression string) ([]byte, error) {
	t, err := compress.ParseType(compression)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return compress.Decompress(b, t, 0)
}

// Describe reports the header h and the content of the attached cache c.
func Describe(h snapshot.Header, c *snapshot.Cache) (*Report, error) {
	rec, err := graph.Load(c.Space(), c.Root())
	if err != nil {
		return nil, err
	}
	r := &Report{
		FormatVersion: h.Version,
		OriginalBase:  h.OriginalBase,
		PayloadSize:   h.PayloadSize,
		PointerCount:  h.PointerCount,
		Generation:    c.Generation(),
		RootTag:       rec.Tag().String(),
	}

	if rec.Tag() == graph.TagSnapshot {
		snap := graph.Snapshot{Record: rec}
		r.Timestamp = snap.Timestamp()
		if r.RuleBase, err = text(c.Space(), snap.RuleBase()); err != nil {
			return nil, err
		}
		if r.Digest, err = text(c.Space(), snap.Digest()); err != nil {
			return nil, err
		}
		if p := snap.AppRules(); !p.IsNil() {
			apps, err := graph.LoadRuleSet(c.Space(), p)
			if err != nil {
				return nil, err
			}
			r.AppRules = apps.Len()
		}
		if env := snap.FuncIndex(); !env.IsNil() {
			if r.Functions, r.Builtins, err = indexSizes(c.Space(), env); err != nil {
				return nil, err
			}
		}
	}
	if rec.Tag() != graph.TagSnapshot && rec.Tag() != graph.TagRuleSet {
		return r, nil
	}

	set, err := c.RuleSet()
	if err != nil {
		return nil, err
	}
	rules, err := set.Rules(c.Space())
	if err != nil {
		return nil, err
	}
	for _, rule := range rules {
		name, err := text(c.Space(), rule.Name())
		if err != nil {
			return nil, err
		}
		typ := "-"
		if !rule.Type().IsNil() {
			if typ, err = graph.FormatType(c.Space(), rule.Type()); err != nil {
				return nil, err
			}
		}
		r.Rules = append(r.Rules, RuleReport{
			ID:   rule.ID(),
			Kind: ruleKindNames[rule.Kind()],
			Name: name,
			Type: typ,
		})
	}
	return r, nil
}

// indexSizes counts the bindings of the innermost frame of a function
// index and those of the frames below it.
func indexSizes(sp graph.Space, env graph.Ptr) (funcs, builtins int, err error) {
	if funcs, err = frameLen(sp, env); err != nil {
		return 0, 0, err
	}
	outer, err := graph.PopFrame(sp, env)
	for depth := 0; err == nil && !outer.IsNil(); depth++ {
		if depth >= graph.MaxEnvDepth {
			return 0, 0, graph.ErrEnvTooDeep
		}
		var n int
		if n, err = frameLen(sp, outer); err != nil {
			break
		}
		builtins += n
		outer, err = graph.PopFrame(sp, outer)
	}
	return funcs, builtins, err
}

func frameLen(sp graph.Space, env graph.Ptr) (int, error) {
	current, _, err := graph.EnvFrame(sp, env)
	if err != nil || current.IsNil() {
		return 0, err
	}
	return graph.MapLen(sp, current)
}

func text(sp graph.Space, p graph.Ptr) (string, error) {
	if p.IsNil() {
		return "", nil
	}
	return graph.TextString(sp, p)
}

func (r *Report) write(w io.Writer) error {
	var b bytes.Buffer
	printf(&b, "format version: %d\n", r.FormatVersion)
	printf(&b, "original base:  %#x\n", r.OriginalBase)
	printf(&b, "payload:        %d bytes, %d pointers\n", r.PayloadSize, r.PointerCount)
	printf(&b, "generation:     %d\n", r.Generation)
	printf(&b, "root:           %s\n", r.RootTag)
	if r.RuleBase != "" {
		printf(&b, "rule base:      %s\n", r.RuleBase)
	}
	if r.Digest != "" {
		printf(&b, "digest:         %s\n", r.Digest)
	}
	if r.RootTag == graph.TagSnapshot.String() {
		printf(&b, "app rules:      %d\n", r.AppRules)
		printf(&b, "functions:      %d (%d builtins)\n", r.Functions, r.Builtins)
	}
	for _, rule := range r.Rules {
		printf(&b, "  %-4s %6d %s : %s\n", rule.Kind, rule.ID, rule.Name, rule.Type)
	}
	_, err := w.Write(b.Bytes())
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
