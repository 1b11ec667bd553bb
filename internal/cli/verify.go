package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hupe1980/rulecache/internal/snapshot"
	"github.com/hupe1980/rulecache/internal/traverse"
)

// Relocation targets of verify. Both differ from any real mapping address
// the buffer could have been serialized at.
const (
	verifyBaseLow  uint64 = 0x0000_1000_0000
	verifyBaseHigh uint64 = 0x7f00_0000_0000
)

// ErrVerifyFailed is returned when a buffer does not survive relocation.
var ErrVerifyFailed = errors.New("buffer verification failed")

// VerifyResult is the outcome of verify.
type VerifyResult struct {
	OK         bool   `json:"ok"`
	Generation uint64 `json:"generation"`
	Detail     string `json:"detail,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	var compression string
	cmd := &cobra.Command{
		Use:   "verify [buffer-file]",
		Short: "Check that a cache buffer relocates to any base",
		Long: `Attach two copies of a cache buffer at different base addresses and
compare the graphs structurally. The stamp of each copy must match the
buffer's stamp.

Without a file the published snapshot of the configured store is verified,
which also checks its manifest checksum.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, release, err := openBuffer(cmd.Context(), rootOpts, args, compression)
			if err != nil {
				return err
			}
			defer release()

			res, err := Verify(c.Buffer())
			if err != nil {
				return err
			}
			if err := newFormatter(rootOpts, cmd.OutOrStdout()).Emit(res, res.write); err != nil {
				return err
			}
			if !res.OK {
				return ErrVerifyFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&compression, "compression", "none", "envelope of the buffer file (none|lz4|zstd)")
	return cmd
}

// Verify attaches two private copies of buf at distinct bases and checks
// that they hold equal graphs with equal stamps. buf is not modified.
func Verify(buf []byte) (*VerifyResult, error) {
	stamp, err := snapshot.Stamp(buf)
	if err != nil {
		return nil, err
	}
	low, err := snapshot.Attach(bytes.Clone(buf), snapshot.WithBase(verifyBaseLow))
	if err != nil {
		return nil, err
	}
	high, err := snapshot.Attach(bytes.Clone(buf), snapshot.WithBase(verifyBaseHigh))
	if err != nil {
		return nil, err
	}

	res := &VerifyResult{Generation: stamp}
	if low.Generation() != stamp || high.Generation() != stamp {
		res.Detail = fmt.Sprintf("stamp changed by relocation: %d, %d, want %d", low.Generation(), high.Generation(), stamp)
		return res, nil
	}
	eq, err := traverse.Equal(low.Space(), low.Root(), high.Space(), high.Root())
	if err != nil {
		return nil, err
	}
	if !eq {
		res.Detail = "relocated graphs differ"
		return res, nil
	}
	res.OK = true
	return res, nil
}

func (r *VerifyResult) write(w io.Writer) error {
	if r.OK {
		printf(w, "ok: generation %d relocates cleanly\n", r.Generation)
		return nil
	}
	printf(w, "FAIL: generation %d: %s\n", r.Generation, r.Detail)
	return nil
}
