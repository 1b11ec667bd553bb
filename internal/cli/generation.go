package cli

import (
	"io"
	"time"

	"github.com/spf13/cobra"
)

// GenerationReport describes the published snapshot.
type GenerationReport struct {
	Generation    uint64    `json:"generation"`
	PublicationID string    `json:"publication_id"`
	Blob          string    `json:"blob"`
	Size          int64     `json:"size"`
	RawSize       int64     `json:"raw_size"`
	Compression   string    `json:"compression"`
	RuleBase      string    `json:"rule_base,omitempty"`
	PublishedAt   time.Time `json:"published_at"`
}

// NewGenerationCommand creates the generation command.
func NewGenerationCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "generation",
		Short:        "Show the published generation of the configured store",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, _, err := rootOpts.Manager(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			mf, err := m.Manifest(cmd.Context())
			if err != nil {
				return err
			}
			r := &GenerationReport{
				Generation:    mf.Generation,
				PublicationID: mf.PublicationID,
				Blob:          mf.Blob,
				Size:          mf.Size,
				RawSize:       mf.RawSize,
				Compression:   mf.Compression,
				RuleBase:      mf.RuleBase,
				PublishedAt:   mf.PublishedAt,
			}
			return newFormatter(rootOpts, cmd.OutOrStdout()).Emit(r, func(w io.Writer) error {
				printf(w, "generation %d (%s)\n", r.Generation, r.PublicationID)
				printf(w, "blob %s, %d bytes stored, %d raw, %s\n", r.Blob, r.Size, r.RawSize, r.Compression)
				printf(w, "published %s\n", r.PublishedAt.Format(time.RFC3339))
				return nil
			})
		},
	}
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "history",
		Short:        "List the stored snapshot blobs",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, _, err := rootOpts.Manager(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			names, err := m.History(cmd.Context())
			if err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd.OutOrStdout()).Emit(names, func(w io.Writer) error {
				for _, n := range names {
					printf(w, "%s\n", n)
				}
				return nil
			})
		},
	}
}
