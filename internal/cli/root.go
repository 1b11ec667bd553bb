// Package cli implements the rulecache operator commands.
package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/hupe1980/rulecache"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Logger returns the logger selected by the verbose flag.
func (o *RootOptions) Logger() *rulecache.Logger {
	if o.Verbose {
		return rulecache.NewTextLogger(slog.LevelDebug)
	}
	return rulecache.NewTextLogger(slog.LevelWarn)
}

// NewRootCommand creates the root command of the rulecache CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "rulecache",
		Short: "Inspect and verify shared rule caches",
		Long: `Inspect, verify and locate compiled rule snapshots.

Buffers can be read from a file or from the store named in the config file.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "rulecache.yaml", "config file")

	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewGenerationCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}
