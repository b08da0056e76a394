package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftlock/depot"
)

var gcGrace time.Duration

var gcCmd = &cobra.Command{
	Use:   "gc [ref...]",
	Short: "Collect nodes unreachable from the given refs",
	Long: "Delete nodes not reachable from the given refs (default: all refs)\n" +
		"and older than the grace window.",
	RunE: runGC,
}

func init() {
	gcCmd.Flags().DurationVar(&gcGrace, "grace", time.Hour,
		"retain nodes written within this window even when unreachable")
	rootCmd.AddCommand(gcCmd)
}

func runGC(cmd *cobra.Command, args []string) error {
	d, err := openDepot()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	names := args
	if len(names) == 0 {
		names, err = d.Refs(ctx)
		if err != nil {
			return err
		}
	}

	roots := make([]depot.Key, 0, len(names))
	for _, name := range names {
		key, err := d.GetRef(ctx, name)
		if err != nil {
			return err
		}
		roots = append(roots, key)
	}

	// The cutoff must predate the start of the pass so concurrent
	// writes are never swept before a root can reference them.
	cutoff := time.Now().Add(-gcGrace)
	if err := d.GC(ctx, roots, cutoff); err != nil {
		return err
	}

	fmt.Printf("gc complete (%d roots)\n", len(roots))
	return nil
}
