package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftlock/depot"
	"github.com/driftlock/depot/internal/dlog"
)

var syncPrefer string

var syncCmd = &cobra.Command{
	Use:   "sync <ref> <image>",
	Short: "Three-way merge a ref against a registry tree",
	Long: "Pull the registry tree, merge it with the local ref using the last\n" +
		"synced root as the common ancestor, push the result, and advance both\n" +
		"the ref and its sync marker. Falls back to whole-tree replacement when\n" +
		"no clean merge is possible.",
	Args: cobra.ExactArgs(2),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncPrefer, "prefer", "ours", "conflict winner on equal timestamps (ours|theirs)")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ref, image := args[0], args[1]

	d, err := openDepot()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	log := dlog.Must(logLevel())

	ours, err := d.GetRef(ctx, ref)
	if err != nil {
		return err
	}

	// The sync marker records the root of the last completed sync; it
	// is the merge base for the next one.
	baseRef := ref + ".synced"
	base, err := d.GetRef(ctx, baseRef)
	if err != nil && !errors.Is(err, depot.ErrNotFound) {
		return err
	}

	r, err := depot.NewOCIRemote(image, nil, log)
	if err != nil {
		return err
	}
	theirs, err := d.PullTree(ctx, r)
	if err != nil {
		return err
	}

	tie := depot.TieOurs
	if syncPrefer == "theirs" {
		tie = depot.TieTheirs
	}

	m := depot.NewMerger(d, depot.DepotFetcher{Source: d, Root: theirs},
		depot.WithMergeLogger(log), depot.WithTieBreak(tie))

	now := time.Now()
	merged, ok := m.MergeRoots(ctx, depot.MergeInput{
		Base: base, Ours: ours, Theirs: theirs,
		OursAt: now, TheirsAt: now,
	})
	if !ok {
		// No clean merge: whole-root last-writer-wins, biased by the
		// same preference.
		merged = ours
		if tie == depot.TieTheirs {
			merged = theirs
		}
		fmt.Println("merge unavailable, falling back to whole-tree replacement")
	}

	if err := d.PushTree(ctx, r, merged); err != nil {
		return err
	}
	if err := d.PutRef(ctx, ref, merged); err != nil {
		return err
	}
	if err := d.PutRef(ctx, baseRef, merged); err != nil {
		return err
	}

	fmt.Printf("synced %s (%s)\n", ref, merged)
	return nil
}
