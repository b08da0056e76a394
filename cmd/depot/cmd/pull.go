package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftlock/depot"
	"github.com/driftlock/depot/internal/dlog"
)

var pullCmd = &cobra.Command{
	Use:   "pull <ref> <image>",
	Short: "Pull a tree from an OCI registry into a ref",
	Args:  cobra.ExactArgs(2),
	RunE:  runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)
}

func runPull(cmd *cobra.Command, args []string) error {
	d, err := openDepot()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	r, err := depot.NewOCIRemote(args[1], nil, dlog.Must(logLevel()))
	if err != nil {
		return err
	}

	root, err := d.PullTree(ctx, r)
	if err != nil {
		return err
	}
	if err := d.PutRef(ctx, args[0], root); err != nil {
		return err
	}

	fmt.Printf("pulled %s (%s)\n", args[0], root)
	return nil
}
