package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftlock/depot"
	"github.com/driftlock/depot/internal/dlog"
)

var pushCmd = &cobra.Command{
	Use:   "push <ref> <image>",
	Short: "Push a ref's tree to an OCI registry",
	Args:  cobra.ExactArgs(2),
	RunE:  runPush,
}

func init() {
	rootCmd.AddCommand(pushCmd)
}

func runPush(cmd *cobra.Command, args []string) error {
	d, err := openDepot()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	root, err := d.GetRef(ctx, args[0])
	if err != nil {
		return err
	}

	r, err := depot.NewOCIRemote(args[1], nil, dlog.Must(logLevel()))
	if err != nil {
		return err
	}

	if err := d.PushTree(ctx, r, root); err != nil {
		return err
	}
	fmt.Printf("pushed %s (%s)\n", args[0], root)
	return nil
}
