package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftlock/depot"
)

var catCmd = &cobra.Command{
	Use:   "cat <ref> <tree-path>",
	Short: "Print a file node's payload",
	Args:  cobra.ExactArgs(2),
	RunE:  runCat,
}

func init() {
	rootCmd.AddCommand(catCmd)
}

func runCat(cmd *cobra.Command, args []string) error {
	d, err := openDepot()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	root, err := d.GetRef(ctx, args[0])
	if err != nil {
		return err
	}

	_, node, err := d.Resolve(ctx, root, splitTreePath(args[1]))
	if err != nil {
		return err
	}
	if node.Kind != depot.KindFile {
		return fmt.Errorf("%s: is a dict", args[1])
	}

	_, err = os.Stdout.Write(node.Data)
	return err
}
