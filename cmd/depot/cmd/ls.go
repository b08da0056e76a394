package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftlock/depot"
)

var lsCmd = &cobra.Command{
	Use:   "ls <ref> [tree-path]",
	Short: "List dict entries",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runLs,
}

func init() {
	rootCmd.AddCommand(lsCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	d, err := openDepot()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	root, err := d.GetRef(ctx, args[0])
	if err != nil {
		return err
	}

	var path []string
	if len(args) > 1 {
		path = splitTreePath(args[1])
	}

	_, node, err := d.Resolve(ctx, root, path)
	if err != nil {
		return err
	}
	if node.Kind != depot.KindDict {
		return fmt.Errorf("%v: not a dict", path)
	}

	if len(node.Entries) == 0 {
		fmt.Println("(empty)")
		return nil
	}
	for _, e := range node.Entries {
		fmt.Printf("%s\t%s\n", e.Key, e.Name)
	}
	return nil
}
