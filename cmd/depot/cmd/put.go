package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/driftlock/depot"
)

var putContentType string

var putCmd = &cobra.Command{
	Use:   "put <ref> <tree-path> <file>",
	Short: "Store a file under a tree path and update the ref",
	Args:  cobra.ExactArgs(3),
	RunE:  runPut,
}

func init() {
	putCmd.Flags().StringVar(&putContentType, "content-type", "application/octet-stream", "content type tag")
	rootCmd.AddCommand(putCmd)
}

func runPut(cmd *cobra.Command, args []string) error {
	ref, treePath, file := args[0], splitTreePath(args[1]), args[2]
	if len(treePath) == 0 {
		return fmt.Errorf("empty tree path")
	}

	d, err := openDepot()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	content, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	data, key, err := depot.EncodeFileNode(content, putContentType, d.Keys())
	if err != nil {
		return err
	}
	if err := d.PutNode(ctx, key, data); err != nil {
		return err
	}

	root, err := d.GetRef(ctx, ref)
	if err != nil && !errors.Is(err, depot.ErrNotFound) {
		return err
	}

	newRoot, err := d.SetEntry(ctx, root, treePath, key)
	if err != nil {
		return err
	}
	if err := d.PutRef(ctx, ref, newRoot); err != nil {
		return err
	}

	fmt.Printf("%s\t%s\n", key, newRoot)
	return nil
}

func splitTreePath(p string) []string {
	var parts []string
	for _, part := range strings.Split(p, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
