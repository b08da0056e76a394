package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show store statistics",
	Args:  cobra.NoArgs,
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	d, err := openDepot()
	if err != nil {
		return err
	}

	stats, err := d.Info(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("nodes:       %d\n", stats.NodeCount)
	fmt.Printf("total bytes: %d\n", stats.TotalBytes)
	if stats.LastGC.IsZero() {
		fmt.Println("last gc:     never")
	} else {
		fmt.Printf("last gc:     %s\n", stats.LastGC.Format("2006-01-02 15:04:05"))
	}
	return nil
}
