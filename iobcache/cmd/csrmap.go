package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sarchlab/iobcache/cache"
)

var csrMapCmd = &cobra.Command{
	Use:   "csrmap",
	Short: "Print the control register map.",
	Run: func(cmd *cobra.Command, _ []string) {
		printCSRMap(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(csrMapCmd)
}

func printCSRMap(w io.Writer) {
	fmt.Fprintf(w, "%-11s %6s %5s %s\n", "REGISTER", "OFFSET", "BYTES", "ACCESS")

	for _, r := range cache.Registers() {
		access := "R"
		if r.Writable {
			access = "W"
		}

		fmt.Fprintf(w, "%-11s %6d %5d %s\n", r.Name, r.Offset, r.Bytes, access)
	}
}
