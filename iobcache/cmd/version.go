package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/iobcache/cache"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version reported by the VERSION register.",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "iob cache version 0x%04x\n",
			cache.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
