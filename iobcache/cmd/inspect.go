package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarchlab/iobcache/datarecording"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <db>",
	Short: "List the tables of a database written by --record-db or --trace-db.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return inspectDB(cmd.OutOrStdout(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

// inspectDB prints the row count of every table. The path may be given with
// or without the .sqlite3 suffix.
func inspectDB(w io.Writer, path string) error {
	path = strings.TrimSuffix(path, ".sqlite3")

	if _, err := os.Stat(path + ".sqlite3"); err != nil {
		return fmt.Errorf("cannot open database: %w", err)
	}

	reader := datarecording.NewSQLiteReader(path)
	if err := reader.Init(); err != nil {
		return err
	}
	defer reader.Close()

	tables, err := reader.ListTables()
	if err != nil {
		return err
	}

	for _, t := range tables {
		n, err := reader.Count(t)
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "%-20s %d\n", t, n)
	}

	return nil
}
