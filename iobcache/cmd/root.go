// Package cmd provides the command-line interface of iobcache.
package cmd

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tebeka/atexit"
)

// envPrefix is prepended to the upper-cased flag names to form the
// environment variables that set flag defaults.
const envPrefix = "IOBCACHE_"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "iobcache",
	Short: "iobcache simulates the iob cache controller.",
	Long: `iobcache simulates the iob cache controller at the cycle level. ` +
		`It runs test programs against a configurable cache and reports ` +
		`the results and the control registers. Flags can also be set by ` +
		`IOBCACHE_* environment variables or a .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		return applyEnv(cmd.Flags())
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

// applyEnv sets the flags that are not given on the command line from the
// environment.
func applyEnv(flags *pflag.FlagSet) error {
	var err error

	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Changed {
			return
		}

		name := envPrefix +
			strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))

		value, found := os.LookupEnv(name)
		if !found {
			return
		}

		if setErr := flags.Set(f.Name, value); setErr != nil {
			err = setErr
		}
	})

	return err
}
