// Package commands implements the espctl command tree: a local operator
// tool for generating SA key material and exercising the ESP pipeline
// end-to-end without a running daemon.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// outputFormat controls the output format for commands that print
// structured data (currently only keygen, which supports "yaml" and "json").
var outputFormat string

// rootCmd is the top-level cobra command for espctl.
var rootCmd = &cobra.Command{
	Use:   "espctl",
	Short: "Operator tool for the espd ESP datagram engine",
	Long:  "espctl generates security association key material and exercises the ESP encrypt/decrypt pipeline locally, without contacting a running espd daemon.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "yaml",
		"output format: yaml, json")

	rootCmd.AddCommand(keygenCmd())
	rootCmd.AddCommand(selftestCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
