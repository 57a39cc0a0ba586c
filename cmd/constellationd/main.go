// Command constellationd runs the consensus lifecycle store and the
// snapshot majority & redownload engine as a single node process.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "constellationd",
		Short:         "Consensus lifecycle and snapshot redownload node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newStatusCmd(&configPath))
	return root
}
