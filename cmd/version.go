package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opsmesh/kube-discovery/internal/system"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(system.PrettyInfo())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
