package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the build version, overridden at link time.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the onboard version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("onboard %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
