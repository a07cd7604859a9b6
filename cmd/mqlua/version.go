package main

import (
	"fmt"

	"github.com/aretw0/mqlua"
	"github.com/aretw0/mqlua/pkg/node"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of mqlua",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mqlua version %s (%s)\n", mqlua.Version, node.ModuleVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
