package main

import (
	"os"

	"github.com/aretw0/mqlua/internal/cli"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the programs the configured loader can find",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return cli.ListPrograms(cmd.Context(), cfg, os.Stdout)
	},
}

var pushCmd = &cobra.Command{
	Use:   "push <file> [file ...]",
	Short: "Store program files in Redis for the redis loader",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		return cli.PushPrograms(cmd.Context(), cfg, args, name)
	},
}

func init() {
	listCmd.Flags().String("base-dir", "", "Directory to list (file loader)")
	pushCmd.Flags().String("name", "", "Store a single file under this name")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(pushCmd)
}
