package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/mqlua/internal/cli"
	"github.com/aretw0/mqlua/internal/config"
	"github.com/aretw0/mqlua/pkg/domain"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mqlua [flags] <path> [args ...]",
	Short: "Run Lua programs in separate goroutines, connected with ZeroMQ",
	Long: `mqlua runs the control program at <path>. The program creates nodes with
require("node").create(path, ...), each running in its own interpreter state.
Remaining arguments are available to the control program in the global table arg.

The names list, push, version, completion and help are subcommands. To run a control
program with one of those names, give it a path such as ./list.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) < 1 {
			return fmt.Errorf("%w: missing program path", domain.ErrUsage)
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return cli.Execute(cli.RunOptions{
			Config: cfg,
			Path:   args[0],
			Args:   args[1:],
		})
	},
}

// Execute runs the root command and exits 1 on any error.
func Execute() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// run executes the command line in args and returns the exit status.
func run(args []string, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "mqlua: %v\n", err)
		if errors.Is(err, domain.ErrUsage) {
			fmt.Fprintln(stderr, "usage: mqlua [flags] <path> [args ...]")
		}
		return 1
	}
	return 0
}

func init() {
	// Everything after the program path belongs to the program.
	rootCmd.Flags().SetInterspersed(false)

	rootCmd.PersistentFlags().String("config", "", "Configuration file (YAML or JSON, default "+config.DefaultPath+" if present)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
	rootCmd.PersistentFlags().String("loader", "", "Program loader: file or redis")
	rootCmd.PersistentFlags().String("redis-addr", "", "Redis address for the redis loader")
	rootCmd.PersistentFlags().String("redis-prefix", "", "Key prefix for programs stored in Redis")

	rootCmd.Flags().Bool("no-housekeeping", false, "Do not wait for running nodes before exiting")
	rootCmd.Flags().BoolP("interactive", "i", false, "Read Lua chunks from stdin after the control program")
	rootCmd.Flags().String("base-dir", "", "Directory programs are resolved against (file loader)")
	rootCmd.Flags().Bool("cache", false, "Cache compiled programs")
	rootCmd.Flags().Int("max-nodes", 0, "Maximum number of nodes running at once (0: unlimited)")
	rootCmd.Flags().String("admin-addr", "", "Serve /healthz, /status and /metrics on this address")
}

// loadConfig reads the configuration file and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	explicit := path != ""
	if !explicit {
		path = config.DefaultPath
	}
	cfg, err := config.Load(path, !explicit)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Log.Format, _ = flags.GetString("log-format")
	}
	if flags.Changed("loader") {
		cfg.Loader.Kind, _ = flags.GetString("loader")
	}
	if flags.Changed("redis-addr") {
		cfg.Loader.Redis.Addr, _ = flags.GetString("redis-addr")
	}
	if flags.Changed("redis-prefix") {
		cfg.Loader.Redis.Prefix, _ = flags.GetString("redis-prefix")
	}
	if flags.Changed("no-housekeeping") {
		off, _ := flags.GetBool("no-housekeeping")
		cfg.Housekeeping = !off
	}
	if flags.Changed("interactive") {
		cfg.Interactive, _ = flags.GetBool("interactive")
	}
	if flags.Changed("base-dir") {
		cfg.Loader.BaseDir, _ = flags.GetString("base-dir")
	}
	if flags.Changed("cache") {
		cfg.Loader.Cache, _ = flags.GetBool("cache")
	}
	if flags.Changed("max-nodes") {
		cfg.Limits.MaxNodes, _ = flags.GetInt("max-nodes")
	}
	if flags.Changed("admin-addr") {
		cfg.Admin.Addr, _ = flags.GetString("admin-addr")
	}
	return cfg, cfg.Validate()
}
