package main

import (
	"fmt"
	"os"

	"github.com/agentuity/go-datacache/cache"
	"github.com/agentuity/go-datacache/config"
	"github.com/agentuity/go-datacache/env"
	"github.com/agentuity/go-datacache/logger"
	"github.com/spf13/cobra"
)

type app struct {
	cfg *config.Config
	log logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "datacache",
		Short:         "Inspect and maintain datacache directories and databases",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := cfg.Apply(); err != nil {
				return err
			}
			if lvl, _ := cmd.Flags().GetString("log-level"); lvl == "" && cfg.LogLevel != "" {
				cmd.Flags().Set("log-level", cfg.LogLevel)
			}
			a.cfg = cfg
			a.log = env.NewLogger(cmd)
			cache.SetDefaultLogger(a.log)
			return nil
		},
	}
	root.PersistentFlags().String("config", "", "config file (default ./"+config.DefaultFilename+")")
	root.PersistentFlags().String("log-level", "", "log level: trace, debug, info, warn, error")
	root.PersistentFlags().String("log-format", "", "log format: console or json")

	root.AddCommand(newListCmd(a), newPurgeCmd(a), newDBCmd(a))
	return root
}

// rootDir returns the first argument or the configured cache root.
func rootDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return cache.DefaultRoot()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
