package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rcdash/telemetry/internal/config"
)

// set at build time via ldflags
var (
	Version   = "0.0.1"
	BuildDate = "unknown"
)

var (
	cfgFile string
	cfgDir  string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "rcdash",
		Short:         "Telemetry engine for the RC car dashboard",
		Version:       fmt.Sprintf("%s (%s)", Version, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./"+config.FileName+")")
	rootCmd.PersistentFlags().StringVar(&cfgDir, "config-dir", ".",
		"directory searched for "+config.FileName)
	rootCmd.PersistentFlags().String("log-level", "",
		"log level: debug, info, warn or error")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newLogoutCmd())
	return rootCmd
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// initConfig reads the config file and binds the flags that override it.
// A missing file in the config dir is not an error: defaults and RCDASH_
// environment variables still apply.
func initConfig(cmd *cobra.Command) error {
	if cfgFile != "" {
		if err := config.LoadFile(cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if err := config.Load(cfgDir); err != nil {
		fmt.Fprintln(os.Stderr, "No config file loaded, using defaults:", err)
	}

	bindFlags(cmd)
	return nil
}

// bindFlags applies flags set on the command line to their viper keys.
func bindFlags(cmd *cobra.Command) {
	keys := map[string]string{
		"log-level": "logLevel",
	}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := keys[f.Name]
		if !ok || !f.Changed {
			return
		}
		viper.Set(key, f.Value.String())
	})
}
