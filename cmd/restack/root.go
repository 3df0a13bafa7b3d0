package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "restack",
	Short: "Multi-tenant resource engine for declarative apps",
	Long: `Restack serves the resource engine of a low-code app platform.

Apps declare JSON-schema-typed resource types in YAML definitions; restack
exposes query/get/create/update/patch/delete actions over them with
validation, history, expiration and per-app isolation.

Quick start:
  restack validate   # Check app definitions
  restack serve      # Start the engine`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "restack.yaml", "config file path")
}
