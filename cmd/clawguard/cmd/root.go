// Package cmd provides the CLI commands for ClawGuard.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clawguard/clawguard/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "clawguard",
	Short: "ClawGuard - gated reverse proxy for AI agent credentials",
	Long: `ClawGuard holds the credentials an AI agent needs to call third-party
APIs, and gates every outbound call behind an out-of-band human decision
delivered over Telegram. Approvals are time-bounded, every call is audited,
and the proxy fails closed.

Quick start:
  1. Create a config file: clawguard.yaml
  2. Run: clawguard start

Configuration:
  Config is loaded from clawguard.yaml in the current directory,
  $HOME/.clawguard/, or /etc/clawguard/.

  Environment variables can override config values with the CLAWGUARD_ prefix.
  Example: CLAWGUARD_SERVER_HTTP_ADDR=:9090

Commands:
  start       Start the gateway
  stop        Stop the running gateway
  hash-secret Generate an Argon2id hash for a shared secret or PIN
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./clawguard.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
