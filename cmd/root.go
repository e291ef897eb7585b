// Copyright (c) 2025 MCProbe
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for the mcprobe test harness.
// The root command spawns the database MCP server as a child process, performs
// the JSON-RPC handshake over its stdio streams, and drives the database tools
// either through a fixed comprehensive script or an interactive menu loop,
// using the Cobra CLI framework and a rich terminal UI.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	showVersion   bool
	comprehensive bool
	serverPath    string
	callTimeout   time.Duration
	skipPreflight bool
)

// rootCmd represents the base command when called without any subcommands.
// Without --comprehensive it runs the interactive tester.
var rootCmd = &cobra.Command{
	Use:           "mcprobe",
	Short:         "Test harness for the database MCP server",
	Long: `mcprobe launches the database MCP server as a child process and drives it
over JSON-RPC 2.0 on the server's standard input/output streams.

By default it runs an interactive menu for issuing individual tool calls
(list schemas, list tables, describe table, run SQL, explain SQL) against
the configured connections. With --comprehensive it runs a fixed scripted
test suite against both connections instead.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("mcprobe %s\n", Version)
			return nil
		}
		return runHarness(cmd.Context(), comprehensive)
	},
}

// Execute runs the CLI application. An operator interrupt (Ctrl+C) flows
// through the same shutdown path as a normal exit and is not an error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// An interrupt that surfaces as a context error is still an
		// operator-initiated stop, not a failure.
		if errors.Is(err, context.Canceled) {
			fmt.Println("👋 Interrupted by user")
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show CLI version information")
	rootCmd.Flags().BoolVar(&comprehensive, "comprehensive", false, "Run the fixed scripted test suite instead of the interactive menu")
	rootCmd.Flags().StringVar(&serverPath, "server", "", "Path to the database-mcp server binary (overrides config)")
	rootCmd.Flags().DurationVar(&callTimeout, "timeout", 0, "Per-call response timeout, e.g. 30s (0 waits indefinitely)")
	rootCmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip the docker database container checks")
}
