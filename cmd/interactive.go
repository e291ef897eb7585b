// Copyright (c) 2025 MCProbe
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bufio"
	"context"
	stderrors "errors"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"mcprobe/cli/internal/config"
	"mcprobe/cli/internal/driver"
	"mcprobe/cli/internal/errors"
	"mcprobe/cli/internal/logging"
)

// menuEntry is one interactive choice. The menu is a closed table: adding an
// operation is a single entry here, not a new branch in the loop.
type menuEntry struct {
	label string
	exit  bool
	run   func(ctx context.Context, drv *driver.Driver, in *bufio.Reader, cfg config.Config) error
}

func menuEntries() []menuEntry {
	return []menuEntry{
		{
			label: "List schemas (PostgreSQL)",
			run: func(ctx context.Context, drv *driver.Driver, _ *bufio.Reader, _ config.Config) error {
				return drv.ListSchemas(ctx, "primary")
			},
		},
		{
			label: "List schemas (ClickHouse)",
			run: func(ctx context.Context, drv *driver.Driver, _ *bufio.Reader, _ config.Config) error {
				return drv.ListSchemas(ctx, "analytics")
			},
		},
		{
			label: "List tables",
			run: func(ctx context.Context, drv *driver.Driver, in *bufio.Reader, _ config.Config) error {
				connection := prompt(in, "Enter connection (primary/analytics): ")
				schema := prompt(in, "Enter schema name: ")
				return drv.ListTables(ctx, connection, schema)
			},
		},
		{
			label: "Describe table",
			run: func(ctx context.Context, drv *driver.Driver, in *bufio.Reader, _ config.Config) error {
				connection := prompt(in, "Enter connection (primary/analytics): ")
				schema := prompt(in, "Enter schema name: ")
				table := prompt(in, "Enter table name: ")
				return drv.DescribeTable(ctx, connection, schema, table)
			},
		},
		{
			label: "Run SQL query",
			run: func(ctx context.Context, drv *driver.Driver, in *bufio.Reader, cfg config.Config) error {
				connection := prompt(in, "Enter connection (primary/analytics): ")
				query := prompt(in, "Enter SQL query: ")
				limit := promptInt(in, "Enter limit (default 10): ", cfg.DefaultRowLimit)
				return drv.RunSQL(ctx, connection, query, limit)
			},
		},
		{
			label: "Explain SQL query",
			run: func(ctx context.Context, drv *driver.Driver, in *bufio.Reader, _ config.Config) error {
				connection := prompt(in, "Enter connection (primary/analytics): ")
				query := prompt(in, "Enter SQL query: ")
				return drv.ExplainSQL(ctx, connection, query)
			},
		},
		{
			label: "Run comprehensive test",
			run: func(ctx context.Context, drv *driver.Driver, _ *bufio.Reader, cfg config.Config) error {
				return drv.Comprehensive(ctx, buildTargets(cfg))
			},
		},
		{
			label: "Exit",
			exit:  true,
		},
	}
}

// runInteractive drives the operator menu loop. A failed handshake degrades
// the session: the menu still shows, but every tool call refuses until exit.
// Process-level failures end the loop; per-call failures are reported by the
// driver and the loop continues.
func runInteractive(ctx context.Context, drv *driver.Driver, cfg config.Config) error {
	pterm.Println()
	pterm.Println(pterm.NewStyle(pterm.FgLightCyan, pterm.Bold).Sprint("🎯 Interactive MCP Database Server Tester"))
	pterm.Println(strings.Repeat("=", 50))

	if err := drv.Initialize(ctx); err != nil {
		if stderrors.Is(err, context.Canceled) {
			return interrupted()
		}
		pterm.Println(logging.PresentError("⚠️  Failed to initialize; tool calls will be refused", err))
	} else {
		pterm.Println("🔧 MCP session initialized")
	}

	entries := menuEntries()
	in := bufio.NewReader(os.Stdin)
	for {
		if ctx.Err() != nil {
			return interrupted()
		}

		pterm.Println()
		pterm.Println("Available commands:")
		for i, entry := range entries {
			pterm.Printf("%d. %s\n", i+1, entry.label)
		}

		choice, err := readLine(in, "\nEnter your choice (1-"+strconv.Itoa(len(entries))+"): ")
		if err != nil {
			// Closed stdin behaves like an explicit exit.
			return nil
		}

		idx, convErr := strconv.Atoi(choice)
		if convErr != nil || idx < 1 || idx > len(entries) {
			pterm.Println("❌ Invalid choice. Please try again.")
			continue
		}

		entry := entries[idx-1]
		if entry.exit {
			return nil
		}

		if err := entry.run(ctx, drv, in, cfg); err != nil {
			if errors.HasKind(err, errors.ServerUnavailable) {
				pterm.Println("❌ Server is gone; shutting down")
				return err
			}
			// Tool errors, protocol violations and not-ready refusals were
			// already reported with their operation and connection. A
			// canceled context lands back at the top of the loop.
		}
	}
}

// readLine prints a prompt and reads one trimmed line, propagating EOF.
func readLine(in *bufio.Reader, promptText string) (string, error) {
	pterm.Print(promptText)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", io.EOF
	}
	return strings.TrimSpace(line), nil
}

// prompt reads one trimmed line, treating EOF as an empty answer.
func prompt(in *bufio.Reader, promptText string) string {
	line, _ := readLine(in, promptText)
	return line
}

// promptInt reads an integer answer, falling back to def when the operator
// just presses Enter or types something that is not a number.
func promptInt(in *bufio.Reader, promptText string, def int) int {
	line := prompt(in, promptText)
	if line == "" {
		return def
	}
	n, err := strconv.Atoi(line)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
