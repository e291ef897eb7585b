// Copyright (c) 2025 MCProbe
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"mcprobe/cli/internal/config"
	"mcprobe/cli/internal/driver"
	"mcprobe/cli/internal/errors"
	"mcprobe/cli/internal/keychain"
	"mcprobe/cli/internal/logging"
	"mcprobe/cli/internal/preflight"
	"mcprobe/cli/internal/process"
	"mcprobe/cli/internal/report"
	"mcprobe/cli/internal/rpc"
	"mcprobe/cli/internal/xdg"
)

// terminateGrace bounds how long the server gets to exit cleanly before it
// is killed, matching the original harness teardown.
const terminateGrace = 3 * time.Second

// startupGrace gives the server a moment after spawn before the first
// request; writing earlier than this is the most common integration failure.
const startupGrace = time.Second

// runHarness brings up the whole session — preflight, spawn, handshake —
// then hands control to the selected mode. The child process is terminated
// on every exit path, including operator interrupt and protocol failure.
func runHarness(ctx context.Context, comprehensive bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	path := cfg.ServerPath
	if serverPath != "" {
		path = serverPath
	}
	timeout := time.Duration(cfg.CallTimeoutSeconds) * time.Second
	if callTimeout > 0 {
		timeout = callTimeout
	}

	if err := preflight.EnsureServerBinary(path); err != nil {
		pterm.Println("❌ Server binary not found. Please build first:")
		pterm.Println("   make build")
		return err
	}

	if !skipPreflight && !cfg.SkipPreflight {
		started, err := preflight.EnsureDatabases(ctx)
		if err != nil {
			pterm.Println(logging.PresentError("❌ Error checking/starting databases", err))
			return err
		}
		if started {
			pterm.Println("⏱️  Database containers were started; they are up now")
		}
	}

	host, err := process.Start(path, connectionEnv(cfg), nil)
	if err != nil {
		pterm.Println(logging.PresentError("❌ Error starting server", err))
		return err
	}
	defer host.Terminate(terminateGrace)

	stopSpinner := startInlineSpinner(os.Stdout, "starting server", []string{"-", "\\", "|", "/"}, 100*time.Millisecond)
	time.Sleep(startupGrace)
	stopSpinner()

	if !host.Alive() {
		pterm.Println("❌ Failed to start MCP Server")
		return errors.New(errors.ProcessStartFailed, "server exited during startup")
	}
	pterm.Println("✅ MCP Server started successfully")

	transcript := openTranscript()
	if transcript != nil {
		defer transcript.Close()
	}

	client := rpc.NewClient(host).WithTimeout(timeout)
	drv := driver.New(client, report.New(transcript), Version)
	defer drv.Close()

	if comprehensive {
		return runComprehensive(ctx, drv, cfg)
	}
	return runInteractive(ctx, drv, cfg)
}

// connectionEnv builds the child environment carrying one URL per logical
// connection. Resolution order per connection: process environment, OS
// keychain, the config's local-dev default.
func connectionEnv(cfg config.Config) map[string]string {
	env := make(map[string]string, len(cfg.Connections))
	for _, conn := range cfg.Connections {
		if url := resolveConnectionURL(conn); url != "" {
			env[conn.EnvVar] = url
		}
	}
	return env
}

func resolveConnectionURL(conn config.Connection) string {
	if v := strings.TrimSpace(os.Getenv(conn.EnvVar)); v != "" {
		return v
	}
	if km, err := keychain.GetManager(); err == nil {
		if v, err := km.LoadConnectionURL(conn.Name); err == nil && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return conn.URL
}

// openTranscript creates a per-session transcript file under the XDG state
// dir. The transcript is best-effort; a nil return disables it.
func openTranscript() *os.File {
	dir, err := xdg.StateDir()
	if err != nil {
		return nil
	}
	name := "session-" + time.Now().Format("20060102-150405") + ".jsonl"
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil
	}
	return f
}

// runComprehensive initializes the session and runs the fixed script against
// both connections. A failed handshake aborts the run; failed tool calls are
// reported by the driver and do not.
func runComprehensive(ctx context.Context, drv *driver.Driver, cfg config.Config) error {
	pterm.Println()
	pterm.Println(pterm.NewStyle(pterm.FgLightCyan, pterm.Bold).Sprint("🚀 Running Comprehensive MCP Database Server Test"))
	pterm.Println(strings.Repeat("=", 60))

	if err := drv.Initialize(ctx); err != nil {
		if stderrors.Is(err, context.Canceled) {
			return interrupted()
		}
		pterm.Println(logging.PresentError("❌ Failed to initialize. Stopping tests", err))
		return err
	}
	pterm.Println("🔧 MCP session initialized")
	pterm.Println()

	if err := drv.Comprehensive(ctx, buildTargets(cfg)); err != nil {
		if stderrors.Is(err, context.Canceled) {
			return interrupted()
		}
		pterm.Println(logging.PresentError("❌ Test run aborted", err))
		return err
	}

	pterm.Println()
	pterm.Println("✅ Comprehensive test completed!")
	return nil
}

// interrupted acknowledges an operator-initiated stop. It returns nil: an
// interrupt is a normal way to end a session, not a failure.
func interrupted() error {
	pterm.Println()
	pterm.Println("👋 Interrupted by user")
	return nil
}

// buildTargets maps the configured connections onto script targets with
// engine-appropriate representative queries.
func buildTargets(cfg config.Config) []driver.Target {
	targets := make([]driver.Target, 0, len(cfg.Connections))
	for _, conn := range cfg.Connections {
		t := driver.Target{
			Database:   conn.Name,
			Schema:     conn.DefaultSchema,
			QueryLimit: cfg.DefaultRowLimit,
		}
		switch conn.Engine {
		case config.EngineClickHouse:
			t.DescribeSchema = conn.DefaultSchema
			t.DescribeTable = "events"
			t.Query = "SELECT count(*) AS total_events FROM events"
			t.QueryLimit = 1
			t.ExplainQuery = "SELECT event_type, count(*) FROM events GROUP BY event_type"
		default: // postgres
			t.DescribeSchema = "pg_catalog"
			t.DescribeTable = "pg_tables"
			t.Query = "SELECT current_database(), version()"
			t.QueryLimit = 1
			t.ExplainQuery = "SELECT * FROM pg_tables LIMIT 5"
		}
		targets = append(targets, t)
	}
	return targets
}
