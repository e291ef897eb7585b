// Package main is the entry point for the mcprobe CLI application.
// It provides a test harness for the database MCP server driven over
// the server's standard input/output streams.
package main

import (
	"mcprobe/cli/cmd"
)

// main is the entry point for the mcprobe CLI application.
// It initializes and executes the command-line interface.
func main() {
	cmd.Execute()
}
