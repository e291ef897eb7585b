// Copyright (c) 2025 MCProbe
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"os"
	"strings"

	"mcprobe/cli/internal/config"
	"mcprobe/cli/internal/keychain"
	"mcprobe/cli/internal/logging"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// conninfoCmd shows the URL each logical connection resolves to, with
// credentials masked, plus where the URL came from. Useful for checking
// which databases a session would hand to the server.
var conninfoCmd = &cobra.Command{
	Use:   "conninfo",
	Short: "Show resolved connection URLs with credentials masked",
	Long: `The conninfo command displays the database URL each logical connection would
receive at session start, with passwords masked. Resolution order per
connection: environment variable, OS keychain, config default.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, conn := range cfg.Connections {
			url, source := resolveConnectionURLWithSource(conn)
			body := "engine:  " + string(conn.Engine) + "\n" +
				"env var: " + conn.EnvVar + "\n" +
				"source:  " + source + "\n" +
				"url:     " + logging.Mask(url)

			pterm.DefaultBox.
				WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint(conn.Name)).
				WithLeftPadding(1).
				WithRightPadding(1).
				WithTopPadding(1).
				WithBottomPadding(1).
				Println(body)
			pterm.Println()
		}

		pterm.Println("To store a URL in the keychain, run: mcprobe connect <connection>")
		pterm.Println()
		return nil
	},
}

// resolveConnectionURLWithSource mirrors resolveConnectionURL but also names
// where the value came from.
func resolveConnectionURLWithSource(conn config.Connection) (string, string) {
	if v := strings.TrimSpace(os.Getenv(conn.EnvVar)); v != "" {
		return v, "environment (" + conn.EnvVar + ")"
	}
	if km, err := keychain.GetManager(); err == nil {
		if v, err := km.LoadConnectionURL(conn.Name); err == nil && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), "OS keychain"
		}
	}
	return conn.URL, "config default"
}

func init() {
	rootCmd.AddCommand(conninfoCmd)
}
