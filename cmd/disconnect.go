// Copyright (c) 2025 MCProbe
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"mcprobe/cli/internal/config"
	"mcprobe/cli/internal/keychain"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// disconnectCmd removes a stored connection URL from the OS keychain. The
// connection itself stays configured; sessions fall back to the environment
// variable or the config default afterwards.
var disconnectCmd = &cobra.Command{
	Use:   "disconnect [connection]",
	Short: "Remove a stored connection URL from the OS keychain",
	Long: `The disconnect command deletes the database URL saved for a logical
connection by 'mcprobe connect'. After disconnecting, sessions resolve the
connection's URL from its environment variable or the config default.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		name := ""
		if len(args) == 1 {
			name = strings.TrimSpace(args[0])
		}
		if name == "" {
			fmt.Printf("Enter connection name (%s): ", connectionNames(cfg))
			reader := bufio.NewReader(os.Stdin)
			name, _ = reader.ReadString('\n')
			name = strings.TrimSpace(name)
		}
		conn, ok := cfg.Find(name)
		if !ok {
			pterm.Println("❌ Unknown connection: " + name)
			pterm.Println("   Configured connections: " + connectionNames(cfg))
			return errors.New("unknown connection " + name)
		}

		km, err := keychain.GetManager()
		if err != nil {
			pterm.Println("❌ Secure storage is not available on this system")
			return err
		}
		if err := km.DeleteConnectionURL(conn.Name); err != nil {
			pterm.Println("❌ Failed to remove the stored URL")
			return err
		}

		pterm.Println("✅ Removed stored URL for " + conn.Name)
		pterm.Println("   Sessions will use " + conn.EnvVar + " or the config default")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(disconnectCmd)
}
