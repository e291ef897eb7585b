// Copyright (c) 2025 MCProbe
// Licensed under the MIT License. See LICENSE file in the project root for details.

package preflight

import (
	"os"
	"path/filepath"
	"testing"

	"mcprobe/cli/internal/errors"
)

func TestEnsureServerBinaryMissing(t *testing.T) {
	err := EnsureServerBinary(filepath.Join(t.TempDir(), "bin", "database-mcp"))
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	if !errors.HasKind(err, errors.ProcessStartFailed) {
		t.Errorf("error = %v, want process_start_failed", err)
	}
}

func TestEnsureServerBinaryIsDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := EnsureServerBinary(dir); err == nil {
		t.Error("expected error when path is a directory")
	}
}

func TestEnsureServerBinaryPresent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database-mcp")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := EnsureServerBinary(path); err != nil {
		t.Errorf("EnsureServerBinary() error = %v", err)
	}
}
