// Copyright (c) 2025 MCProbe
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package preflight verifies the session's external preconditions: the
// server binary must exist, and the docker containers backing the two
// logical databases must be running. Missing containers are started through
// docker compose and polled until they come up.
package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"mcprobe/cli/internal/errors"
)

// Container names from the server's docker-compose setup.
const (
	postgresContainer   = "database-mcp-postgres"
	clickhouseContainer = "database-mcp-clickhouse"
)

// EnsureServerBinary checks that the server executable exists at path.
func EnsureServerBinary(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(errors.ProcessStartFailed, "server binary not found at "+path, err)
	}
	if info.IsDir() {
		return errors.New(errors.ProcessStartFailed, path+" is a directory, not the server binary")
	}
	return nil
}

// EnsureDatabases makes sure both database containers are running, starting
// them when missing. Started reports whether a docker compose up was needed,
// so the caller can tell the operator why the session is waiting.
func EnsureDatabases(ctx context.Context) (started bool, err error) {
	up, err := containersRunning(ctx)
	if err != nil {
		return false, err
	}
	if up {
		return false, nil
	}

	cmd := exec.CommandContext(ctx, "docker", "compose", "up", "-d", "postgres", "clickhouse")
	if out, err := cmd.CombinedOutput(); err != nil {
		return true, fmt.Errorf("failed to start database containers: %s: %w", strings.TrimSpace(string(out)), err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 2 * time.Second
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = 60 * time.Second

	err = backoff.Retry(func() error {
		up, err := containersRunning(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !up {
			return fmt.Errorf("database containers not running yet")
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	return true, err
}

// containersRunning checks docker ps for both expected container names.
func containersRunning(ctx context.Context) (bool, error) {
	out, err := exec.CommandContext(ctx, "docker", "ps", "--format", "{{.Names}}").Output()
	if err != nil {
		return false, fmt.Errorf("docker not available: %w", err)
	}
	names := string(out)
	return strings.Contains(names, postgresContainer) && strings.Contains(names, clickhouseContainer), nil
}
