// Copyright (c) 2025 MCProbe
// Licensed under the MIT License. See LICENSE file in the project root for details.

package driver

import (
	"context"

	"mcprobe/cli/internal/errors"
)

// Target describes one logical connection the comprehensive script
// exercises, with engine-appropriate representative inputs.
type Target struct {
	Database       string
	Schema         string
	DescribeSchema string
	DescribeTable  string
	Query          string
	QueryLimit     int
	ExplainQuery   string
}

// Comprehensive runs the fixed script against each target, top to bottom:
// list_schemas, list_tables, describe_table, run_sql, explain_sql. A failed
// tool call is reported and the script continues; only a dead server (or a
// session that lost its handshake) aborts the run. A canceled context stops
// the script between steps and returns the context's error unclassified, so
// an operator interrupt is never mistaken for server death. Initialize must
// already have succeeded.
func (d *Driver) Comprehensive(ctx context.Context, targets []Target) error {
	for _, t := range targets {
		steps := []func(context.Context) error{
			func(ctx context.Context) error { return d.ListSchemas(ctx, t.Database) },
			func(ctx context.Context) error { return d.ListTables(ctx, t.Database, t.Schema) },
			func(ctx context.Context) error {
				return d.DescribeTable(ctx, t.Database, t.DescribeSchema, t.DescribeTable)
			},
			func(ctx context.Context) error { return d.RunSQL(ctx, t.Database, t.Query, t.QueryLimit) },
			func(ctx context.Context) error { return d.ExplainSQL(ctx, t.Database, t.ExplainQuery) },
		}
		for _, step := range steps {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := step(ctx); err != nil {
				if fatal(err) {
					return err
				}
				// Per-call failures are already reported; keep going.
			}
		}
	}
	return nil
}

// fatal reports whether an error ends the whole script rather than one step.
func fatal(err error) bool {
	return errors.HasKind(err, errors.ServerUnavailable) ||
		errors.HasKind(err, errors.ProcessStartFailed) ||
		errors.HasKind(err, errors.HandshakeFailed)
}
