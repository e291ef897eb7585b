// Copyright (c) 2025 MCProbe
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package driver sequences the MCP session against the database server: the
// initialize handshake, then tool calls. Every database operation funnels
// through a single tools/call choke point; the five named operations are
// plain argument mappings with no protocol logic of their own.
package driver

import (
	"context"
	"encoding/json"
	"fmt"

	"mcprobe/cli/internal/errors"
	"mcprobe/cli/internal/rpc"
)

// MCP protocol constants the database server expects.
const (
	ProtocolVersion = "2024-11-05"
	ClientName      = "mcprobe"

	MethodInitialize = "initialize"
	MethodCallTool   = "tools/call"
)

// Tool names exposed by the database server.
const (
	ToolListSchemas   = "list_schemas"
	ToolListTables    = "list_tables"
	ToolDescribeTable = "describe_table"
	ToolRunSQL        = "run_sql"
	ToolExplainSQL    = "explain_sql"
)

// State tracks the session lifecycle. Tool calls are only legal in Ready.
type State int

const (
	StateUnstarted State = iota
	StateInitializing
	StateReady
	StateClosed
)

// Caller issues one synchronous JSON-RPC call. rpc.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, method string, params any) (*rpc.Response, error)
}

// Outcome is the operator-visible record of one tool call. Exactly one of
// Result, ToolErr and Err is set.
type Outcome struct {
	Operation string
	Database  string
	Detail    string
	Result    json.RawMessage
	ToolErr   *rpc.Error
	Err       error
}

// Reporter receives every call's start and outcome for display. The harness
// never drops a failure silently: each outcome names its operation and
// connection so a failed run can be diagnosed without re-running.
type Reporter interface {
	Begin(operation, database, detail string)
	Report(Outcome)
}

// initializeParams matches the MCP initialize request shape.
type initializeParams struct {
	ProtocolVersion string            `json:"protocolVersion"`
	Capabilities    struct{}          `json:"capabilities"`
	ClientInfo      map[string]string `json:"clientInfo"`
}

// callParams matches the MCP tools/call request shape.
type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Driver owns one MCP session over a Caller.
type Driver struct {
	caller   Caller
	reporter Reporter
	state    State
	version  string
}

// New creates a Driver in the Unstarted state. version identifies the
// harness in clientInfo.
func New(caller Caller, reporter Reporter, version string) *Driver {
	return &Driver{caller: caller, reporter: reporter, version: version}
}

// State returns the current session state.
func (d *Driver) State() State { return d.state }

// Initialize performs the MCP handshake. It must be called exactly once per
// session, before any tool call; the session becomes Ready only when the
// server answers with a result.
func (d *Driver) Initialize(ctx context.Context) error {
	if d.state != StateUnstarted {
		return errors.New(errors.HandshakeFailed, "initialize already attempted for this session")
	}
	d.state = StateInitializing

	resp, err := d.caller.Call(ctx, MethodInitialize, initializeParams{
		ProtocolVersion: ProtocolVersion,
		ClientInfo:      map[string]string{"name": ClientName, "version": d.version},
	})
	if err != nil {
		return errors.Wrap(errors.HandshakeFailed, "initialize failed", err)
	}
	if resp.Error != nil {
		return errors.Wrap(errors.HandshakeFailed, "server rejected initialize", resp.Error)
	}

	d.state = StateReady
	return nil
}

// Ready reports whether tool calls may be issued.
func (d *Driver) Ready() bool { return d.state == StateReady }

// Close marks the session Closed. The child process itself is terminated by
// the caller that spawned it; Close only retires the session state.
func (d *Driver) Close() {
	d.state = StateClosed
}

// ToolCall issues tools/call with the given tool name and arguments. It is
// the single choke point for all five database operations.
func (d *Driver) ToolCall(ctx context.Context, name string, args map[string]any) (*rpc.Response, error) {
	if d.state != StateReady {
		return nil, errors.New(errors.HandshakeFailed, "session is not ready; initialize must succeed before tool calls")
	}
	return d.caller.Call(ctx, MethodCallTool, callParams{Name: name, Arguments: args})
}

// ListSchemas lists the schemas of a logical database.
func (d *Driver) ListSchemas(ctx context.Context, database string) error {
	return d.run(ctx, ToolListSchemas, database, "", map[string]any{
		"database": database,
	})
}

// ListTables lists the tables in a schema.
func (d *Driver) ListTables(ctx context.Context, database, schema string) error {
	return d.run(ctx, ToolListTables, database, schema, map[string]any{
		"database": database,
		"schema":   schema,
	})
}

// DescribeTable returns the column layout of one table.
func (d *Driver) DescribeTable(ctx context.Context, database, schema, table string) error {
	return d.run(ctx, ToolDescribeTable, database, schema+"."+table, map[string]any{
		"database": database,
		"schema":   schema,
		"table":    table,
	})
}

// RunSQL executes a query with a result-row limit bounding the response size.
func (d *Driver) RunSQL(ctx context.Context, database, query string, limit int) error {
	return d.run(ctx, ToolRunSQL, database, truncateQuery(query), map[string]any{
		"database": database,
		"query":    query,
		"limit":    limit,
	})
}

// ExplainSQL returns the server's plan for a query. Plans are small, so
// unlike RunSQL there is no limit argument.
func (d *Driver) ExplainSQL(ctx context.Context, database, query string) error {
	return d.run(ctx, ToolExplainSQL, database, truncateQuery(query), map[string]any{
		"database": database,
		"query":    query,
	})
}

// run issues one tool call and reports its outcome. Tool errors and protocol
// violations are reported and returned for the caller to classify; they are
// never swallowed.
func (d *Driver) run(ctx context.Context, tool, database, detail string, args map[string]any) error {
	d.reporter.Begin(tool, database, detail)

	resp, err := d.ToolCall(ctx, tool, args)
	if err != nil {
		d.reporter.Report(Outcome{Operation: tool, Database: database, Detail: detail, Err: err})
		return err
	}
	if resp.Error != nil {
		d.reporter.Report(Outcome{Operation: tool, Database: database, Detail: detail, ToolErr: resp.Error})
		return errors.Wrap(errors.ToolFailed, fmt.Sprintf("%s on %s failed", tool, database), resp.Error)
	}

	d.reporter.Report(Outcome{Operation: tool, Database: database, Detail: detail, Result: resp.Result})
	return nil
}

func truncateQuery(query string) string {
	if len(query) > 50 {
		return query[:50] + "..."
	}
	return query
}
