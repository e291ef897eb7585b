// Copyright (c) 2025 MCProbe
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package report renders tool call outcomes to the terminal and optionally
// tees a machine-readable transcript of the session. It implements
// driver.Reporter; every scripted or interactive call produces exactly one
// rendered entry, success or failure.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"mcprobe/cli/internal/driver"
	"mcprobe/cli/internal/logging"
)

// symbols and labels for the operator log, one per tool.
var opLabels = map[string]struct {
	symbol string
	label  string
}{
	driver.ToolListSchemas:   {"📋", "Listing schemas"},
	driver.ToolListTables:    {"📋", "Listing tables"},
	driver.ToolDescribeTable: {"🔍", "Describing table"},
	driver.ToolRunSQL:        {"⚡", "Running SQL"},
	driver.ToolExplainSQL:    {"📊", "Explaining SQL"},
}

// Console renders outcomes with pterm and appends transcript records to an
// optional writer (nil disables the transcript).
type Console struct {
	transcript io.Writer
}

// New creates a console reporter. transcript may be nil.
func New(transcript io.Writer) *Console {
	return &Console{transcript: transcript}
}

// Begin announces a call before it is issued, so a hung server still leaves
// the operator knowing which operation stalled.
func (c *Console) Begin(operation, database, detail string) {
	entry, ok := opLabels[operation]
	if !ok {
		entry.symbol, entry.label = "🔧", operation
	}
	msg := fmt.Sprintf("%s %s on %s", entry.symbol, entry.label, database)
	if detail != "" {
		msg += ": " + detail
	}
	pterm.Println(pterm.NewStyle(pterm.FgLightCyan).Sprint(msg + "..."))
}

// Report renders one outcome.
func (c *Console) Report(o driver.Outcome) {
	switch {
	case o.Err != nil:
		pterm.Println("❌ " + logging.PresentError("Error", o.Err))
	case o.ToolErr != nil:
		pterm.Println(pterm.NewStyle(pterm.FgRed).Sprintf("❌ Tool error %d: %s", o.ToolErr.Code, o.ToolErr.Message))
		if len(o.ToolErr.Data) > 0 {
			pterm.Println("   data: " + logging.Mask(string(o.ToolErr.Data)))
		}
	default:
		pterm.Println(pterm.NewStyle(pterm.FgGreen).Sprint("✅ Success:"))
		pterm.Println(indentJSON(o.Result))
	}
	pterm.Println(strings.Repeat("-", 50))

	c.record(o)
}

// record appends one transcript line. Transcript failures are ignored: the
// transcript is a convenience, never a reason to fail a call.
func (c *Console) record(o driver.Outcome) {
	if c.transcript == nil {
		return
	}
	rec := transcriptRecord{
		Time:      time.Now().UTC().Format(time.RFC3339),
		Operation: o.Operation,
		Database:  o.Database,
		Detail:    o.Detail,
		OK:        o.Err == nil && o.ToolErr == nil,
	}
	switch {
	case o.Err != nil:
		rec.Error = logging.Mask(o.Err.Error())
	case o.ToolErr != nil:
		rec.Error = logging.Mask(o.ToolErr.Error())
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_, _ = c.transcript.Write(append(line, '\n'))
}

type transcriptRecord struct {
	Time      string `json:"time"`
	Operation string `json:"operation"`
	Database  string `json:"database"`
	Detail    string `json:"detail,omitempty"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// indentJSON pretty-prints a raw result payload; payloads that do not
// re-indent are shown verbatim.
func indentJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
