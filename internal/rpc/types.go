// Copyright (c) 2025 MCProbe
// Licensed under the MIT License. See LICENSE file in the project root for details.

package rpc

import (
	"encoding/json"
	"fmt"
)

// Request is a JSON-RPC 2.0 request sent to the server, one per line.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// Response is a JSON-RPC 2.0 response read from the server. Exactly one of
// Result and Error is present in a well-formed response; the client rejects
// anything else as a protocol violation.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.Number     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the JSON-RPC error object returned by the server. Code, message
// and data are surfaced to the operator verbatim.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("server error %d: %s (%s)", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}
