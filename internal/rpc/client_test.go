// Copyright (c) 2025 MCProbe
// Licensed under the MIT License. See LICENSE file in the project root for details.

package rpc

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"mcprobe/cli/internal/errors"
)

// echoStream answers every request with a canned body, echoing back the
// request id unless a fixed id is forced.
type echoStream struct {
	wrote   []string
	body    string // e.g. `"result":{}`
	forceID string // non-empty overrides the echoed id
}

func (s *echoStream) WriteLine(line string) error {
	s.wrote = append(s.wrote, line)
	return nil
}

func (s *echoStream) ReadLine() (string, error) {
	var req Request
	if err := json.Unmarshal([]byte(s.wrote[len(s.wrote)-1]), &req); err != nil {
		return "", err
	}
	id := fmt.Sprint(req.ID)
	if s.forceID != "" {
		id = s.forceID
	}
	return fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,%s}`, id, s.body), nil
}

// scriptStream returns prepared lines in order, then EOF.
type scriptStream struct {
	wrote []string
	lines []string
}

func (s *scriptStream) WriteLine(line string) error {
	s.wrote = append(s.wrote, line)
	return nil
}

func (s *scriptStream) ReadLine() (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

// blockedStream never produces a response.
type blockedStream struct{}

func (blockedStream) WriteLine(string) error { return nil }
func (blockedStream) ReadLine() (string, error) {
	select {} // a hung server
}

func TestCallIDsStrictlyIncrease(t *testing.T) {
	stream := &echoStream{body: `"result":{}`}
	client := NewClient(stream)

	for want := 1; want <= 5; want++ {
		resp, err := client.Call(context.Background(), "tools/call", map[string]any{"name": "list_schemas"})
		if err != nil {
			t.Fatalf("Call() error = %v", err)
		}
		if got, _ := resp.ID.Int64(); got != int64(want) {
			t.Errorf("response id = %d, want %d", got, want)
		}

		var req Request
		if err := json.Unmarshal([]byte(stream.wrote[len(stream.wrote)-1]), &req); err != nil {
			t.Fatalf("request did not round-trip: %v", err)
		}
		if req.ID != want {
			t.Errorf("outgoing id = %d, want %d", req.ID, want)
		}
		if req.JSONRPC != "2.0" {
			t.Errorf("jsonrpc = %q, want 2.0", req.JSONRPC)
		}
	}
}

func TestCallServerErrorObject(t *testing.T) {
	stream := &echoStream{body: `"error":{"code":-32602,"message":"unknown database","data":"replica"}`}
	client := NewClient(stream)

	resp, err := client.Call(context.Background(), "tools/call", nil)
	if err != nil {
		t.Fatalf("Call() error = %v, want nil for a well-formed error object", err)
	}
	if resp.Error == nil {
		t.Fatal("resp.Error = nil, want server error")
	}
	if resp.Error.Code != -32602 {
		t.Errorf("code = %d, want -32602", resp.Error.Code)
	}
	if resp.Error.Message != "unknown database" {
		t.Errorf("message = %q, want unknown database", resp.Error.Message)
	}
	if string(resp.Error.Data) != `"replica"` {
		t.Errorf("data = %s, want \"replica\"", resp.Error.Data)
	}
}

func TestCallStreamClosed(t *testing.T) {
	client := NewClient(&scriptStream{})

	_, err := client.Call(context.Background(), "initialize", nil)
	if !errors.HasKind(err, errors.ServerUnavailable) {
		t.Errorf("error = %v, want server_unavailable", err)
	}
}

func TestCallProtocolViolations(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{
			name: "malformed json",
			line: `{"jsonrpc":"2.0","id":1`,
		},
		{
			name: "id mismatch",
			line: `{"jsonrpc":"2.0","id":99,"result":{}}`,
		},
		{
			name: "missing id",
			line: `{"jsonrpc":"2.0","result":{}}`,
		},
		{
			name: "neither result nor error",
			line: `{"jsonrpc":"2.0","id":1}`,
		},
		{
			name: "both result and error",
			line: `{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":1,"message":"x"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(&scriptStream{lines: []string{tt.line}})
			_, err := client.Call(context.Background(), "tools/call", nil)
			if !errors.HasKind(err, errors.ProtocolViolation) {
				t.Errorf("error = %v, want protocol_violation", err)
			}
		})
	}
}

func TestCallTimeout(t *testing.T) {
	client := NewClient(blockedStream{}).WithTimeout(20 * time.Millisecond)

	start := time.Now()
	_, err := client.Call(context.Background(), "tools/call", nil)
	if !errors.HasKind(err, errors.ServerUnavailable) {
		t.Errorf("error = %v, want server_unavailable", err)
	}
	if !strings.Contains(err.Error(), "no response within") {
		t.Errorf("error = %v, want the timeout named, not a closed-stream message", err)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout did not bound the blocked read")
	}
}

func TestCallContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(blockedStream{})

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := client.Call(ctx, "tools/call", nil)
	if err == nil {
		t.Fatal("Call() error = nil, want context error")
	}
	if !stderrors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled in the chain", err)
	}
	// An operator interrupt is not server death.
	if errors.HasKind(err, errors.ServerUnavailable) {
		t.Errorf("error = %v classified as server_unavailable", err)
	}
}

// reentrantStream issues a second Call from inside WriteLine, the simplest
// deterministic way to violate the single-outstanding discipline.
type reentrantStream struct {
	client *Client
	nested error
}

func (s *reentrantStream) WriteLine(string) error {
	if s.nested == nil {
		_, s.nested = s.client.Call(context.Background(), "tools/call", nil)
	}
	return nil
}

func (s *reentrantStream) ReadLine() (string, error) {
	return `{"jsonrpc":"2.0","id":1,"result":{}}`, nil
}

func TestCallRefusesSecondOutstandingCall(t *testing.T) {
	stream := &reentrantStream{}
	client := NewClient(stream)
	stream.client = client

	if _, err := client.Call(context.Background(), "initialize", nil); err != nil {
		t.Fatalf("outer Call() error = %v", err)
	}
	if !errors.HasKind(stream.nested, errors.ProtocolViolation) {
		t.Errorf("nested call error = %v, want protocol_violation", stream.nested)
	}
}

func TestCallResultVerbatim(t *testing.T) {
	line := `{"jsonrpc":"2.0","id":1,"result":{"rows":[[1]]}}`
	client := NewClient(&scriptStream{lines: []string{line}})

	resp, err := client.Call(context.Background(), "tools/call", map[string]any{
		"name":      "run_sql",
		"arguments": map[string]any{"database": "primary", "query": "SELECT 1", "limit": 1},
	})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if string(resp.Result) != `{"rows":[[1]]}` {
		t.Errorf("result = %s, want {\"rows\":[[1]]}", resp.Result)
	}
}
