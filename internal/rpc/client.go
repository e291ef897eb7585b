// Copyright (c) 2025 MCProbe
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package rpc implements the JSON-RPC 2.0 request/response exchange with the
// database server over its stdio line streams. The client is strictly
// synchronous: it never sends a second request before the prior one's
// response has been read, so correlation needs no pending-request table —
// only the next id and a read of exactly one line per call.
package rpc

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"mcprobe/cli/internal/errors"
)

// Stream is the line-oriented transport requests are written to and
// responses are read from. process.Host satisfies it; tests substitute
// in-memory fakes.
type Stream interface {
	WriteLine(string) error
	ReadLine() (string, error)
}

// Client correlates requests with responses over a Stream. Ids increase
// strictly by one starting at 1 and are never reused within a session.
type Client struct {
	stream   Stream
	nextID   int
	timeout  time.Duration
	inFlight bool
}

// NewClient creates a client over the given stream.
func NewClient(stream Stream) *Client {
	return &Client{stream: stream}
}

// WithTimeout bounds how long each call waits for its response. Zero (the
// default) keeps the unbounded blocking read; a hung server then stalls the
// harness until the operator interrupts it.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.timeout = d
	return c
}

// Call sends one request and consumes exactly one response line.
//
// A well-formed JSON-RPC error object comes back inside the Response, not as
// a Go error: the server answering "that failed" is a successful exchange.
// Errors are reserved for the exchange itself breaking down — a closed
// stream or a timed-out read (server_unavailable) or a malformed/unmatched
// response (protocol_violation). Protocol violations are not transient;
// callers surface them to the operator instead of retrying.
//
// Context cancellation is the operator's doing, not the server's: the error
// keeps context.Canceled in its chain and carries no failure kind, so callers
// can tell an interrupt apart from a dead server.
func (c *Client) Call(ctx context.Context, method string, params any) (*Response, error) {
	if c.inFlight {
		return nil, errors.New(errors.ProtocolViolation, method+": a call is already outstanding on this session")
	}
	c.inFlight = true
	defer func() { c.inFlight = false }()

	c.nextID++
	id := c.nextID

	payload, err := json.Marshal(Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ProtocolViolation, method+": failed to encode request", err)
	}

	if err := c.stream.WriteLine(string(payload)); err != nil {
		return nil, errors.Wrap(errors.ServerUnavailable, method+": failed to send request", err)
	}

	line, err := c.readLine(ctx)
	switch {
	case err == nil:
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return nil, fmt.Errorf("%s: %w", method, err)
	case errors.HasKind(err, errors.ServerUnavailable):
		return nil, fmt.Errorf("%s: %w", method, err)
	default:
		return nil, errors.Wrap(errors.ServerUnavailable, method+": server closed its output before responding", err)
	}
	if strings.TrimSpace(line) == "" {
		return nil, errors.New(errors.ServerUnavailable, method+": empty response from server")
	}

	return decode(method, id, line)
}

// readLine blocks for the next response line, honoring the configured
// timeout and context cancellation. A timed-out read abandons the session:
// the blocked reader goroutine is released only when the stream closes
// during shutdown, which is acceptable for a single-session harness.
func (c *Client) readLine(ctx context.Context) (string, error) {
	if c.timeout <= 0 && ctx.Done() == nil {
		return c.stream.ReadLine()
	}

	type outcome struct {
		line string
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		line, err := c.stream.ReadLine()
		ch <- outcome{line, err}
	}()

	var expired <-chan time.Time
	if c.timeout > 0 {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case o := <-ch:
		return o.line, o.err
	case <-expired:
		return "", errors.New(errors.ServerUnavailable, fmt.Sprintf("no response within %s", c.timeout))
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// decode validates one response line against the request it answers.
func decode(method string, id int, line string) (*Response, error) {
	var resp Response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return nil, errors.Wrap(errors.ProtocolViolation, method+": malformed response line", err)
	}

	got, err := resp.ID.Int64()
	if err != nil || got != int64(id) {
		return nil, errors.New(errors.ProtocolViolation,
			fmt.Sprintf("%s: response id %q does not match request id %d", method, resp.ID.String(), id))
	}

	hasResult := len(resp.Result) > 0
	hasError := resp.Error != nil
	if hasResult == hasError {
		which := "neither"
		if hasResult {
			which = "both"
		}
		return nil, errors.New(errors.ProtocolViolation,
			fmt.Sprintf("%s: response carries %s result and error", method, which))
	}

	return &resp, nil
}
