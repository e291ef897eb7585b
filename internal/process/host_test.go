// Copyright (c) 2025 MCProbe
// Licensed under the MIT License. See LICENSE file in the project root for details.

package process

import (
	"errors"
	"io"
	"os/exec"
	"testing"
	"time"

	harnesserrors "mcprobe/cli/internal/errors"
)

func lookPath(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
	return path
}

func TestStartMissingExecutable(t *testing.T) {
	_, err := Start("/nonexistent/database-mcp", nil, nil)
	if err == nil {
		t.Fatal("expected error for missing executable")
	}
	if !harnesserrors.HasKind(err, harnesserrors.ProcessStartFailed) {
		t.Errorf("error kind = %v, want process_start_failed", err)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	// cat echoes stdin to stdout line by line, a stand-in for a server
	// that answers every request.
	h, err := Start(lookPath(t, "cat"), nil, nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.Terminate(time.Second)

	if !h.Alive() {
		t.Fatal("Alive() = false right after Start")
	}

	for _, msg := range []string{"hello", `{"jsonrpc":"2.0","id":1}`} {
		if err := h.WriteLine(msg); err != nil {
			t.Fatalf("WriteLine(%q) error = %v", msg, err)
		}
		got, err := h.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine() error = %v", err)
		}
		if got != msg {
			t.Errorf("ReadLine() = %q, want %q", got, msg)
		}
	}
}

func TestReadLineEOFOnExit(t *testing.T) {
	// true exits immediately and closes its stdout.
	h, err := Start(lookPath(t, "true"), nil, nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.Terminate(time.Second)

	_, err = h.ReadLine()
	if !errors.Is(err, io.EOF) {
		t.Errorf("ReadLine() error = %v, want io.EOF", err)
	}
}

func TestAliveFalseAfterChildExits(t *testing.T) {
	// true exits on its own; nobody calls Terminate first.
	h, err := Start(lookPath(t, "true"), nil, nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.Terminate(time.Second)

	if _, err := h.ReadLine(); !errors.Is(err, io.EOF) {
		t.Fatalf("ReadLine() error = %v, want io.EOF", err)
	}

	// The reaper collects the exit status asynchronously; give it a moment.
	deadline := time.Now().Add(2 * time.Second)
	for h.Alive() {
		if time.Now().After(deadline) {
			t.Fatal("Alive() = true long after the child exited")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	h, err := Start(lookPath(t, "printenv"), map[string]string{
		"DB_PRIMARY_URL": "postgres://u:p@localhost:5433/postgres",
	}, nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.Terminate(time.Second)

	found := false
	for {
		line, err := h.ReadLine()
		if err != nil {
			break
		}
		if line == "DB_PRIMARY_URL=postgres://u:p@localhost:5433/postgres" {
			found = true
		}
	}
	if !found {
		t.Error("DB_PRIMARY_URL override not present in child environment")
	}
}

func TestTerminateIdempotent(t *testing.T) {
	h, err := Start(lookPath(t, "cat"), nil, nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	h.Terminate(time.Second)
	if h.Alive() {
		t.Error("Alive() = true after Terminate")
	}

	// Second call must be a no-op, not a panic or a second kill.
	done := make(chan struct{})
	go func() {
		h.Terminate(time.Second)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second Terminate did not return")
	}
}

func TestWriteLineAfterTerminate(t *testing.T) {
	h, err := Start(lookPath(t, "cat"), nil, nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	h.Terminate(time.Second)

	if err := h.WriteLine("late"); err == nil {
		t.Error("WriteLine after Terminate succeeded, want error")
	}
}

func TestStderrSinkQuietChild(t *testing.T) {
	lines := make(chan string, 4)
	h, err := Start(lookPath(t, "true"), nil, func(line string) { lines <- line })
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.Terminate(time.Second)

	select {
	case l := <-lines:
		t.Errorf("unexpected stderr line %q", l)
	case <-time.After(200 * time.Millisecond):
	}
}
