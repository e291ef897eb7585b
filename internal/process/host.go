// Copyright (c) 2025 MCProbe
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package process owns the database server child process and its stdio
// streams. It spawns the server with a prepared environment, exposes its
// stdin/stdout as line-oriented endpoints, and terminates it with a graceful
// stop followed by a forced kill.
//
// The server may need a moment after spawn before it accepts its first
// request; callers are responsible for that startup grace (the harness waits
// one second and then checks Alive). Skipping the grace is the most common
// integration failure against a freshly built server.
package process

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"mcprobe/cli/internal/errors"
)

// StderrSink receives one line of the child's stderr output.
// The server logs its own startup and connection errors there.
type StderrSink func(line string)

// Host owns exactly one child process and its two stream endpoints.
type Host struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	exited chan struct{}

	mu         sync.Mutex
	terminated bool
}

// Start spawns the executable with a copy of the current process environment
// merged with the given overrides. No other inheritance assumptions are made;
// the caller must supply every variable the server needs (the two connection
// URLs in particular).
func Start(path string, env map[string]string, sink StderrSink) (*Host, error) {
	cmd := exec.Command(path)
	environ := os.Environ()
	for k, v := range env {
		environ = append(environ, k+"="+v)
	}
	cmd.Env = environ

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(errors.ProcessStartFailed, "failed to open server stdin", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(errors.ProcessStartFailed, "failed to open server stdout", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(errors.ProcessStartFailed, "failed to open server stderr", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(errors.ProcessStartFailed, "failed to start "+path, err)
	}

	go drainStderr(stderr, sink)

	h := &Host{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
		exited: make(chan struct{}),
	}

	// Reap the child the moment it exits. Without this a child that dies
	// before teardown lingers as a zombie, and a zombie still answers
	// signals, so liveness checks would keep reporting it alive.
	go func() {
		_, _ = cmd.Process.Wait()
		close(h.exited)
	}()

	return h, nil
}

// drainStderr keeps the child's stderr pipe from filling up. Lines go to the
// sink when one is installed and are discarded otherwise.
func drainStderr(r io.Reader, sink StderrSink) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if sink != nil {
			sink(scanner.Text())
		}
	}
}

// WriteLine writes one newline-terminated record to the server's stdin.
// It fails once the stream is closed or the process has exited.
func (h *Host) WriteLine(s string) error {
	if _, err := io.WriteString(h.stdin, s+"\n"); err != nil {
		return errors.Wrap(errors.ServerUnavailable, "server stdin closed", err)
	}
	return nil
}

// ReadLine returns the next newline-terminated record from the server's
// stdout, or io.EOF once the server closed its output. It blocks until a
// full record is available; partial lines are never returned.
func (h *Host) ReadLine() (string, error) {
	line, err := h.stdout.ReadString('\n')
	if err != nil {
		// A partial record without a trailing newline is discarded with the error.
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Alive reports whether the child process is still running. It consults the
// reaper, so a child that exited on its own reads as dead even before
// Terminate is called.
func (h *Host) Alive() bool {
	select {
	case <-h.exited:
		return false
	default:
		return true
	}
}

// Terminate sends a graceful stop signal and waits up to grace for the
// process to exit, then kills it. The final exit status is always collected,
// so no zombie is left behind. Calling Terminate on an already-terminated
// host is a no-op.
func (h *Host) Terminate(grace time.Duration) {
	h.mu.Lock()
	if h.terminated {
		h.mu.Unlock()
		return
	}
	h.terminated = true
	h.mu.Unlock()

	// Closing stdin tells a well-behaved server to finish up.
	_ = h.stdin.Close()
	_ = h.cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-h.exited:
	case <-time.After(grace):
		_ = h.cmd.Process.Kill()
		<-h.exited
	}
}
