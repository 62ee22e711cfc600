// Package execrun runs external CLIs (gh, argocd) behind an interface so
// callers can be tested without the binaries installed.
package execrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Result holds the captured output of one command
type Result struct {
	Stdout []byte
	Stderr []byte
}

// Runner executes a command and captures its output
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (Result, error)
}

// ExitError is a command that ran but exited non-zero
type ExitError struct {
	Name   string
	Args   []string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Name + " " + strings.Join(e.Args, " ") + ": " + msg
}

// NotInstalledError is a binary missing from PATH
type NotInstalledError struct {
	Name string
}

func (e *NotInstalledError) Error() string {
	return e.Name + " CLI not found in PATH"
}

// Exec runs real processes
type Exec struct {
	Logger *slog.Logger
}

// NewExec returns an Exec logging to logger (nil discards)
func NewExec(logger *slog.Logger) *Exec {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Exec{Logger: logger}
}

func (e *Exec) Run(ctx context.Context, dir, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	e.Logger.Debug("exec", "cmd", name, "args", args, "dir", dir, "took", time.Since(start), "err", err)

	if err == nil {
		return res, nil
	}
	if errors.Is(err, exec.ErrNotFound) {
		return res, &NotInstalledError{Name: name}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, &ExitError{Name: name, Args: args, Code: exitErr.ExitCode(), Stderr: stderr.String()}
	}
	return res, err
}
