package execrun

import (
	"context"
	"strings"
	"sync"
)

// Call is one invocation seen by Fake
type Call struct {
	Dir  string
	Name string
	Args []string
}

// String renders the call as a command line
func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Fake is a Runner for tests. Handler decides the outcome of each call;
// with no Handler every call succeeds with empty output.
type Fake struct {
	Handler func(call Call) (Result, error)

	mu    sync.Mutex
	calls []Call
}

func (f *Fake) Run(ctx context.Context, dir, name string, args ...string) (Result, error) {
	call := Call{Dir: dir, Name: name, Args: append([]string(nil), args...)}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if f.Handler == nil {
		return Result{}, nil
	}
	return f.Handler(call)
}

// Calls returns a copy of the recorded invocations
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Stdout is a Handler result helper
func Stdout(s string) (Result, error) {
	return Result{Stdout: []byte(s)}, nil
}

// Fail is a Handler result helper for a non-zero exit
func Fail(call Call, stderr string) (Result, error) {
	return Result{Stderr: []byte(stderr)}, &ExitError{Name: call.Name, Args: call.Args, Code: 1, Stderr: stderr}
}
