package execrun

import (
	"errors"
	"os/exec"
	"testing"
)

func TestExecCapturesOutput(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	res, err := NewExec(nil).Run(t.Context(), "", "sh", "-c", "echo out; echo err >&2")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if string(res.Stdout) != "out\n" || string(res.Stderr) != "err\n" {
		t.Fatalf("stdout=%q stderr=%q", res.Stdout, res.Stderr)
	}
}

func TestExecExitError(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	_, err := NewExec(nil).Run(t.Context(), "", "sh", "-c", "echo nope >&2; exit 3")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error = %v, want ExitError", err)
	}
	if exitErr.Code != 3 || exitErr.Stderr != "nope\n" {
		t.Fatalf("ExitError = %+v", exitErr)
	}
}

func TestExecNotInstalled(t *testing.T) {
	_, err := NewExec(nil).Run(t.Context(), "", "previewctl-definitely-missing-binary")
	var missing *NotInstalledError
	if !errors.As(err, &missing) {
		t.Fatalf("error = %v, want NotInstalledError", err)
	}
}

func TestFakeRecordsCalls(t *testing.T) {
	f := &Fake{Handler: func(c Call) (Result, error) {
		if c.Args[0] == "fail" {
			return Fail(c, "bad")
		}
		return Stdout("ok")
	}}
	res, err := f.Run(t.Context(), "/tmp", "gh", "ok")
	if err != nil || string(res.Stdout) != "ok" {
		t.Fatalf("Run = %q, %v", res.Stdout, err)
	}
	if _, err := f.Run(t.Context(), "", "gh", "fail"); err == nil {
		t.Fatal("expected failure")
	}
	calls := f.Calls()
	if len(calls) != 2 || calls[0].String() != "gh ok" || calls[0].Dir != "/tmp" {
		t.Fatalf("calls = %+v", calls)
	}
}
